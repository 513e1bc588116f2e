package engine

import (
	"context"
	"errors"

	"github.com/guildwarden/warden/automod/helpers"
	"github.com/guildwarden/warden/moderation"
	"github.com/guildwarden/warden/modstore"
	"github.com/guildwarden/warden/platform"
)

// Value of the per-guild "violation" counter for one detector.
func ViolationCounterKey(guildID string, kind modstore.ViolationKind) string {
	return guildID + "/" + string(kind)
}

func (eng *Engine) persistCounters(ctx context.Context, eff *Effects) error {
	for _, ref := range eff.CounterIncrements {
		if err := eng.Counters.Increment(ctx, ref.Name, ref.Val); err != nil {
			return err
		}
	}
	for _, ref := range eff.CounterDistinctIncrements {
		if err := eng.Counters.IncrementDistinct(ctx, ref.Name, ref.Bucket, ref.Val); err != nil {
			return err
		}
	}
	return nil
}

// Applies the effects collected while running rules against a message: deletion first, then each violation is recorded and punished, then the message is marked actioned.
//
// A message which is already gone when we try to delete it was handled by an earlier pass (or a moderator), so no punishments are applied.
func (eng *Engine) persistMessageEffects(c *MessageContext) error {
	ctx := c.Ctx
	eff := c.effects
	msg := c.Message

	if eff.DeleteMessage {
		err := eng.Platform.DeleteMessage(ctx, msg.ChannelID, msg.ID, "Automod")
		switch {
		case err == nil:
			messageDeleteCount.WithLabelValues("ok").Inc()
		case errors.Is(err, platform.ErrNotFound):
			messageDeleteCount.WithLabelValues("not_found").Inc()
			c.Logger.Info("message already removed, skipping punishments")
			return eng.markActioned(ctx, msg)
		case errors.Is(err, platform.ErrForbidden):
			messageDeleteCount.WithLabelValues("forbidden").Inc()
			c.Logger.Warn("missing permission to delete message")
		default:
			messageDeleteCount.WithLabelValues("error").Inc()
			c.Logger.Error("failed to delete message", "err", err)
		}
	}

	content := helpers.TruncateContent(helpers.CleanContent(msg.Content), ViolationContentLength)
	for _, v := range eff.Violations {
		violationCount.WithLabelValues(string(v.Kind)).Inc()
		c.Increment("violation", ViolationCounterKey(msg.GuildID, v.Kind))
		c.Increment("violation-guild", msg.GuildID)
		c.IncrementDistinct("offenders", msg.GuildID, msg.AuthorID)

		rec := modstore.AutomodViolation{
			GuildID:     msg.GuildID,
			UserID:      msg.AuthorID,
			Kind:        v.Kind,
			ChannelID:   msg.ChannelID,
			Content:     content,
			ActionTaken: v.Punishment,
		}
		if err := eng.Store.LogAutomodViolation(ctx, &rec); err != nil {
			c.Logger.Error("failed to record automod violation", "kind", v.Kind, "err", err)
		}

		_, err := eng.Punisher.Punish(ctx, moderation.Punishment{
			GuildID:     msg.GuildID,
			UserID:      msg.AuthorID,
			ModeratorID: modstore.SystemModerator,
			Kind:        moderation.Kind(v.Punishment),
			Reason:      v.Reason,
			Duration:    v.Duration,
		})
		if err != nil {
			// already logged by the punisher; carry on with the next violation
			c.Logger.Warn("automod punishment not applied", "kind", v.Kind, "punishment", v.Punishment, "err", err)
		}
	}

	if err := eng.persistCounters(ctx, eff); err != nil {
		c.Logger.Error("failed to persist counters", "err", err)
	}
	if len(eff.Violations) == 0 && !eff.DeleteMessage {
		return nil
	}
	return eng.markActioned(ctx, msg)
}
