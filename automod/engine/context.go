package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/guildwarden/warden/automod/helpers"
	"github.com/guildwarden/warden/config"
	"github.com/guildwarden/warden/modstore"
)

// A guild message as seen by the rules. Immutable.
type Message struct {
	ID          string
	GuildID     string
	ChannelID   string
	AuthorID    string
	AuthorName  string
	AuthorBot   bool
	AuthorRoles []string
	Content     string
	Timestamp   time.Time
	// set when the message is being checked again after an edit
	Edited bool
}

// The primary interface exposed to rules.
type BaseContext struct {
	// Actual golang "context.Context", if needed for timeouts etc
	Ctx context.Context
	// Any errors encountered while processing methods on this struct (or sub-types) get rolled up in this nullable field
	Err error
	// slog logger handle, with event-specific structured fields pre-populated. Pointer, but expected to never be nil.
	Logger *slog.Logger

	engine  *Engine // NOTE: pointer, but expected never to be nil
	effects *Effects
}

// Processing context for a single message.
type MessageContext struct {
	BaseContext

	Message Message
	// snapshot taken when processing started; a reload mid-message doesn't change thresholds under a rule
	Config *config.AutomodConfig
}

func NewMessageContext(ctx context.Context, eng *Engine, cfg *config.AutomodConfig, msg Message) MessageContext {
	return MessageContext{
		BaseContext: BaseContext{
			Ctx:     ctx,
			Err:     nil,
			Logger:  eng.Logger.With("guild", msg.GuildID, "channel", msg.ChannelID, "user", msg.AuthorID, "message", msg.ID),
			engine:  eng,
			effects: &Effects{},
		},
		Message: msg,
		Config:  cfg,
	}
}

func (c *BaseContext) recordErr(err error) {
	if nil == c.Err {
		c.Err = err
	}
}

func (c *BaseContext) InSet(name, val string) bool {
	out, err := c.engine.Sets.InSet(c.Ctx, name, val)
	if err != nil {
		c.Logger.Warn("set lookup failed", "err", err, "set", name)
		c.recordErr(err)
		return false
	}
	return out
}

func (c *BaseContext) Increment(name, val string) {
	c.effects.Increment(name, val)
}

func (c *BaseContext) IncrementDistinct(name, bucket, val string) {
	c.effects.IncrementDistinct(name, bucket, val)
}

func (c *BaseContext) Tracker() *Tracker {
	return c.engine.Tracker
}

// Resolves an invite code to the ID of the guild it points at. Resolved codes are cached; failures are not, and report false.
func (c *BaseContext) InviteGuild(code string) (string, bool) {
	eng := c.engine
	if v, err := eng.Cache.Get(c.Ctx, "invite", code); err != nil {
		c.Logger.Warn("invite cache read failed", "err", err)
	} else if v != "" {
		return v, true
	}

	inviteResolutions.Inc()
	inv, err := eng.Platform.ResolveInvite(c.Ctx, code)
	if err != nil {
		c.Logger.Debug("could not resolve invite", "code", code, "err", err)
		return "", false
	}
	if err := eng.Cache.Set(c.Ctx, "invite", code, inv.GuildID); err != nil {
		c.Logger.Warn("invite cache write failed", "err", err)
	}
	return inv.GuildID, true
}

// Enqueues deletion of the message being processed. The message is deleted at most once, however many rules ask.
func (c *MessageContext) DeleteMessage() {
	c.effects.DeleteMessage = true
}

// Enqueues a violation, punished according to the detector's configuration once all rules have run.
func (c *MessageContext) AddViolation(kind modstore.ViolationKind, det config.DetectorConfig, reason string) {
	c.effects.AddViolation(Violation{
		Kind:       kind,
		Punishment: det.Punishment,
		Duration:   time.Duration(det.PunishmentDuration) * time.Second,
		Reason:     reason,
	})
}

// Logs a single line summarizing the outcome of processing a message, if anything happened.
func (c *MessageContext) CanonicalLogLine() {
	if !c.effects.DeleteMessage && len(c.effects.Violations) == 0 {
		return
	}
	kinds := make([]string, len(c.effects.Violations))
	for i, v := range c.effects.Violations {
		kinds[i] = string(v.Kind)
	}
	c.Logger.Info("canonical-event-line",
		"delete", c.effects.DeleteMessage,
		"violations", kinds,
		"contentHash", helpers.HashOfString(c.Message.Content),
	)
}
