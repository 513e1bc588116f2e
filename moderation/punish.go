package moderation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/guildwarden/warden/config"
	"github.com/guildwarden/warden/modstore"
	"github.com/guildwarden/warden/platform"
	"github.com/guildwarden/warden/util"
)

type Kind string

const (
	KindWarn    = Kind(config.PunishWarn)
	KindTimeout = Kind(config.PunishTimeout)
	KindKick    = Kind(config.PunishKick)
	KindBan     = Kind(config.PunishBan)
)

var (
	DefaultTimeout = 10 * time.Minute
	// platform maximum for a timeout
	MaxTimeout = 28 * util.Day
	// applied once a member reaches the configured maximum number of warnings
	EscalationTimeout = time.Hour

	MaxReasonLength = 512
)

// A decision to sanction a member.
type Punishment struct {
	GuildID     string
	UserID      string
	ModeratorID string
	Kind        Kind
	Reason      string
	// length of a timeout; for bans, a non-zero duration makes the ban temporary
	Duration time.Duration
}

type Result struct {
	// active warnings after a warn
	WarningCount int
	// the warn pushed the member over the maximum and an automatic timeout was applied
	Escalated bool
}

// Translates punishment decisions in to platform calls and persisted audit records.
type Orchestrator struct {
	Store    modstore.Store
	Platform platform.Client
	Config   *config.Holder
	Logger   *slog.Logger
}

func NewOrchestrator(store modstore.Store, client platform.Client, cfg *config.Holder, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		Store:    store,
		Platform: client,
		Config:   cfg,
		Logger:   logger.With("component", "moderation"),
	}
}

// Trims a reason, substitutes a placeholder for an empty one, and caps its length.
func NormalizeReason(reason string) string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return "No reason provided"
	}
	if r := []rune(reason); len(r) > MaxReasonLength {
		reason = string(r[:MaxReasonLength])
	}
	return reason
}

// Applies a punishment. Platform failures are logged here and returned wrapped (check with platform.IsForbidden); callers on the automod path log and move on.
func (o *Orchestrator) Punish(ctx context.Context, p Punishment) (*Result, error) {
	p.Reason = NormalizeReason(p.Reason)
	if p.ModeratorID == "" {
		p.ModeratorID = modstore.SystemModerator
	}

	var res *Result
	var err error
	switch p.Kind {
	case KindWarn:
		res, err = o.warn(ctx, p, false)
	case KindTimeout:
		err = o.timeout(ctx, p, modstore.ActionTimeout)
		res = &Result{}
	case KindKick:
		err = o.kick(ctx, p)
		res = &Result{}
	case KindBan:
		err = o.ban(ctx, p)
		res = &Result{}
	default:
		return nil, fmt.Errorf("unknown punishment kind: %q", p.Kind)
	}
	if err != nil {
		return nil, err
	}
	punishmentsApplied.WithLabelValues(string(p.Kind)).Inc()
	return res, nil
}

// records and returns a platform failure
func (o *Orchestrator) fail(p Punishment, op string, err error) error {
	logger := o.Logger.With("guild", p.GuildID, "user", p.UserID, "op", op, "err", err)
	if platform.IsForbidden(err) {
		logger.Warn("missing platform permission for moderation action")
		punishmentFailures.WithLabelValues(op, "forbidden").Inc()
	} else if platform.IsNotFound(err) {
		logger.Info("moderation target not found")
		punishmentFailures.WithLabelValues(op, "not_found").Inc()
	} else {
		logger.Error("moderation action failed")
		punishmentFailures.WithLabelValues(op, "error").Inc()
	}
	return fmt.Errorf("%s %s/%s: %w", op, p.GuildID, p.UserID, err)
}

// Audit log failures never undo a platform action that already happened, so they are only logged.
func (o *Orchestrator) logAction(ctx context.Context, act modstore.ModAction) {
	if err := o.Store.LogModAction(ctx, &act); err != nil {
		o.Logger.Error("failed to persist moderation history", "err", err, "guild", act.GuildID, "user", act.UserID, "action", act.Action)
	}
	o.postModLog(ctx, act)
}

func (o *Orchestrator) warn(ctx context.Context, p Punishment, logHistory bool) (*Result, error) {
	if _, err := o.Store.AddWarning(ctx, p.GuildID, p.UserID, p.ModeratorID, p.Reason); err != nil {
		o.Logger.Error("failed to persist warning", "err", err, "guild", p.GuildID, "user", p.UserID)
		return nil, err
	}
	if logHistory {
		o.logAction(ctx, modstore.ModAction{
			GuildID:     p.GuildID,
			UserID:      p.UserID,
			ModeratorID: p.ModeratorID,
			Action:      modstore.ActionWarn,
			Reason:      p.Reason,
		})
	}

	count, err := o.Store.GetWarningCount(ctx, p.GuildID, p.UserID)
	if err != nil {
		o.Logger.Error("failed to count warnings", "err", err, "guild", p.GuildID, "user", p.UserID)
		return nil, err
	}
	res := &Result{WarningCount: count}

	cfg := o.Config.Get().Moderation
	if !cfg.AutoPunishOnMaxWarnings || count < cfg.MaxWarnings {
		return res, nil
	}

	// escalation is a plain timeout; it never re-enters warn, so it can not cascade
	esc := Punishment{
		GuildID:     p.GuildID,
		UserID:      p.UserID,
		ModeratorID: modstore.SystemModerator,
		Kind:        KindTimeout,
		Reason:      fmt.Sprintf("Automatic timeout: reached maximum warnings (%d)", count),
		Duration:    EscalationTimeout,
	}
	if err := o.timeout(ctx, esc, modstore.ActionAutoTimeout); err != nil {
		// the warning itself stands
		return res, nil
	}
	escalations.Inc()
	res.Escalated = true
	return res, nil
}

func (o *Orchestrator) timeout(ctx context.Context, p Punishment, action modstore.ActionKind) error {
	d := p.Duration
	if d <= 0 {
		d = DefaultTimeout
	}
	if d > MaxTimeout {
		d = MaxTimeout
	}
	until := time.Now().Add(d)

	if err := o.Platform.Timeout(ctx, p.GuildID, p.UserID, &until, p.Reason); err != nil {
		return o.fail(p, "timeout", err)
	}
	o.notify(ctx, p, fmt.Sprintf("timed out for %s", util.FormatDuration(d)))
	if _, err := o.Store.AddTempAction(ctx, p.GuildID, p.UserID, modstore.TempTimeout, until); err != nil {
		o.Logger.Error("failed to record temp action", "err", err, "guild", p.GuildID, "user", p.UserID)
	}
	act := modstore.ModAction{
		GuildID:     p.GuildID,
		UserID:      p.UserID,
		ModeratorID: p.ModeratorID,
		Action:      action,
		Reason:      p.Reason,
	}
	act.SetDuration(d)
	o.logAction(ctx, act)
	return nil
}

func (o *Orchestrator) kick(ctx context.Context, p Punishment) error {
	// must happen before the kick, while the bot still shares a guild with the user
	o.notify(ctx, p, "kicked")
	if err := o.Platform.Kick(ctx, p.GuildID, p.UserID, p.Reason); err != nil {
		return o.fail(p, "kick", err)
	}
	o.logAction(ctx, modstore.ModAction{
		GuildID:     p.GuildID,
		UserID:      p.UserID,
		ModeratorID: p.ModeratorID,
		Action:      modstore.ActionKick,
		Reason:      p.Reason,
	})
	return nil
}

func (o *Orchestrator) ban(ctx context.Context, p Punishment) error {
	what := "banned"
	if p.Duration > 0 {
		what = fmt.Sprintf("banned for %s", util.FormatDuration(p.Duration))
	}
	o.notify(ctx, p, what)
	deleteDays := o.Config.Get().Moderation.BanDeleteMessageDays
	if err := o.Platform.Ban(ctx, p.GuildID, p.UserID, p.Reason, deleteDays); err != nil {
		return o.fail(p, "ban", err)
	}
	act := modstore.ModAction{
		GuildID:     p.GuildID,
		UserID:      p.UserID,
		ModeratorID: p.ModeratorID,
		Action:      modstore.ActionBan,
		Reason:      p.Reason,
	}
	if p.Duration > 0 {
		if _, err := o.Store.AddTempAction(ctx, p.GuildID, p.UserID, modstore.TempBan, time.Now().Add(p.Duration)); err != nil {
			o.Logger.Error("failed to record temp action", "err", err, "guild", p.GuildID, "user", p.UserID)
		}
		act.SetDuration(p.Duration)
	}
	o.logAction(ctx, act)
	return nil
}

// Best-effort direct message to the sanctioned member. Members with closed DMs are common, so failures are ignored.
func (o *Orchestrator) notify(ctx context.Context, p Punishment, what string) {
	if !o.Config.Get().Moderation.DMOnPunishment {
		return
	}
	guildName := p.GuildID
	if g, err := o.Platform.GetGuild(ctx, p.GuildID); err == nil && g.Name != "" {
		guildName = g.Name
	}
	text := fmt.Sprintf("You have been %s in %s. Reason: %s", what, guildName, p.Reason)
	if err := o.Platform.NotifyUser(ctx, p.UserID, text); err != nil {
		o.Logger.Debug("could not notify member", "err", err, "guild", p.GuildID, "user", p.UserID)
	}
}
