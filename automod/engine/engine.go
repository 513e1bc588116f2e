package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/guildwarden/warden/automod/cachestore"
	"github.com/guildwarden/warden/automod/countstore"
	"github.com/guildwarden/warden/automod/helpers"
	"github.com/guildwarden/warden/automod/setstore"
	"github.com/guildwarden/warden/config"
	"github.com/guildwarden/warden/moderation"
	"github.com/guildwarden/warden/modstore"
	"github.com/guildwarden/warden/platform"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// Applies punishments decided by rules. Implemented by moderation.Orchestrator.
type Punisher interface {
	Punish(ctx context.Context, p moderation.Punishment) (*moderation.Result, error)
}

// Reports whether a member is exempt from automod.
type StaffChecker interface {
	IsStaff(ctx context.Context, guildID, userID string, roles []string) bool
}

// guild setting which turns automod off for a single guild
const SettingAutomodEnabled = modstore.SettingAutomodEnabled

// runtime for executing rules, managing state, and recording moderation actions.
//
// NOTE: careful when initializing: all fields except Staff are required, even though several are pointer or interface types.
type Engine struct {
	Logger   *slog.Logger
	Config   *config.Holder
	Rules    RuleSet
	Tracker  *Tracker
	Counters countstore.CountStore
	Sets     setstore.SetStore
	Cache    cachestore.CacheStore
	Platform platform.Client
	Store    modstore.Store
	Punisher Punisher
	// optional; without it nobody is exempt
	Staff StaffChecker
}

// Runs every automod rule against a guild message, then applies the resulting effects.
func (eng *Engine) ProcessMessage(ctx context.Context, msg Message) error {
	// similar to an HTTP server, we want to recover any panics from rule execution
	defer func() {
		if r := recover(); r != nil {
			eng.Logger.Error("automod message execution exception", "err", r, "guild", msg.GuildID, "message", msg.ID)
			messageErrorCount.Inc()
		}
	}()

	start := time.Now()
	defer func() {
		messageProcessDuration.Observe(time.Since(start).Seconds())
	}()

	ctx, span := otel.Tracer("automod").Start(ctx, "ProcessMessage")
	defer span.End()
	span.SetAttributes(
		attribute.String("guild", msg.GuildID),
		attribute.String("channel", msg.ChannelID),
		attribute.String("message", msg.ID),
	)

	if skip := eng.skipReason(ctx, msg); skip != "" {
		messageProcessCount.WithLabelValues(skip).Inc()
		return nil
	}

	cfg := eng.Config.Get()
	c := NewMessageContext(ctx, eng, &cfg.Automod, msg)
	c.Logger.Debug("processing message")
	if err := eng.Rules.CallMessageRules(&c); err != nil {
		messageErrorCount.Inc()
		// effects from the rules which did run are still applied
		c.Logger.Warn("automod rules returned error", "err", err)
	}
	if c.Err != nil {
		c.Logger.Warn("automod rule execution soft error", "err", c.Err)
	}
	c.CanonicalLogLine()
	if err := eng.persistMessageEffects(&c); err != nil {
		messageErrorCount.Inc()
		return err
	}
	if len(c.effects.Violations) > 0 {
		messageProcessCount.WithLabelValues("actioned").Inc()
	} else {
		messageProcessCount.WithLabelValues("clean").Inc()
	}
	return nil
}

// Returns a short label for why the message should not be processed, or empty string if it should be.
func (eng *Engine) skipReason(ctx context.Context, msg Message) string {
	if msg.GuildID == "" {
		return "skip_direct"
	}
	if msg.AuthorBot {
		return "skip_bot"
	}
	if !eng.Config.Get().Automod.Enabled || !eng.GuildEnabled(ctx, msg.GuildID) {
		return "skip_disabled"
	}
	if eng.Staff != nil && eng.Staff.IsStaff(ctx, msg.GuildID, msg.AuthorID, msg.AuthorRoles) {
		return "skip_staff"
	}
	if eng.alreadyActioned(ctx, msg) {
		return "skip_actioned"
	}
	return ""
}

// Checks the per-guild automod override. Guilds with no settings row (or no value for the key) are enabled. Store errors fail open.
func (eng *Engine) GuildEnabled(ctx context.Context, guildID string) bool {
	if v, err := eng.Cache.Get(ctx, "guild-automod", guildID); err == nil && v != "" {
		return v == "1"
	}
	enabled := true
	gs, err := eng.Store.GetGuildSettings(ctx, guildID)
	if err != nil && !errors.Is(err, modstore.ErrNotFound) {
		eng.Logger.Warn("failed to read guild settings", "guild", guildID, "err", err)
		return true
	}
	if gs != nil {
		enabled = gs.Bool(SettingAutomodEnabled, true)
	}
	v := "0"
	if enabled {
		v = "1"
	}
	if err := eng.Cache.Set(ctx, "guild-automod", guildID, v); err != nil {
		eng.Logger.Warn("failed to cache guild settings", "guild", guildID, "err", err)
	}
	return enabled
}

// Drops cached guild settings, so an update is picked up by the next message.
func (eng *Engine) PurgeGuildCaches(ctx context.Context, guildID string) error {
	return eng.Cache.Purge(ctx, "guild-automod", guildID)
}

// A message is "actioned" once a processing pass recorded violations for it. A redelivery with identical content is skipped; an edit is processed again.
func (eng *Engine) alreadyActioned(ctx context.Context, msg Message) bool {
	v, err := eng.Cache.Get(ctx, ActionedCacheName, msg.ID)
	if err != nil {
		eng.Logger.Warn("failed to read actioned marker", "message", msg.ID, "err", err)
		return false
	}
	return v != "" && v == helpers.HashOfString(msg.Content)
}

func (eng *Engine) markActioned(ctx context.Context, msg Message) error {
	if err := eng.Cache.Set(ctx, ActionedCacheName, msg.ID, helpers.HashOfString(msg.Content)); err != nil {
		return fmt.Errorf("marking message actioned: %w", err)
	}
	return nil
}
