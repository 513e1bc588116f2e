package tempaction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/guildwarden/warden/modstore"
	"github.com/guildwarden/warden/platform"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

var (
	DefaultInterval    = 60 * time.Second
	DefaultConcurrency = 4
	DefaultCallTimeout = 15 * time.Second
)

// Periodically reverses expired temporary sanctions (timeouts and temporary bans), reconciling against the platform's current state.
type Scheduler struct {
	Store    modstore.Store
	Platform platform.Client
	Logger   *slog.Logger

	Interval    time.Duration
	Concurrency int
	// bound on each individual platform call
	CallTimeout time.Duration

	started atomic.Bool
}

func NewScheduler(store modstore.Store, client platform.Client, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		Store:       store,
		Platform:    client,
		Logger:      logger.With("component", "tempaction"),
		Interval:    DefaultInterval,
		Concurrency: DefaultConcurrency,
		CallTimeout: DefaultCallTimeout,
	}
}

// Runs a pass immediately, then one every Interval until the context is cancelled. Only the first call on a Scheduler does anything; later calls return nil right away.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		s.Logger.Debug("scheduler already running")
		return nil
	}
	s.Logger.Info("starting temp action scheduler", "interval", s.Interval)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		if _, err := s.RunOnce(ctx); err != nil {
			s.Logger.Error("temp action pass failed", "err", err)
		}
		select {
		case <-ctx.Done():
			s.Logger.Info("stopping temp action scheduler")
			return nil
		case <-ticker.C:
		}
	}
}

// Handles every temp action which has expired as of now. Each record is completed exactly once, whether or not the reversal succeeded. Returns the number of records handled.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	ctx, span := otel.Tracer("tempaction").Start(ctx, "RunOnce")
	defer span.End()

	start := time.Now()
	defer func() {
		passDuration.Observe(time.Since(start).Seconds())
	}()

	expired, err := s.Store.GetExpiredTempActions(ctx, time.Now())
	if err != nil {
		return 0, err
	}
	span.SetAttributes(attribute.Int("expired", len(expired)))
	if len(expired) == 0 {
		return 0, nil
	}

	var handled atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, s.Concurrency))
	for _, ta := range expired {
		g.Go(func() error {
			s.handle(gctx, ta)
			handled.Add(1)
			return nil
		})
	}
	// workers never return errors
	_ = g.Wait()
	return int(handled.Load()), nil
}

func (s *Scheduler) handle(ctx context.Context, ta modstore.TempAction) {
	logger := s.Logger.With("id", ta.ID, "guild", ta.GuildID, "user", ta.UserID, "kind", ta.Action)

	err := s.reverse(ctx, logger, ta)
	switch {
	case err == nil:
		reversals.WithLabelValues(string(ta.Action), "ok").Inc()
	case errors.Is(err, platform.ErrForbidden):
		reversals.WithLabelValues(string(ta.Action), "forbidden").Inc()
		logger.Warn("missing permission to reverse temp action", "err", err)
	default:
		reversals.WithLabelValues(string(ta.Action), "error").Inc()
		logger.Error("failed to reverse temp action", "err", err)
	}

	if err := s.Store.CompleteTempAction(ctx, ta.ID); err != nil {
		logger.Error("failed to complete temp action", "err", err)
	}
}

func (s *Scheduler) reverse(ctx context.Context, logger *slog.Logger, ta modstore.TempAction) error {
	if _, err := s.call(ctx, func(ctx context.Context) (any, error) {
		return s.Platform.GetGuild(ctx, ta.GuildID)
	}); err != nil {
		if errors.Is(err, platform.ErrNotFound) {
			logger.Info("guild no longer available, dropping temp action")
			return nil
		}
		return fmt.Errorf("resolving guild: %w", err)
	}

	switch ta.Action {
	case modstore.TempTimeout:
		return s.reverseTimeout(ctx, logger, ta)
	case modstore.TempBan:
		return s.reverseBan(ctx, logger, ta)
	default:
		logger.Warn("unknown temp action kind")
		return nil
	}
}

func (s *Scheduler) reverseTimeout(ctx context.Context, logger *slog.Logger, ta modstore.TempAction) error {
	v, err := s.call(ctx, func(ctx context.Context) (any, error) {
		return s.Platform.GetMember(ctx, ta.GuildID, ta.UserID)
	})
	if errors.Is(err, platform.ErrNotFound) {
		logger.Info("member left guild, nothing to reverse")
		return nil
	} else if err != nil {
		return fmt.Errorf("resolving member: %w", err)
	}
	member := v.(*platform.Member)
	// lifted early by a moderator, or replaced by the platform expiring it already
	if !member.IsTimedOut(time.Now()) {
		return nil
	}

	if _, err := s.call(ctx, func(ctx context.Context) (any, error) {
		return nil, s.Platform.Timeout(ctx, ta.GuildID, ta.UserID, nil, "Temporary timeout expired")
	}); err != nil {
		return fmt.Errorf("clearing timeout: %w", err)
	}
	s.logAction(ctx, ta, modstore.ActionUntimeout, "Temporary timeout expired")
	logger.Info("temporary timeout reversed")
	return nil
}

func (s *Scheduler) reverseBan(ctx context.Context, logger *slog.Logger, ta modstore.TempAction) error {
	if _, err := s.call(ctx, func(ctx context.Context) (any, error) {
		return s.Platform.FetchBan(ctx, ta.GuildID, ta.UserID)
	}); errors.Is(err, platform.ErrNotFound) {
		logger.Info("user already unbanned")
		return nil
	} else if err != nil {
		return fmt.Errorf("fetching ban: %w", err)
	}

	_, err := s.call(ctx, func(ctx context.Context) (any, error) {
		return nil, s.Platform.Unban(ctx, ta.GuildID, ta.UserID, "Temporary ban expired")
	})
	if errors.Is(err, platform.ErrNotFound) {
		// lifted between the fetch and the unban
		return nil
	} else if err != nil {
		return fmt.Errorf("unbanning: %w", err)
	}
	s.logAction(ctx, ta, modstore.ActionUnban, "Temporary ban expired")
	logger.Info("temporary ban reversed")
	return nil
}

// Runs a single platform call under CallTimeout.
func (s *Scheduler) call(ctx context.Context, f func(ctx context.Context) (any, error)) (any, error) {
	timeout := s.CallTimeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return f(ctx)
}

func (s *Scheduler) logAction(ctx context.Context, ta modstore.TempAction, action modstore.ActionKind, reason string) {
	err := s.Store.LogModAction(ctx, &modstore.ModAction{
		GuildID:     ta.GuildID,
		UserID:      ta.UserID,
		ModeratorID: modstore.SystemModerator,
		Action:      action,
		Reason:      reason,
	})
	if err != nil {
		s.Logger.Error("failed to persist moderation history", "err", err, "guild", ta.GuildID, "user", ta.UserID)
	}
}
