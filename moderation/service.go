package moderation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/guildwarden/warden/modstore"
	"github.com/guildwarden/warden/platform"
)

// Subject recorded for history entries which concern a channel rather than a member (purge without a user filter, lock, unlock).
const NoSubject = "0"

const MaxPurge = 100

// A moderator-issued command against a member. Authorization has already happened by the time a request gets here.
type Request struct {
	GuildID     string
	ModeratorID string
	UserID      string
	Reason      string
}

// Moderator command operations, layered on the Orchestrator.
type Service struct {
	*Orchestrator
}

func NewService(o *Orchestrator) *Service {
	return &Service{Orchestrator: o}
}

func (s *Service) staffLog(ctx context.Context, guildID, staffID, command string, details map[string]any) {
	commandsExecuted.WithLabelValues(command).Inc()
	if err := s.Store.LogStaffAction(ctx, guildID, staffID, command, details); err != nil {
		s.Logger.Error("failed to persist staff log", "err", err, "guild", guildID, "command", command)
	}
}

func (r Request) punishment(kind Kind, d time.Duration) Punishment {
	return Punishment{
		GuildID:     r.GuildID,
		UserID:      r.UserID,
		ModeratorID: r.ModeratorID,
		Kind:        kind,
		Reason:      r.Reason,
		Duration:    d,
	}
}

func (s *Service) Warn(ctx context.Context, req Request) (*Result, error) {
	p := req.punishment(KindWarn, 0)
	p.Reason = NormalizeReason(p.Reason)
	res, err := s.warn(ctx, p, true)
	if err != nil {
		return nil, err
	}
	s.staffLog(ctx, req.GuildID, req.ModeratorID, "warn", map[string]any{"target": req.UserID, "count": res.WarningCount})
	return res, nil
}

// Removes the member's most recent active warning. Returns false, and records nothing, if there was none.
func (s *Service) Unwarn(ctx context.Context, req Request) (bool, error) {
	removed, err := s.Store.RemoveWarning(ctx, req.GuildID, req.UserID)
	if err != nil {
		return false, err
	}
	if !removed {
		return false, nil
	}
	s.logAction(ctx, modstore.ModAction{
		GuildID:     req.GuildID,
		UserID:      req.UserID,
		ModeratorID: req.ModeratorID,
		Action:      modstore.ActionUnwarn,
		Reason:      NormalizeReason(req.Reason),
	})
	s.staffLog(ctx, req.GuildID, req.ModeratorID, "unwarn", map[string]any{"target": req.UserID})
	return true, nil
}

func (s *Service) Timeout(ctx context.Context, req Request, d time.Duration) error {
	if _, err := s.Punish(ctx, req.punishment(KindTimeout, d)); err != nil {
		return err
	}
	s.staffLog(ctx, req.GuildID, req.ModeratorID, "timeout", map[string]any{"target": req.UserID, "duration": int64(d / time.Second)})
	return nil
}

func (s *Service) Untimeout(ctx context.Context, req Request) error {
	p := req.punishment(KindTimeout, 0)
	p.Reason = NormalizeReason(p.Reason)
	if err := s.Platform.Timeout(ctx, req.GuildID, req.UserID, nil, p.Reason); err != nil {
		return s.fail(p, "untimeout", err)
	}
	if _, err := s.Store.CompleteActiveTempActions(ctx, req.GuildID, req.UserID, modstore.TempTimeout); err != nil {
		s.Logger.Error("failed to complete temp actions", "err", err, "guild", req.GuildID, "user", req.UserID)
	}
	s.logAction(ctx, modstore.ModAction{
		GuildID:     req.GuildID,
		UserID:      req.UserID,
		ModeratorID: req.ModeratorID,
		Action:      modstore.ActionUntimeout,
		Reason:      p.Reason,
	})
	s.staffLog(ctx, req.GuildID, req.ModeratorID, "untimeout", map[string]any{"target": req.UserID})
	return nil
}

func (s *Service) Kick(ctx context.Context, req Request) error {
	if _, err := s.Punish(ctx, req.punishment(KindKick, 0)); err != nil {
		return err
	}
	s.staffLog(ctx, req.GuildID, req.ModeratorID, "kick", map[string]any{"target": req.UserID})
	return nil
}

// Bans the member; a non-zero duration makes the ban temporary.
func (s *Service) Ban(ctx context.Context, req Request, d time.Duration) error {
	if _, err := s.Punish(ctx, req.punishment(KindBan, d)); err != nil {
		return err
	}
	s.staffLog(ctx, req.GuildID, req.ModeratorID, "ban", map[string]any{"target": req.UserID, "duration": int64(d / time.Second)})
	return nil
}

// Lifts a ban. Returns false (and no error) if the user was not banned.
func (s *Service) Unban(ctx context.Context, req Request) (bool, error) {
	p := req.punishment(KindBan, 0)
	p.Reason = NormalizeReason(p.Reason)
	err := s.Platform.Unban(ctx, req.GuildID, req.UserID, p.Reason)
	if errors.Is(err, platform.ErrNotFound) {
		return false, nil
	} else if err != nil {
		return false, s.fail(p, "unban", err)
	}
	if _, err := s.Store.CompleteActiveTempActions(ctx, req.GuildID, req.UserID, modstore.TempBan); err != nil {
		s.Logger.Error("failed to complete temp actions", "err", err, "guild", req.GuildID, "user", req.UserID)
	}
	s.logAction(ctx, modstore.ModAction{
		GuildID:     req.GuildID,
		UserID:      req.UserID,
		ModeratorID: req.ModeratorID,
		Action:      modstore.ActionUnban,
		Reason:      p.Reason,
	})
	s.staffLog(ctx, req.GuildID, req.ModeratorID, "unban", map[string]any{"target": req.UserID})
	return true, nil
}

// Deletes up to limit recent messages in the channel, only the given user's when req.UserID is set.
func (s *Service) Purge(ctx context.Context, req Request, channelID string, limit int) (int, error) {
	if limit < 1 || limit > MaxPurge {
		return 0, fmt.Errorf("purge limit must be between 1 and %d", MaxPurge)
	}
	p := req.punishment("", 0)
	p.Reason = NormalizeReason(p.Reason)
	n, err := s.Platform.PurgeMessages(ctx, channelID, limit, req.UserID, p.Reason)
	if err != nil {
		return 0, s.fail(p, "purge", err)
	}
	subject := req.UserID
	if subject == "" {
		subject = NoSubject
	}
	s.logAction(ctx, modstore.ModAction{
		GuildID:     req.GuildID,
		UserID:      subject,
		ModeratorID: req.ModeratorID,
		Action:      modstore.ActionPurge,
		Reason:      p.Reason,
		Extra:       map[string]any{"channel_id": channelID, "count": n},
	})
	s.staffLog(ctx, req.GuildID, req.ModeratorID, "purge", map[string]any{"channel_id": channelID, "count": n, "target": req.UserID})
	return n, nil
}

func (s *Service) Lock(ctx context.Context, req Request, channelID string) error {
	return s.setLock(ctx, req, channelID, true)
}

func (s *Service) Unlock(ctx context.Context, req Request, channelID string) error {
	return s.setLock(ctx, req, channelID, false)
}

func (s *Service) setLock(ctx context.Context, req Request, channelID string, locked bool) error {
	action, op := modstore.ActionUnlock, "unlock"
	if locked {
		action, op = modstore.ActionLock, "lock"
	}
	p := req.punishment("", 0)
	p.Reason = NormalizeReason(p.Reason)
	if err := s.Platform.SetChannelSendPermission(ctx, req.GuildID, channelID, !locked, p.Reason); err != nil {
		return s.fail(p, op, err)
	}
	s.logAction(ctx, modstore.ModAction{
		GuildID:     req.GuildID,
		UserID:      NoSubject,
		ModeratorID: req.ModeratorID,
		Action:      action,
		Reason:      p.Reason,
		Extra:       map[string]any{"channel_id": channelID},
	})
	s.staffLog(ctx, req.GuildID, req.ModeratorID, op, map[string]any{"channel_id": channelID})
	return nil
}

func (s *Service) History(ctx context.Context, guildID, userID string, limit int) ([]modstore.ModAction, error) {
	return s.Store.GetUserHistory(ctx, guildID, userID, limit)
}

func (s *Service) Warnings(ctx context.Context, guildID, userID string) ([]modstore.Warning, error) {
	return s.Store.GetWarnings(ctx, guildID, userID, true)
}

func (s *Service) StaffLogs(ctx context.Context, guildID string, limit int) ([]modstore.StaffLog, error) {
	return s.Store.GetStaffLogs(ctx, guildID, limit)
}

// Empty userID or kind match every member or detector.
func (s *Service) AutomodLogs(ctx context.Context, guildID, userID string, kind modstore.ViolationKind, limit int) ([]modstore.AutomodViolation, error) {
	return s.Store.GetAutomodViolations(ctx, guildID, userID, kind, limit)
}
