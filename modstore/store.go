package modstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNotFound = errors.New("modstore: not found")

const DefaultHistoryLimit = 50

// Durable record of warnings, moderation history, temporary actions, automod violations, and guild settings.
//
// Every method is keyed by (guild, user) where a user is involved; user IDs are never assumed to be globally unique. Each method is a single statement or a single short transaction: there are no transactions spanning methods.
type Store interface {
	AddWarning(ctx context.Context, guildID, userID, moderatorID, reason string) (*Warning, error)
	// Deactivates the most recent active warning. Returns false if there was none.
	RemoveWarning(ctx context.Context, guildID, userID string) (bool, error)
	GetWarnings(ctx context.Context, guildID, userID string, activeOnly bool) ([]Warning, error)
	GetWarningCount(ctx context.Context, guildID, userID string) (int, error)

	LogModAction(ctx context.Context, act *ModAction) error
	GetUserHistory(ctx context.Context, guildID, userID string, limit int) ([]ModAction, error)
	// Number of history entries per action kind since the given time.
	GetModStats(ctx context.Context, guildID string, since time.Time) (map[ActionKind]int64, error)

	// Creates a pending temp action, or pushes out the expiry of an existing pending one for the same (guild, user, kind).
	AddTempAction(ctx context.Context, guildID, userID string, kind TempKind, expiresAt time.Time) (*TempAction, error)
	GetExpiredTempActions(ctx context.Context, now time.Time) ([]TempAction, error)
	CompleteTempAction(ctx context.Context, id uint64) error
	// Marks any pending temp actions for the subject as completed, eg when a moderator lifts a sanction by hand.
	CompleteActiveTempActions(ctx context.Context, guildID, userID string, kind TempKind) (int64, error)

	LogAutomodViolation(ctx context.Context, v *AutomodViolation) error
	// Filters on userID and kind only when they are non-empty.
	GetAutomodViolations(ctx context.Context, guildID, userID string, kind ViolationKind, limit int) ([]AutomodViolation, error)

	// Creates an empty settings row for the guild if none exists.
	SetupGuild(ctx context.Context, guildID string) error
	GetGuildSettings(ctx context.Context, guildID string) (*GuildSettings, error)
	// Merges the given keys in to the guild's settings object (creating it if needed).
	UpdateGuildSettings(ctx context.Context, guildID string, values map[string]any) error

	LogStaffAction(ctx context.Context, guildID, staffID, action string, details map[string]any) error
	GetStaffLogs(ctx context.Context, guildID string, limit int) ([]StaffLog, error)
	LogMessageAction(ctx context.Context, ml *MessageLog) error

	// Deletes message logs, completed temp actions, and automod violations older than the cutoff.
	CleanupOldData(ctx context.Context, olderThan time.Duration) (*CleanupResult, error)

	// Checks the database connection is usable.
	Ping(ctx context.Context) error
}

type CleanupResult struct {
	MessageLogs       int64
	TempActions       int64
	AutomodViolations int64
}

type GormStore struct {
	db     *gorm.DB
	logger *slog.Logger
}

var _ Store = (*GormStore)(nil)

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Wraps an open database, migrating the schema first.
func NewGormStore(db *gorm.DB, logger *slog.Logger) (*GormStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("migrating moderation store: %w", err)
	}
	return &GormStore{
		db:     db,
		logger: logger.With("component", "modstore"),
	}, nil
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return DefaultHistoryLimit
	}
	return limit
}

func (s *GormStore) AddWarning(ctx context.Context, guildID, userID, moderatorID, reason string) (*Warning, error) {
	w := Warning{
		GuildID:     guildID,
		UserID:      userID,
		ModeratorID: moderatorID,
		Reason:      reason,
		CreatedAt:   time.Now().UTC(),
		Active:      true,
	}
	if err := s.db.WithContext(ctx).Create(&w).Error; err != nil {
		return nil, fmt.Errorf("adding warning: %w", err)
	}
	return &w, nil
}

func (s *GormStore) RemoveWarning(ctx context.Context, guildID, userID string) (bool, error) {
	var w Warning
	res := s.db.WithContext(ctx).
		Where("guild_id = ? AND user_id = ? AND active = ?", guildID, userID, true).
		Order("created_at DESC").Order("id DESC").
		Limit(1).
		Find(&w)
	if res.Error != nil {
		return false, fmt.Errorf("finding active warning: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	// guard on active, in case a concurrent unwarn got there first
	upd := s.db.WithContext(ctx).Model(&Warning{}).
		Where("id = ? AND active = ?", w.ID, true).
		Update("active", false)
	if upd.Error != nil {
		return false, fmt.Errorf("deactivating warning: %w", upd.Error)
	}
	return upd.RowsAffected > 0, nil
}

func (s *GormStore) GetWarnings(ctx context.Context, guildID, userID string, activeOnly bool) ([]Warning, error) {
	var out []Warning
	q := s.db.WithContext(ctx).Where("guild_id = ? AND user_id = ?", guildID, userID)
	if activeOnly {
		q = q.Where("active = ?", true)
	}
	if err := q.Order("created_at DESC").Order("id DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("listing warnings: %w", err)
	}
	return out, nil
}

func (s *GormStore) GetWarningCount(ctx context.Context, guildID, userID string) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Warning{}).
		Where("guild_id = ? AND user_id = ? AND active = ?", guildID, userID, true).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("counting warnings: %w", err)
	}
	return int(count), nil
}

func (s *GormStore) LogModAction(ctx context.Context, act *ModAction) error {
	if act.CreatedAt.IsZero() {
		act.CreatedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(act).Error; err != nil {
		return fmt.Errorf("logging mod action: %w", err)
	}
	return nil
}

func (s *GormStore) GetUserHistory(ctx context.Context, guildID, userID string, limit int) ([]ModAction, error) {
	var out []ModAction
	err := s.db.WithContext(ctx).
		Where("guild_id = ? AND user_id = ?", guildID, userID).
		Order("created_at DESC").Order("id DESC").
		Limit(clampLimit(limit)).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("fetching user history: %w", err)
	}
	return out, nil
}

func (s *GormStore) GetModStats(ctx context.Context, guildID string, since time.Time) (map[ActionKind]int64, error) {
	var rows []struct {
		Action ActionKind
		Total  int64
	}
	err := s.db.WithContext(ctx).Model(&ModAction{}).
		Select("action, count(*) as total").
		Where("guild_id = ? AND created_at >= ?", guildID, since.UTC()).
		Group("action").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("counting mod actions: %w", err)
	}
	out := make(map[ActionKind]int64, len(rows))
	for _, r := range rows {
		out[r.Action] = r.Total
	}
	return out, nil
}

func (s *GormStore) AddTempAction(ctx context.Context, guildID, userID string, kind TempKind, expiresAt time.Time) (*TempAction, error) {
	ta := TempAction{
		GuildID:   guildID,
		UserID:    userID,
		Action:    kind,
		ExpiresAt: expiresAt.UTC(),
		CreatedAt: time.Now().UTC(),
	}
	// at most one pending row per (guild, user, kind), enforced by idx_temp_action_open
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:     []clause.Column{{Name: "guild_id"}, {Name: "user_id"}, {Name: "action_type"}},
			TargetWhere: clause.Where{Exprs: []clause.Expression{clause.Expr{SQL: "completed = false"}}},
			DoUpdates:   clause.AssignmentColumns([]string{"expires_at"}),
		}).Create(&ta).Error
		if err != nil {
			return err
		}
		// the conflicting row keeps its own id and created_at
		var row TempAction
		err = tx.Where("guild_id = ? AND user_id = ? AND action_type = ? AND completed = ?", guildID, userID, kind, false).
			Take(&row).Error
		ta = row
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("adding temp action: %w", err)
	}
	return &ta, nil
}

func (s *GormStore) GetExpiredTempActions(ctx context.Context, now time.Time) ([]TempAction, error) {
	var out []TempAction
	err := s.db.WithContext(ctx).
		Where("expires_at <= ? AND completed = ?", now.UTC(), false).
		Order("expires_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("fetching expired temp actions: %w", err)
	}
	return out, nil
}

func (s *GormStore) CompleteTempAction(ctx context.Context, id uint64) error {
	res := s.db.WithContext(ctx).Model(&TempAction{}).Where("id = ?", id).Update("completed", true)
	if res.Error != nil {
		return fmt.Errorf("completing temp action: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: temp action %d", ErrNotFound, id)
	}
	return nil
}

func (s *GormStore) CompleteActiveTempActions(ctx context.Context, guildID, userID string, kind TempKind) (int64, error) {
	res := s.db.WithContext(ctx).Model(&TempAction{}).
		Where("guild_id = ? AND user_id = ? AND action_type = ? AND completed = ?", guildID, userID, kind, false).
		Update("completed", true)
	if res.Error != nil {
		return 0, fmt.Errorf("completing temp actions: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *GormStore) LogAutomodViolation(ctx context.Context, v *AutomodViolation) error {
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(v).Error; err != nil {
		return fmt.Errorf("logging automod violation: %w", err)
	}
	return nil
}

func (s *GormStore) GetAutomodViolations(ctx context.Context, guildID, userID string, kind ViolationKind, limit int) ([]AutomodViolation, error) {
	var out []AutomodViolation
	q := s.db.WithContext(ctx).Where("guild_id = ?", guildID)
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	if kind != "" {
		q = q.Where("violation_type = ?", kind)
	}
	err := q.Order("created_at DESC").Order("id DESC").Limit(clampLimit(limit)).Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("fetching automod violations: %w", err)
	}
	return out, nil
}

func (s *GormStore) SetupGuild(ctx context.Context, guildID string) error {
	now := time.Now().UTC()
	gs := GuildSettings{
		GuildID:      guildID,
		SettingsJSON: "{}",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&gs).Error
	if err != nil {
		return fmt.Errorf("setting up guild: %w", err)
	}
	return nil
}

func (s *GormStore) GetGuildSettings(ctx context.Context, guildID string) (*GuildSettings, error) {
	var gs GuildSettings
	res := s.db.WithContext(ctx).Where("guild_id = ?", guildID).Limit(1).Find(&gs)
	if res.Error != nil {
		return nil, fmt.Errorf("fetching guild settings: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: guild settings %s", ErrNotFound, guildID)
	}
	return &gs, nil
}

func (s *GormStore) UpdateGuildSettings(ctx context.Context, guildID string, values map[string]any) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var gs GuildSettings
		res := tx.Where("guild_id = ?", guildID).Limit(1).Find(&gs)
		if res.Error != nil {
			return res.Error
		}
		now := time.Now().UTC()
		if res.RowsAffected == 0 {
			gs = GuildSettings{GuildID: guildID, CreatedAt: now}
		}
		merged, err := gs.Values()
		if err != nil {
			return err
		}
		for k, v := range values {
			merged[k] = v
		}
		b, err := json.Marshal(merged)
		if err != nil {
			return err
		}
		gs.SettingsJSON = string(b)
		gs.UpdatedAt = now
		return tx.Save(&gs).Error
	})
	if err != nil {
		return fmt.Errorf("updating guild settings: %w", err)
	}
	return nil
}

func (s *GormStore) LogStaffAction(ctx context.Context, guildID, staffID, action string, details map[string]any) error {
	sl := StaffLog{
		GuildID:   guildID,
		StaffID:   staffID,
		Action:    action,
		CreatedAt: time.Now().UTC(),
	}
	if len(details) > 0 {
		b, err := json.Marshal(details)
		if err != nil {
			return fmt.Errorf("encoding staff log details: %w", err)
		}
		sl.DetailsJSON = string(b)
	}
	if err := s.db.WithContext(ctx).Create(&sl).Error; err != nil {
		return fmt.Errorf("logging staff action: %w", err)
	}
	return nil
}

func (s *GormStore) GetStaffLogs(ctx context.Context, guildID string, limit int) ([]StaffLog, error) {
	var out []StaffLog
	err := s.db.WithContext(ctx).
		Where("guild_id = ?", guildID).
		Order("created_at DESC").Order("id DESC").
		Limit(clampLimit(limit)).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("fetching staff logs: %w", err)
	}
	return out, nil
}

func (s *GormStore) LogMessageAction(ctx context.Context, ml *MessageLog) error {
	if ml.CreatedAt.IsZero() {
		ml.CreatedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(ml).Error; err != nil {
		return fmt.Errorf("logging message action: %w", err)
	}
	return nil
}

func (s *GormStore) CleanupOldData(ctx context.Context, olderThan time.Duration) (*CleanupResult, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	var out CleanupResult

	res := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&MessageLog{})
	if res.Error != nil {
		return nil, fmt.Errorf("cleaning message logs: %w", res.Error)
	}
	out.MessageLogs = res.RowsAffected

	res = s.db.WithContext(ctx).Where("completed = ? AND created_at < ?", true, cutoff).Delete(&TempAction{})
	if res.Error != nil {
		return nil, fmt.Errorf("cleaning temp actions: %w", res.Error)
	}
	out.TempActions = res.RowsAffected

	res = s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&AutomodViolation{})
	if res.Error != nil {
		return nil, fmt.Errorf("cleaning automod violations: %w", res.Error)
	}
	out.AutomodViolations = res.RowsAffected

	s.logger.Info("cleaned up old data", "cutoff", cutoff, "message_logs", out.MessageLogs, "temp_actions", out.TempActions, "violations", out.AutomodViolations)
	return &out, nil
}
