package modstore

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Moderator ID recorded for actions taken automatically (automod, escalation, scheduler reversals).
const SystemModerator = "system"

type ActionKind string

const (
	ActionBan         = ActionKind("ban")
	ActionUnban       = ActionKind("unban")
	ActionKick        = ActionKind("kick")
	ActionTimeout     = ActionKind("timeout")
	ActionUntimeout   = ActionKind("untimeout")
	ActionWarn        = ActionKind("warn")
	ActionUnwarn      = ActionKind("unwarn")
	ActionPurge       = ActionKind("purge")
	ActionAutoTimeout = ActionKind("auto_timeout")
	ActionLock        = ActionKind("lock")
	ActionUnlock      = ActionKind("unlock")
)

type TempKind string

const (
	TempTimeout = TempKind("timeout")
	TempBan     = TempKind("tempban")
)

type ViolationKind string

const (
	ViolationSpam         = ViolationKind("spam")
	ViolationCaps         = ViolationKind("caps")
	ViolationRepeatedText = ViolationKind("repeated_text")
	ViolationBadWords     = ViolationKind("bad_words")
	ViolationInviteLink   = ViolationKind("invite_link")
)

var ViolationKinds = []ViolationKind{ViolationSpam, ViolationCaps, ViolationRepeatedText, ViolationBadWords, ViolationInviteLink}

type Warning struct {
	ID          uint64    `gorm:"column:id;primarykey"`
	GuildID     string    `gorm:"column:guild_id;index:idx_warning_subject;not null"`
	UserID      string    `gorm:"column:user_id;index:idx_warning_subject;not null"`
	ModeratorID string    `gorm:"column:moderator_id;not null"`
	Reason      string    `gorm:"column:reason"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	// soft-delete flag; cleared by unwarn
	Active bool `gorm:"column:active;not null"`
}

func (Warning) TableName() string {
	return "warnings"
}

// Append-only moderation history entry.
type ModAction struct {
	ID          uint64     `gorm:"column:id;primarykey"`
	GuildID     string     `gorm:"column:guild_id;index:idx_mod_action_subject;not null"`
	UserID      string     `gorm:"column:user_id;index:idx_mod_action_subject;not null"`
	ModeratorID string     `gorm:"column:moderator_id;not null"`
	Action      ActionKind `gorm:"column:action;index;not null"`
	Reason      string     `gorm:"column:reason"`
	// in seconds; nil if the action has no duration
	Duration  *int64    `gorm:"column:duration"`
	ExtraJSON string    `gorm:"column:additional_data"`
	CreatedAt time.Time `gorm:"column:created_at;index"`

	// decoded form of ExtraJSON; encoded before save, decoded after find
	Extra map[string]any `gorm:"-"`
}

func (ModAction) TableName() string {
	return "mod_history"
}

func (a *ModAction) BeforeSave(tx *gorm.DB) error {
	if len(a.Extra) == 0 {
		return nil
	}
	b, err := json.Marshal(a.Extra)
	if err != nil {
		return fmt.Errorf("encoding mod action extra data: %w", err)
	}
	a.ExtraJSON = string(b)
	return nil
}

func (a *ModAction) AfterFind(tx *gorm.DB) error {
	if a.ExtraJSON == "" {
		return nil
	}
	return json.Unmarshal([]byte(a.ExtraJSON), &a.Extra)
}

// Helper for the common case of recording a duration.
func (a *ModAction) SetDuration(d time.Duration) {
	secs := int64(d / time.Second)
	a.Duration = &secs
}

// Time-bound sanction awaiting reversal by the scheduler.
type TempAction struct {
	ID        uint64    `gorm:"column:id;primarykey"`
	GuildID   string    `gorm:"column:guild_id;index:idx_temp_action_subject;uniqueIndex:idx_temp_action_open,where:completed = false;not null"`
	UserID    string    `gorm:"column:user_id;index:idx_temp_action_subject;uniqueIndex:idx_temp_action_open,where:completed = false;not null"`
	Action    TempKind  `gorm:"column:action_type;uniqueIndex:idx_temp_action_open,where:completed = false;not null"`
	ExpiresAt time.Time `gorm:"column:expires_at;index:idx_temp_action_pending"`
	Completed bool      `gorm:"column:completed;index:idx_temp_action_pending;not null"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (TempAction) TableName() string {
	return "temp_actions"
}

type AutomodViolation struct {
	ID          uint64        `gorm:"column:id;primarykey"`
	GuildID     string        `gorm:"column:guild_id;index:idx_violation_subject;not null"`
	UserID      string        `gorm:"column:user_id;index:idx_violation_subject;not null"`
	Kind        ViolationKind `gorm:"column:violation_type;index;not null"`
	ChannelID   string        `gorm:"column:channel_id"`
	Content     string        `gorm:"column:message_content"`
	ActionTaken string        `gorm:"column:action_taken"`
	CreatedAt   time.Time     `gorm:"column:created_at;index"`
}

func (AutomodViolation) TableName() string {
	return "automod_violations"
}

// Guild settings keys.
const (
	SettingAutomodEnabled = "automod_enabled"
	// channel which receives a line for every moderation history entry
	SettingLogChannel = "log_channel_id"
)

// Per-guild settings blob, stored as a JSON object.
type GuildSettings struct {
	GuildID      string    `gorm:"column:guild_id;primarykey"`
	SettingsJSON string    `gorm:"column:settings;not null"`
	CreatedAt    time.Time `gorm:"column:created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at"`
}

func (GuildSettings) TableName() string {
	return "guild_settings"
}

func (gs *GuildSettings) Values() (map[string]any, error) {
	out := make(map[string]any)
	if gs.SettingsJSON == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(gs.SettingsJSON), &out); err != nil {
		return nil, fmt.Errorf("decoding guild settings: %w", err)
	}
	return out, nil
}

// Reads a boolean setting, returning def when it is absent or not a boolean.
func (gs *GuildSettings) Bool(key string, def bool) bool {
	vals, err := gs.Values()
	if err != nil {
		return def
	}
	b, ok := vals[key].(bool)
	if !ok {
		return def
	}
	return b
}

func (gs *GuildSettings) String(key string) string {
	vals, err := gs.Values()
	if err != nil {
		return ""
	}
	s, _ := vals[key].(string)
	return s
}

type StaffLog struct {
	ID          uint64    `gorm:"column:id;primarykey"`
	GuildID     string    `gorm:"column:guild_id;index;not null"`
	StaffID     string    `gorm:"column:staff_id;not null"`
	Action      string    `gorm:"column:action;not null"`
	DetailsJSON string    `gorm:"column:details"`
	CreatedAt   time.Time `gorm:"column:created_at;index"`
}

func (StaffLog) TableName() string {
	return "staff_logs"
}

type MessageLog struct {
	ID         uint64    `gorm:"column:id;primarykey"`
	GuildID    string    `gorm:"column:guild_id;index;not null"`
	ChannelID  string    `gorm:"column:channel_id"`
	MessageID  string    `gorm:"column:message_id"`
	UserID     string    `gorm:"column:user_id"`
	Action     string    `gorm:"column:action_type;not null"`
	OldContent string    `gorm:"column:old_content"`
	NewContent string    `gorm:"column:new_content"`
	CreatedAt  time.Time `gorm:"column:created_at;index"`
}

func (MessageLog) TableName() string {
	return "message_logs"
}

var allModels = []any{
	&Warning{},
	&ModAction{},
	&TempAction{},
	&AutomodViolation{},
	&GuildSettings{},
	&StaffLog{},
	&MessageLog{},
}
