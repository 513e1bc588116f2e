package platform

import (
	"context"
	"time"
)

// Subset of a chat-platform guild (server) needed for moderation decisions.
type Guild struct {
	ID      string
	Name    string
	OwnerID string
	Roles   []Role
}

type Role struct {
	ID          string
	Name        string
	Position    int
	Permissions int64
}

// Guild-scoped user identity.
type Member struct {
	GuildID  string
	UserID   string
	Username string
	Bot      bool
	// Role IDs held by the member. Does not include the implicit @everyone role.
	Roles []string
	// Non-nil if a timeout was set at some point. May be in the past.
	TimedOutUntil *time.Time
}

type Ban struct {
	GuildID string
	UserID  string
	Reason  string
}

type Invite struct {
	Code    string
	GuildID string
}

// Operations the moderation core performs against the chat platform.
//
// Implementations return errors wrapping ErrForbidden (bot lacks permission) or ErrNotFound (target is already gone, or never existed) where the platform reports those conditions.
type Client interface {
	GetGuild(ctx context.Context, guildID string) (*Guild, error)
	GetMember(ctx context.Context, guildID, userID string) (*Member, error)
	// Sets (or clears, if until is nil) a communication timeout on the member.
	Timeout(ctx context.Context, guildID, userID string, until *time.Time, reason string) error
	Ban(ctx context.Context, guildID, userID, reason string, deleteMessageDays int) error
	Unban(ctx context.Context, guildID, userID, reason string) error
	Kick(ctx context.Context, guildID, userID, reason string) error
	FetchBan(ctx context.Context, guildID, userID string) (*Ban, error)
	ResolveInvite(ctx context.Context, code string) (*Invite, error)
	DeleteMessage(ctx context.Context, channelID, messageID, reason string) error
	// Deletes up to limit recent messages in the channel, optionally only those authored by userID. Returns the number deleted.
	PurgeMessages(ctx context.Context, channelID string, limit int, userID, reason string) (int, error)
	AddRole(ctx context.Context, guildID, userID, roleID, reason string) error
	RemoveRole(ctx context.Context, guildID, userID, roleID, reason string) error
	// Denies (allow=false) or restores (allow=true) the send-messages permission for @everyone in the channel.
	SetChannelSendPermission(ctx context.Context, guildID, channelID string, allow bool, reason string) error
	// Sends a plain-text direct message to the user.
	NotifyUser(ctx context.Context, userID, text string) error
	// Posts a plain-text message in a guild channel.
	SendMessage(ctx context.Context, channelID, text string) error
}

func (m *Member) IsTimedOut(now time.Time) bool {
	return m.TimedOutUntil != nil && m.TimedOutUntil.After(now)
}

func (m *Member) HasRole(roleID string) bool {
	for _, r := range m.Roles {
		if r == roleID {
			return true
		}
	}
	return false
}

// Position of the highest role the member holds. Zero (the @everyone position) if the member holds no known roles.
func (g *Guild) TopRolePosition(m *Member) int {
	top := 0
	for _, role := range g.Roles {
		if role.Position > top && m.HasRole(role.ID) {
			top = role.Position
		}
	}
	return top
}

// Union of permission bits granted by the member's roles, including @everyone (whose role ID equals the guild ID).
func (g *Guild) MemberPermissions(m *Member) int64 {
	var perms int64
	for _, role := range g.Roles {
		if role.ID == g.ID || m.HasRole(role.ID) {
			perms |= role.Permissions
		}
	}
	return perms
}
