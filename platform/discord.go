package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"
)

// messages older than this can not be bulk-deleted
const bulkDeleteMaxAge = 14 * 24 * time.Hour

// Client implementation backed by a discordgo session.
//
// All REST calls share a single rate limiter, in addition to the per-route limits discordgo tracks itself.
type DiscordClient struct {
	Session *discordgo.Session
	Limiter *rate.Limiter
	Logger  *slog.Logger
}

var _ Client = (*DiscordClient)(nil)

func NewDiscordClient(session *discordgo.Session, limit rate.Limit, logger *slog.Logger) *DiscordClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &DiscordClient{
		Session: session,
		Limiter: rate.NewLimiter(limit, 1),
		Logger:  logger.With("component", "platform"),
	}
}

// Converts discordgo REST errors in to the package sentinel errors, keeping the original message.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	var rerr *discordgo.RESTError
	if errors.As(err, &rerr) && rerr.Response != nil {
		switch rerr.Response.StatusCode {
		case http.StatusForbidden:
			return fmt.Errorf("%w: %s", ErrForbidden, rerr.Error())
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrNotFound, rerr.Error())
		}
	}
	return err
}

func (c *DiscordClient) opts(ctx context.Context, reason string) []discordgo.RequestOption {
	opts := []discordgo.RequestOption{discordgo.WithContext(ctx)}
	if reason != "" {
		opts = append(opts, discordgo.WithAuditLogReason(reason))
	}
	return opts
}

func (c *DiscordClient) wait(ctx context.Context) error {
	if c.Limiter == nil {
		return nil
	}
	return c.Limiter.Wait(ctx)
}

func convertGuild(g *discordgo.Guild) *Guild {
	out := &Guild{
		ID:      g.ID,
		Name:    g.Name,
		OwnerID: g.OwnerID,
	}
	for _, r := range g.Roles {
		out.Roles = append(out.Roles, Role{
			ID:          r.ID,
			Name:        r.Name,
			Position:    r.Position,
			Permissions: r.Permissions,
		})
	}
	return out
}

func convertMember(guildID string, m *discordgo.Member) *Member {
	out := &Member{
		GuildID:       guildID,
		Roles:         m.Roles,
		TimedOutUntil: m.CommunicationDisabledUntil,
	}
	if m.User != nil {
		out.UserID = m.User.ID
		out.Username = m.User.Username
		out.Bot = m.User.Bot
	}
	return out
}

func (c *DiscordClient) GetGuild(ctx context.Context, guildID string) (*Guild, error) {
	// gateway state is kept current by guild and role events
	if g, err := c.Session.State.Guild(guildID); err == nil && len(g.Roles) > 0 {
		return convertGuild(g), nil
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	g, err := c.Session.Guild(guildID, c.opts(ctx, "")...)
	if err != nil {
		return nil, translateError(err)
	}
	return convertGuild(g), nil
}

// Always fetched over REST (not from gateway state), so timeout status is fresh.
func (c *DiscordClient) GetMember(ctx context.Context, guildID, userID string) (*Member, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	m, err := c.Session.GuildMember(guildID, userID, c.opts(ctx, "")...)
	if err != nil {
		return nil, translateError(err)
	}
	return convertMember(guildID, m), nil
}

func (c *DiscordClient) Timeout(ctx context.Context, guildID, userID string, until *time.Time, reason string) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	return translateError(c.Session.GuildMemberTimeout(guildID, userID, until, c.opts(ctx, reason)...))
}

func (c *DiscordClient) Ban(ctx context.Context, guildID, userID, reason string, deleteMessageDays int) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	return translateError(c.Session.GuildBanCreateWithReason(guildID, userID, reason, deleteMessageDays, c.opts(ctx, "")...))
}

func (c *DiscordClient) Unban(ctx context.Context, guildID, userID, reason string) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	return translateError(c.Session.GuildBanDelete(guildID, userID, c.opts(ctx, reason)...))
}

func (c *DiscordClient) Kick(ctx context.Context, guildID, userID, reason string) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	return translateError(c.Session.GuildMemberDeleteWithReason(guildID, userID, reason, c.opts(ctx, "")...))
}

func (c *DiscordClient) FetchBan(ctx context.Context, guildID, userID string) (*Ban, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	b, err := c.Session.GuildBan(guildID, userID, c.opts(ctx, "")...)
	if err != nil {
		return nil, translateError(err)
	}
	return &Ban{
		GuildID: guildID,
		UserID:  userID,
		Reason:  b.Reason,
	}, nil
}

func (c *DiscordClient) ResolveInvite(ctx context.Context, code string) (*Invite, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	inv, err := c.Session.Invite(code, c.opts(ctx, "")...)
	if err != nil {
		return nil, translateError(err)
	}
	if inv.Guild == nil {
		// group DM invites have no guild
		return nil, fmt.Errorf("%w: invite %s has no guild", ErrNotFound, code)
	}
	return &Invite{
		Code:    inv.Code,
		GuildID: inv.Guild.ID,
	}, nil
}

func (c *DiscordClient) DeleteMessage(ctx context.Context, channelID, messageID, reason string) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	return translateError(c.Session.ChannelMessageDelete(channelID, messageID, c.opts(ctx, reason)...))
}

func (c *DiscordClient) PurgeMessages(ctx context.Context, channelID string, limit int, userID, reason string) (int, error) {
	if limit <= 0 {
		return 0, nil
	}
	if limit > 100 {
		limit = 100
	}
	if err := c.wait(ctx); err != nil {
		return 0, err
	}
	msgs, err := c.Session.ChannelMessages(channelID, 100, "", "", "", c.opts(ctx, "")...)
	if err != nil {
		return 0, translateError(err)
	}

	cutoff := time.Now().Add(-bulkDeleteMaxAge)
	var ids []string
	for _, m := range msgs {
		if len(ids) >= limit {
			break
		}
		if userID != "" && (m.Author == nil || m.Author.ID != userID) {
			continue
		}
		if m.Timestamp.Before(cutoff) {
			continue
		}
		ids = append(ids, m.ID)
	}

	c.Logger.Debug("purging messages", "channel", channelID, "count", len(ids), "user", userID)
	if err := c.wait(ctx); err != nil {
		return 0, err
	}
	switch len(ids) {
	case 0:
		return 0, nil
	case 1:
		err = c.Session.ChannelMessageDelete(channelID, ids[0], c.opts(ctx, reason)...)
	default:
		err = c.Session.ChannelMessagesBulkDelete(channelID, ids, c.opts(ctx, reason)...)
	}
	if err != nil {
		return 0, translateError(err)
	}
	return len(ids), nil
}

func (c *DiscordClient) AddRole(ctx context.Context, guildID, userID, roleID, reason string) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	return translateError(c.Session.GuildMemberRoleAdd(guildID, userID, roleID, c.opts(ctx, reason)...))
}

func (c *DiscordClient) RemoveRole(ctx context.Context, guildID, userID, roleID, reason string) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	return translateError(c.Session.GuildMemberRoleRemove(guildID, userID, roleID, c.opts(ctx, reason)...))
}

func (c *DiscordClient) SetChannelSendPermission(ctx context.Context, guildID, channelID string, allow bool, reason string) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	var deny int64
	if !allow {
		deny = discordgo.PermissionSendMessages
	}
	// the @everyone role shares the guild's ID
	err := c.Session.ChannelPermissionSet(channelID, guildID, discordgo.PermissionOverwriteTypeRole, 0, deny, c.opts(ctx, reason)...)
	return translateError(err)
}

func (c *DiscordClient) NotifyUser(ctx context.Context, userID, text string) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	ch, err := c.Session.UserChannelCreate(userID, c.opts(ctx, "")...)
	if err != nil {
		return translateError(err)
	}
	if _, err := c.Session.ChannelMessageSend(ch.ID, text, c.opts(ctx, "")...); err != nil {
		return translateError(err)
	}
	return nil
}

func (c *DiscordClient) SendMessage(ctx context.Context, channelID, text string) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	msg := &discordgo.MessageSend{
		Content: text,
		// log lines mention members; nobody should be pinged by them
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	}
	_, err := c.Session.ChannelMessageSendComplex(channelID, msg, c.opts(ctx, "")...)
	return translateError(err)
}
