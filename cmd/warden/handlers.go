package main

import (
	"context"
	"fmt"
	"time"

	"github.com/guildwarden/warden/automod/engine"
	"github.com/guildwarden/warden/automod/helpers"
	"github.com/guildwarden/warden/modstore"

	"github.com/bwmarrin/discordgo"
)

var eventTimeout = 30 * time.Second

func (s *Server) addHandlers() {
	s.session.AddHandler(s.onReady)
	s.session.AddHandler(s.onGuildCreate)
	s.session.AddHandler(s.onMessageCreate)
	s.session.AddHandler(s.onMessageUpdate)
	s.session.AddHandler(s.onMessageDelete)
	s.session.AddHandler(s.onInteractionCreate)
	s.session.AddHandler(s.onMemberAdd)
	s.session.AddHandler(s.onMemberRemove)
	s.session.AddHandler(s.onBanAdd)
	s.session.AddHandler(s.onBanRemove)
	s.session.AddHandler(s.onRoleCreate)
	s.session.AddHandler(s.onRoleDelete)
	s.session.AddHandler(s.onChannelCreate)
	s.session.AddHandler(s.onChannelDelete)
}

// Event handlers each run on their own goroutine; a panic in one must not take down the process.
func (s *Server) recoverEvent(kind string) {
	if r := recover(); r != nil {
		s.logger.Error("event handler exception", "err", r, "event", kind)
		eventPanics.WithLabelValues(kind).Inc()
	}
}

func (s *Server) eventContext() (context.Context, context.CancelFunc) {
	parent := s.runCtx
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, eventTimeout)
}

func (s *Server) onReady(sess *discordgo.Session, r *discordgo.Ready) {
	defer s.recoverEvent("ready")
	s.logger.Info("gateway ready", "user", r.User.Username, "guilds", len(r.Guilds))

	// Ready is sent again after every reconnect
	s.readyOnce.Do(func() {
		go func() {
			if err := s.scheduler.Run(s.runCtx); err != nil {
				s.logger.Error("temp action scheduler exited", "err", err)
			}
		}()
		if s.registerCommands {
			if err := s.registerSlashCommands(r.User.ID); err != nil {
				s.logger.Error("failed to register commands", "err", err)
			}
		}
	})
}

func (s *Server) onGuildCreate(sess *discordgo.Session, g *discordgo.GuildCreate) {
	defer s.recoverEvent("guild_create")
	ctx, cancel := s.eventContext()
	defer cancel()
	if err := s.store.SetupGuild(ctx, g.ID); err != nil {
		s.logger.Error("failed to set up guild", "guild", g.ID, "err", err)
	}
	s.logger.Info("guild available", "guild", g.ID, "name", g.Name)
}

func messageFromEvent(m *discordgo.Message) engine.Message {
	msg := engine.Message{
		ID:        m.ID,
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		Content:   m.Content,
		Timestamp: m.Timestamp,
	}
	if m.Author != nil {
		msg.AuthorID = m.Author.ID
		msg.AuthorName = m.Author.Username
		msg.AuthorBot = m.Author.Bot
	}
	if m.Member != nil {
		msg.AuthorRoles = m.Member.Roles
	}
	return msg
}

func (s *Server) onMessageCreate(sess *discordgo.Session, m *discordgo.MessageCreate) {
	defer s.recoverEvent("message_create")
	if m.Author == nil || m.GuildID == "" {
		return
	}
	ctx, cancel := s.eventContext()
	defer cancel()
	if err := s.engine.ProcessMessage(ctx, messageFromEvent(m.Message)); err != nil {
		s.logger.Error("automod processing failed", "guild", m.GuildID, "message", m.ID, "err", err)
	}
}

func (s *Server) onMessageUpdate(sess *discordgo.Session, m *discordgo.MessageUpdate) {
	defer s.recoverEvent("message_update")
	// embed unfurls also arrive as updates, without an author
	if m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return
	}
	var before string
	if m.BeforeUpdate != nil {
		before = m.BeforeUpdate.Content
		if before == m.Content {
			return
		}
	}
	ctx, cancel := s.eventContext()
	defer cancel()
	ml := &modstore.MessageLog{
		GuildID:    m.GuildID,
		ChannelID:  m.ChannelID,
		MessageID:  m.ID,
		UserID:     m.Author.ID,
		Action:     "edit",
		OldContent: helpers.CleanContent(before),
		NewContent: helpers.CleanContent(m.Content),
	}
	s.logMessage(ctx, ml)
	s.postEventLog(ctx, m.GuildID, formatEditLine(ml))
	// an edit can turn a clean message in to a violation
	msg := messageFromEvent(m.Message)
	msg.Edited = true
	if err := s.engine.ProcessMessage(ctx, msg); err != nil {
		s.logger.Error("automod processing failed", "guild", m.GuildID, "message", m.ID, "err", err)
	}
}

func (s *Server) onMessageDelete(sess *discordgo.Session, m *discordgo.MessageDelete) {
	defer s.recoverEvent("message_delete")
	if m.GuildID == "" {
		return
	}
	ml := &modstore.MessageLog{
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		MessageID: m.ID,
		Action:    "delete",
	}
	if b := m.BeforeDelete; b != nil {
		if b.Author != nil {
			if b.Author.Bot {
				return
			}
			ml.UserID = b.Author.ID
		}
		ml.OldContent = helpers.CleanContent(b.Content)
	}
	ctx, cancel := s.eventContext()
	defer cancel()
	s.logMessage(ctx, ml)
	s.postEventLog(ctx, m.GuildID, formatDeleteLine(ml))
}

func (s *Server) logMessage(ctx context.Context, ml *modstore.MessageLog) {
	if err := s.store.LogMessageAction(ctx, ml); err != nil {
		s.logger.Error("failed to log message action", "guild", ml.GuildID, "action", ml.Action, "err", err)
	}
}

func (s *Server) onMemberAdd(sess *discordgo.Session, m *discordgo.GuildMemberAdd) {
	defer s.recoverEvent("member_add")
	s.logger.Info("member joined", "guild", m.GuildID, "user", m.User.ID, "username", m.User.Username)
	ctx, cancel := s.eventContext()
	defer cancel()
	s.postEventLog(ctx, m.GuildID, fmt.Sprintf("[member joined] <@%s> (%s)", m.User.ID, m.User.Username))
}

func (s *Server) onMemberRemove(sess *discordgo.Session, m *discordgo.GuildMemberRemove) {
	defer s.recoverEvent("member_remove")
	s.logger.Info("member left", "guild", m.GuildID, "user", m.User.ID, "username", m.User.Username)
	ctx, cancel := s.eventContext()
	defer cancel()
	s.postEventLog(ctx, m.GuildID, fmt.Sprintf("[member left] <@%s> (%s)", m.User.ID, m.User.Username))
}

func (s *Server) onBanAdd(sess *discordgo.Session, b *discordgo.GuildBanAdd) {
	defer s.recoverEvent("ban_add")
	s.logger.Info("member banned", "guild", b.GuildID, "user", b.User.ID)
	ctx, cancel := s.eventContext()
	defer cancel()
	s.postEventLog(ctx, b.GuildID, fmt.Sprintf("[member banned] <@%s> (%s)", b.User.ID, b.User.Username))
}

func (s *Server) onBanRemove(sess *discordgo.Session, b *discordgo.GuildBanRemove) {
	defer s.recoverEvent("ban_remove")
	s.logger.Info("member unbanned", "guild", b.GuildID, "user", b.User.ID)
	ctx, cancel := s.eventContext()
	defer cancel()
	s.postEventLog(ctx, b.GuildID, fmt.Sprintf("[member unbanned] <@%s> (%s)", b.User.ID, b.User.Username))
}

func (s *Server) onRoleCreate(sess *discordgo.Session, r *discordgo.GuildRoleCreate) {
	defer s.recoverEvent("role_create")
	s.logger.Info("role created", "guild", r.GuildID, "role", r.Role.ID, "name", r.Role.Name)
	ctx, cancel := s.eventContext()
	defer cancel()
	s.postEventLog(ctx, r.GuildID, fmt.Sprintf("[role created] %s (%s)", r.Role.Name, r.Role.ID))
}

func (s *Server) onRoleDelete(sess *discordgo.Session, r *discordgo.GuildRoleDelete) {
	defer s.recoverEvent("role_delete")
	s.logger.Info("role deleted", "guild", r.GuildID, "role", r.RoleID)
	ctx, cancel := s.eventContext()
	defer cancel()
	s.postEventLog(ctx, r.GuildID, fmt.Sprintf("[role deleted] %s", r.RoleID))
}

func (s *Server) onChannelCreate(sess *discordgo.Session, c *discordgo.ChannelCreate) {
	defer s.recoverEvent("channel_create")
	// DM channels carry no guild
	if c.GuildID == "" {
		return
	}
	s.logger.Info("channel created", "guild", c.GuildID, "channel", c.ID, "name", c.Name)
	ctx, cancel := s.eventContext()
	defer cancel()
	s.postEventLog(ctx, c.GuildID, fmt.Sprintf("[channel created] <#%s> (%s)", c.ID, c.Name))
}

func (s *Server) onChannelDelete(sess *discordgo.Session, c *discordgo.ChannelDelete) {
	defer s.recoverEvent("channel_delete")
	if c.GuildID == "" {
		return
	}
	s.logger.Info("channel deleted", "guild", c.GuildID, "channel", c.ID, "name", c.Name)
	ctx, cancel := s.eventContext()
	defer cancel()
	s.postEventLog(ctx, c.GuildID, fmt.Sprintf("[channel deleted] #%s (%s)", c.Name, c.ID))
}
