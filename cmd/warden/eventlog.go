package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/guildwarden/warden/automod/helpers"
	"github.com/guildwarden/warden/modstore"
)

// message text in log channel lines is cut to this many runes
const eventLogContentLength = 300

// Posts one line about a server event to the guild's log channel, if one is configured. Failures are logged and otherwise ignored.
func (s *Server) postEventLog(ctx context.Context, guildID, line string) {
	gs, err := s.store.GetGuildSettings(ctx, guildID)
	if errors.Is(err, modstore.ErrNotFound) {
		return
	} else if err != nil {
		s.logger.Warn("failed to read guild settings for event log", "guild", guildID, "err", err)
		return
	}
	channelID := gs.String(modstore.SettingLogChannel)
	if channelID == "" {
		return
	}
	if err := s.client.SendMessage(ctx, channelID, line); err != nil {
		s.logger.Warn("failed to post to log channel", "guild", guildID, "channel", channelID, "err", err)
	}
}

func eventLogContent(text string) string {
	return helpers.TruncateContent(text, eventLogContentLength)
}

func formatEditLine(ml *modstore.MessageLog) string {
	return fmt.Sprintf("[message edited] <@%s> in <#%s>: %q -> %q", ml.UserID, ml.ChannelID, eventLogContent(ml.OldContent), eventLogContent(ml.NewContent))
}

func formatDeleteLine(ml *modstore.MessageLog) string {
	if ml.UserID == "" {
		// not in the gateway cache, so neither author nor content is known
		return fmt.Sprintf("[message deleted] %s in <#%s>", ml.MessageID, ml.ChannelID)
	}
	return fmt.Sprintf("[message deleted] <@%s> in <#%s>: %q", ml.UserID, ml.ChannelID, eventLogContent(ml.OldContent))
}
