package moderation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/guildwarden/warden/modstore"
	"github.com/guildwarden/warden/util"
)

// One line describing a history entry, for the guild's log channel.
func FormatModLogLine(act modstore.ModAction) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s]", act.Action)
	if act.UserID != NoSubject {
		fmt.Fprintf(&sb, " <@%s>", act.UserID)
	}
	if ch, ok := act.Extra["channel_id"].(string); ok {
		fmt.Fprintf(&sb, " in <#%s>", ch)
	}
	if act.Duration != nil {
		fmt.Fprintf(&sb, " for %s", util.FormatDuration(time.Duration(*act.Duration)*time.Second))
	}
	if act.ModeratorID == modstore.SystemModerator {
		sb.WriteString(" by automod")
	} else {
		fmt.Fprintf(&sb, " by <@%s>", act.ModeratorID)
	}
	if act.Reason != "" {
		fmt.Fprintf(&sb, ": %s", act.Reason)
	}
	return sb.String()
}

// Posts the entry to the guild's log channel, if one is configured. Failures are logged and otherwise ignored.
func (o *Orchestrator) postModLog(ctx context.Context, act modstore.ModAction) {
	gs, err := o.Store.GetGuildSettings(ctx, act.GuildID)
	if errors.Is(err, modstore.ErrNotFound) {
		return
	} else if err != nil {
		o.Logger.Warn("failed to read guild settings for mod log", "guild", act.GuildID, "err", err)
		return
	}
	channelID := gs.String(modstore.SettingLogChannel)
	if channelID == "" {
		return
	}
	if err := o.Platform.SendMessage(ctx, channelID, FormatModLogLine(act)); err != nil {
		o.Logger.Warn("failed to post to mod log channel", "guild", act.GuildID, "channel", channelID, "err", err)
	}
}
