package main

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/guildwarden/warden/moderation"
	"github.com/guildwarden/warden/modstore"
	"github.com/guildwarden/warden/permissions"
	"github.com/guildwarden/warden/platform"
	"github.com/guildwarden/warden/util"

	"github.com/bwmarrin/discordgo"
)

const historyLimit = 10

func userOption(desc string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionUser,
		Name:        "user",
		Description: desc,
		Required:    true,
	}
}

var reasonOption = &discordgo.ApplicationCommandOption{
	Type:        discordgo.ApplicationCommandOptionString,
	Name:        "reason",
	Description: "Reason for the action",
}

func durationOption(desc string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "duration",
		Description: desc,
	}
}

var channelOption = &discordgo.ApplicationCommandOption{
	Type:         discordgo.ApplicationCommandOptionChannel,
	Name:         "channel",
	Description:  "Channel (defaults to the current one)",
	ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText},
}

var slashCommands = []*discordgo.ApplicationCommand{
	{
		Name:        "warn",
		Description: "Warn a member",
		Options:     []*discordgo.ApplicationCommandOption{userOption("Member to warn"), reasonOption},
	},
	{
		Name:        "unwarn",
		Description: "Remove a member's most recent active warning",
		Options:     []*discordgo.ApplicationCommandOption{userOption("Member to unwarn"), reasonOption},
	},
	{
		Name:        "warnings",
		Description: "List a member's active warnings",
		Options:     []*discordgo.ApplicationCommandOption{userOption("Member to look up")},
	},
	{
		Name:        "history",
		Description: "Show a member's moderation history",
		Options:     []*discordgo.ApplicationCommandOption{userOption("Member to look up")},
	},
	{
		Name:        "timeout",
		Description: "Time out a member",
		Options: []*discordgo.ApplicationCommandOption{
			userOption("Member to time out"),
			durationOption("How long, eg 10m, 2h, 1d (max 28 days)"),
			reasonOption,
		},
	},
	{
		Name:        "untimeout",
		Description: "Lift a member's timeout",
		Options:     []*discordgo.ApplicationCommandOption{userOption("Member to release"), reasonOption},
	},
	{
		Name:        "kick",
		Description: "Kick a member",
		Options:     []*discordgo.ApplicationCommandOption{userOption("Member to kick"), reasonOption},
	},
	{
		Name:        "ban",
		Description: "Ban a user",
		Options: []*discordgo.ApplicationCommandOption{
			userOption("User to ban"),
			durationOption("Temporary ban length, eg 7d; permanent if omitted"),
			reasonOption,
		},
	},
	{
		Name:        "unban",
		Description: "Lift a ban",
		Options:     []*discordgo.ApplicationCommandOption{userOption("User to unban"), reasonOption},
	},
	{
		Name:        "purge",
		Description: "Bulk delete recent messages",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "count",
				Description: "Number of messages to delete (1-100)",
				Required:    true,
				MinValue:    &purgeMin,
				MaxValue:    moderation.MaxPurge,
			},
			{
				Type:        discordgo.ApplicationCommandOptionUser,
				Name:        "user",
				Description: "Only delete messages from this user",
			},
		},
	},
	{
		Name:        "lock",
		Description: "Stop everyone from sending messages in a channel",
		Options:     []*discordgo.ApplicationCommandOption{channelOption, reasonOption},
	},
	{
		Name:        "unlock",
		Description: "Unlock a locked channel",
		Options:     []*discordgo.ApplicationCommandOption{channelOption, reasonOption},
	},
	{
		Name:        "stafflogs",
		Description: "Show recent staff command usage",
	},
	{
		Name:        "automodlogs",
		Description: "Show recent automod violations",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionUser,
				Name:        "user",
				Description: "Only show violations by this user",
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "type",
				Description: "Only show violations of this type",
				Choices:     violationChoices(),
			},
		},
	},
	{
		Name:        "reload",
		Description: "Reload the bot configuration file",
	},
}

func violationChoices() []*discordgo.ApplicationCommandOptionChoice {
	out := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(modstore.ViolationKinds))
	for _, k := range modstore.ViolationKinds {
		out = append(out, &discordgo.ApplicationCommandOptionChoice{Name: string(k), Value: string(k)})
	}
	return out
}

var purgeMin = 1.0

// commands which act on a member, and so are subject to role hierarchy checks
var targetedCommands = map[string]bool{
	"warn":      true,
	"unwarn":    true,
	"timeout":   true,
	"untimeout": true,
	"kick":      true,
	"ban":       true,
}

func (s *Server) registerSlashCommands(appID string) error {
	for _, cmd := range slashCommands {
		if _, err := s.session.ApplicationCommandCreate(appID, "", cmd); err != nil {
			return fmt.Errorf("registering /%s: %w", cmd.Name, err)
		}
	}
	s.logger.Info("registered slash commands", "count", len(slashCommands))
	return nil
}

// A slash command invocation, decoupled from the gateway payload.
type invocation struct {
	Command   string
	GuildID   string
	ChannelID string
	Invoker   platform.Member

	UserID        string
	Reason        string
	Duration      string
	Count         int
	TargetChannel string
	// automod detector filter
	Kind string
}

func invocationFromInteraction(i *discordgo.InteractionCreate) (*invocation, error) {
	if i.GuildID == "" || i.Member == nil || i.Member.User == nil {
		return nil, fmt.Errorf("commands can only be used in a server")
	}
	data := i.ApplicationCommandData()
	inv := &invocation{
		Command:   data.Name,
		GuildID:   i.GuildID,
		ChannelID: i.ChannelID,
		Invoker: platform.Member{
			GuildID:  i.GuildID,
			UserID:   i.Member.User.ID,
			Username: i.Member.User.Username,
			Roles:    i.Member.Roles,
		},
	}
	for _, opt := range data.Options {
		switch opt.Type {
		case discordgo.ApplicationCommandOptionUser:
			inv.UserID = opt.UserValue(nil).ID
		case discordgo.ApplicationCommandOptionChannel:
			inv.TargetChannel = opt.ChannelValue(nil).ID
		case discordgo.ApplicationCommandOptionInteger:
			inv.Count = int(opt.IntValue())
		case discordgo.ApplicationCommandOptionString:
			switch opt.Name {
			case "reason":
				inv.Reason = opt.StringValue()
			case "duration":
				inv.Duration = opt.StringValue()
			case "type":
				inv.Kind = opt.StringValue()
			}
		}
	}
	return inv, nil
}

func (s *Server) onInteractionCreate(sess *discordgo.Session, i *discordgo.InteractionCreate) {
	defer s.recoverEvent("interaction_create")
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	var reply string
	inv, err := invocationFromInteraction(i)
	if err != nil {
		reply = err.Error()
	} else {
		ctx, cancel := s.eventContext()
		defer cancel()
		reply = s.runCommand(ctx, inv)
	}

	err = sess.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: reply,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		s.logger.Error("failed to respond to interaction", "command", i.ApplicationCommandData().Name, "err", err)
	}
}

// Authorizes and executes a command, returning the text to show the invoker.
func (s *Server) runCommand(ctx context.Context, inv *invocation) string {
	logger := s.logger.With("command", inv.Command, "guild", inv.GuildID, "invoker", inv.Invoker.UserID)

	guild, err := s.client.GetGuild(ctx, inv.GuildID)
	if err != nil {
		logger.Error("failed to fetch guild for command", "err", err)
		return "Something went wrong while checking permissions."
	}

	var target *permissions.Target
	if targetedCommands[inv.Command] {
		if inv.UserID == "" {
			return "A user is required."
		}
		m, err := s.client.GetMember(ctx, inv.GuildID, inv.UserID)
		switch {
		case err == nil:
			t := permissions.TargetFromMember(guild, m)
			target = &t
		case platform.IsNotFound(err) && (inv.Command == "ban" || inv.Command == "unwarn"):
			// users who already left can still be banned, or have warnings removed
		case platform.IsNotFound(err):
			return "That user is not a member of this server."
		default:
			logger.Error("failed to fetch target member", "target", inv.UserID, "err", err)
			return "Something went wrong while checking permissions."
		}
	}

	actor := permissions.ActorFromMember(guild, &inv.Invoker)
	if !s.policy.Load().Authorize(actor, inv.Command, target) {
		commandDenied.WithLabelValues(inv.Command).Inc()
		logger.Info("command denied", "target", inv.UserID)
		return "You don't have permission to do that."
	}

	reply, err := s.execCommand(ctx, inv)
	if err != nil {
		if platform.IsForbidden(err) {
			return "I don't have permission to do that here. Check my role position and channel permissions."
		}
		logger.Error("command failed", "target", inv.UserID, "err", err)
		return "Something went wrong while running that command."
	}
	return reply
}

func (s *Server) execCommand(ctx context.Context, inv *invocation) (string, error) {
	req := moderation.Request{
		GuildID:     inv.GuildID,
		ModeratorID: inv.Invoker.UserID,
		UserID:      inv.UserID,
		Reason:      inv.Reason,
	}
	mention := "<@" + inv.UserID + ">"

	var d time.Duration
	if inv.Duration != "" {
		var err error
		d, err = util.ParseDuration(inv.Duration)
		if err != nil {
			return "Invalid duration: " + inv.Duration, nil
		}
	}

	switch inv.Command {
	case "warn":
		res, err := s.mod.Warn(ctx, req)
		if err != nil {
			return "", err
		}
		reply := fmt.Sprintf("Warned %s. They now have %d active warning(s).", mention, res.WarningCount)
		if res.Escalated {
			reply += fmt.Sprintf(" Maximum warnings reached: timed out for %s.", util.FormatDuration(moderation.EscalationTimeout))
		}
		return reply, nil
	case "unwarn":
		removed, err := s.mod.Unwarn(ctx, req)
		if err != nil {
			return "", err
		}
		if !removed {
			return mention + " has no active warnings.", nil
		}
		return "Removed the most recent warning from " + mention + ".", nil
	case "warnings":
		ws, err := s.mod.Warnings(ctx, inv.GuildID, inv.UserID)
		if err != nil {
			return "", err
		}
		if len(ws) == 0 {
			return mention + " has no active warnings.", nil
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, "%s has %d active warning(s):", mention, len(ws))
		for _, w := range ws {
			fmt.Fprintf(&sb, "\n- %s by <@%s>: %s", w.CreatedAt.UTC().Format(time.DateOnly), w.ModeratorID, w.Reason)
		}
		return sb.String(), nil
	case "history":
		acts, err := s.mod.History(ctx, inv.GuildID, inv.UserID, historyLimit)
		if err != nil {
			return "", err
		}
		if len(acts) == 0 {
			return "No moderation history for " + mention + ".", nil
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, "Recent moderation history for %s:", mention)
		for _, a := range acts {
			fmt.Fprintf(&sb, "\n- %s %s", a.CreatedAt.UTC().Format(time.DateOnly), a.Action)
			if a.Duration != nil {
				fmt.Fprintf(&sb, " (%s)", util.FormatDuration(time.Duration(*a.Duration)*time.Second))
			}
			fmt.Fprintf(&sb, ": %s", a.Reason)
		}
		return sb.String(), nil
	case "timeout":
		if err := s.mod.Timeout(ctx, req, d); err != nil {
			return "", err
		}
		if d == 0 {
			d = moderation.DefaultTimeout
		}
		if d > moderation.MaxTimeout {
			d = moderation.MaxTimeout
		}
		return fmt.Sprintf("Timed out %s for %s.", mention, util.FormatDuration(d)), nil
	case "untimeout":
		if err := s.mod.Untimeout(ctx, req); err != nil {
			return "", err
		}
		return "Lifted the timeout on " + mention + ".", nil
	case "kick":
		if err := s.mod.Kick(ctx, req); err != nil {
			return "", err
		}
		return "Kicked " + mention + ".", nil
	case "ban":
		if err := s.mod.Ban(ctx, req, d); err != nil {
			return "", err
		}
		if d > 0 {
			return fmt.Sprintf("Banned %s for %s.", mention, util.FormatDuration(d)), nil
		}
		return "Banned " + mention + ".", nil
	case "unban":
		ok, err := s.mod.Unban(ctx, req)
		if err != nil {
			return "", err
		}
		if !ok {
			return mention + " is not banned.", nil
		}
		return "Unbanned " + mention + ".", nil
	case "purge":
		if inv.Count < 1 || inv.Count > moderation.MaxPurge {
			return fmt.Sprintf("Count must be between 1 and %d.", moderation.MaxPurge), nil
		}
		n, err := s.mod.Purge(ctx, req, inv.ChannelID, inv.Count)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Deleted %d message(s).", n), nil
	case "lock", "unlock":
		chn := inv.TargetChannel
		if chn == "" {
			chn = inv.ChannelID
		}
		if inv.Command == "lock" {
			if err := s.mod.Lock(ctx, req, chn); err != nil {
				return "", err
			}
			return "Locked <#" + chn + ">.", nil
		}
		if err := s.mod.Unlock(ctx, req, chn); err != nil {
			return "", err
		}
		return "Unlocked <#" + chn + ">.", nil
	case "stafflogs":
		logs, err := s.mod.StaffLogs(ctx, inv.GuildID, historyLimit)
		if err != nil {
			return "", err
		}
		if len(logs) == 0 {
			return "No staff actions recorded.", nil
		}
		var sb strings.Builder
		sb.WriteString("Recent staff actions:")
		for _, l := range logs {
			fmt.Fprintf(&sb, "\n- %s <@%s> %s", l.CreatedAt.UTC().Format(time.DateTime), l.StaffID, l.Action)
			if l.DetailsJSON != "" {
				fmt.Fprintf(&sb, " %s", l.DetailsJSON)
			}
		}
		return sb.String(), nil
	case "automodlogs":
		kind := modstore.ViolationKind(inv.Kind)
		if kind != "" && !slices.Contains(modstore.ViolationKinds, kind) {
			return "Unknown violation type: " + inv.Kind, nil
		}
		vs, err := s.mod.AutomodLogs(ctx, inv.GuildID, inv.UserID, kind, historyLimit)
		if err != nil {
			return "", err
		}
		if len(vs) == 0 {
			return "No automod violations recorded.", nil
		}
		var sb strings.Builder
		sb.WriteString("Recent automod violations:")
		for _, v := range vs {
			fmt.Fprintf(&sb, "\n- %s %s by <@%s> in <#%s> (%s)", v.CreatedAt.UTC().Format(time.DateTime), v.Kind, v.UserID, v.ChannelID, v.ActionTaken)
			if v.Content != "" {
				fmt.Fprintf(&sb, ": %s", v.Content)
			}
		}
		return sb.String(), nil
	case "reload":
		cfg, err := s.Reload()
		if err != nil {
			return "Failed to reload configuration: " + err.Error(), nil
		}
		if err := s.engine.PurgeGuildCaches(ctx, inv.GuildID); err != nil {
			s.logger.Warn("failed to purge guild caches", "guild", inv.GuildID, "err", err)
		}
		if len(cfg.Problems) > 0 {
			return fmt.Sprintf("Configuration reloaded with %d problem(s): %s", len(cfg.Problems), strings.Join(cfg.Problems, "; ")), nil
		}
		return "Configuration reloaded.", nil
	}
	return "", fmt.Errorf("unknown command: %s", inv.Command)
}
