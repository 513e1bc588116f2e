package rules

import (
	"slices"

	"github.com/guildwarden/warden/automod/engine"
	"github.com/guildwarden/warden/automod/helpers"
	"github.com/guildwarden/warden/modstore"
)

// guild IDs whose invites may be posted
const InviteWhitelistSet = "invite-whitelist"

var _ engine.MessageRuleFunc = InviteLinkRule

// Flags invite links to guilds other than this one and the whitelisted ones (configured, or in the whitelist set). An invite which can not be resolved is treated as not whitelisted.
func InviteLinkRule(c *engine.MessageContext) error {
	cfg := c.Config.InviteLinks
	if !cfg.Enabled {
		return nil
	}
	code, ok := helpers.ExtractInviteCode(c.Message.Content)
	if !ok {
		return nil
	}
	if target, ok := c.InviteGuild(code); ok {
		if target == c.Message.GuildID || slices.Contains(cfg.Whitelist, target) || c.InSet(InviteWhitelistSet, target) {
			return nil
		}
	}
	c.DeleteMessage()
	c.AddViolation(modstore.ViolationInviteLink, cfg.DetectorConfig, "Automod: unauthorized invite link")
	return nil
}
