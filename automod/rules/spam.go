package rules

import (
	"fmt"
	"time"

	"github.com/guildwarden/warden/automod/engine"
	"github.com/guildwarden/warden/modstore"
)

var _ engine.MessageRuleFunc = SpamRule

// Flags a member posting max_messages or more messages within time_window seconds. The member's window is reset once flagged, so one burst is punished once.
func SpamRule(c *engine.MessageContext) error {
	cfg := c.Config.Spam
	// an edit is not a new message
	if !cfg.Enabled || c.Message.Edited {
		return nil
	}
	at := c.Message.Timestamp
	if at.IsZero() {
		at = time.Now()
	}
	window := time.Duration(cfg.TimeWindow) * time.Second
	count := c.Tracker().RecordMessage(c.Message.GuildID, c.Message.AuthorID, at, window, cfg.MaxMessages)
	if count < cfg.MaxMessages {
		return nil
	}
	c.Tracker().ResetMessages(c.Message.GuildID, c.Message.AuthorID)
	c.DeleteMessage()
	c.AddViolation(modstore.ViolationSpam, cfg.DetectorConfig, fmt.Sprintf("Automod: spam (%d messages in %ds)", count, cfg.TimeWindow))
	return nil
}
