package rules

import (
	"strings"
	"unicode/utf8"

	"github.com/guildwarden/warden/automod/engine"
	"github.com/guildwarden/warden/automod/helpers"
	"github.com/guildwarden/warden/modstore"
)

var _ engine.MessageRuleFunc = RepeatedTextRule

// Compares the message against the member's other recent messages in the same channel. Only the first similar message counts.
func RepeatedTextRule(c *engine.MessageContext) error {
	cfg := c.Config.RepeatedText
	if !cfg.Enabled {
		return nil
	}
	text := strings.ToLower(strings.TrimSpace(c.Message.Content))
	if text == "" || utf8.RuneCountInString(text) < cfg.MinLength {
		return nil
	}
	msg := c.Message
	previous := c.Tracker().PushContent(msg.GuildID, msg.AuthorID, msg.ChannelID, msg.ID, text, cfg.History)
	for _, prev := range previous {
		if helpers.TextSimilarity(text, prev) >= cfg.SimilarityThreshold {
			c.DeleteMessage()
			c.AddViolation(modstore.ViolationRepeatedText, cfg.DetectorConfig, "Automod: repeated message")
			break
		}
	}
	return nil
}
