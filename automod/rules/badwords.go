package rules

import (
	"github.com/guildwarden/warden/automod/engine"
	"github.com/guildwarden/warden/automod/helpers"
	"github.com/guildwarden/warden/modstore"
)

var _ engine.MessageRuleFunc = BadWordsRule

func BadWordsRule(c *engine.MessageContext) error {
	cfg := c.Config.BadWords
	if !cfg.Enabled || len(cfg.Words) == 0 {
		return nil
	}
	if _, ok := helpers.ContainsWord(c.Message.Content, cfg.Words); !ok {
		return nil
	}
	c.DeleteMessage()
	// the matched word itself is kept out of the reason, which is shown to the member
	c.AddViolation(modstore.ViolationBadWords, cfg.DetectorConfig, "Automod: prohibited language")
	return nil
}
