package rules

import (
	"fmt"
	"unicode/utf8"

	"github.com/guildwarden/warden/automod/engine"
	"github.com/guildwarden/warden/automod/helpers"
	"github.com/guildwarden/warden/modstore"
)

var _ engine.MessageRuleFunc = CapsRule

func CapsRule(c *engine.MessageContext) error {
	cfg := c.Config.Caps
	if !cfg.Enabled {
		return nil
	}
	text := c.Message.Content
	if utf8.RuneCountInString(text) < cfg.MinLength {
		return nil
	}
	ratio := helpers.CapsRatio(text)
	if ratio < cfg.Threshold {
		return nil
	}
	c.DeleteMessage()
	c.AddViolation(modstore.ViolationCaps, cfg.DetectorConfig, fmt.Sprintf("Automod: excessive caps (%.0f%%)", ratio*100))
	return nil
}
