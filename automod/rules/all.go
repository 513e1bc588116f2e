package rules

import (
	"github.com/guildwarden/warden/automod/engine"
)

// The automod checks, in the order they run. Every check runs on every message, whatever the earlier ones found.
func DefaultRules() engine.RuleSet {
	rules := engine.RuleSet{
		MessageRules: []engine.MessageRuleFunc{
			SpamRule,
			CapsRule,
			RepeatedTextRule,
			BadWordsRule,
			InviteLinkRule,
		},
	}
	return rules
}
