package engine

import (
	"fmt"
)

// Holds configuration of which rules should be run, in order, and dispatches messages to them.
type RuleSet struct {
	MessageRules []MessageRuleFunc
}

// Executes every message rule. A rule which fails (or panics) is logged and does not stop the rules after it; only the first error is returned.
func (r *RuleSet) CallMessageRules(c *MessageContext) error {
	var first error
	for i, f := range r.MessageRules {
		if err := callRule(c, f); err != nil {
			c.Logger.Error("automod rule failed", "rule", i, "err", err)
			if first == nil {
				first = fmt.Errorf("message rule %d: %w", i, err)
			}
		}
	}
	return first
}

func callRule(c *MessageContext, f MessageRuleFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rule panic: %v", r)
		}
	}()
	return f(c)
}
