// Package routing selects the routing rule that governs an outgoing email.
package routing

import (
	"sort"

	"smart-mail-router/internal/model"
	"smart-mail-router/internal/pattern"
)

// Resolve returns the rule that governs a message with the given primary
// recipient and subject, or nil when no rule applies.
//
// Enabled non-default rules are tried in ascending priority order, ties
// broken by id. The first rule with any pattern matching either the subject
// or the recipient wins; otherwise the default rule (priority -1) is used.
// Only the first recipient of a multi-recipient message is considered.
func Resolve(rules []model.RoutingRule, recipient, subject string) *model.RoutingRule {
	var fallback *model.RoutingRule
	candidates := make([]*model.RoutingRule, 0, len(rules))

	for i := range rules {
		rule := &rules[i]
		if !rule.Enabled {
			continue
		}
		if rule.IsDefault() {
			if fallback == nil || rule.ID < fallback.ID {
				fallback = rule
			}
			continue
		}
		candidates = append(candidates, rule)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority < candidates[j].Priority
		}
		return candidates[i].ID < candidates[j].ID
	})

	for _, rule := range candidates {
		if pattern.MatchAny(rule.PatternType, rule.Patterns(), subject, recipient) {
			return rule
		}
	}

	return fallback
}
