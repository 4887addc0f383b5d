package rules

import (
	"regexp"

	"github.com/eleven-am/warden/internal/domain"
)

var ruleIDPattern = regexp.MustCompile(`msg:\s*"([^"]*)"`)

// AttributeError finds the rule a control-plane rejection refers to. It only
// succeeds when the message names exactly one rule id and that id belongs to
// one of the submitted rules.
func AttributeError(message string, submitted []domain.FlowRule) (string, bool) {
	matches := ruleIDPattern.FindAllStringSubmatch(message, -1)
	var ruleID string
	for _, m := range matches {
		if ruleID != "" && m[1] != ruleID {
			return "", false
		}
		ruleID = m[1]
	}
	if ruleID == "" {
		return "", false
	}
	for _, rule := range submitted {
		if rule.ID == ruleID {
			return ruleID, true
		}
	}
	return "", false
}
