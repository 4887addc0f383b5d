// Package store persists objects, bundles and rules. Two backends implement
// Store: SQLite for single-node and local use, DynamoDB for deployments that
// share state between processes.
package store

import (
	"context"
	"time"

	"github.com/eleven-am/warden/internal/domain"
)

const (
	DriverSQLite   = "sqlite"
	DriverDynamoDB = "dynamodb"
)

// Store is the rule store used by the evaluator plus the unconditional
// writes needed to seed it.
type Store interface {
	domain.RuleStore
	PutObject(ctx context.Context, obj domain.FlowObject) error
	PutBundle(ctx context.Context, bundle domain.FlowRuleBundle) error
	PutRule(ctx context.Context, rule domain.FlowRule) error
	Close() error
}

// ResetRule moves a FAILED rule back to PENDING. This is the only way a
// failed rule re-enters evaluation.
func ResetRule(ctx context.Context, s domain.RuleStore, id string) (domain.FlowRule, error) {
	rule, err := s.GetRule(ctx, id)
	if err != nil {
		return domain.FlowRule{}, err
	}
	if rule.Status != domain.RuleStatusFailed {
		return domain.FlowRule{}, domain.NewValidationError("rule %s is %s, only FAILED rules can be reset", id, rule.Status)
	}
	rule.Status = domain.RuleStatusPending
	rule.FailureReasons = nil
	rule.SuricataString = ""
	return s.UpdateRule(ctx, *rule)
}

var now = func() time.Time { return time.Now().UTC() }
