package domain

import (
	"context"
	"time"
)

type AWSCredentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Expiration      time.Time
}

// Inventory runs read-only structured queries against a named aggregation
// view and returns the JSON encoded resource records.
type Inventory interface {
	SelectResources(ctx context.Context, aggregatorName, expression string) ([]string, error)
}

// Firewall is the rule group control plane. It only supports whole-body
// replacement guarded by an update token.
type Firewall interface {
	UpdateToken(ctx context.Context, ruleGroupArn string) (string, error)
	ReplaceRules(ctx context.Context, ruleGroupArn, updateToken, rules string) error
}

type FirewallProvider interface {
	FirewallFor(ruleGroupArn string) (Firewall, error)
}

type Notifier interface {
	Notify(ctx context.Context, subject, message string) error
}

type RuleStore interface {
	GetRule(ctx context.Context, id string) (*FlowRule, error)
	GetRuleBundles(ctx context.Context, ids []string) ([]FlowRuleBundle, error)
	GetObjects(ctx context.Context, ids []string) ([]FlowObject, error)
	// ListActiveRules returns the rules of a bundle whose status is not FAILED.
	ListActiveRules(ctx context.Context, bundleID string) ([]FlowRule, error)
	// UpdateRule writes rule if the stored version still equals rule.Version
	// and returns the rule with its version incremented.
	UpdateRule(ctx context.Context, rule FlowRule) (FlowRule, error)
}
