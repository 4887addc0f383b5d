package rules

import (
	"context"
	"errors"
	"sync"

	"github.com/eleven-am/warden/internal/domain"
)

type mockObjectResolver struct {
	mu       sync.Mutex
	results  map[string]domain.ResolvedFlowObject
	resolved []string
}

func newMockObjectResolver() *mockObjectResolver {
	return &mockObjectResolver{results: make(map[string]domain.ResolvedFlowObject)}
}

func (m *mockObjectResolver) addresses(id string, addresses ...string) *mockObjectResolver {
	m.results[id] = domain.ResolvedFlowObject{FlowObject: domain.FlowObject{ID: id}, Addresses: addresses}
	return m
}

func (m *mockObjectResolver) failure(id string, err error, reasons ...string) *mockObjectResolver {
	m.results[id] = domain.ResolvedFlowObject{FlowObject: domain.FlowObject{ID: id}, Addresses: []string{}, FailureReasons: reasons, Err: err}
	return m
}

func (m *mockObjectResolver) Resolve(ctx context.Context, obj domain.FlowObject, bundle domain.FlowRuleBundle) domain.ResolvedFlowObject {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolved = append(m.resolved, obj.ID)
	if res, ok := m.results[obj.ID]; ok {
		return res
	}
	return domain.ResolvedFlowObject{FlowObject: obj, Addresses: []string{}}
}

type mockFirewall struct {
	token      string
	tokenErr   error
	replaceErr error
	bodies     []string
	tokens     []string
}

func (m *mockFirewall) UpdateToken(ctx context.Context, ruleGroupArn string) (string, error) {
	return m.token, m.tokenErr
}

func (m *mockFirewall) ReplaceRules(ctx context.Context, ruleGroupArn, updateToken, rules string) error {
	m.tokens = append(m.tokens, updateToken)
	m.bodies = append(m.bodies, rules)
	return m.replaceErr
}

type mockFirewallProvider struct {
	firewall *mockFirewall
	err      error
}

func (m *mockFirewallProvider) FirewallFor(ruleGroupArn string) (domain.Firewall, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.firewall, nil
}

type mockStore struct {
	mu     sync.Mutex
	rules  map[string]domain.FlowRule
	writes int
}

func newMockStore(rules ...domain.FlowRule) *mockStore {
	s := &mockStore{rules: make(map[string]domain.FlowRule)}
	for _, r := range rules {
		s.rules[r.ID] = r
	}
	return s
}

func (m *mockStore) GetRule(ctx context.Context, id string) (*domain.FlowRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rule, ok := m.rules[id]
	if !ok {
		return nil, &domain.NotFoundError{Kind: "rule", ID: id}
	}
	return &rule, nil
}

func (m *mockStore) GetRuleBundles(ctx context.Context, ids []string) ([]domain.FlowRuleBundle, error) {
	return nil, errors.New("not implemented")
}

func (m *mockStore) GetObjects(ctx context.Context, ids []string) ([]domain.FlowObject, error) {
	return nil, errors.New("not implemented")
}

func (m *mockStore) ListActiveRules(ctx context.Context, bundleID string) ([]domain.FlowRule, error) {
	return nil, errors.New("not implemented")
}

func (m *mockStore) UpdateRule(ctx context.Context, rule domain.FlowRule) (domain.FlowRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	stored, ok := m.rules[rule.ID]
	if !ok {
		return domain.FlowRule{}, &domain.NotFoundError{Kind: "rule", ID: rule.ID}
	}
	if stored.Version != rule.Version {
		return domain.FlowRule{}, &domain.ConflictError{RuleID: rule.ID, Version: rule.Version}
	}
	rule.Version++
	m.rules[rule.ID] = rule
	return rule, nil
}

type mockNotifier struct {
	mu       sync.Mutex
	subjects []string
	err      error
}

func (m *mockNotifier) Notify(ctx context.Context, subject, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subjects = append(m.subjects, subject)
	return m.err
}

const testRuleGroupArn = "arn:aws:network-firewall:us-east-1:111122223333:stateful-rulegroup/demo"

var testBundle = domain.FlowRuleBundle{
	ID:             "bundle-1",
	RuleGroupArn:   testRuleGroupArn,
	AggregatorName: "org-aggregator",
}

func newRule(id, source, destination string) domain.FlowRule {
	return domain.FlowRule{
		ID:              id,
		RuleBundleID:    testBundle.ID,
		Version:         1,
		Protocol:        "tcp",
		Action:          domain.ActionPass,
		Source:          source,
		SourcePort:      domain.AnyPort(),
		Destination:     destination,
		DestinationPort: domain.SinglePort(443),
		Status:          domain.RuleStatusPending,
	}
}

func addressObject(id string) domain.FlowObject {
	return domain.FlowObject{ID: id, Type: domain.ObjectTypeAddress, Value: id}
}
