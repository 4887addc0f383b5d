package evaluation

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/eleven-am/warden/internal/domain"
)

type mockStore struct {
	mu          sync.Mutex
	bundles     map[string]domain.FlowRuleBundle
	objects     map[string]domain.FlowObject
	rules       map[string]domain.FlowRule
	bundleErr   error
	listErr     error
	bundleReads int
	listCalls   int
	writes      int
}

func newMockStore() *mockStore {
	return &mockStore{
		bundles: make(map[string]domain.FlowRuleBundle),
		objects: make(map[string]domain.FlowObject),
		rules:   make(map[string]domain.FlowRule),
	}
}

func (m *mockStore) withBundle(b domain.FlowRuleBundle) *mockStore {
	m.bundles[b.ID] = b
	return m
}

func (m *mockStore) withObject(id string) *mockStore {
	m.objects[id] = domain.FlowObject{ID: id, Type: domain.ObjectTypeAddress, Value: id}
	return m
}

func (m *mockStore) withRule(r domain.FlowRule) *mockStore {
	m.rules[r.ID] = r
	return m
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
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bundleReads++
	if m.bundleErr != nil {
		return nil, m.bundleErr
	}
	var out []domain.FlowRuleBundle
	for _, id := range ids {
		if b, ok := m.bundles[id]; ok {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *mockStore) GetObjects(ctx context.Context, ids []string) ([]domain.FlowObject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.FlowObject
	for _, id := range ids {
		if o, ok := m.objects[id]; ok {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *mockStore) ListActiveRules(ctx context.Context, bundleID string) ([]domain.FlowRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []domain.FlowRule
	for _, r := range m.rules {
		if r.RuleBundleID == bundleID && r.Status != domain.RuleStatusFailed {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
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

type mockObjectResolver struct {
	mu        sync.Mutex
	addresses map[string][]string
	outage    error
	calls     int
}

func (m *mockObjectResolver) Resolve(ctx context.Context, obj domain.FlowObject, bundle domain.FlowRuleBundle) domain.ResolvedFlowObject {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.outage != nil {
		return domain.ResolvedFlowObject{
			FlowObject:     obj,
			Addresses:      []string{},
			FailureReasons: []string{"failed to query inventory"},
			Err:            &domain.UnderlyingServiceError{Service: "inventory", Err: m.outage},
		}
	}
	return domain.ResolvedFlowObject{FlowObject: obj, Addresses: m.addresses[obj.ID]}
}

type mockFirewall struct {
	mu         sync.Mutex
	replaceErr error
	bodies     []string
}

func (m *mockFirewall) UpdateToken(ctx context.Context, ruleGroupArn string) (string, error) {
	return "token", nil
}

func (m *mockFirewall) ReplaceRules(ctx context.Context, ruleGroupArn, updateToken, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bodies = append(m.bodies, body)
	return m.replaceErr
}

func (m *mockFirewall) FirewallFor(ruleGroupArn string) (domain.Firewall, error) {
	return m, nil
}

type mockNotifier struct {
	mu       sync.Mutex
	subjects []string
}

func (m *mockNotifier) Notify(ctx context.Context, subject, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subjects = append(m.subjects, subject)
	return errors.New("delivery disabled in tests")
}

const (
	groupA = "arn:aws:network-firewall:us-east-1:111122223333:stateful-rulegroup/a"
	groupB = "arn:aws:network-firewall:us-east-1:111122223333:stateful-rulegroup/b"
)

func bundle(id, ruleGroupArn string) domain.FlowRuleBundle {
	return domain.FlowRuleBundle{ID: id, RuleGroupArn: ruleGroupArn, AggregatorName: "org"}
}

func rule(id, bundleID, source, destination string) domain.FlowRule {
	return domain.FlowRule{
		ID:              id,
		RuleBundleID:    bundleID,
		Version:         1,
		Protocol:        "tcp",
		Action:          domain.ActionPass,
		Source:          source,
		SourcePort:      domain.AnyPort(),
		Destination:     destination,
		DestinationPort: domain.SinglePort(123),
		Status:          domain.RuleStatusPending,
	}
}
