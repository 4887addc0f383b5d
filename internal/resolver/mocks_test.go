package resolver

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/eleven-am/warden/internal/domain"
)

var errInventoryDown = errors.New("inventory unavailable")

// mockInventory answers a query with the results of the first route whose
// fragments all appear in the expression.
type mockInventory struct {
	mu      sync.Mutex
	routes  []mockRoute
	queries []string
}

type mockRoute struct {
	fragments []string
	results   []string
	err       error
}

func newMockInventory() *mockInventory {
	return &mockInventory{}
}

func (m *mockInventory) on(results []string, fragments ...string) *mockInventory {
	m.routes = append(m.routes, mockRoute{fragments: fragments, results: results})
	return m
}

func (m *mockInventory) fail(err error, fragments ...string) *mockInventory {
	m.routes = append(m.routes, mockRoute{fragments: fragments, err: err})
	return m
}

func (m *mockInventory) SelectResources(ctx context.Context, aggregatorName, expression string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, expression)
	for _, route := range m.routes {
		matched := true
		for _, f := range route.fragments {
			if !strings.Contains(expression, f) {
				matched = false
				break
			}
		}
		if matched {
			return route.results, route.err
		}
	}
	return nil, nil
}

func (m *mockInventory) queryCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queries)
}

var testBundle = domain.FlowRuleBundle{
	ID:             "bundle-1",
	RuleGroupArn:   "arn:aws:network-firewall:us-east-1:111122223333:stateful-rulegroup/demo",
	AggregatorName: "org-aggregator",
}

func arnObject(id, value string) domain.FlowObject {
	return domain.FlowObject{ID: id, Type: domain.ObjectTypeArn, Value: value}
}
