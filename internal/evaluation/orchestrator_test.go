package evaluation

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eleven-am/warden/internal/domain"
	"github.com/eleven-am/warden/internal/rules"
)

type harness struct {
	store    *mockStore
	objects  *mockObjectResolver
	firewall *mockFirewall
	notifier *mockNotifier
	orch     *Orchestrator
}

func newHarness(store *mockStore) *harness {
	h := &harness{
		store:    store,
		objects:  &mockObjectResolver{addresses: map[string][]string{"A": {"10.0.0.1"}, "B": {"10.0.0.2"}}},
		firewall: &mockFirewall{},
		notifier: &mockNotifier{},
	}
	resolver := rules.NewDefinitionResolver(h.objects, 1, nil)
	updater := rules.NewUpdater(h.firewall, store, h.notifier, rules.UpdaterOptions{})
	h.orch = NewOrchestrator(store, resolver, updater, h.notifier, Options{})
	return h
}

func TestEvaluate_MergesBundlesWithGlobalSids(t *testing.T) {
	store := newMockStore().
		withBundle(bundle("b1", groupA)).
		withBundle(bundle("b2", groupA)).
		withObject("A").withObject("B").
		withRule(rule("r1", "b1", "A", "B")).
		withRule(rule("r2", "b1", "B", "A")).
		withRule(rule("r3", "b2", "A", "B"))
	h := newHarness(store)

	result, err := h.orch.Evaluate(context.Background(), []string{"b1", "b2"})
	require.NoError(t, err)

	require.Len(t, h.firewall.bodies, 1)
	lines := strings.Split(h.firewall.bodies[0], "\n")
	assert.Equal(t, []string{
		`pass tcp 10.0.0.1 any ->  10.0.0.2 123 (msg: "r1"; sid: 1;)`,
		`pass tcp 10.0.0.2 any ->  10.0.0.1 123 (msg: "r2"; sid: 2;)`,
		`pass tcp 10.0.0.1 any ->  10.0.0.2 123 (msg: "r3"; sid: 3;)`,
	}, lines)

	assert.Equal(t, groupA, result.RuleGroupArn)
	assert.NotEmpty(t, result.RunID)
	assert.False(t, result.DenyAll)
	assert.Equal(t, 3, result.Count(domain.RuleStatusActive))
	assert.Equal(t, 3, store.writes)
}

func TestEvaluate_RejectsMixedRuleGroups(t *testing.T) {
	store := newMockStore().
		withBundle(bundle("b1", groupA)).
		withBundle(bundle("b2", groupB)).
		withObject("A").withObject("B").
		withRule(rule("r1", "b1", "A", "B"))
	h := newHarness(store)

	_, err := h.orch.Evaluate(context.Background(), []string{"b1", "b2"})

	var validation *domain.ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, http.StatusBadRequest, domain.StatusCode(err))
	assert.Zero(t, store.listCalls)
	assert.Zero(t, h.objects.calls)
	assert.Empty(t, h.firewall.bodies)
	assert.Empty(t, h.notifier.subjects)
}

func TestEvaluate_RejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		ids  []string
	}{
		{"missing bundle", []string{"b1", "nope"}},
		{"no bundles", nil},
		{"blank ids", []string{"", ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(newMockStore().withBundle(bundle("b1", groupA)))

			_, err := h.orch.Evaluate(context.Background(), tt.ids)

			assert.Equal(t, http.StatusBadRequest, domain.StatusCode(err))
			assert.Empty(t, h.firewall.bodies)
		})
	}
}

func TestEvaluate_DenyAllWhenNothingToApply(t *testing.T) {
	store := newMockStore().withBundle(bundle("b1", groupA))
	failed := rule("old", "b1", "A", "B")
	failed.MarkFailed("rejected earlier")
	store.withRule(failed)
	h := newHarness(store)

	result, err := h.orch.Evaluate(context.Background(), []string{"b1"})
	require.NoError(t, err)

	assert.True(t, result.DenyAll)
	assert.Equal(t, []string{`drop ip any any ->  any any (msg: "deny-all"; sid: 1;)`}, h.firewall.bodies)
	assert.Zero(t, store.writes)
	assert.Equal(t, domain.RuleStatusFailed, store.rules["old"].Status)
}

func TestEvaluate_AllRulesFailResolution(t *testing.T) {
	store := newMockStore().
		withBundle(bundle("b1", groupA)).
		withObject("A").
		withRule(rule("r1", "b1", "A", "missing"))
	h := newHarness(store)

	result, err := h.orch.Evaluate(context.Background(), []string{"b1"})
	require.NoError(t, err)

	assert.False(t, result.DenyAll)
	assert.Empty(t, h.firewall.bodies)
	assert.Equal(t, domain.RuleStatusFailed, store.rules["r1"].Status)
	assert.Equal(t, []string{"unable to resolve reference object missing"}, store.rules["r1"].FailureReasons)
}

func TestEvaluate_InventoryOutageNotifies(t *testing.T) {
	store := newMockStore().
		withBundle(bundle("b1", groupA)).
		withObject("A").withObject("B").
		withRule(rule("r1", "b1", "A", "B"))
	h := newHarness(store)
	h.objects.outage = errors.New("throttled")

	_, err := h.orch.Evaluate(context.Background(), []string{"b1"})

	assert.Equal(t, http.StatusServiceUnavailable, domain.StatusCode(err))
	assert.Empty(t, h.firewall.bodies)
	assert.Zero(t, store.writes)
	assert.Equal(t, []string{"Rule evaluation failed"}, h.notifier.subjects)
	assert.Equal(t, domain.RuleStatusPending, store.rules["r1"].Status)
}

func TestEvaluate_FirewallOutage(t *testing.T) {
	store := newMockStore().
		withBundle(bundle("b1", groupA)).
		withObject("A").withObject("B").
		withRule(rule("r1", "b1", "A", "B"))
	h := newHarness(store)
	h.firewall.replaceErr = errors.New("service unavailable")

	_, err := h.orch.Evaluate(context.Background(), []string{"b1"})

	assert.True(t, domain.IsUnderlyingServiceError(err))
	assert.Zero(t, store.writes)
	assert.Len(t, h.notifier.subjects, 1)
}

func TestEvaluate_StoreOutage(t *testing.T) {
	store := newMockStore().withBundle(bundle("b1", groupA))
	store.listErr = errors.New("database is locked")
	h := newHarness(store)

	_, err := h.orch.Evaluate(context.Background(), []string{"b1"})

	var serviceErr *domain.UnderlyingServiceError
	require.ErrorAs(t, err, &serviceErr)
	assert.Equal(t, "store", serviceErr.Service)
}

func TestDenyAllRule(t *testing.T) {
	rule := DenyAllRule()

	assert.Equal(t, DenyAllRuleID, rule.ID)
	assert.Equal(t, domain.RuleStatusPending, rule.Status)
	assert.Equal(t, `drop ip any any ->  any any (msg: "deny-all"; sid: 1;)`, rule.SuricataString)
}
