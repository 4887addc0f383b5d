// Package evaluation runs one reconciliation pass over a set of rule bundles
// that share a firewall rule group.
package evaluation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/eleven-am/warden/internal/domain"
	"github.com/eleven-am/warden/internal/logging"
	"github.com/eleven-am/warden/internal/metrics"
	"github.com/eleven-am/warden/internal/rules"
)

const DenyAllRuleID = "deny-all"

type RuleResolver interface {
	ResolveRules(ctx context.Context, bundle domain.FlowRuleBundle, flowRules []domain.FlowRule, objects []domain.FlowObject, offset int) ([]domain.FlowRule, error)
}

type RuleApplier interface {
	Apply(ctx context.Context, ruleGroupArn string, flowRules []domain.FlowRule, persist bool) ([]domain.FlowRule, error)
}

type Options struct {
	// Timeout bounds a whole pass. Zero means the caller's context decides.
	Timeout time.Duration
	Metrics *metrics.Metrics
	Logger  log.FieldLogger
}

// Result describes a finished pass. Rules holds the final state of every rule
// that took part, in sid order.
type Result struct {
	RunID        string            `json:"runId"`
	RuleGroupArn string            `json:"ruleGroupArn"`
	Rules        []domain.FlowRule `json:"rules"`
	DenyAll      bool              `json:"denyAll"`
}

func (r *Result) Count(status domain.RuleStatus) int {
	n := 0
	for _, rule := range r.Rules {
		if rule.Status == status {
			n++
		}
	}
	return n
}

type Orchestrator struct {
	store    domain.RuleStore
	resolver RuleResolver
	applier  RuleApplier
	notifier domain.Notifier
	timeout  time.Duration
	metrics  *metrics.Metrics
	logger   log.FieldLogger
}

func NewOrchestrator(store domain.RuleStore, resolver RuleResolver, applier RuleApplier, notifier domain.Notifier, opts Options) *Orchestrator {
	return &Orchestrator{
		store:    store,
		resolver: resolver,
		applier:  applier,
		notifier: notifier,
		timeout:  opts.Timeout,
		metrics:  opts.Metrics,
		logger:   logging.OrDefault(opts.Logger, "evaluation"),
	}
}

// Evaluate loads the named bundles, resolves their non-failed rules into one
// globally numbered list and applies it to the shared rule group exactly
// once. Input errors are returned as *domain.ValidationError before any
// inventory or firewall call.
func (o *Orchestrator) Evaluate(ctx context.Context, bundleIDs []string) (*Result, error) {
	start := time.Now()
	runID := uuid.NewString()
	logger := o.logger.WithField("run_id", runID)

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	result, err := o.evaluate(ctx, runID, bundleIDs, logger)
	o.metrics.ObserveEvaluation(outcome(err), time.Since(start))
	if err != nil {
		o.report(ctx, bundleIDs, err, logger)
		return nil, err
	}

	logger.WithFields(log.Fields{
		"rule_group_arn": result.RuleGroupArn,
		"active":         result.Count(domain.RuleStatusActive),
		"failed":         result.Count(domain.RuleStatusFailed),
		"pending":        result.Count(domain.RuleStatusPending),
		"deny_all":       result.DenyAll,
		"elapsed":        time.Since(start).String(),
	}).Info("evaluation finished")
	return result, nil
}

func (o *Orchestrator) evaluate(ctx context.Context, runID string, bundleIDs []string, logger log.FieldLogger) (*Result, error) {
	ids := dedupe(bundleIDs)
	if len(ids) == 0 {
		return nil, domain.NewValidationError("at least one rule bundle id is required")
	}

	bundles, err := o.loadBundles(ctx, ids)
	if err != nil {
		return nil, err
	}
	ruleGroupArn := bundles[0].RuleGroupArn
	logger = logger.WithField("rule_group_arn", ruleGroupArn)
	logger.WithField("bundles", ids).Info("evaluation started")

	var accumulated []domain.FlowRule
	for _, bundle := range bundles {
		resolved, err := o.resolveBundle(ctx, bundle, len(accumulated))
		if err != nil {
			return nil, err
		}
		logger.WithFields(log.Fields{
			"bundle_id": bundle.ID,
			"rules":     len(resolved),
		}).Debug("bundle resolved")
		accumulated = append(accumulated, resolved...)
	}

	result := &Result{RunID: runID, RuleGroupArn: ruleGroupArn}
	if len(accumulated) == 0 {
		logger.Warn("no rules to apply, submitting deny-all rule")
		applied, err := o.applier.Apply(ctx, ruleGroupArn, []domain.FlowRule{DenyAllRule()}, false)
		if err != nil {
			return nil, err
		}
		result.Rules = applied
		result.DenyAll = true
		return result, nil
	}

	applied, err := o.applier.Apply(ctx, ruleGroupArn, accumulated, true)
	if err != nil {
		return nil, err
	}
	result.Rules = applied
	return result, nil
}

func (o *Orchestrator) loadBundles(ctx context.Context, ids []string) ([]domain.FlowRuleBundle, error) {
	loaded, err := o.store.GetRuleBundles(ctx, ids)
	if err != nil {
		return nil, storeError("load rule bundles", err)
	}

	byID := make(map[string]domain.FlowRuleBundle, len(loaded))
	for _, bundle := range loaded {
		byID[bundle.ID] = bundle
	}

	var missing []string
	bundles := make([]domain.FlowRuleBundle, 0, len(ids))
	for _, id := range ids {
		bundle, ok := byID[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		bundles = append(bundles, bundle)
	}
	if len(missing) > 0 {
		return nil, domain.NewValidationError("rule bundles not found: %s", strings.Join(missing, ", "))
	}

	ruleGroupArn := bundles[0].RuleGroupArn
	for _, bundle := range bundles[1:] {
		if bundle.RuleGroupArn != ruleGroupArn {
			return nil, domain.NewValidationError("rule bundles %s and %s target different rule groups (%s, %s)",
				bundles[0].ID, bundle.ID, ruleGroupArn, bundle.RuleGroupArn)
		}
	}
	return bundles, nil
}

func (o *Orchestrator) resolveBundle(ctx context.Context, bundle domain.FlowRuleBundle, offset int) ([]domain.FlowRule, error) {
	flowRules, err := o.store.ListActiveRules(ctx, bundle.ID)
	if err != nil {
		return nil, storeError(fmt.Sprintf("list rules of bundle %s", bundle.ID), err)
	}
	if len(flowRules) == 0 {
		return nil, nil
	}

	refs := make([]string, 0, len(flowRules)*2)
	for _, rule := range flowRules {
		refs = append(refs, rule.Source, rule.Destination)
	}
	objects, err := o.store.GetObjects(ctx, dedupe(refs))
	if err != nil {
		return nil, storeError(fmt.Sprintf("load objects of bundle %s", bundle.ID), err)
	}

	return o.resolver.ResolveRules(ctx, bundle, flowRules, objects, offset)
}

func (o *Orchestrator) report(ctx context.Context, bundleIDs []string, err error, logger log.FieldLogger) {
	entry := logger.WithError(err).WithField("bundles", bundleIDs)
	if !domain.IsUnderlyingServiceError(err) {
		entry.Warn("evaluation rejected")
		return
	}
	entry.Error("evaluation failed")
	if o.notifier == nil {
		return
	}
	subject := "Rule evaluation failed"
	message := fmt.Sprintf("Evaluation of rule bundles %s failed and will be retried: %v", strings.Join(bundleIDs, ", "), err)
	if nerr := o.notifier.Notify(context.WithoutCancel(ctx), subject, message); nerr != nil {
		logger.WithError(nerr).Warn("failed to send evaluation failure notification")
	}
}

// DenyAllRule is submitted in place of an empty rule group. It is never
// persisted.
func DenyAllRule() domain.FlowRule {
	rule := domain.FlowRule{
		ID:              DenyAllRuleID,
		Protocol:        "ip",
		Action:          domain.ActionDrop,
		SourcePort:      domain.AnyPort(),
		DestinationPort: domain.AnyPort(),
		Status:          domain.RuleStatusPending,
	}
	rule.SuricataString = rules.Compile(rule, nil, nil, 1)
	return rule
}

// storeError leaves typed domain errors alone and marks anything else as a
// store outage.
func storeError(op string, err error) error {
	if domain.StatusCode(err) != http.StatusInternalServerError {
		return err
	}
	return &domain.UnderlyingServiceError{Service: "store", Err: fmt.Errorf("%s: %w", op, err)}
}

func outcome(err error) string {
	var conflict *domain.ConflictError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &conflict):
		return "conflict"
	case domain.IsUnderlyingServiceError(err):
		return "service_error"
	case domain.StatusCode(err) < http.StatusInternalServerError:
		return "invalid"
	}
	return "error"
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
