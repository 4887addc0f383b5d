package rules

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/eleven-am/warden/internal/domain"
	"github.com/eleven-am/warden/internal/logging"
	"github.com/eleven-am/warden/internal/metrics"
)

const persistConcurrency = 10

type UpdaterOptions struct {
	Metrics *metrics.Metrics
	Logger  log.FieldLogger
}

// Updater pushes compiled rules to a rule group as one replacement and maps
// the outcome back onto the status of each rule.
type Updater struct {
	firewalls domain.FirewallProvider
	store     domain.RuleStore
	notifier  domain.Notifier
	metrics   *metrics.Metrics
	logger    log.FieldLogger
}

func NewUpdater(firewalls domain.FirewallProvider, store domain.RuleStore, notifier domain.Notifier, opts UpdaterOptions) *Updater {
	return &Updater{
		firewalls: firewalls,
		store:     store,
		notifier:  notifier,
		metrics:   opts.Metrics,
		logger:    logging.OrDefault(opts.Logger, "updater"),
	}
}

// Apply submits every rule not already FAILED to ruleGroupArn. Firewall
// failures that cannot be tied to the submitted text return
// *domain.UnderlyingServiceError and leave every rule untouched. When persist
// is set the final statuses are written back with a version check.
func (u *Updater) Apply(ctx context.Context, ruleGroupArn string, flowRules []domain.FlowRule, persist bool) ([]domain.FlowRule, error) {
	rules := make([]domain.FlowRule, len(flowRules))
	copy(rules, flowRules)

	logger := u.logger.WithField("rule_group_arn", ruleGroupArn)

	var submitted []int
	for i, rule := range rules {
		if rule.Status != domain.RuleStatusFailed {
			submitted = append(submitted, i)
		}
	}

	if len(submitted) == 0 {
		logger.WithField("rules", len(rules)).Warn("no rule left to submit, skipping rule group update")
	} else if err := u.submit(ctx, ruleGroupArn, rules, submitted, logger); err != nil {
		return nil, err
	}

	if !persist {
		return rules, nil
	}

	u.notifyFailures(ctx, ruleGroupArn, rules)
	return u.persist(ctx, rules)
}

func (u *Updater) submit(ctx context.Context, ruleGroupArn string, rules []domain.FlowRule, submitted []int, logger log.FieldLogger) error {
	firewall, err := u.firewalls.FirewallFor(ruleGroupArn)
	if err != nil {
		u.metrics.FirewallUpdate("error")
		return &domain.UnderlyingServiceError{Service: "firewall", Err: err}
	}

	token, err := firewall.UpdateToken(ctx, ruleGroupArn)
	if err != nil {
		u.metrics.FirewallUpdate("error")
		return &domain.UnderlyingServiceError{Service: "firewall", Err: err}
	}

	lines := make([]string, 0, len(submitted))
	submittedRules := make([]domain.FlowRule, 0, len(submitted))
	for _, i := range submitted {
		lines = append(lines, rules[i].SuricataString)
		submittedRules = append(submittedRules, rules[i])
	}

	err = firewall.ReplaceRules(ctx, ruleGroupArn, token, strings.Join(lines, "\n"))
	if err == nil {
		u.metrics.FirewallUpdate("accepted")
		for _, i := range submitted {
			rules[i].MarkActive()
		}
		logger.WithField("rules", len(submitted)).Info("rule group updated")
		return nil
	}

	var rejected *domain.RuleGroupValidationError
	if !errors.As(err, &rejected) {
		u.metrics.FirewallUpdate("error")
		return &domain.UnderlyingServiceError{Service: "firewall", Err: err}
	}

	u.metrics.FirewallUpdate("rejected")
	if ruleID, ok := AttributeError(rejected.Message, submittedRules); ok {
		logger.WithFields(log.Fields{
			"rule_id": ruleID,
			"reason":  rejected.Message,
		}).Warn("rule group rejected rule")
		for _, i := range submitted {
			if rules[i].ID == ruleID {
				rules[i].MarkFailed(rejected.Message)
			}
		}
		return nil
	}

	logger.WithField("reason", rejected.Message).Warn("rule group rejected update without naming a rule, failing every submitted rule")
	reason := fmt.Sprintf("unresolvable error: %s", rejected.Message)
	for _, i := range submitted {
		rules[i].MarkFailed(reason)
	}
	return nil
}

func (u *Updater) notifyFailures(ctx context.Context, ruleGroupArn string, rules []domain.FlowRule) {
	if u.notifier == nil {
		return
	}
	for _, rule := range rules {
		if rule.Status != domain.RuleStatusFailed {
			continue
		}
		subject := fmt.Sprintf("Rule %s failed", rule.ID)
		message := fmt.Sprintf("Rule %s in bundle %s could not be applied to %s: %s",
			rule.ID, rule.RuleBundleID, ruleGroupArn, strings.Join(rule.FailureReasons, "; "))
		if err := u.notifier.Notify(ctx, subject, message); err != nil {
			u.logger.WithError(err).WithField("rule_id", rule.ID).Warn("failed to send failure notification")
		}
	}
}

func (u *Updater) persist(ctx context.Context, rules []domain.FlowRule) ([]domain.FlowRule, error) {
	errs := make([]error, len(rules))
	g := new(errgroup.Group)
	g.SetLimit(persistConcurrency)
	for i := range rules {
		g.Go(func() error {
			updated, err := u.store.UpdateRule(ctx, rules[i])
			if err != nil {
				errs[i] = fmt.Errorf("persist rule %s: %w", rules[i].ID, err)
				return nil
			}
			u.metrics.RuleStatus(string(updated.Status))
			rules[i] = updated
			return nil
		})
	}
	_ = g.Wait()
	if err := errors.Join(errs...); err != nil {
		return rules, err
	}
	return rules, nil
}
