// Package rules turns flow rules into Suricata rule text and reconciles the
// result with the firewall control plane.
package rules

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/eleven-am/warden/internal/domain"
	"github.com/eleven-am/warden/internal/logging"
)

const DefaultChunkSize = 50

// DefinitionResolver resolves the objects each rule references and compiles
// the rule. Sids are derived from the rule's position in the batch, never
// from completion order.
type DefinitionResolver struct {
	objects   domain.ObjectResolver
	chunkSize int
	logger    log.FieldLogger
}

func NewDefinitionResolver(objects domain.ObjectResolver, chunkSize int, logger log.FieldLogger) *DefinitionResolver {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &DefinitionResolver{
		objects:   objects,
		chunkSize: chunkSize,
		logger:    logging.OrDefault(logger, "rules"),
	}
}

// ResolveRules returns a copy of rules with statuses, failure reasons and
// compiled text filled in. Rule i receives sid offset+i+1. An inventory
// outage aborts the whole bundle with *domain.UnderlyingServiceError.
func (r *DefinitionResolver) ResolveRules(ctx context.Context, bundle domain.FlowRuleBundle, rules []domain.FlowRule, objects []domain.FlowObject, offset int) ([]domain.FlowRule, error) {
	byID := make(map[string]domain.FlowObject, len(objects))
	for _, obj := range objects {
		byID[obj.ID] = obj
	}

	resolved := make([]domain.FlowRule, 0, len(rules))
	for start := 0; start < len(rules); start += r.chunkSize {
		end := min(start+r.chunkSize, len(rules))
		chunk, err := r.resolveChunk(ctx, bundle, rules[start:end], byID, offset+start)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, chunk...)
	}
	return resolved, nil
}

func (r *DefinitionResolver) resolveChunk(ctx context.Context, bundle domain.FlowRuleBundle, chunk []domain.FlowRule, objects map[string]domain.FlowObject, offset int) ([]domain.FlowRule, error) {
	results := make([]domain.FlowRule, len(chunk))
	g, gCtx := errgroup.WithContext(ctx)
	for i, rule := range chunk {
		g.Go(func() error {
			out, err := r.resolveRule(gCtx, bundle, rule, objects, offset+i+1)
			if err != nil {
				return err
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (r *DefinitionResolver) resolveRule(ctx context.Context, bundle domain.FlowRuleBundle, rule domain.FlowRule, objects map[string]domain.FlowObject, sid int) (domain.FlowRule, error) {
	rule.SuricataString = ""
	source, okSource := objects[rule.Source]
	destination, okDestination := objects[rule.Destination]
	if !okSource || !okDestination {
		var missing []string
		if !okSource {
			missing = append(missing, rule.Source)
		}
		if !okDestination && rule.Destination != rule.Source {
			missing = append(missing, rule.Destination)
		}
		rule.MarkFailed(fmt.Sprintf("unable to resolve reference object %s", strings.Join(missing, ", ")))
		return rule, nil
	}

	var resolvedSource, resolvedDestination domain.ResolvedFlowObject
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		resolvedSource = r.objects.Resolve(gCtx, source, bundle)
		return nil
	})
	g.Go(func() error {
		resolvedDestination = r.objects.Resolve(gCtx, destination, bundle)
		return nil
	})
	_ = g.Wait()

	for _, res := range []domain.ResolvedFlowObject{resolvedSource, resolvedDestination} {
		if res.Failed() && domain.IsUnderlyingServiceError(res.Err) {
			return rule, fmt.Errorf("resolve rule %s in bundle %s: %w", rule.ID, bundle.ID, res.Err)
		}
	}

	var reasons []string
	for _, res := range []domain.ResolvedFlowObject{resolvedSource, resolvedDestination} {
		if len(res.Addresses) > 0 {
			continue
		}
		if res.Failed() {
			reasons = append(reasons, res.FailureReasons...)
		} else {
			reasons = append(reasons, fmt.Sprintf("cannot resolve object %s to address", res.ID))
		}
	}
	if len(reasons) > 0 {
		r.logger.WithFields(log.Fields{
			"rule_id":   rule.ID,
			"bundle_id": bundle.ID,
			"reasons":   reasons,
		}).Info("rule references unresolvable object")
		rule.MarkFailed(reasons...)
		return rule, nil
	}

	rule.FailureReasons = nil
	rule.SuricataString = Compile(rule, resolvedSource.Addresses, resolvedDestination.Addresses, sid)
	return rule, nil
}
