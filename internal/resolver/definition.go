// Package resolver expands flow objects into concrete addresses using a fixed,
// ordered set of strategies backed by the cloud inventory.
package resolver

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/eleven-am/warden/internal/domain"
	"github.com/eleven-am/warden/internal/logging"
	"github.com/eleven-am/warden/internal/metrics"
)

type Options struct {
	CacheTTL      time.Duration
	CacheCapacity int
	Metrics       *metrics.Metrics
	Logger        log.FieldLogger
}

func (o Options) withDefaults() Options {
	o.Logger = logging.OrDefault(o.Logger, "resolver")
	return o
}

// DefinitionResolver routes an object to the first strategy willing to
// handle it. Order matters: the EC2 strategy must see ARNs before the
// network strategy, and literal addresses are checked last.
type DefinitionResolver struct {
	strategies []Strategy
	logger     log.FieldLogger
}

func NewDefinitionResolver(inventory domain.Inventory, opts Options) *DefinitionResolver {
	opts = opts.withDefaults()
	return &DefinitionResolver{
		strategies: []Strategy{
			NewEC2Resolver(inventory, opts),
			NewNetworkResolver(inventory, opts),
			NewAutoScalingResolver(inventory, opts),
			NewTaggedResolver(inventory, opts),
			NewLambdaResolver(inventory, opts),
			NewSimpleResolver(),
		},
		logger: opts.Logger,
	}
}

func (r *DefinitionResolver) Resolve(ctx context.Context, obj domain.FlowObject, bundle domain.FlowRuleBundle) domain.ResolvedFlowObject {
	for _, strategy := range r.strategies {
		if !strategy.CanResolve(obj) {
			continue
		}
		res := strategy.Resolve(ctx, obj, bundle)
		r.logger.WithFields(log.Fields{
			"object_id": obj.ID,
			"strategy":  strategy.Name(),
			"addresses": len(res.Addresses),
			"failed":    res.Failed(),
		}).Debug("resolved object")
		return res
	}
	return domain.NewFailedResolution(obj, fmt.Sprintf("unsupported object type %s for object %s", obj.Type, obj.ID))
}

func (r *DefinitionResolver) StrategyNames() []string {
	names := make([]string, 0, len(r.strategies))
	for _, s := range r.strategies {
		names = append(names, s.Name())
	}
	return names
}
