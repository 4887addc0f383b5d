package resolver

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/eleven-am/warden/internal/domain"
)

const (
	asgResourceType  = "autoScalingGroup"
	asgNameSeparator = "autoScalingGroupName/"
	asgMemberLimit   = 10
)

// AutoScalingResolver resolves an auto scaling group ARN to the private
// addresses of its current members. Members the inventory does not know
// about are dropped; membership churns faster than the inventory settles.
type AutoScalingResolver struct {
	inventory *cachedInventory
	logger    log.FieldLogger
}

func NewAutoScalingResolver(inventory domain.Inventory, opts Options) *AutoScalingResolver {
	opts = opts.withDefaults()
	return &AutoScalingResolver{
		inventory: newCachedInventory(inventory, opts),
		logger:    opts.Logger,
	}
}

func (r *AutoScalingResolver) Name() string {
	return "autoscaling"
}

func (r *AutoScalingResolver) CanResolve(obj domain.FlowObject) bool {
	_, ok := asgName(obj)
	return ok
}

func asgName(obj domain.FlowObject) (string, bool) {
	ref, ok := parseResource(obj, "autoscaling")
	if !ok || ref.resourceType != asgResourceType {
		return "", false
	}
	idx := strings.Index(ref.resourceID, asgNameSeparator)
	if idx < 0 {
		return "", false
	}
	name := ref.resourceID[idx+len(asgNameSeparator):]
	return name, name != ""
}

func (r *AutoScalingResolver) Resolve(ctx context.Context, obj domain.FlowObject, bundle domain.FlowRuleBundle) domain.ResolvedFlowObject {
	name, ok := asgName(obj)
	if !ok {
		return domain.NewFailedResolution(obj, fmt.Sprintf("object %s is not an auto scaling group arn", obj.ID))
	}
	ref, _ := parseResource(obj, "autoscaling")
	scope, err := ref.scope()
	if err != nil {
		return domain.NewFailedResolution(obj, err.Error())
	}
	quotedName, err := quote(name)
	if err != nil {
		return domain.NewFailedResolution(obj, err.Error())
	}

	groups, err := r.inventory.records(ctx, bundle.AggregatorName,
		"SELECT configuration.instances WHERE resourceType = 'AWS::AutoScaling::AutoScalingGroup' AND resourceName = "+quotedName+scope)
	if err != nil {
		return inventoryFailure(obj, err)
	}

	var instanceIDs []string
	for _, group := range groups {
		for _, inst := range group.Configuration.Instances {
			instanceIDs = append(instanceIDs, inst.InstanceID)
		}
	}
	instanceIDs = dedupe(instanceIDs)

	memberAddresses := make([][]string, len(instanceIDs))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(asgMemberLimit)
	for i, instanceID := range instanceIDs {
		g.Go(func() error {
			expression, err := instanceQuery(instanceID, scope)
			if err != nil {
				r.logger.WithField("instance_id", instanceID).WithError(err).Warn("dropping auto scaling member")
				return nil
			}
			records, err := r.inventory.records(gCtx, bundle.AggregatorName, expression)
			if err != nil {
				return err
			}
			for _, rec := range records {
				memberAddresses[i] = append(memberAddresses[i], rec.Configuration.PrivateIPAddress)
			}
			if len(memberAddresses[i]) == 0 {
				r.logger.WithFields(log.Fields{
					"object_id":   obj.ID,
					"instance_id": instanceID,
				}).Debug("auto scaling member not in inventory")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return inventoryFailure(obj, err)
	}

	var addresses []string
	for _, member := range memberAddresses {
		addresses = append(addresses, member...)
	}
	return resolved(obj, addresses)
}
