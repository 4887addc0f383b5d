package resolver

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/eleven-am/warden/internal/domain"
)

// LambdaResolver resolves a tag conjunction over Lambda functions to the
// private addresses of the network interfaces the functions run on.
type LambdaResolver struct {
	inventory *cachedInventory
	logger    log.FieldLogger
}

func NewLambdaResolver(inventory domain.Inventory, opts Options) *LambdaResolver {
	opts = opts.withDefaults()
	return &LambdaResolver{
		inventory: newCachedInventory(inventory, opts),
		logger:    opts.Logger,
	}
}

func (r *LambdaResolver) Name() string {
	return "lambda"
}

func (r *LambdaResolver) CanResolve(obj domain.FlowObject) bool {
	return obj.Type == domain.ObjectTypeLambda
}

func (r *LambdaResolver) Resolve(ctx context.Context, obj domain.FlowObject, bundle domain.FlowRuleBundle) domain.ResolvedFlowObject {
	conditions, err := tagConditions(obj.Tags)
	if err != nil {
		return domain.NewFailedResolution(obj, "invalid tags for object "+obj.ID+": "+err.Error())
	}

	functions, err := r.inventory.records(ctx, bundle.AggregatorName,
		"SELECT configuration.vpcConfig WHERE resourceType = 'AWS::Lambda::Function' AND "+conditions)
	if err != nil {
		return inventoryFailure(obj, err)
	}
	if len(functions) == 0 {
		r.logger.WithFields(log.Fields{
			"object_id":  obj.ID,
			"aggregator": bundle.AggregatorName,
		}).Warn("no lambda function matches tags")
		return resolved(obj, nil)
	}

	var subnetIDs, groupIDs []string
	for _, fn := range functions {
		subnetIDs = append(subnetIDs, fn.Configuration.VpcConfig.SubnetIDs...)
		groupIDs = append(groupIDs, fn.Configuration.VpcConfig.SecurityGroupIDs...)
	}
	subnetIDs = dedupe(subnetIDs)
	groupIDs = dedupe(groupIDs)
	if len(subnetIDs) == 0 || len(groupIDs) == 0 {
		r.logger.WithField("object_id", obj.ID).Warn("matching lambda functions are not vpc attached")
		return resolved(obj, nil)
	}

	subnets, err := quoteList(subnetIDs)
	if err != nil {
		return domain.NewFailedResolution(obj, err.Error())
	}
	interfaces, err := r.inventory.records(ctx, bundle.AggregatorName,
		"SELECT configuration.privateIpAddress, relationships WHERE resourceType = 'AWS::EC2::NetworkInterface' AND relationships.resourceId IN "+subnets)
	if err != nil {
		return inventoryFailure(obj, err)
	}

	subnetSet := toSet(subnetIDs)
	groupSet := toSet(groupIDs)
	var addresses []string
	for _, eni := range interfaces {
		inSubnet, inGroup := false, false
		for _, rel := range eni.Relationships {
			if _, ok := subnetSet[rel.ResourceID]; ok {
				inSubnet = true
			}
			if _, ok := groupSet[rel.ResourceID]; ok {
				inGroup = true
			}
		}
		if inSubnet && inGroup {
			addresses = append(addresses, eni.Configuration.PrivateIPAddress)
		}
	}
	return resolved(obj, addresses)
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
