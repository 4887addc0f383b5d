package resolver

import (
	"context"
	"fmt"

	"github.com/eleven-am/warden/internal/domain"
)

var networkResourceTypes = map[string]string{
	"vpc":    "AWS::EC2::VPC",
	"subnet": "AWS::EC2::Subnet",
}

// NetworkResolver resolves VPC and subnet ARNs to their CIDR block.
type NetworkResolver struct {
	inventory *cachedInventory
}

func NewNetworkResolver(inventory domain.Inventory, opts Options) *NetworkResolver {
	return &NetworkResolver{inventory: newCachedInventory(inventory, opts.withDefaults())}
}

func (r *NetworkResolver) Name() string {
	return "network"
}

func (r *NetworkResolver) CanResolve(obj domain.FlowObject) bool {
	ref, ok := parseResource(obj, "ec2")
	if !ok {
		return false
	}
	_, known := networkResourceTypes[ref.resourceType]
	return known
}

func (r *NetworkResolver) Resolve(ctx context.Context, obj domain.FlowObject, bundle domain.FlowRuleBundle) domain.ResolvedFlowObject {
	ref, ok := parseResource(obj, "ec2")
	configType, known := networkResourceTypes[ref.resourceType]
	if !ok || !known {
		return domain.NewFailedResolution(obj, fmt.Sprintf("object %s is not a vpc or subnet arn", obj.ID))
	}
	id, err := quote(ref.resourceID)
	if err != nil {
		return domain.NewFailedResolution(obj, err.Error())
	}
	scope, err := ref.scope()
	if err != nil {
		return domain.NewFailedResolution(obj, err.Error())
	}
	expression := "SELECT configuration.cidrBlock WHERE resourceType = '" + configType + "' AND resourceId = " + id + scope

	records, err := r.inventory.records(ctx, bundle.AggregatorName, expression)
	if err != nil {
		return inventoryFailure(obj, err)
	}
	addresses := make([]string, 0, len(records))
	for _, rec := range records {
		addresses = append(addresses, rec.Configuration.CidrBlock)
	}
	return resolved(obj, addresses)
}
