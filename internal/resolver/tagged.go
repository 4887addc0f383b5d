package resolver

import (
	"context"

	"github.com/eleven-am/warden/internal/domain"
)

// TaggedResolver resolves a tag conjunction to the private addresses of
// matching instances and the CIDR blocks of matching subnets and VPCs.
type TaggedResolver struct {
	inventory *cachedInventory
}

func NewTaggedResolver(inventory domain.Inventory, opts Options) *TaggedResolver {
	return &TaggedResolver{inventory: newCachedInventory(inventory, opts.withDefaults())}
}

func (r *TaggedResolver) Name() string {
	return "tagged"
}

func (r *TaggedResolver) CanResolve(obj domain.FlowObject) bool {
	return obj.Type == domain.ObjectTypeTagged
}

func (r *TaggedResolver) Resolve(ctx context.Context, obj domain.FlowObject, bundle domain.FlowRuleBundle) domain.ResolvedFlowObject {
	conditions, err := tagConditions(obj.Tags)
	if err != nil {
		return domain.NewFailedResolution(obj, "invalid tags for object "+obj.ID+": "+err.Error())
	}
	expression := "SELECT configuration.privateIpAddress, configuration.cidrBlock " +
		"WHERE resourceType IN ('AWS::EC2::Instance', 'AWS::EC2::Subnet', 'AWS::EC2::VPC') AND " + conditions

	records, err := r.inventory.records(ctx, bundle.AggregatorName, expression)
	if err != nil {
		return inventoryFailure(obj, err)
	}
	addresses := make([]string, 0, len(records))
	for _, rec := range records {
		addresses = append(addresses, rec.Configuration.PrivateIPAddress, rec.Configuration.CidrBlock)
	}
	return resolved(obj, addresses)
}
