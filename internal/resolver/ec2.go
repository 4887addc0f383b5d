package resolver

import (
	"context"
	"fmt"

	"github.com/eleven-am/warden/internal/domain"
)

const (
	ec2ResourceInstance      = "instance"
	ec2ResourceSecurityGroup = "security-group"
)

// EC2Resolver resolves instance ARNs to the instance's private address and
// security group ARNs to the private addresses of every member instance.
type EC2Resolver struct {
	inventory *cachedInventory
}

func NewEC2Resolver(inventory domain.Inventory, opts Options) *EC2Resolver {
	return &EC2Resolver{inventory: newCachedInventory(inventory, opts.withDefaults())}
}

func (r *EC2Resolver) Name() string {
	return "ec2"
}

func (r *EC2Resolver) CanResolve(obj domain.FlowObject) bool {
	ref, ok := parseResource(obj, "ec2")
	if !ok {
		return false
	}
	return ref.resourceType == ec2ResourceInstance || ref.resourceType == ec2ResourceSecurityGroup
}

func (r *EC2Resolver) Resolve(ctx context.Context, obj domain.FlowObject, bundle domain.FlowRuleBundle) domain.ResolvedFlowObject {
	ref, ok := parseResource(obj, "ec2")
	if !ok {
		return domain.NewFailedResolution(obj, fmt.Sprintf("object %s is not an ec2 arn", obj.ID))
	}
	expression, err := ec2Query(ref)
	if err != nil {
		return domain.NewFailedResolution(obj, err.Error())
	}

	records, err := r.inventory.records(ctx, bundle.AggregatorName, expression)
	if err != nil {
		return inventoryFailure(obj, err)
	}
	addresses := make([]string, 0, len(records))
	for _, rec := range records {
		addresses = append(addresses, rec.Configuration.PrivateIPAddress)
	}
	return resolved(obj, addresses)
}

func ec2Query(ref resourceRef) (string, error) {
	id, err := quote(ref.resourceID)
	if err != nil {
		return "", err
	}
	scope, err := ref.scope()
	if err != nil {
		return "", err
	}
	match := "resourceId = " + id
	if ref.resourceType == ec2ResourceSecurityGroup {
		match = "relationships.resourceId = " + id
	}
	return "SELECT configuration.privateIpAddress WHERE resourceType = 'AWS::EC2::Instance' AND " + match + scope, nil
}

func instanceQuery(instanceID, scope string) (string, error) {
	id, err := quote(instanceID)
	if err != nil {
		return "", err
	}
	return "SELECT configuration.privateIpAddress WHERE resourceType = 'AWS::EC2::Instance' AND resourceId = " + id + scope, nil
}
