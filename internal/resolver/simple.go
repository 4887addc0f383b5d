package resolver

import (
	"context"
	"net/netip"
	"strings"

	"github.com/eleven-am/warden/internal/domain"
)

// SimpleResolver passes literal IPv4/IPv6 addresses and CIDR blocks through.
type SimpleResolver struct{}

func NewSimpleResolver() *SimpleResolver {
	return &SimpleResolver{}
}

func (r *SimpleResolver) Name() string {
	return "simple"
}

func (r *SimpleResolver) CanResolve(obj domain.FlowObject) bool {
	if obj.Type != domain.ObjectTypeAddress && obj.Type != domain.ObjectTypeCidr {
		return false
	}
	return isAddressOrCIDR(obj.Value)
}

func (r *SimpleResolver) Resolve(ctx context.Context, obj domain.FlowObject, bundle domain.FlowRuleBundle) domain.ResolvedFlowObject {
	return resolved(obj, []string{strings.TrimSpace(obj.Value)})
}

func isAddressOrCIDR(value string) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return false
	}
	if strings.Contains(value, "/") {
		_, err := netip.ParsePrefix(value)
		return err == nil
	}
	_, err := netip.ParseAddr(value)
	return err == nil
}
