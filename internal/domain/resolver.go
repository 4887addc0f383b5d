package domain

import "context"

type ObjectResolver interface {
	Resolve(ctx context.Context, obj FlowObject, bundle FlowRuleBundle) ResolvedFlowObject
}
