package warden

import (
	"github.com/eleven-am/warden/internal/domain"
	"github.com/eleven-am/warden/internal/evaluation"
	"github.com/eleven-am/warden/internal/store"
)

type FlowObject = domain.FlowObject

type FlowRule = domain.FlowRule

type FlowRuleBundle = domain.FlowRuleBundle

type Tag = domain.Tag

type Port = domain.Port

type RuleStatus = domain.RuleStatus

const (
	RuleStatusPending = domain.RuleStatusPending
	RuleStatusActive  = domain.RuleStatusActive
	RuleStatusFailed  = domain.RuleStatusFailed
)

type RuleAction = domain.RuleAction

const (
	ActionPass   = domain.ActionPass
	ActionDrop   = domain.ActionDrop
	ActionReject = domain.ActionReject
	ActionAlert  = domain.ActionAlert
)

type Result = evaluation.Result

type Seed = store.Seed

// Address creates an object for a literal IPv4/IPv6 address or CIDR block.
func Address(id, value string) FlowObject {
	return FlowObject{ID: id, Type: domain.ObjectTypeAddress, Value: value}
}

// Cidr creates an object for a literal CIDR block.
func Cidr(id, block string) FlowObject {
	return FlowObject{ID: id, Type: domain.ObjectTypeCidr, Value: block}
}

// Arn creates an object for an EC2 instance, security group, VPC, subnet or
// auto-scaling group, identified by its ARN.
func Arn(id, resourceArn string) FlowObject {
	return FlowObject{ID: id, Type: domain.ObjectTypeArn, Value: resourceArn}
}

// Tagged creates an object matching instances, subnets and VPCs carrying all
// of the given tags.
func Tagged(id string, tags ...Tag) FlowObject {
	return FlowObject{ID: id, Type: domain.ObjectTypeTagged, Tags: tags}
}

// Lambda creates an object matching the network interfaces of VPC attached
// functions carrying all of the given tags.
func Lambda(id string, tags ...Tag) FlowObject {
	return FlowObject{ID: id, Type: domain.ObjectTypeLambda, Tags: tags}
}

func AnyPort() Port {
	return domain.AnyPort()
}

func SinglePort(value int) Port {
	return domain.SinglePort(value)
}

func PortRange(from, to int) Port {
	return domain.PortRange(from, to)
}
