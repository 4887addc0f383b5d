package domain

import (
	"fmt"
	"time"
)

type RuleStatus string

const (
	RuleStatusPending RuleStatus = "PENDING"
	RuleStatusActive  RuleStatus = "ACTIVE"
	RuleStatusFailed  RuleStatus = "FAILED"
)

type RuleAction string

const (
	ActionPass   RuleAction = "pass"
	ActionDrop   RuleAction = "drop"
	ActionReject RuleAction = "reject"
	ActionAlert  RuleAction = "alert"
)

type PortType string

const (
	PortTypeAny    PortType = "Any"
	PortTypeSingle PortType = "SinglePort"
	PortTypeRange  PortType = "PortRange"
)

type Port struct {
	Type  PortType `json:"type" yaml:"type" dynamodbav:"type"`
	Value int      `json:"value,omitempty" yaml:"value,omitempty" dynamodbav:"value,omitempty"`
	From  int      `json:"from,omitempty" yaml:"from,omitempty" dynamodbav:"from,omitempty"`
	To    int      `json:"to,omitempty" yaml:"to,omitempty" dynamodbav:"to,omitempty"`
}

func AnyPort() Port {
	return Port{Type: PortTypeAny}
}

func SinglePort(value int) Port {
	return Port{Type: PortTypeSingle, Value: value}
}

func PortRange(from, to int) Port {
	return Port{Type: PortTypeRange, From: from, To: to}
}

func (p Port) String() string {
	switch p.Type {
	case PortTypeSingle:
		return fmt.Sprintf("%d", p.Value)
	case PortTypeRange:
		return fmt.Sprintf("%d:%d", p.From, p.To)
	default:
		return "any"
	}
}

type RuleOption struct {
	Key   string `json:"key" yaml:"key" dynamodbav:"key"`
	Value string `json:"value,omitempty" yaml:"value,omitempty" dynamodbav:"value,omitempty"`
}

// FlowRuleBundle groups rules that are compiled into one Network Firewall
// stateful rule group.
type FlowRuleBundle struct {
	ID             string    `json:"id" yaml:"id" dynamodbav:"id"`
	Description    string    `json:"description,omitempty" yaml:"description,omitempty" dynamodbav:"description,omitempty"`
	RuleGroupArn   string    `json:"ruleGroupArn" yaml:"ruleGroupArn" dynamodbav:"ruleGroupArn"`
	AggregatorName string    `json:"aggregatorName" yaml:"aggregatorName" dynamodbav:"aggregatorName"`
	OwnerGroup     []string  `json:"ownerGroup,omitempty" yaml:"ownerGroup,omitempty" dynamodbav:"ownerGroup,omitempty"`
	CreatedBy      string    `json:"createdBy,omitempty" yaml:"createdBy,omitempty" dynamodbav:"createdBy,omitempty"`
	LastUpdated    time.Time `json:"lastUpdated" yaml:"lastUpdated,omitempty" dynamodbav:"lastUpdated"`
}

type FlowRule struct {
	ID              string       `json:"id" yaml:"id" dynamodbav:"id"`
	RuleBundleID    string       `json:"ruleBundleId" yaml:"ruleBundleId" dynamodbav:"ruleBundleId"`
	Version         int64        `json:"version" yaml:"version,omitempty" dynamodbav:"version"`
	Protocol        string       `json:"protocol" yaml:"protocol" dynamodbav:"protocol"`
	Action          RuleAction   `json:"action" yaml:"action" dynamodbav:"action"`
	Source          string       `json:"source" yaml:"source" dynamodbav:"source"`
	SourcePort      Port         `json:"sourcePort" yaml:"sourcePort" dynamodbav:"sourcePort"`
	Destination     string       `json:"destination" yaml:"destination" dynamodbav:"destination"`
	DestinationPort Port         `json:"destinationPort" yaml:"destinationPort" dynamodbav:"destinationPort"`
	Options         []RuleOption `json:"optionFields,omitempty" yaml:"optionFields,omitempty" dynamodbav:"optionFields,omitempty"`
	Status          RuleStatus   `json:"status" yaml:"status,omitempty" dynamodbav:"status"`
	SuricataString  string       `json:"suricataString,omitempty" yaml:"-" dynamodbav:"suricataString,omitempty"`
	FailureReasons  []string     `json:"failureReasons,omitempty" yaml:"-" dynamodbav:"failureReasons,omitempty"`
	LastUpdated     time.Time    `json:"lastUpdated" yaml:"lastUpdated,omitempty" dynamodbav:"lastUpdated"`
}

func (r *FlowRule) MarkFailed(reasons ...string) {
	r.Status = RuleStatusFailed
	r.FailureReasons = reasons
}

func (r *FlowRule) MarkActive() {
	r.Status = RuleStatusActive
	r.FailureReasons = nil
}
