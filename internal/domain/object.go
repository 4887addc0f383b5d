package domain

import "time"

type ObjectType string

const (
	ObjectTypeAddress ObjectType = "Address"
	ObjectTypeCidr    ObjectType = "Cidr"
	ObjectTypeArn     ObjectType = "Arn"
	ObjectTypeTagged  ObjectType = "Tagged"
	ObjectTypeLambda  ObjectType = "Lambda"
)

func (t ObjectType) Valid() bool {
	switch t {
	case ObjectTypeAddress, ObjectTypeCidr, ObjectTypeArn, ObjectTypeTagged, ObjectTypeLambda:
		return true
	}
	return false
}

type Tag struct {
	Key   string `json:"key" yaml:"key" dynamodbav:"key"`
	Value string `json:"value" yaml:"value" dynamodbav:"value"`
}

// FlowObject is a named reference to something addressable. Value carries the
// literal for Address, Cidr and Arn objects; Tags carries the conjunction of
// tag pairs for Tagged and Lambda objects.
type FlowObject struct {
	ID          string     `json:"id" yaml:"id" dynamodbav:"id"`
	Type        ObjectType `json:"type" yaml:"type" dynamodbav:"type"`
	Value       string     `json:"value,omitempty" yaml:"value,omitempty" dynamodbav:"value,omitempty"`
	Tags        []Tag      `json:"tags,omitempty" yaml:"tags,omitempty" dynamodbav:"tags,omitempty"`
	CreatedBy   string     `json:"createdBy,omitempty" yaml:"createdBy,omitempty" dynamodbav:"createdBy,omitempty"`
	LastUpdated time.Time  `json:"lastUpdated" yaml:"lastUpdated,omitempty" dynamodbav:"lastUpdated"`
}

// ResolvedFlowObject is recomputed on every evaluation pass and never stored.
// Err is set only when the inventory itself failed; an object that simply
// matched nothing has no Err.
type ResolvedFlowObject struct {
	FlowObject
	Addresses      []string
	FailureReasons []string
	Err            error
}

func (r ResolvedFlowObject) Failed() bool {
	return len(r.FailureReasons) > 0
}

func NewFailedResolution(obj FlowObject, reason string) ResolvedFlowObject {
	return ResolvedFlowObject{
		FlowObject:     obj,
		Addresses:      []string{},
		FailureReasons: []string{reason},
	}
}
