package resolver

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws/arn"

	"github.com/eleven-am/warden/internal/domain"
)

// Strategy expands one kind of object into addresses.
type Strategy interface {
	Name() string
	CanResolve(obj domain.FlowObject) bool
	Resolve(ctx context.Context, obj domain.FlowObject, bundle domain.FlowRuleBundle) domain.ResolvedFlowObject
}

type resourceRef struct {
	arn          arn.ARN
	resourceType string
	resourceID   string
}

// parseResource splits an ARN resource of the form "type/id" or "type:id".
func parseResource(obj domain.FlowObject, service string) (resourceRef, bool) {
	if obj.Type != domain.ObjectTypeArn || !arn.IsARN(obj.Value) {
		return resourceRef{}, false
	}
	parsed, err := arn.Parse(obj.Value)
	if err != nil || parsed.Service != service {
		return resourceRef{}, false
	}
	idx := strings.IndexAny(parsed.Resource, "/:")
	if idx <= 0 || idx == len(parsed.Resource)-1 {
		return resourceRef{}, false
	}
	return resourceRef{
		arn:          parsed,
		resourceType: parsed.Resource[:idx],
		resourceID:   parsed.Resource[idx+1:],
	}, true
}

// scope narrows a query to the account and region named in the ARN.
func (r resourceRef) scope() (string, error) {
	var clauses []string
	if r.arn.AccountID != "" {
		q, err := quote(r.arn.AccountID)
		if err != nil {
			return "", err
		}
		clauses = append(clauses, " AND accountId = "+q)
	}
	if r.arn.Region != "" {
		q, err := quote(r.arn.Region)
		if err != nil {
			return "", err
		}
		clauses = append(clauses, " AND awsRegion = "+q)
	}
	return strings.Join(clauses, ""), nil
}
