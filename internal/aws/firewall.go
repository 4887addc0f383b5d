package aws

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/networkfirewall"
	nfwtypes "github.com/aws/aws-sdk-go-v2/service/networkfirewall/types"
	"github.com/aws/smithy-go"

	"github.com/eleven-am/warden/internal/domain"
)

func (c *Client) UpdateToken(ctx context.Context, ruleGroupArn string) (string, error) {
	out, err := c.networkFirewallClient.DescribeRuleGroup(ctx, &networkfirewall.DescribeRuleGroupInput{
		RuleGroupArn: aws.String(ruleGroupArn),
		Type:         nfwtypes.RuleGroupTypeStateful,
	})
	if err != nil {
		return "", fmt.Errorf("describe rule group %s: %w", ruleGroupArn, err)
	}
	token := derefString(out.UpdateToken)
	if token == "" {
		return "", fmt.Errorf("rule group %s returned no update token", ruleGroupArn)
	}
	return token, nil
}

// ReplaceRules replaces the whole Suricata body of a stateful rule group.
// A rejected body surfaces as *domain.RuleGroupValidationError.
func (c *Client) ReplaceRules(ctx context.Context, ruleGroupArn, updateToken, rules string) error {
	_, err := c.networkFirewallClient.UpdateRuleGroup(ctx, &networkfirewall.UpdateRuleGroupInput{
		RuleGroupArn: aws.String(ruleGroupArn),
		UpdateToken:  aws.String(updateToken),
		Type:         nfwtypes.RuleGroupTypeStateful,
		Rules:        aws.String(rules),
	})
	if err == nil {
		return nil
	}
	if msg, ok := invalidRequestMessage(err); ok {
		return &domain.RuleGroupValidationError{RuleGroupArn: ruleGroupArn, Message: msg}
	}
	return fmt.Errorf("update rule group %s: %w", ruleGroupArn, err)
}

func invalidRequestMessage(err error) (string, bool) {
	var invalid *nfwtypes.InvalidRequestException
	if errors.As(err, &invalid) {
		return invalid.ErrorMessage(), true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "InvalidRequestException" {
		return apiErr.ErrorMessage(), true
	}
	return "", false
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
