package aws

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/aws-sdk-go-v2/service/configservice"
	"github.com/aws/aws-sdk-go-v2/service/networkfirewall"
	nfwtypes "github.com/aws/aws-sdk-go-v2/service/networkfirewall/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	ststypes "github.com/aws/aws-sdk-go-v2/service/sts/types"
	"github.com/aws/smithy-go"

	"github.com/eleven-am/warden/internal/domain"
)

const testRuleGroupArn = "arn:aws:network-firewall:us-east-1:111122223333:stateful-rulegroup/demo"

type mockConfigClient struct {
	pages  map[string]*configservice.SelectAggregateResourceConfigOutput
	inputs []*configservice.SelectAggregateResourceConfigInput
	err    error
}

func (m *mockConfigClient) SelectAggregateResourceConfig(ctx context.Context, params *configservice.SelectAggregateResourceConfigInput, optFns ...func(*configservice.Options)) (*configservice.SelectAggregateResourceConfigOutput, error) {
	m.inputs = append(m.inputs, params)
	if m.err != nil {
		return nil, m.err
	}
	return m.pages[aws.ToString(params.NextToken)], nil
}

type mockFirewallClient struct {
	token       string
	describeErr error
	updateErr   error
	updates     []*networkfirewall.UpdateRuleGroupInput
}

func (m *mockFirewallClient) DescribeRuleGroup(ctx context.Context, params *networkfirewall.DescribeRuleGroupInput, optFns ...func(*networkfirewall.Options)) (*networkfirewall.DescribeRuleGroupOutput, error) {
	if m.describeErr != nil {
		return nil, m.describeErr
	}
	return &networkfirewall.DescribeRuleGroupOutput{UpdateToken: aws.String(m.token)}, nil
}

func (m *mockFirewallClient) UpdateRuleGroup(ctx context.Context, params *networkfirewall.UpdateRuleGroupInput, optFns ...func(*networkfirewall.Options)) (*networkfirewall.UpdateRuleGroupOutput, error) {
	m.updates = append(m.updates, params)
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	return &networkfirewall.UpdateRuleGroupOutput{}, nil
}

type mockSNSClient struct {
	published []*sns.PublishInput
	err       error
}

func (m *mockSNSClient) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	m.published = append(m.published, params)
	if m.err != nil {
		return nil, m.err
	}
	return &sns.PublishOutput{}, nil
}

type mockSTSClient struct {
	calls int
}

func (m *mockSTSClient) AssumeRole(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error) {
	m.calls++
	return &sts.AssumeRoleOutput{
		Credentials: &ststypes.Credentials{
			AccessKeyId:     aws.String("AKIA" + aws.ToString(params.RoleSessionName)),
			SecretAccessKey: aws.String("secret"),
			SessionToken:    aws.String("token"),
			Expiration:      aws.Time(time.Now().Add(time.Hour)),
		},
	}, nil
}

func (m *mockSTSClient) GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	m.calls++
	return &sts.GetCallerIdentityOutput{Account: aws.String("111122223333")}, nil
}

func TestNewRetryer(t *testing.T) {
	retryer := newRetryer()

	if _, ok := retryer.(*retry.Standard); !ok {
		t.Error("expected retryer to be *retry.Standard")
	}
	if retryer.MaxAttempts() != 5 {
		t.Errorf("expected MaxAttempts = 5, got %d", retryer.MaxAttempts())
	}
}

func TestNewClient(t *testing.T) {
	client := NewClient(aws.Config{Region: "us-east-1"}, "arn:aws:sns:us-east-1:111122223333:alerts")

	if client.Region() != "us-east-1" {
		t.Errorf("expected region = us-east-1, got %s", client.Region())
	}
	if client.configClient == nil {
		t.Error("expected non-nil configClient")
	}
	if client.networkFirewallClient == nil {
		t.Error("expected non-nil networkFirewallClient")
	}
	if client.snsClient == nil {
		t.Error("expected non-nil snsClient")
	}
}

func TestSelectResources_FollowsNextToken(t *testing.T) {
	cfg := &mockConfigClient{
		pages: map[string]*configservice.SelectAggregateResourceConfigOutput{
			"":      {Results: []string{`{"a":1}`}, NextToken: aws.String("page2")},
			"page2": {Results: []string{`{"b":2}`}},
		},
	}
	client := &Client{configClient: cfg}

	results, err := client.SelectResources(context.Background(), "org-aggregator", "SELECT resourceId")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if len(cfg.inputs) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(cfg.inputs))
	}
	if aws.ToString(cfg.inputs[0].ConfigurationAggregatorName) != "org-aggregator" {
		t.Errorf("unexpected aggregator %q", aws.ToString(cfg.inputs[0].ConfigurationAggregatorName))
	}
}

func TestSelectResources_RejectsOversizedResult(t *testing.T) {
	pages := make(map[string]*configservice.SelectAggregateResourceConfigOutput)
	for i := 0; i < 6; i++ {
		rows := make([]string, 1000)
		for j := range rows {
			rows[j] = fmt.Sprintf(`{"configuration":{"privateIpAddress":"10.%d.%d.%d"}}`, i, j/256, j%256)
		}
		page := &configservice.SelectAggregateResourceConfigOutput{Results: rows}
		if i < 5 {
			page.NextToken = aws.String(fmt.Sprintf("page%d", i+1))
		}
		token := ""
		if i > 0 {
			token = fmt.Sprintf("page%d", i)
		}
		pages[token] = page
	}
	client := &Client{configClient: &mockConfigClient{pages: pages}, maxResults: selectMaxResults}

	results, err := client.SelectResources(context.Background(), "org-aggregator", "SELECT configuration.privateIpAddress")
	if !errors.Is(err, domain.ErrResultLimit) {
		t.Fatalf("expected ErrResultLimit, got %v", err)
	}
	if results != nil {
		t.Errorf("expected no partial result, got %d rows", len(results))
	}
}

func TestSelectResources_Error(t *testing.T) {
	client := &Client{configClient: &mockConfigClient{err: errors.New("throttled")}}

	_, err := client.SelectResources(context.Background(), "org-aggregator", "SELECT resourceId")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "org-aggregator") {
		t.Errorf("expected aggregator name in error, got %v", err)
	}
}

func TestUpdateToken(t *testing.T) {
	client := &Client{networkFirewallClient: &mockFirewallClient{token: "tok-1"}}

	token, err := client.UpdateToken(context.Background(), testRuleGroupArn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "tok-1" {
		t.Errorf("expected tok-1, got %s", token)
	}
}

func TestUpdateToken_Empty(t *testing.T) {
	client := &Client{networkFirewallClient: &mockFirewallClient{}}

	if _, err := client.UpdateToken(context.Background(), testRuleGroupArn); err == nil {
		t.Error("expected error for empty update token")
	}
}

func TestReplaceRules_SendsWholeBody(t *testing.T) {
	fw := &mockFirewallClient{}
	client := &Client{networkFirewallClient: fw}

	body := "pass tcp 10.0.0.1 any ->  10.0.0.2 443 (msg: \"r1\"; sid: 1;)"
	if err := client.ReplaceRules(context.Background(), testRuleGroupArn, "tok-1", body); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(fw.updates) != 1 {
		t.Fatalf("expected 1 update, got %d", len(fw.updates))
	}
	update := fw.updates[0]
	if aws.ToString(update.Rules) != body {
		t.Errorf("unexpected rules body %q", aws.ToString(update.Rules))
	}
	if aws.ToString(update.UpdateToken) != "tok-1" {
		t.Errorf("unexpected update token %q", aws.ToString(update.UpdateToken))
	}
	if update.Type != nfwtypes.RuleGroupTypeStateful {
		t.Errorf("expected stateful rule group, got %s", update.Type)
	}
}

func TestReplaceRules_InvalidRequest(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{
			name: "typed exception",
			err:  &nfwtypes.InvalidRequestException{Message: aws.String(`rule: pass tcp (msg: "r1"; sid: 1;)`)},
		},
		{
			name: "generic api error",
			err:  &smithy.GenericAPIError{Code: "InvalidRequestException", Message: `rule: pass tcp (msg: "r1"; sid: 1;)`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &Client{networkFirewallClient: &mockFirewallClient{updateErr: tt.err}}

			err := client.ReplaceRules(context.Background(), testRuleGroupArn, "tok-1", "body")

			var validationErr *domain.RuleGroupValidationError
			if !errors.As(err, &validationErr) {
				t.Fatalf("expected RuleGroupValidationError, got %v", err)
			}
			if !strings.Contains(validationErr.Message, `msg: "r1"`) {
				t.Errorf("expected raw message preserved, got %q", validationErr.Message)
			}
		})
	}
}

func TestReplaceRules_OtherError(t *testing.T) {
	cause := &nfwtypes.ThrottlingException{Message: aws.String("slow down")}
	client := &Client{networkFirewallClient: &mockFirewallClient{updateErr: cause}}

	err := client.ReplaceRules(context.Background(), testRuleGroupArn, "tok-1", "body")

	var validationErr *domain.RuleGroupValidationError
	if errors.As(err, &validationErr) {
		t.Fatal("throttling must not be reported as a validation error")
	}
	if !errors.Is(err, cause) {
		t.Errorf("expected wrapped cause, got %v", err)
	}
}

func TestNotify(t *testing.T) {
	snsClient := &mockSNSClient{}
	client := &Client{snsClient: snsClient, topicArn: "arn:aws:sns:us-east-1:111122223333:alerts"}

	subject := strings.Repeat("s", 150)
	if err := client.Notify(context.Background(), subject, "rule r1 failed"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(snsClient.published) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(snsClient.published))
	}
	if len(aws.ToString(snsClient.published[0].Subject)) != maxSubjectLength {
		t.Errorf("expected subject truncated to %d", maxSubjectLength)
	}
}

func TestNotify_NoTopic(t *testing.T) {
	client := &Client{snsClient: &mockSNSClient{}}

	if err := client.Notify(context.Background(), "s", "m"); err == nil {
		t.Error("expected error without topic")
	}
}

func TestAccountContext_HomeAccountUsesBaseClient(t *testing.T) {
	base := NewClient(aws.Config{Region: "us-east-1"}, "")
	accountCtx := NewAccountContext(aws.Config{Region: "us-east-1"}, base, "111122223333", "arn:aws:iam::{account}:role/warden")
	stsClient := &mockSTSClient{}
	accountCtx.stsClient = stsClient

	fw, err := accountCtx.FirewallFor(testRuleGroupArn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fw != domain.Firewall(base) {
		t.Error("expected base client for home account rule group")
	}
	if stsClient.calls != 0 {
		t.Errorf("expected no assume role calls, got %d", stsClient.calls)
	}
}

func TestAccountContext_CrossAccountAssumesRoleOnce(t *testing.T) {
	base := NewClient(aws.Config{Region: "us-east-1"}, "")
	accountCtx := NewAccountContext(aws.Config{Region: "us-east-1"}, base, "999999999999", "arn:aws:iam::{account}:role/warden")
	stsClient := &mockSTSClient{}
	accountCtx.stsClient = stsClient

	first, err := accountCtx.FirewallFor(testRuleGroupArn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := accountCtx.FirewallFor(testRuleGroupArn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first == domain.Firewall(base) {
		t.Error("expected a dedicated client for the remote account")
	}
	if first != second {
		t.Error("expected pooled client to be reused")
	}
	if stsClient.calls != 1 {
		t.Errorf("expected 1 assume role call, got %d", stsClient.calls)
	}
}

func TestAccountContext_InvalidArn(t *testing.T) {
	accountCtx := NewAccountContext(aws.Config{}, NewClient(aws.Config{}, ""), "111122223333", "")

	if _, err := accountCtx.FirewallFor("not-an-arn"); err == nil {
		t.Error("expected error for malformed arn")
	}
}

func TestCallerAccountID(t *testing.T) {
	account, err := callerAccountID(context.Background(), &mockSTSClient{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if account != "111122223333" {
		t.Errorf("expected 111122223333, got %s", account)
	}
}
