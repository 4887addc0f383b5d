package aws

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/ratelimit"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/aws-sdk-go-v2/service/configservice"
	"github.com/aws/aws-sdk-go-v2/service/networkfirewall"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

type configAPI interface {
	configservice.SelectAggregateResourceConfigAPIClient
}

type firewallAPI interface {
	DescribeRuleGroup(ctx context.Context, params *networkfirewall.DescribeRuleGroupInput, optFns ...func(*networkfirewall.Options)) (*networkfirewall.DescribeRuleGroupOutput, error)
	UpdateRuleGroup(ctx context.Context, params *networkfirewall.UpdateRuleGroupInput, optFns ...func(*networkfirewall.Options)) (*networkfirewall.UpdateRuleGroupOutput, error)
}

type snsAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Client bundles the AWS services the reconciler talks to: the Config
// aggregator as inventory, Network Firewall as control plane and SNS for
// failure notifications.
type Client struct {
	configClient          configAPI
	networkFirewallClient firewallAPI
	snsClient             snsAPI
	topicArn              string
	region                string
	maxResults            int
}

func newRetryer() aws.Retryer {
	return retry.NewStandard(func(o *retry.StandardOptions) {
		o.MaxAttempts = 5
		o.MaxBackoff = 30 * time.Second
		o.Backoff = retry.NewExponentialJitterBackoff(o.MaxBackoff)
		o.RateLimiter = ratelimit.None
	})
}

func NewClient(cfg aws.Config, topicArn string) *Client {
	retryer := newRetryer()
	return &Client{
		configClient:          configservice.NewFromConfig(cfg, func(o *configservice.Options) { o.Retryer = retryer }),
		networkFirewallClient: networkfirewall.NewFromConfig(cfg, func(o *networkfirewall.Options) { o.Retryer = retryer }),
		snsClient:             sns.NewFromConfig(cfg, func(o *sns.Options) { o.Retryer = retryer }),
		topicArn:              topicArn,
		region:                cfg.Region,
		maxResults:            selectMaxResults,
	}
}

func (c *Client) Region() string {
	return c.region
}
