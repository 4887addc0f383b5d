package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/configservice"
)

const selectMaxResults = 5000

// SelectResources runs an advanced query against a Config aggregator. More
// than selectMaxResults matches is an error wrapping domain.ErrResultLimit.
func (c *Client) SelectResources(ctx context.Context, aggregatorName, expression string) ([]string, error) {
	paginator := configservice.NewSelectAggregateResourceConfigPaginator(c.configClient, &configservice.SelectAggregateResourceConfigInput{
		ConfigurationAggregatorName: aws.String(aggregatorName),
		Expression:                  aws.String(expression),
	})
	results, err := CollectPages(
		ctx,
		c.maxResults,
		paginator.HasMorePages,
		func(ctx context.Context) (*configservice.SelectAggregateResourceConfigOutput, error) {
			return paginator.NextPage(ctx)
		},
		func(out *configservice.SelectAggregateResourceConfigOutput) []string {
			return out.Results
		},
	)
	if err != nil {
		return nil, fmt.Errorf("select aggregate resource config on %s: %w", aggregatorName, err)
	}
	return results, nil
}
