package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

const maxSubjectLength = 100

func (c *Client) Notify(ctx context.Context, subject, message string) error {
	if c.topicArn == "" {
		return fmt.Errorf("no notification topic configured")
	}
	if len(subject) > maxSubjectLength {
		subject = subject[:maxSubjectLength]
	}
	_, err := c.snsClient.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(c.topicArn),
		Subject:  aws.String(subject),
		Message:  aws.String(message),
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", c.topicArn, err)
	}
	return nil
}
