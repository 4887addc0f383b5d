package aws

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/arn"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/eleven-am/warden/internal/domain"
)

type stsAPI interface {
	AssumeRole(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error)
}

type credentialEntry struct {
	creds      domain.AWSCredentials
	expiration time.Time
}

// AccountContext hands out firewall clients for rule groups. Rule groups in
// the home account use the base client; when a role pattern is configured,
// rule groups in other accounts are reached through an assumed role. The
// pattern carries an {account} placeholder.
type AccountContext struct {
	baseConfig      aws.Config
	baseClient      *Client
	homeAccountID   string
	roleARNPattern  string
	stsClient       stsAPI
	credentialCache map[string]credentialEntry
	clientPool      map[string]*Client
	mu              sync.RWMutex
}

func NewAccountContext(cfg aws.Config, base *Client, homeAccountID, roleARNPattern string) *AccountContext {
	return &AccountContext{
		baseConfig:      cfg,
		baseClient:      base,
		homeAccountID:   homeAccountID,
		roleARNPattern:  roleARNPattern,
		stsClient:       sts.NewFromConfig(cfg),
		credentialCache: make(map[string]credentialEntry),
		clientPool:      make(map[string]*Client),
	}
}

func (a *AccountContext) FirewallFor(ruleGroupArn string) (domain.Firewall, error) {
	parsed, err := arn.Parse(ruleGroupArn)
	if err != nil {
		return nil, fmt.Errorf("parse rule group arn %q: %w", ruleGroupArn, err)
	}
	if a.roleARNPattern == "" || parsed.AccountID == "" || parsed.AccountID == a.homeAccountID {
		return a.baseClient, nil
	}
	return a.clientFor(parsed.AccountID)
}

func (a *AccountContext) AssumeRole(accountID string) (domain.AWSCredentials, error) {
	a.mu.RLock()
	entry, exists := a.credentialCache[accountID]
	a.mu.RUnlock()

	if exists && time.Now().Add(5*time.Minute).Before(entry.expiration) {
		return entry.creds, nil
	}

	roleARN := strings.ReplaceAll(a.roleARNPattern, "{account}", accountID)
	sessionName := fmt.Sprintf("warden-%s", accountID)

	out, err := a.stsClient.AssumeRole(context.Background(), &sts.AssumeRoleInput{
		RoleArn:         aws.String(roleARN),
		RoleSessionName: aws.String(sessionName),
		DurationSeconds: aws.Int32(3600),
	})
	if err != nil {
		return domain.AWSCredentials{}, fmt.Errorf("assume role %s: %w", roleARN, err)
	}
	if out.Credentials == nil {
		return domain.AWSCredentials{}, fmt.Errorf("assume role %s: no credentials returned", roleARN)
	}

	creds := domain.AWSCredentials{
		AccessKeyID:     derefString(out.Credentials.AccessKeyId),
		SecretAccessKey: derefString(out.Credentials.SecretAccessKey),
		SessionToken:    derefString(out.Credentials.SessionToken),
	}
	if out.Credentials.Expiration != nil {
		creds.Expiration = *out.Credentials.Expiration
	}

	a.mu.Lock()
	a.credentialCache[accountID] = credentialEntry{
		creds:      creds,
		expiration: creds.Expiration,
	}
	a.mu.Unlock()

	return creds, nil
}

func (a *AccountContext) clientFor(accountID string) (*Client, error) {
	a.mu.RLock()
	client, exists := a.clientPool[accountID]
	entry, hasEntry := a.credentialCache[accountID]
	a.mu.RUnlock()

	if exists && hasEntry && time.Now().Add(5*time.Minute).Before(entry.expiration) {
		return client, nil
	}

	creds, err := a.AssumeRole(accountID)
	if err != nil {
		return nil, err
	}

	cfg := a.baseConfig.Copy()
	cfg.Credentials = credentials.NewStaticCredentialsProvider(
		creds.AccessKeyID,
		creds.SecretAccessKey,
		creds.SessionToken,
	)

	client = NewClient(cfg, a.baseClient.topicArn)

	a.mu.Lock()
	a.clientPool[accountID] = client
	a.mu.Unlock()

	return client, nil
}

type callerIdentityAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// CallerAccountID returns the account the default credentials belong to.
func CallerAccountID(ctx context.Context, cfg aws.Config) (string, error) {
	return callerAccountID(ctx, sts.NewFromConfig(cfg))
}

func callerAccountID(ctx context.Context, client callerIdentityAPI) (string, error) {
	out, err := client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("get caller identity: %w", err)
	}
	account := derefString(out.Account)
	if account == "" {
		return "", fmt.Errorf("get caller identity: no account returned")
	}
	return account, nil
}
