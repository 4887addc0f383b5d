package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/eleven-am/warden/internal/domain"
	"github.com/eleven-am/warden/internal/metrics"
)

// configRecord is the subset of an AWS Config configuration item the
// strategies select.
type configRecord struct {
	ResourceID    string `json:"resourceId"`
	Configuration struct {
		PrivateIPAddress string `json:"privateIpAddress"`
		CidrBlock        string `json:"cidrBlock"`
		Instances        []struct {
			InstanceID string `json:"instanceId"`
		} `json:"instances"`
		VpcConfig struct {
			SubnetIDs        []string `json:"subnetIds"`
			SecurityGroupIDs []string `json:"securityGroupIds"`
		} `json:"vpcConfig"`
	} `json:"configuration"`
	Relationships []struct {
		ResourceID   string `json:"resourceId"`
		ResourceType string `json:"resourceType"`
	} `json:"relationships"`
}

// cachedInventory is the read-through query path shared by the inventory
// backed strategies. Each strategy owns one.
type cachedInventory struct {
	inventory domain.Inventory
	cache     *queryCache
	metrics   *metrics.Metrics
	logger    log.FieldLogger
}

func newCachedInventory(inventory domain.Inventory, opts Options) *cachedInventory {
	return &cachedInventory{
		inventory: inventory,
		cache:     newQueryCache(opts.CacheTTL, opts.CacheCapacity),
		metrics:   opts.Metrics,
		logger:    opts.Logger,
	}
}

func (c *cachedInventory) query(ctx context.Context, aggregator, expression string) ([]string, error) {
	key := queryKey{aggregator: aggregator, query: expression}
	if v, ok := c.cache.get(key); ok {
		c.metrics.InventoryQuery("hit")
		return v, nil
	}

	results, err := c.inventory.SelectResources(ctx, aggregator, expression)
	if errors.Is(err, domain.ErrResultLimit) {
		c.metrics.InventoryQuery("limit")
		c.logger.WithError(err).WithField("aggregator", aggregator).Warn("inventory query matched too many resources")
		return nil, err
	}
	if err != nil {
		c.metrics.InventoryQuery("error")
		return nil, &domain.UnderlyingServiceError{Service: "inventory", Err: err}
	}
	c.metrics.InventoryQuery("miss")
	c.cache.set(key, results)
	return results, nil
}

func (c *cachedInventory) records(ctx context.Context, aggregator, expression string) ([]configRecord, error) {
	raw, err := c.query(ctx, aggregator, expression)
	if err != nil {
		return nil, err
	}
	records := make([]configRecord, 0, len(raw))
	for _, item := range raw {
		var rec configRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			c.logger.WithError(err).WithField("aggregator", aggregator).Warn("skipping undecodable inventory record")
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func inventoryFailure(obj domain.FlowObject, err error) domain.ResolvedFlowObject {
	res := domain.NewFailedResolution(obj, fmt.Sprintf("failed to query inventory for object %s: %v", obj.ID, err))
	res.Err = err
	return res
}

func resolved(obj domain.FlowObject, addresses []string) domain.ResolvedFlowObject {
	return domain.ResolvedFlowObject{
		FlowObject: obj,
		Addresses:  dedupe(addresses),
	}
}

func dedupe(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func quote(value string) (string, error) {
	if strings.ContainsAny(value, "'\\") {
		return "", fmt.Errorf("value %q contains characters not allowed in an inventory query", value)
	}
	return "'" + value + "'", nil
}

func quoteList(values []string) (string, error) {
	quoted := make([]string, 0, len(values))
	for _, v := range values {
		q, err := quote(v)
		if err != nil {
			return "", err
		}
		quoted = append(quoted, q)
	}
	return "(" + strings.Join(quoted, ", ") + ")", nil
}

func tagConditions(tags []domain.Tag) (string, error) {
	if len(tags) == 0 {
		return "", fmt.Errorf("no tags given")
	}
	conditions := make([]string, 0, len(tags))
	for _, tag := range tags {
		q, err := quote(tag.Key + "=" + tag.Value)
		if err != nil {
			return "", err
		}
		conditions = append(conditions, "tags.tag = "+q)
	}
	return strings.Join(conditions, " AND "), nil
}
