package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"trackmarket/model"

	"github.com/go-redis/redis/v8"
)

const estimateKey = "estimate:%s" // String: PendingUpload JSON

// ErrEstimateNotFound means the estimate id is unknown or has expired.
var ErrEstimateNotFound = errors.New("estimate not found or expired")

// EstimateCache keeps uploaded-but-not-yet-listed tracks for a while so the
// seller can accept the suggested price without uploading again.
type EstimateCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewEstimateCache(client *redis.Client, ttl time.Duration) *EstimateCache {
	return &EstimateCache{client: client, ttl: ttl}
}

func (c *EstimateCache) Put(ctx context.Context, p *model.PendingUpload) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal estimate: %w", err)
	}
	if err := c.client.Set(ctx, fmt.Sprintf(estimateKey, p.Estimate.ID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache estimate %s: %w", p.Estimate.ID, err)
	}
	return nil
}

// Take reads and removes the estimate in one GETDEL, so only one caller can
// redeem it.
func (c *EstimateCache) Take(ctx context.Context, id string) (*model.PendingUpload, error) {
	data, err := c.client.GetDel(ctx, fmt.Sprintf(estimateKey, id)).Bytes()
	if err == redis.Nil {
		return nil, ErrEstimateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to take estimate %s: %w", id, err)
	}

	var p model.PendingUpload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal estimate %s: %w", id, err)
	}
	return &p, nil
}
