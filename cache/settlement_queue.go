package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const settlementQueueKey = "settlement:queue" // Sorted Set: transaction id, score = due time in unix ms

// SettlementQueue is a delay queue of withdrawal ids.
type SettlementQueue struct {
	client *redis.Client
}

func NewSettlementQueue(client *redis.Client) *SettlementQueue {
	return &SettlementQueue{client: client}
}

// Schedule enqueues id to become due at the given time. Re-scheduling an id
// moves it.
func (q *SettlementQueue) Schedule(ctx context.Context, id string, due time.Time) error {
	err := q.client.ZAdd(ctx, settlementQueueKey, &redis.Z{
		Score:  float64(due.UnixMilli()),
		Member: id,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to schedule %s: %w", id, err)
	}
	return nil
}

// Claim pops up to limit ids that are due at now. An id is returned to exactly
// one caller even with several workers polling: ZREM decides the winner.
func (q *SettlementQueue) Claim(ctx context.Context, now time.Time, limit int64) ([]string, error) {
	ids, err := q.client.ZRangeByScore(ctx, settlementQueueKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: limit,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read due settlements: %w", err)
	}

	claimed := make([]string, 0, len(ids))
	for _, id := range ids {
		n, err := q.client.ZRem(ctx, settlementQueueKey, id).Result()
		if err != nil {
			return claimed, fmt.Errorf("failed to claim %s: %w", id, err)
		}
		if n == 1 {
			claimed = append(claimed, id)
		}
	}
	return claimed, nil
}

// Contains reports whether id is waiting in the queue.
func (q *SettlementQueue) Contains(ctx context.Context, id string) (bool, error) {
	err := q.client.ZScore(ctx, settlementQueueKey, id).Err()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up %s: %w", id, err)
	}
	return true, nil
}

// Len is the number of queued ids.
func (q *SettlementQueue) Len(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, settlementQueueKey).Result()
}
