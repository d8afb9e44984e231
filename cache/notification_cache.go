package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"trackmarket/model"

	"github.com/go-redis/redis/v8"
)

const (
	inboxKey   = "notifications:%d" // List: newest first
	inboxLimit = 50
	inboxTTL   = 7 * 24 * time.Hour
)

// NotificationInbox keeps the last notifications per user so clients that
// were offline can catch up.
type NotificationInbox struct {
	client *redis.Client
}

func NewNotificationInbox(client *redis.Client) *NotificationInbox {
	return &NotificationInbox{client: client}
}

func (c *NotificationInbox) Push(ctx context.Context, userID int64, n model.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	key := fmt.Sprintf(inboxKey, userID)
	pipe := c.client.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, inboxLimit-1)
	pipe.Expire(ctx, key, inboxTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store notification for user %d: %w", userID, err)
	}
	return nil
}

// Recent returns up to limit notifications, newest first.
func (c *NotificationInbox) Recent(ctx context.Context, userID int64, limit int64) ([]model.Notification, error) {
	if limit <= 0 || limit > inboxLimit {
		limit = inboxLimit
	}
	items, err := c.client.LRange(ctx, fmt.Sprintf(inboxKey, userID), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read notifications for user %d: %w", userID, err)
	}

	out := make([]model.Notification, 0, len(items))
	for _, item := range items {
		var n model.Notification
		if err := json.Unmarshal([]byte(item), &n); err != nil {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}
