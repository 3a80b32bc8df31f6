package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"poll-decision-backend/cache"

	"go.uber.org/zap"
)

const (
	DefaultQueue  = "poll_notifications"
	sentSetPrefix = "poll_notifications:sent"
	sentSetTTL    = 48 * time.Hour
)

// RedisDispatcher pushes JSON notifications onto a Redis list. Recipients
// already sent a given idempotency key are filtered out through a set kept
// per key, which expires on its own.
type RedisDispatcher struct {
	client cache.RedisClient
	queue  string
	log    *zap.Logger
}

func NewRedisDispatcher(client cache.RedisClient, queue string, log *zap.Logger) *RedisDispatcher {
	if queue == "" {
		queue = DefaultQueue
	}
	return &RedisDispatcher{client: client, queue: queue, log: log}
}

func sentSetKey(idempotencyKey string) string {
	return sentSetPrefix + ":" + idempotencyKey
}

func (d *RedisDispatcher) Send(ctx context.Context, n Notification) error {
	setKey := sentSetKey(n.IdempotencyKey)
	fresh := make([]uint, 0, len(n.RecipientIDs))
	for _, id := range n.RecipientIDs {
		seen, err := d.client.SIsMember(ctx, setKey, strconv.FormatUint(uint64(id), 10)).Result()
		if err != nil {
			d.log.Warn("idempotency check failed", zap.String("key", n.IdempotencyKey), zap.Error(err))
		} else if seen {
			continue
		}
		fresh = append(fresh, id)
	}
	if len(fresh) == 0 && len(n.RecipientIDs) > 0 {
		d.log.Debug("notification already sent", zap.String("key", n.IdempotencyKey))
		return nil
	}
	n.RecipientIDs = fresh

	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := d.client.LPush(ctx, d.queue, body).Err(); err != nil {
		return fmt.Errorf("push to %s: %w", d.queue, err)
	}

	members := make([]interface{}, len(fresh))
	for i, id := range fresh {
		members[i] = strconv.FormatUint(uint64(id), 10)
	}
	if len(members) > 0 {
		if err := d.client.SAdd(ctx, setKey, members...).Err(); err != nil {
			d.log.Warn("mark notification sent failed", zap.String("key", n.IdempotencyKey), zap.Error(err))
		} else if err := d.client.Expire(ctx, setKey, sentSetTTL).Err(); err != nil {
			d.log.Warn("expire sent set failed", zap.String("key", setKey), zap.Error(err))
		}
	}

	d.log.Info("notification queued",
		zap.String("queue", d.queue),
		zap.String("kind", n.Kind),
		zap.Uint("poll_id", n.PollID),
		zap.Int("recipients", len(fresh)),
	)
	return nil
}

func (d *RedisDispatcher) Close() error { return nil }
