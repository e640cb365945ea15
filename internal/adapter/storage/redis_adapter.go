package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ghshop/storefront/internal/core/domain"
)

const idempotencyKeyTTL = 24 * time.Hour

// RedisAdapter backs the callback idempotency keys and publishes invoice
// events for the real-time broadcast subsystem.
type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, 1, idempotencyKeyTTL).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (r *RedisAdapter) ReleaseIdempotency(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// Notify publishes the event on a channel named after its type, e.g.
// "invoice:new". Subscribers are the broadcast subsystem's concern.
func (r *RedisAdapter) Notify(ctx context.Context, event domain.InvoiceEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return r.client.Publish(ctx, string(event.Type), payload).Err()
}
