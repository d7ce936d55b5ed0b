package scanner

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ScanRequest сообщение очереди асинхронных проверок
type ScanRequest struct {
	RequestToken string    `json:"request_token"`
	RequestedAt  time.Time `json:"requested_at"`
}

// RedisQueue кладет запросы на проверку в список redis.
// Антивирус забирает их сам и отвечает через колбэк статуса.
type RedisQueue struct {
	rdb   redis.Cmdable
	queue string
	now   func() time.Time
}

func NewRedisQueue(rdb redis.Cmdable, queue string) *RedisQueue {
	return &RedisQueue{
		rdb:   rdb,
		queue: queue,
		now:   time.Now,
	}
}

func (q *RedisQueue) Send(ctx context.Context, requestToken string) error {
	payload, err := json.Marshal(ScanRequest{
		RequestToken: requestToken,
		RequestedAt:  q.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode scan request: %w", err)
	}

	if err := q.rdb.LPush(ctx, q.queue, payload).Err(); err != nil {
		return fmt.Errorf("failed to enqueue scan request: %w", err)
	}
	return nil
}
