// Package ratelimit enforces the guest trial quota on the server side.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Reservation identifies a consumed trial slot so it can be handed back.
type Reservation struct {
	key string
}

// GuestLimiter is a Redis-backed fixed-window counter. Every instance shares
// the same Redis, so the quota holds across replicas.
type GuestLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewGuestLimiter(client *redis.Client, limit int, window time.Duration) *GuestLimiter {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &GuestLimiter{
		client: client,
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

func (l *GuestLimiter) bucketKey(guestKey string) string {
	bucket := l.now().UnixNano() / l.window.Nanoseconds()
	return fmt.Sprintf("guest:trial:%s:%d", guestKey, bucket)
}

// Reserve takes one trial slot. It returns ok=false without consuming when
// the window is exhausted.
func (l *GuestLimiter) Reserve(ctx context.Context, guestKey string) (*Reservation, bool, error) {
	if l.limit <= 0 {
		return nil, false, nil
	}
	key := l.bucketKey(guestKey)

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return nil, false, fmt.Errorf("incr guest counter: %w", err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, l.window+time.Second).Err(); err != nil {
			return nil, false, fmt.Errorf("expire guest counter: %w", err)
		}
	}
	if count > int64(l.limit) {
		if err := l.client.Decr(ctx, key).Err(); err != nil {
			return nil, false, fmt.Errorf("rollback guest counter: %w", err)
		}
		return nil, false, nil
	}
	return &Reservation{key: key}, true, nil
}

// Release hands a slot back after a failed generation.
func (l *GuestLimiter) Release(ctx context.Context, r *Reservation) error {
	if r == nil {
		return nil
	}
	if err := l.client.Decr(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("release guest counter: %w", err)
	}
	return nil
}

// Used returns how many slots the guest consumed in the current window.
func (l *GuestLimiter) Used(ctx context.Context, guestKey string) (int, error) {
	n, err := l.client.Get(ctx, l.bucketKey(guestKey)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get guest counter: %w", err)
	}
	return n, nil
}
