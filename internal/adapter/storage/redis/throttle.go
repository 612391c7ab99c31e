package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Throttle implements ports.Throttle with fixed-window counters in Redis.
type Throttle struct {
	client *goredis.Client
	prefix string
	now    func() time.Time
}

// NewThrottle creates a new Redis-backed throttle.
func NewThrottle(client *goredis.Client) *Throttle {
	return &Throttle{
		client: client,
		prefix: "throttle:",
		now:    time.Now,
	}
}

// ThrottleResult holds the outcome of a throttle check.
type ThrottleResult struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetAt   int64 // Unix timestamp
}

// Check counts one request for key in the current window.
// It uses a fixed-window counter: INCR + EXPIRE on a key scoped by windowID.
func (t *Throttle) Check(ctx context.Context, key string, limit int64, window time.Duration) (*ThrottleResult, error) {
	seconds := int64(window / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	windowID := t.now().Unix() / seconds
	redisKey := fmt.Sprintf("%s%s:%d", t.prefix, key, windowID)

	count, err := t.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis throttle incr: %w", err)
	}

	// Set expiry only on first increment (new window)
	if count == 1 {
		if err := t.client.Expire(ctx, redisKey, window+time.Second).Err(); err != nil {
			return nil, fmt.Errorf("redis throttle expire: %w", err)
		}
	}

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}

	return &ThrottleResult{
		Allowed:   count <= limit,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   (windowID + 1) * seconds,
	}, nil
}

// Allow implements ports.Throttle.
func (t *Throttle) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, error) {
	res, err := t.Check(ctx, key, limit, window)
	if err != nil {
		return false, err
	}
	return res.Allowed, nil
}
