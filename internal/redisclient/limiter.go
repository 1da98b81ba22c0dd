package redisclient

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// FixedWindowLimiter counts attempts per key in redis so every replica
// shares one budget. Each window gets its own key that expires with it.
type FixedWindowLimiter struct {
	client *Client
	limit  int64
	window time.Duration
	prefix string
	now    func() time.Time
}

func NewFixedWindowLimiter(client *Client, limit int, window time.Duration) *FixedWindowLimiter {
	// slots are whole milliseconds
	if window < time.Millisecond {
		window = time.Millisecond
	}

	return &FixedWindowLimiter{
		client: client,
		limit:  int64(limit),
		window: window,
		prefix: "countryauth:ratelimit:",
		now:    time.Now,
	}
}

func (l *FixedWindowLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	now := l.now()
	slot := now.UnixMilli() / l.window.Milliseconds()
	windowEnd := time.UnixMilli((slot + 1) * l.window.Milliseconds())

	k := l.prefix + key + ":" + strconv.FormatInt(slot, 10)

	pipe := l.client.redisdb.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.PExpire(ctx, k, l.window)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("rate limit %s: %w", key, err)
	}

	if incr.Val() > l.limit {
		return false, windowEnd.Sub(now), nil
	}

	return true, 0, nil
}
