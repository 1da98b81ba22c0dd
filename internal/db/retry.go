package db

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"time"
)

// ExponentialBackoff doubles from base and caps at capDelay.
// attempt=0 => base, attempt=1 => 2*base, attempt=2 => 4*base
func ExponentialBackoff(attempt int, base, capDelay time.Duration) time.Duration {
	multiple := math.Pow(2, float64(attempt))
	delay := time.Duration(float64(base) * multiple)

	if delay > capDelay || delay <= 0 {
		delay = capDelay
	}

	// small jitter (0–250ms) to avoid thundering herd
	delay += time.Duration(rand.Intn(250)) * time.Millisecond
	return delay
}

// Retry runs connect up to attempts times, sleeping with ExponentialBackoff in
// between. It gives up early when ctx is done.
func Retry[T any](ctx context.Context, what string, attempts int, connect func() (T, error)) (T, error) {
	var (
		out T
		err error
	)

	for attempt := 0; attempt < attempts; attempt++ {
		out, err = connect()
		if err == nil {
			return out, nil
		}

		if attempt == attempts-1 {
			break
		}

		delay := ExponentialBackoff(attempt, 500*time.Millisecond, 5*time.Second)
		slog.Default().WarnContext(ctx, "connect failed, retrying",
			"target", what,
			"attempt", attempt+1,
			"delay_ms", delay.Milliseconds(),
			"err", err,
		)

		select {
		case <-ctx.Done():
			return out, err
		case <-time.After(delay):
		}
	}

	return out, err
}
