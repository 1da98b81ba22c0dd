package redisclient

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker open")

// limiter is the shape of a rate limiter check.
type limiter interface {
	Allow(ctx context.Context, key string) (bool, time.Duration, error)
}

type BreakerConfig struct {
	Timeout          time.Duration // hard timeout per redis round trip
	FailureThreshold int           // consecutive failures to open circuit
	Cooldown         time.Duration // how long to stay open before half-open
	HalfOpenMaxCalls int           // allow N trial calls in half-open
}

// ProtectedLimiter stops calling redis after repeated failures so a dead
// redis costs each login a fast error instead of a dial timeout.
type ProtectedLimiter struct {
	inner limiter
	cfg   BreakerConfig
	mu    sync.Mutex
	now   func() time.Time

	state string // "closed" | "open" | "half_open"

	consecutiveFailures int
	openedAt            time.Time
	halfOpenInFlight    int
}

func NewProtectedLimiter(inner limiter, cfg BreakerConfig) *ProtectedLimiter {
	//defaults
	if cfg.Timeout <= 0 {
		cfg.Timeout = 250 * time.Millisecond
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 15 * time.Second
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = 1
	}

	return &ProtectedLimiter{
		inner: inner,
		cfg:   cfg,
		now:   time.Now,
		state: "closed",
	}
}

func (p *ProtectedLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	// fail-fast gate

	if !p.allowRequest() {
		return false, 0, ErrCircuitOpen
	}

	// enforce timeout

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	ok, retryAfter, err := p.inner.Allow(callCtx, key)

	p.afterRequest(err)

	return ok, retryAfter, err
}

// State is "closed", "open" or "half_open".
func (p *ProtectedLimiter) State() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *ProtectedLimiter) allowRequest() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case "closed":
		return true
	case "open":
		// cooldown has passed? move to half open

		if p.now().Sub(p.openedAt) < p.cfg.Cooldown {
			return false
		}
		p.state = "half_open"
		p.halfOpenInFlight = 0
		fallthrough
	case "half_open":
		if p.halfOpenInFlight >= p.cfg.HalfOpenMaxCalls {
			return false
		}
		p.halfOpenInFlight++
		return true

	default:
		// safe fallback
		return true
	}
}

func (p *ProtectedLimiter) afterRequest(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// half-open call just finished
	if p.state == "half_open" && p.halfOpenInFlight > 0 {
		p.halfOpenInFlight--
	}

	if err == nil {
		// success => close circuit and reset counters
		p.consecutiveFailures = 0
		p.state = "closed"
		return
	}

	// failure
	p.consecutiveFailures++

	// if half-open failed, reopen immediately
	if p.state == "half_open" {
		p.state = "open"
		p.openedAt = p.now()
		return
	}

	// if failures reached threshold, open circuit
	if p.consecutiveFailures >= p.cfg.FailureThreshold {
		p.state = "open"
		p.openedAt = p.now()
	}
}
