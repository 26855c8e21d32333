// Package ratelimit spaces outbound calls to one remote endpoint family.
//
// A Limiter permits at most one call per MinDelay. When the remote side
// reports throttling the delay is raised to the escalated value and stays
// there for the life of the process.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultMinDelay       = 1 * time.Second
	DefaultEscalatedDelay = 5 * time.Second
)

type Config struct {
	MinDelay       time.Duration
	EscalatedDelay time.Duration
}

func DefaultConfig() Config {
	return Config{
		MinDelay:       DefaultMinDelay,
		EscalatedDelay: DefaultEscalatedDelay,
	}
}

type Limiter struct {
	escalated time.Duration

	mu        sync.Mutex
	limiter   *rate.Limiter
	minDelay  time.Duration
	throttled bool
	lastAt    time.Time
}

func New(config Config) *Limiter {
	if config.MinDelay <= 0 {
		config.MinDelay = DefaultMinDelay
	}
	if config.EscalatedDelay < config.MinDelay {
		config.EscalatedDelay = config.MinDelay
	}

	return &Limiter{
		// burst 1: the bucket starts full so the first call never waits,
		// and every later token needs a full MinDelay to refill.
		limiter:   rate.NewLimiter(rate.Every(config.MinDelay), 1),
		escalated: config.EscalatedDelay,
		minDelay:  config.MinDelay,
	}
}

// Acquire blocks until the caller may start its remote call.
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		l.mu.Lock()
		lim := l.limiter
		l.mu.Unlock()

		if err := lim.Wait(ctx); err != nil {
			return err
		}

		l.mu.Lock()
		// an escalation during the wait replaced the bucket; the token we
		// got was paced at the old rate
		if lim != l.limiter {
			l.mu.Unlock()
			continue
		}
		l.lastAt = time.Now()
		l.mu.Unlock()
		return nil
	}
}

// ReportThrottled escalates the spacing permanently. Repeated reports are
// no-ops. The next call is due a full escalated delay after the last one.
func (l *Limiter) ReportThrottled() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.throttled {
		return
	}
	l.throttled = true
	l.minDelay = l.escalated

	lim := rate.NewLimiter(rate.Every(l.escalated), 1)
	if !l.lastAt.IsZero() {
		lim.AllowN(l.lastAt, 1)
	}
	l.limiter = lim
}

func (l *Limiter) MinDelay() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.minDelay
}

func (l *Limiter) Throttled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.throttled
}

// LastRequestAt is the zero time until the first permitted call.
func (l *Limiter) LastRequestAt() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastAt
}
