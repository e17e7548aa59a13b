package ratelimit

import (
	"context"
	"time"
)

// Pacer enforces a minimum interval between successive operations regardless
// of their outcome. Unlike the token bucket it never allows bursts.
type Pacer struct {
	interval time.Duration
	last     time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewPacer creates a pacer with the given minimum interval.
func NewPacer(interval time.Duration) *Pacer {
	return &Pacer{
		interval: interval,
		sleep:    sleepCtx,
	}
}

// Pace blocks until at least the configured interval has elapsed since the
// previous call. The first call returns immediately.
func (p *Pacer) Pace(ctx context.Context) error {
	if !p.last.IsZero() {
		if remaining := p.interval - time.Since(p.last); remaining > 0 {
			if err := p.sleep(ctx, remaining); err != nil {
				return err
			}
		}
	}
	p.last = time.Now()
	return nil
}

// SetSleeper swaps the sleep function, letting tests run without real delays.
func (p *Pacer) SetSleeper(fn func(ctx context.Context, d time.Duration) error) {
	p.sleep = fn
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
