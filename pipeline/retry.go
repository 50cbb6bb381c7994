package pipeline

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/use-agent/agentroster/config"
	"github.com/use-agent/agentroster/models"
)

// RetryPolicy repeats retryable failures with capped exponential
// backoff and jitter. Non-retryable failures return immediately; the
// taxonomy decides, not the caller.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func newRetryPolicy(cfg config.RetryConfig) RetryPolicy {
	p := RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BaseDelay,
		MaxDelay:    cfg.MaxDelay,
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 100 * time.Millisecond
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	return p
}

// Do runs op up to MaxAttempts times. The last error is returned
// unchanged so callers keep the full CrawlError context.
func (p RetryPolicy) Do(ctx context.Context, log *slog.Logger, op func(ctx context.Context) error) error {
	var err error
	for attempt := 1; ; attempt++ {
		err = op(ctx)
		if err == nil {
			return nil
		}
		if !models.IsRetryable(err) || attempt >= p.MaxAttempts {
			return err
		}

		delay := p.backoff(attempt)
		log.Debug("retrying after failure",
			"attempt", attempt,
			"max_attempts", p.MaxAttempts,
			"delay", delay,
			"error", err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return err
		}
	}
}

// backoff doubles per attempt from BaseDelay, capped at MaxDelay, with
// the upper half jittered to spread simultaneous retries.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < attempt && d < p.MaxDelay; i++ {
		d *= 2
	}
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	half := d / 2
	return half + rand.N(half+1)
}
