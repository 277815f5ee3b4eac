package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/newthinker/aurum/internal/core"
)

var quotaMarkers = []string{
	"rate limit",
	"rate_limit",
	"ratelimit",
	"quota",
	"429",
	"overloaded",
	"resource_exhausted",
	"too many requests",
}

// IsQuotaError reports whether err looks like a rate-limit, quota or
// overload response from any backend.
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, core.ErrLLMQuota) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, m := range quotaMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// RetryPolicy bounds quota retries.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Delay returns the wait before retry n (0-based): BaseDelay·2^n capped
// at MaxDelay.
func (p RetryPolicy) Delay(n int) time.Duration {
	d := p.BaseDelay
	if d <= 0 {
		d = time.Second
	}
	for i := 0; i < n; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// SleepFunc waits for d unless ctx ends first.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// WithKeyRotation calls fn with the ring's current key. A quota error
// rotates the ring, then sleeps, then retries until the policy runs out.
// Any other error is returned at once.
func WithKeyRotation[T any](ctx context.Context, ring *KeyRing, policy RetryPolicy, sleep SleepFunc, onRotate func(), fn func(ctx context.Context, key string) (T, error)) (T, error) {
	var zero T
	if ring == nil || ring.Len() == 0 {
		return zero, core.ErrLLMDisabled
	}
	if sleep == nil {
		sleep = Sleep
	}
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for n := 0; n < attempts; n++ {
		out, err := fn(ctx, ring.Current())
		if err == nil {
			return out, nil
		}
		if !IsQuotaError(err) {
			return zero, core.WrapError(core.ErrLLMFailed, err)
		}
		lastErr = err

		ring.Rotate()
		if onRotate != nil {
			onRotate()
		}
		if n == attempts-1 {
			break
		}
		if err := sleep(ctx, policy.Delay(n)); err != nil {
			return zero, err
		}
	}
	return zero, core.WrapError(core.ErrLLMQuota, lastErr)
}
