package trader

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/newthinker/aurum/internal/broker"
)

var errInvalidRequest = []error{
	broker.ErrInvalidSymbol,
	broker.ErrInvalidVolume,
	broker.ErrInvalidPrice,
	broker.ErrInvalidOrderType,
	broker.ErrInvalidTicket,
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	for _, target := range errInvalidRequest {
		if errors.Is(err, target) {
			return false
		}
	}
	return true
}

// retryAction runs fn up to MaxRetries times, waiting RetryDelay between
// attempts. FAIL answers and transport errors are retried; malformed
// requests are not.
func (t *Trader) retryAction(ctx context.Context, name string, fn func(ctx context.Context) (*broker.OrderResult, error)) (*broker.OrderResult, error) {
	attempts := t.cfg.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 1; i <= attempts; i++ {
		res, err := fn(ctx)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if !retryable(err) || i == attempts {
			break
		}
		t.logger.Warn("broker action failed, retrying",
			zap.String("action", name),
			zap.Int("attempt", i),
			zap.Error(err))
		if err := t.sleep(ctx, t.cfg.RetryDelay); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}
