package broker

import (
	"context"
	"time"

	"trade_core/internal/models"
	"trade_core/pkg/logger"
)

const baseBackoff = 200 * time.Millisecond

// WithRetry повторяет fn только для transient-ошибок брокера (сеть, rate-limit),
// с экспоненциальным бэкоффом. Validation/Rejected отдаются сразу.
func WithRetry(ctx context.Context, attempts int, op string, fn func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if !models.IsTransient(err) {
			return err
		}
		if i == attempts-1 {
			break
		}

		backoff := baseBackoff << uint(i)
		logger.Warn("%s: transient broker error, retry %d/%d in %s: %v", op, i+1, attempts-1, backoff, err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return err
}
