package middleware

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"booking-rpc/message"
)

// RetryMiddleware re-runs the handler when it fails with ErrTimeout or an error
// wrapping ErrTransient, backing off exponentially from baseDelay. Any other error
// is returned immediately. Only wrap handlers that are safe to run twice.
func RetryMiddleware(maxRetries int, baseDelay time.Duration, logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *message.Call) (*message.Message, error) {
			reply, err := next(ctx, call)
			for i := 0; i < maxRetries; i++ {
				if err == nil || !retryable(err) {
					return reply, err
				}
				logger.Info("retrying handler",
					zap.String("service", call.Service),
					zap.Int("attempt", i+1),
					zap.Error(err))

				select {
				case <-time.After(baseDelay * time.Duration(1<<i)): // Exponential backoff
				case <-ctx.Done():
					return nil, ctx.Err()
				}
				reply, err = next(ctx, call)
			}
			return reply, err
		}
	}
}

func retryable(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrTransient)
}
