package middleware

import (
	"context"
	"time"

	"booking-rpc/message"
)

type outcome struct {
	reply *message.Message
	err   error
}

// TimeOutMiddleware fails the call with ErrTimeout once timeout elapses. The
// handler is not stopped: it sees ctx canceled and keeps running until it returns,
// so its side effects may land after the caller got ErrTimeout. Wrap only handlers
// for which a late completion is harmless.
func TimeOutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *message.Call) (*message.Message, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan outcome, 1)
			go func() {
				reply, err := next(ctx, call)
				done <- outcome{reply, err}
			}()

			select {
			case o := <-done:
				return o.reply, o.err
			case <-ctx.Done():
				return nil, ErrTimeout
			}
		}
	}
}
