package middleware

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"booking-rpc/message"
)

// RecoverMiddleware turns a handler panic into an error reply so one bad request
// cannot take the serve loop down.
func RecoverMiddleware(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *message.Call) (reply *message.Message, err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("handler panic",
						zap.String("service", call.Service),
						zap.Any("panic", r),
						zap.Stack("stack"))
					reply, err = nil, fmt.Errorf("internal error in %s", call.Service)
				}
			}()
			return next(ctx, call)
		}
	}
}
