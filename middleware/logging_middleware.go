package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"booking-rpc/message"
)

func LoggingMiddleware(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *message.Call) (*message.Message, error) {
			start := time.Now()
			reply, err := next(ctx, call)

			fields := []zap.Field{
				zap.String("service", call.Service),
				zap.Uint16("service_id", call.ServiceID),
				zap.Stringer("correlation_id", call.CorrelationID),
				zap.Duration("duration", time.Since(start)),
			}
			if call.Peer != nil {
				fields = append(fields, zap.String("peer", call.Peer.String()))
			}
			if err != nil {
				logger.Warn("call failed", append(fields, zap.Error(err))...)
			} else {
				logger.Info("call served", fields...)
			}
			return reply, err
		}
	}
}
