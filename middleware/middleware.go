// Package middleware wraps server handlers in the onion model:
//
//	Chain(A, B, C)(handler) → A(B(C(handler)))
//	A.before → B.before → C.before → handler → C.after → B.after → A.after
//
// A handler returning a non-nil error produces an ERROR frame carrying err.Error().
package middleware

import (
	"context"
	"errors"

	"booking-rpc/message"
)

// HandlerFunc serves one decoded REQUEST and returns the RESPONSE body.
type HandlerFunc func(ctx context.Context, call *message.Call) (*message.Message, error)

type Middleware func(next HandlerFunc) HandlerFunc

var (
	ErrTimeout     = errors.New("request timed out")
	ErrRateLimited = errors.New("rate limit exceeded")
	ErrTransient   = errors.New("transient failure")
)

// Chain 将多个中间件组合成一个中间件
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
