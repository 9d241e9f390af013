package socket

import (
	"context"
	"time"

	"booking-rpc/message"
)

// DefaultPollInterval is the cadence Watch polls at when none is given.
const DefaultPollInterval = 100 * time.Millisecond

// watchBuffer bounds how many notifications can wait for a slow consumer.
const watchBuffer = 16

// Watch polls s.TryReceive every interval until window elapses or ctx ends, and
// delivers every decoded datagram on the returned channel. The channel is closed
// when watching stops. Watch must not run alongside Send on the same socket: both
// read from the same endpoint.
func Watch(ctx context.Context, s Socket, window, interval time.Duration) <-chan *message.Result {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	out := make(chan *message.Result, watchBuffer)

	go func() {
		defer close(out)

		ctx, cancel := context.WithTimeout(ctx, window)
		defer cancel()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			// Drain everything already queued before sleeping again.
			for {
				res, err := s.TryReceive()
				if err != nil {
					return
				}
				if res == nil {
					break
				}
				select {
				case out <- res:
				case <-ctx.Done():
					return
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return out
}
