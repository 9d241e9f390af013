package socket

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"booking-rpc/codec"
	"booking-rpc/faults"
	"booking-rpc/message"
	"booking-rpc/protocol"
	"booking-rpc/transport"
)

// Stats counts what a socket did on the wire.
type Stats struct {
	Transmissions uint64 // Request datagrams actually written
	Dropped       uint64 // Packets suppressed by the fault injector, any point
	Retries       uint64 // Rounds after the first, across all calls
	Acks          uint64 // ACK datagrams actually written
	Discarded     uint64 // Stale, foreign or malformed datagrams thrown away
}

// caller is the state shared by both strategies: one endpoint, one server, one
// fault injector.
type caller struct {
	name    string
	ep      *transport.Endpoint
	codec   *codec.Codec
	server  *net.UDPAddr
	timeout time.Duration
	log     *zap.Logger
	faults  *faults.Injector

	transmissions atomic.Uint64
	dropped       atomic.Uint64
	retries       atomic.Uint64
	acks          atomic.Uint64
	discarded     atomic.Uint64
}

func newCaller(c *codec.Codec, opts Options, name string) (*caller, error) {
	opts.applyDefaults()

	server, err := net.ResolveUDPAddr("udp", opts.ServerAddr)
	if err != nil {
		return nil, &transport.Error{Op: "resolve", Addr: opts.ServerAddr, Err: err}
	}
	ep, err := transport.Listen(opts.LocalAddr)
	if err != nil {
		return nil, err
	}

	return &caller{
		name:    name,
		ep:      ep,
		codec:   c,
		server:  server,
		timeout: opts.Timeout,
		log:     opts.Logger.With(zap.String("socket", name), zap.Stringer("local", ep.LocalAddr())),
		faults:  opts.Injector,
	}, nil
}

// roundTrip runs the retry loop for one logical call and returns the matching
// RESPONSE or ERROR frame.
func (c *caller) roundTrip(ctx context.Context, msg *message.Message, serviceID uint16, kind protocol.FrameKind) (*message.Result, error) {
	id := uuid.New()
	data, err := c.codec.Encode(id, serviceID, kind, msg)
	if err != nil {
		return nil, err
	}
	log := c.log.With(zap.Stringer("correlation_id", id), zap.Uint16("service_id", serviceID))

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if attempt > 1 {
			c.retries.Add(1)
			log.Debug("retrying call", zap.Int("attempt", attempt))
		}

		if n := c.ep.Drain(); n > 0 {
			c.discarded.Add(uint64(n))
			log.Debug("discarded stale datagrams", zap.Int("count", n))
		}

		if c.faults.HasLost(faults.ClientToServer) {
			c.dropped.Add(1)
			log.Info("simulated loss", zap.Stringer("point", faults.ClientToServer), zap.Int("attempt", attempt))
		} else {
			if err := c.ep.Send(data, c.server); err != nil {
				return nil, err
			}
			c.transmissions.Add(1)
		}

		res, err := c.await(ctx, id, log)
		if err != nil {
			return nil, err
		}
		if res == nil {
			continue
		}

		if c.faults.HasLost(faults.ServerToClient) {
			c.dropped.Add(1)
			log.Info("simulated loss", zap.Stringer("point", faults.ServerToClient), zap.Int("attempt", attempt))
			continue
		}
		return res, nil
	}
}

// await waits one round for the reply to id. It returns (nil, nil) when the round
// ends without a usable reply and the call should be retried.
func (c *caller) await(ctx context.Context, id uuid.UUID, log *zap.Logger) (*message.Result, error) {
	r := c.ep.ReceiveContext(ctx, c.timeout)
	switch r.Outcome {
	case transport.Received:
	case transport.TimedOut, transport.WouldBlock:
		log.Debug("no reply within timeout", zap.Duration("timeout", c.timeout))
		return nil, nil
	case transport.Canceled:
		return nil, r.Err
	case transport.Closed:
		return nil, transport.ErrClosed
	default:
		return nil, r.Err
	}

	res, err := c.codec.Decode(r.Data)
	if err != nil {
		c.discarded.Add(1)
		log.Warn("discarding malformed datagram", zap.Stringer("from", r.From), zap.Error(err))
		return nil, nil
	}
	if res.CorrelationID != id {
		c.discarded.Add(1)
		log.Debug("discarding reply for another call", zap.Stringer("got", res.CorrelationID))
		return nil, nil
	}
	if res.Kind != protocol.KindResponse && res.Kind != protocol.KindError {
		c.discarded.Add(1)
		log.Debug("discarding unexpected frame", zap.Stringer("kind", res.Kind))
		return nil, nil
	}
	return res, nil
}

// ack tells the server it may forget the reply to res.
func (c *caller) ack(res *message.Result) {
	log := c.log.With(zap.Stringer("correlation_id", res.CorrelationID), zap.Uint16("service_id", res.ServiceID))

	if c.faults.HasLost(faults.Ack) {
		c.dropped.Add(1)
		log.Info("simulated loss", zap.Stringer("point", faults.Ack))
		return
	}
	data, err := c.codec.Encode(res.CorrelationID, res.ServiceID, protocol.KindAck, message.Ack{})
	if err != nil {
		log.Warn("encode ack failed", zap.Error(err))
		return
	}
	if err := c.ep.Send(data, c.server); err != nil {
		// The call already settled; the server will age the entry out.
		log.Warn("send ack failed", zap.Error(err))
		return
	}
	c.acks.Add(1)
}

func (c *caller) Listen(ctx context.Context) (*message.Result, error) {
	for {
		r := c.ep.ReceiveContext(ctx, 0)
		switch r.Outcome {
		case transport.Received:
		case transport.TimedOut, transport.WouldBlock:
			continue
		case transport.Closed:
			return nil, transport.ErrClosed
		default:
			return nil, r.Err
		}

		res, err := c.codec.Decode(r.Data)
		if err != nil {
			c.discarded.Add(1)
			c.log.Warn("discarding malformed datagram", zap.Stringer("from", r.From), zap.Error(err))
			continue
		}
		return res, nil
	}
}

// TryReceive skips malformed datagrams so they cannot hide valid ones queued
// behind them.
func (c *caller) TryReceive() (*message.Result, error) {
	for {
		r := c.ep.TryReceive()
		switch r.Outcome {
		case transport.Received:
		case transport.WouldBlock, transport.TimedOut:
			return nil, nil
		case transport.Closed:
			return nil, transport.ErrClosed
		default:
			return nil, r.Err
		}

		res, err := c.codec.Decode(r.Data)
		if err != nil {
			c.discarded.Add(1)
			c.log.Warn("discarding malformed datagram", zap.Stringer("from", r.From), zap.Error(err))
			continue
		}
		return res, nil
	}
}

func (c *caller) Close() error {
	return c.ep.Close()
}

func (c *caller) Faults() *faults.Injector { return c.faults }

func (c *caller) LocalAddr() *net.UDPAddr { return c.ep.LocalAddr() }

func (c *caller) ServerAddr() *net.UDPAddr { return c.server }

func (c *caller) String() string { return c.name }

func (c *caller) Stats() Stats {
	return Stats{
		Transmissions: c.transmissions.Load(),
		Dropped:       c.dropped.Load(),
		Retries:       c.retries.Load(),
		Acks:          c.acks.Load(),
		Discarded:     c.discarded.Load(),
	}
}

// IsClosed reports whether err means the socket was closed under the caller.
func IsClosed(err error) bool {
	return errors.Is(err, transport.ErrClosed)
}
