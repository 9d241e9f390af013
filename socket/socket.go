// Package socket implements the two invocation-semantics strategies on top of a
// UDP endpoint.
//
// Both strategies share one retry loop (see caller.roundTrip):
//
//	INIT ──drain──▶ loss point ClientToServer ──▶ transmit (or not)
//	  ▲                                              │
//	  │                                              ▼
//	  └──── timeout / foreign id / ServerToClient ◀─ WAIT (Timeout)
//	                                                 │ matching id
//	                                                 ▼
//	                                   ERROR → (nil, ErrorObject)
//	                                   RESPONSE → (reply, nil)
//
// AtMostOnceSocket additionally sends an ACK once the call is settled so the server
// can release the reply it keeps for duplicate suppression. There is no retry
// bound: a call ends with a reply, a canceled context, or Close.
package socket

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"

	"booking-rpc/codec"
	"booking-rpc/faults"
	"booking-rpc/message"
	"booking-rpc/protocol"
)

// DefaultTimeout bounds one wait round.
const DefaultTimeout = 2 * time.Second

// Strategy selects the invocation semantics.
type Strategy uint8

const (
	AtLeastOnce Strategy = iota
	AtMostOnce
)

func (s Strategy) String() string {
	switch s {
	case AtLeastOnce:
		return "at-least-once"
	case AtMostOnce:
		return "at-most-once"
	default:
		return fmt.Sprintf("Strategy(%d)", uint8(s))
	}
}

// ParseStrategy accepts "at-least-once" / "at-most-once" and common spellings.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-") {
	case "at-least-once", "atleastonce", "alo", "":
		return AtLeastOnce, nil
	case "at-most-once", "atmostonce", "amo":
		return AtMostOnce, nil
	default:
		return AtLeastOnce, fmt.Errorf("socket: unknown invocation semantics %q", s)
	}
}

// Socket is the contract both strategies implement.
type Socket interface {
	// Send performs one logical call and blocks until it settles. A remote ERROR
	// frame is returned as data in the second value; the error value is reserved
	// for local failures (encoding, transport, cancellation, Close).
	Send(ctx context.Context, msg *message.Message, serviceID uint16, kind protocol.FrameKind) (*message.Message, *message.ErrorObject, error)

	// Listen blocks until one decodable datagram arrives.
	Listen(ctx context.Context) (*message.Result, error)

	// TryReceive returns the next decodable queued datagram without blocking.
	// Malformed datagrams are discarded on the way; (nil, nil) means the queue is
	// empty.
	TryReceive() (*message.Result, error)

	Close() error

	Faults() *faults.Injector
	Stats() Stats
	LocalAddr() *net.UDPAddr
	ServerAddr() *net.UDPAddr
	String() string
}

// Options configures a socket. Zero values fall back to defaults.
type Options struct {
	LocalAddr  string        // Default ":11999"
	ServerAddr string        // Default "127.0.0.1:12000"
	Timeout    time.Duration // Per-round wait, default DefaultTimeout
	Logger     *zap.Logger
	Injector   *faults.Injector // Default: drops nothing
}

func (o *Options) applyDefaults() {
	if o.LocalAddr == "" {
		o.LocalAddr = fmt.Sprintf(":%d", protocol.DefaultClientPort)
	}
	if o.ServerAddr == "" {
		o.ServerAddr = fmt.Sprintf("127.0.0.1:%d", protocol.DefaultServerPort)
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Injector == nil {
		o.Injector = &faults.Injector{}
	}
}

// New builds the socket for the chosen strategy.
func New(strategy Strategy, c *codec.Codec, opts Options) (Socket, error) {
	switch strategy {
	case AtLeastOnce:
		return NewAtLeastOnce(c, opts)
	case AtMostOnce:
		return NewAtMostOnce(c, opts)
	default:
		return nil, fmt.Errorf("socket: unknown strategy %v", strategy)
	}
}

// AtLeastOnceSocket retries until it sees a reply. The server may execute the same
// call more than once, so only idempotent operations belong here.
type AtLeastOnceSocket struct {
	*caller
}

func NewAtLeastOnce(c *codec.Codec, opts Options) (*AtLeastOnceSocket, error) {
	cl, err := newCaller(c, opts, "AtLeastOnceSocket")
	if err != nil {
		return nil, err
	}
	return &AtLeastOnceSocket{caller: cl}, nil
}

func (s *AtLeastOnceSocket) Send(ctx context.Context, msg *message.Message, serviceID uint16, kind protocol.FrameKind) (*message.Message, *message.ErrorObject, error) {
	res, err := s.roundTrip(ctx, msg, serviceID, kind)
	if err != nil {
		return nil, nil, err
	}
	reply, remote := split(res)
	return reply, remote, nil
}

// AtMostOnceSocket acknowledges every settled call so the server, which replays
// its cached reply to duplicates instead of re-executing, can forget it.
type AtMostOnceSocket struct {
	*caller
}

func NewAtMostOnce(c *codec.Codec, opts Options) (*AtMostOnceSocket, error) {
	cl, err := newCaller(c, opts, "AtMostOnceSocket")
	if err != nil {
		return nil, err
	}
	return &AtMostOnceSocket{caller: cl}, nil
}

func (s *AtMostOnceSocket) Send(ctx context.Context, msg *message.Message, serviceID uint16, kind protocol.FrameKind) (*message.Message, *message.ErrorObject, error) {
	res, err := s.roundTrip(ctx, msg, serviceID, kind)
	if err != nil {
		return nil, nil, err
	}
	s.ack(res)
	reply, remote := split(res)
	return reply, remote, nil
}

func split(res *message.Result) (*message.Message, *message.ErrorObject) {
	if eo := res.ErrorObject(); eo != nil {
		return nil, eo
	}
	return res.Message(), nil
}

var (
	_ Socket = (*AtLeastOnceSocket)(nil)
	_ Socket = (*AtMostOnceSocket)(nil)
)
