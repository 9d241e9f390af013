// Package transport owns the raw UDP endpoint underneath the invocation sockets
// and the server.
//
// Every read reports an explicit Outcome instead of folding "nothing yet" into an
// error, so the retry loops above can tell a quiet network apart from a dead socket:
//
//	Received   -- one datagram, copied out of the shared buffer
//	WouldBlock -- TryReceive found the queue empty
//	TimedOut   -- Receive waited the full bound
//	Canceled   -- the caller's context ended the wait
//	Closed     -- Close was called (before or during the read)
//	Failed     -- OS-level socket error, see ReadResult.Err
//
// Reads are serialised by a mutex; writes are not, because a single sendto on a
// datagram socket is atomic.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"booking-rpc/protocol"
)

// nonBlockingWindow is the deadline used for a poll. A deadline already in the past
// makes the runtime fail the read before it even tries the socket, so the poll uses
// a deadline just far enough ahead for one read attempt.
const nonBlockingWindow = time.Millisecond

var (
	ErrClosed           = errors.New("transport: endpoint closed")
	ErrDatagramTooLarge = fmt.Errorf("transport: datagram exceeds %d bytes", protocol.MaxDatagramSize)
)

// Error wraps an OS-level socket failure.
type Error struct {
	Op   string // "listen", "read" or "write"
	Addr string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transport: %s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Outcome classifies a read attempt.
type Outcome uint8

const (
	Received Outcome = iota
	WouldBlock
	TimedOut
	Canceled
	Closed
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Received:
		return "received"
	case WouldBlock:
		return "would-block"
	case TimedOut:
		return "timed-out"
	case Canceled:
		return "canceled"
	case Closed:
		return "closed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("Outcome(%d)", uint8(o))
	}
}

// ReadResult is the outcome of one read. Data and From are set only for Received;
// Err only for Failed and Canceled.
type ReadResult struct {
	Outcome Outcome
	Data    []byte
	From    *net.UDPAddr
	Err     error
}

// Endpoint is one bound UDP socket.
type Endpoint struct {
	conn   *net.UDPConn
	closed atomic.Bool

	readMu sync.Mutex // Guards buf and the read deadline
	buf    []byte
}

// Listen binds a UDP endpoint. Use port 0 to let the OS choose.
func Listen(addr string) (*Endpoint, error) {
	laddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, &Error{Op: "listen", Addr: addr, Err: err}
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, &Error{Op: "listen", Addr: addr, Err: err}
	}
	return &Endpoint{
		conn: conn,
		buf:  make([]byte, protocol.MaxDatagramSize),
	}, nil
}

// LocalAddr returns the bound address.
func (e *Endpoint) LocalAddr() *net.UDPAddr {
	return e.conn.LocalAddr().(*net.UDPAddr)
}

// Send transmits one datagram.
func (e *Endpoint) Send(data []byte, to net.Addr) error {
	if e.closed.Load() {
		return ErrClosed
	}
	if len(data) > protocol.MaxDatagramSize {
		return ErrDatagramTooLarge
	}
	if _, err := e.conn.WriteTo(data, to); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return ErrClosed
		}
		return &Error{Op: "write", Addr: to.String(), Err: err}
	}
	return nil
}

// Receive waits up to timeout for one datagram. A non-positive timeout waits
// until a datagram arrives or the endpoint is closed.
func (e *Endpoint) Receive(timeout time.Duration) ReadResult {
	return e.ReceiveContext(context.Background(), timeout)
}

// ReceiveContext is Receive with cancellation: when ctx ends the pending read is
// woken up and reports Canceled.
func (e *Endpoint) ReceiveContext(ctx context.Context, timeout time.Duration) ReadResult {
	if err := ctx.Err(); err != nil {
		return ReadResult{Outcome: Canceled, Err: err}
	}

	e.readMu.Lock()
	defer e.readMu.Unlock()

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if err := e.conn.SetReadDeadline(deadline); err != nil {
		return e.classify(err, TimedOut)
	}

	stop := context.AfterFunc(ctx, func() {
		// Wake the blocked read; the next read sets its own deadline.
		_ = e.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	res := e.read(TimedOut)
	if res.Outcome == TimedOut && ctx.Err() != nil {
		return ReadResult{Outcome: Canceled, Err: ctx.Err()}
	}
	return res
}

// TryReceive makes one non-blocking read attempt.
func (e *Endpoint) TryReceive() ReadResult {
	e.readMu.Lock()
	defer e.readMu.Unlock()

	if err := e.conn.SetReadDeadline(time.Now().Add(nonBlockingWindow)); err != nil {
		return e.classify(err, WouldBlock)
	}
	return e.read(WouldBlock)
}

// Drain discards every datagram already queued on the socket and returns how many
// were dropped. Used before each (re)transmission so that a late reply from an
// earlier round cannot be taken for the reply to the current one.
func (e *Endpoint) Drain() int {
	n := 0
	for {
		res := e.TryReceive()
		if res.Outcome != Received {
			return n
		}
		n++
	}
}

// Close releases the socket and unblocks any pending read, which reports Closed.
func (e *Endpoint) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	return e.conn.Close()
}

// Closed reports whether Close has been called.
func (e *Endpoint) Closed() bool { return e.closed.Load() }

func (e *Endpoint) read(onDeadline Outcome) ReadResult {
	n, from, err := e.conn.ReadFromUDP(e.buf)
	if err != nil {
		return e.classify(err, onDeadline)
	}
	data := make([]byte, n)
	copy(data, e.buf[:n])
	return ReadResult{Outcome: Received, Data: data, From: from}
}

func (e *Endpoint) classify(err error, onDeadline Outcome) ReadResult {
	switch {
	case e.closed.Load() || errors.Is(err, net.ErrClosed):
		return ReadResult{Outcome: Closed}
	case errors.Is(err, os.ErrDeadlineExceeded):
		return ReadResult{Outcome: onDeadline}
	default:
		return ReadResult{Outcome: Failed, Err: &Error{Op: "read", Addr: e.conn.LocalAddr().String(), Err: err}}
	}
}
