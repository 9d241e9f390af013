// Package faults simulates packet loss for exercising retry paths.
//
// The injector is count based rather than probabilistic: it drops exactly N packets
// at one configured point and then stops, so a test can assert "exactly N retries"
// instead of reasoning about rates.
//
//	client ──(ClientToServer)──▶ server
//	client ◀──(ServerToClient)── server
//	client ──(Ack)─────────────▶ server
package faults

import (
	"fmt"
	"strings"
	"sync"
)

// Point is a place in the send/receive path where a packet can be suppressed.
type Point uint8

const (
	None           Point = iota // Injector disabled
	ClientToServer              // Outbound request is not transmitted
	ServerToClient              // Inbound reply is discarded after receipt
	Ack                         // Outbound ACK is not transmitted
)

func (p Point) String() string {
	switch p {
	case None:
		return "none"
	case ClientToServer:
		return "client-to-server"
	case ServerToClient:
		return "server-to-client"
	case Ack:
		return "ack"
	default:
		return fmt.Sprintf("Point(%d)", uint8(p))
	}
}

// ParsePoint accepts the names printed by String and the upper-case
// CLIENT_TO_SERVER style spelling.
func ParsePoint(s string) (Point, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-")
	switch norm {
	case "", "none":
		return None, nil
	case "client-to-server", "c2s", "request":
		return ClientToServer, nil
	case "server-to-client", "s2c", "reply":
		return ServerToClient, nil
	case "ack":
		return Ack, nil
	default:
		return None, fmt.Errorf("faults: unknown loss point %q", s)
	}
}

// Injector holds the loss point and the number of drops still to perform.
// The zero value drops nothing. Safe for concurrent use.
type Injector struct {
	mu        sync.Mutex
	point     Point
	remaining int
	dropped   int
}

// New returns an injector that will drop count packets at point.
func New(point Point, count int) *Injector {
	in := &Injector{}
	in.Configure(point, count)
	return in
}

// SetLossPoint changes the point without touching the counter.
func (in *Injector) SetLossPoint(p Point) {
	in.mu.Lock()
	in.point = p
	in.mu.Unlock()
}

// SetDropCount resets the number of packets still to drop. Negative counts are treated as zero.
func (in *Injector) SetDropCount(n int) {
	if n < 0 {
		n = 0
	}
	in.mu.Lock()
	in.remaining = n
	in.mu.Unlock()
}

// Configure sets point and count together.
func (in *Injector) Configure(p Point, n int) {
	if n < 0 {
		n = 0
	}
	in.mu.Lock()
	in.point = p
	in.remaining = n
	in.mu.Unlock()
}

// HasLost reports whether the packet passing point p must be dropped, and
// consumes one drop if so.
func (in *Injector) HasLost(p Point) bool {
	if in == nil {
		return false
	}
	in.mu.Lock()
	defer in.mu.Unlock()

	if p == None || p != in.point || in.remaining == 0 {
		return false
	}
	in.remaining--
	in.dropped++
	return true
}

// LossPoint returns the configured point.
func (in *Injector) LossPoint() Point {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.point
}

// Remaining returns how many drops are still pending.
func (in *Injector) Remaining() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.remaining
}

// Dropped returns how many packets have been dropped since construction.
func (in *Injector) Dropped() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.dropped
}
