// Package protocol implements the datagram envelope shared by every booking-rpc frame.
//
// UDP already preserves message boundaries, so unlike a stream protocol there is no
// magic number or body length: one datagram is one frame. The fixed 19-byte header
// identifies the logical call, the service it targets and the role of the frame.
//
// Frame format:
//
//	0                16    18 19
//	┌────────────────┬─────┬──┬───────────────────────────┐
//	│ correlation id │ svc │fk│ body ...                  │
//	│  16 bytes      │ u16 │u8│ schema fields / UTF-8 / ∅ │
//	└────────────────┴─────┴──┴───────────────────────────┘
//
// All integers are big-endian (network byte order).
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const (
	HeaderSize = 19 // 16 (correlation id) + 2 (service id) + 1 (frame kind)

	// MaxDatagramSize bounds every frame; payloads are never fragmented.
	MaxDatagramSize = 4096

	DefaultClientPort = 11999
	DefaultServerPort = 12000
)

// FrameKind tells the receiver how to interpret the body.
type FrameKind byte

const (
	KindRequest  FrameKind = 0 // Caller → peer, schema-encoded request type (also used for pushed notifications)
	KindResponse FrameKind = 1 // Peer → caller, schema-encoded response type
	KindError    FrameKind = 2 // Peer → caller, raw UTF-8 message filling the rest of the datagram
	KindAck      FrameKind = 3 // Caller → peer, header only; releases the peer's cached reply
)

func (k FrameKind) String() string {
	switch k {
	case KindRequest:
		return "REQUEST"
	case KindResponse:
		return "RESPONSE"
	case KindError:
		return "ERROR"
	case KindAck:
		return "ACK"
	default:
		return fmt.Sprintf("FrameKind(%d)", byte(k))
	}
}

// Valid reports whether k is one of the four defined kinds.
func (k FrameKind) Valid() bool {
	return k <= KindAck
}

var (
	ErrShortHeader      = errors.New("protocol: datagram shorter than header")
	ErrInvalidFrameKind = errors.New("protocol: invalid frame kind")
)

// Header is the fixed envelope. It is created once per logical call and reused,
// unchanged, for every retransmission of that call.
type Header struct {
	CorrelationID uuid.UUID // Matches replies to calls across retries
	ServiceID     uint16    // Index into the service table
	Kind          FrameKind
}

// NewHeader returns a header with a fresh random correlation id.
func NewHeader(serviceID uint16, kind FrameKind) Header {
	return Header{
		CorrelationID: uuid.New(),
		ServiceID:     serviceID,
		Kind:          kind,
	}
}

// AppendHeader appends the 19 header bytes to dst.
func AppendHeader(dst []byte, h Header) []byte {
	dst = append(dst, h.CorrelationID[:]...)
	dst = binary.BigEndian.AppendUint16(dst, h.ServiceID)
	return append(dst, byte(h.Kind))
}

// Encode builds a complete datagram: header followed by body (body may be nil).
func Encode(h Header, body []byte) []byte {
	buf := make([]byte, 0, HeaderSize+len(body))
	buf = AppendHeader(buf, h)
	return append(buf, body...)
}

// Decode splits a datagram into its header and body. The body aliases data.
func Decode(data []byte) (Header, []byte, error) {
	if len(data) < HeaderSize {
		return Header{}, nil, fmt.Errorf("%w: %d bytes", ErrShortHeader, len(data))
	}

	var h Header
	copy(h.CorrelationID[:], data[0:16])
	h.ServiceID = binary.BigEndian.Uint16(data[16:18])
	h.Kind = FrameKind(data[18])
	if !h.Kind.Valid() {
		return h, nil, fmt.Errorf("%w: %d", ErrInvalidFrameKind, data[18])
	}
	return h, data[HeaderSize:], nil
}
