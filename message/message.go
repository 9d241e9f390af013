// Package message defines the values exchanged between client and server.
//
// A Message is a typed record whose field layout lives in the schema registry; the
// wire carries only its values, in schema order. Every decoded frame is delivered as
// a Result whose Body is one of a closed set of variants:
//
//	REQUEST / RESPONSE → *Message      (schema-encoded fields)
//	ERROR              → *ErrorObject  (raw UTF-8 text from the peer)
//	ACK                → Ack           (no body)
package message

import (
	"fmt"
	"math"
	"net"
	"sort"
	"strings"

	"github.com/google/uuid"

	"booking-rpc/protocol"
)

// Fields is the name → value view of a message. Values are int32, string,
// float32 or bool once normalised.
type Fields map[string]any

// Body is the closed union of frame payloads.
type Body interface {
	isBody()
}

// Message is an immutable typed record.
type Message struct {
	typeName string
	values   Fields
}

// New builds a message of the given schema type. The fields map is copied and
// Go-native numeric values are normalised to the wire types: integers that fit
// become int32 (out-of-range ones are kept as is and rejected by the codec), and
// every float64 becomes float32, rounding to the nearest float32.
func New(typeName string, fields Fields) *Message {
	values := make(Fields, len(fields))
	for k, v := range fields {
		values[k] = normalize(v)
	}
	return &Message{typeName: typeName, values: values}
}

func normalize(v any) any {
	switch x := v.(type) {
	case int:
		if x >= math.MinInt32 && x <= math.MaxInt32 {
			return int32(x)
		}
	case int64:
		if x >= math.MinInt32 && x <= math.MaxInt32 {
			return int32(x)
		}
	case int16:
		return int32(x)
	case int8:
		return int32(x)
	case uint16:
		return int32(x)
	case uint8:
		return int32(x)
	case float64:
		return float32(x)
	}
	return v
}

func (*Message) isBody() {}

// TypeName returns the schema type the message claims to be.
func (m *Message) TypeName() string { return m.typeName }

// Len returns the number of populated fields.
func (m *Message) Len() int { return len(m.values) }

// Get returns the raw value of a field.
func (m *Message) Get(name string) (any, bool) {
	v, ok := m.values[name]
	return v, ok
}

// Fields returns a copy of the field values.
func (m *Message) Fields() Fields {
	out := make(Fields, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out
}

// GetInt32 returns the field as int32, or 0 when missing or of another type.
func (m *Message) GetInt32(name string) int32 {
	v, _ := m.values[name].(int32)
	return v
}

// GetString returns the field as string, or "" when missing or of another type.
func (m *Message) GetString(name string) string {
	v, _ := m.values[name].(string)
	return v
}

// GetFloat32 returns the field as float32, or 0 when missing or of another type.
func (m *Message) GetFloat32(name string) float32 {
	v, _ := m.values[name].(float32)
	return v
}

// GetBool returns the field as bool, or false when missing or of another type.
func (m *Message) GetBool(name string) bool {
	v, _ := m.values[name].(bool)
	return v
}

// Equal reports field-for-field equality, including the type name.
func (m *Message) Equal(o *Message) bool {
	if m == nil || o == nil {
		return m == o
	}
	if m.typeName != o.typeName || len(m.values) != len(o.values) {
		return false
	}
	for k, v := range m.values {
		ov, ok := o.values[k]
		if !ok || ov != v {
			return false
		}
	}
	return true
}

func (m *Message) String() string {
	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(m.typeName)
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s=%v", k, m.values[k])
	}
	b.WriteByte('}')
	return b.String()
}

// ErrorObject is the body of an ERROR frame: the peer rejected the call and said why.
// It is handed to callers as data, not as a Go error return, but implements error
// so it can be wrapped when a caller wants to.
type ErrorObject struct {
	Message string
}

func (*ErrorObject) isBody() {}

func (e *ErrorObject) Error() string {
	return "remote error: " + e.Message
}

// Ack is the empty body of an ACK frame.
type Ack struct{}

func (Ack) isBody() {}

// Result is one decoded datagram.
type Result struct {
	Body          Body
	CorrelationID uuid.UUID
	ServiceID     uint16
	Kind          protocol.FrameKind
}

// Message returns the body as a typed message, or nil for ERROR / ACK frames.
func (r *Result) Message() *Message {
	m, _ := r.Body.(*Message)
	return m
}

// ErrorObject returns the body of an ERROR frame, or nil.
func (r *Result) ErrorObject() *ErrorObject {
	e, _ := r.Body.(*ErrorObject)
	return e
}

// Call is what a server handler sees for one REQUEST.
type Call struct {
	ServiceID     uint16
	Service       string // Service name from the schema table
	CorrelationID uuid.UUID
	Peer          net.Addr
	Args          *Message
}
