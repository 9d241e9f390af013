// Package codec marshals typed messages into booking-rpc datagrams and back.
//
// The codec is a pure function of its inputs and the (immutable) schema registry:
//
//	Encode(id, service, kind, body) → protocol header ++ body bytes
//	Decode(datagram)                → message.Result
//
// REQUEST and RESPONSE bodies are the declared fields of the service's request or
// response type, in schema order, with no names or tags on the wire.
package codec

import (
	"unicode/utf8"

	"github.com/google/uuid"

	"booking-rpc/message"
	"booking-rpc/protocol"
	"booking-rpc/schema"
)

// Codec is safe for concurrent use.
type Codec struct {
	reg    *schema.Registry
	strict bool
}

// Option configures a Codec.
type Option func(*Codec)

// WithStrict makes Decode reject bodies that end before every declared field has
// been read, and bodies with trailing bytes. By default a body that ends on a field
// boundary yields a partially populated message.
func WithStrict() Option {
	return func(c *Codec) { c.strict = true }
}

func New(reg *schema.Registry, opts ...Option) *Codec {
	c := &Codec{reg: reg}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Registry returns the schema the codec was built with.
func (c *Codec) Registry() *schema.Registry { return c.reg }

// ResolveType returns the schema type carried by frames of the given kind for a
// service: the request type for REQUEST, the response type otherwise.
func (c *Codec) ResolveType(serviceID uint16, kind protocol.FrameKind) (*schema.Type, error) {
	svc, ok := c.reg.Service(serviceID)
	if !ok {
		return nil, &UnknownServiceError{ServiceID: serviceID}
	}
	name := svc.Response
	if kind == protocol.KindRequest {
		name = svc.Request
	}
	typ, ok := c.reg.Type(name)
	if !ok {
		return nil, &UnknownTypeError{ServiceID: serviceID, TypeName: name}
	}
	return typ, nil
}

// Encode builds one datagram. body must be a *message.Message for REQUEST and
// RESPONSE, a *message.ErrorObject for ERROR, and is ignored for ACK.
func (c *Codec) Encode(correlationID uuid.UUID, serviceID uint16, kind protocol.FrameKind, body message.Body) ([]byte, error) {
	h := protocol.Header{CorrelationID: correlationID, ServiceID: serviceID, Kind: kind}
	buf := make([]byte, 0, 64)
	buf = protocol.AppendHeader(buf, h)

	switch kind {
	case protocol.KindRequest, protocol.KindResponse:
		msg, ok := body.(*message.Message)
		if !ok || msg == nil {
			return nil, &EncodingError{Type: kind.String(), Reason: "body must be a typed message"}
		}
		typ, err := c.ResolveType(serviceID, kind)
		if err != nil {
			return nil, err
		}
		if msg.TypeName() != typ.Name {
			return nil, &UnknownTypeError{ServiceID: serviceID, TypeName: msg.TypeName(), Expected: typ.Name}
		}
		return appendFields(buf, typ, msg)

	case protocol.KindError:
		eo, ok := body.(*message.ErrorObject)
		if !ok || eo == nil {
			return nil, &EncodingError{Type: kind.String(), Reason: "body must be an error object"}
		}
		if !utf8.ValidString(eo.Message) {
			return nil, &EncodingError{Type: kind.String(), Reason: "message is not valid UTF-8"}
		}
		return append(buf, eo.Message...), nil

	case protocol.KindAck:
		return buf, nil

	default:
		return nil, &EncodingError{Type: kind.String(), Reason: "invalid frame kind"}
	}
}

// Decode parses one datagram.
func (c *Codec) Decode(data []byte) (*message.Result, error) {
	h, body, err := protocol.Decode(data)
	if err != nil {
		return nil, &DecodingError{Reason: "bad header", Err: err}
	}

	res := &message.Result{
		CorrelationID: h.CorrelationID,
		ServiceID:     h.ServiceID,
		Kind:          h.Kind,
	}

	switch h.Kind {
	case protocol.KindRequest, protocol.KindResponse:
		typ, err := c.ResolveType(h.ServiceID, h.Kind)
		if err != nil {
			return nil, err
		}
		msg, err := c.decodeFields(typ, body)
		if err != nil {
			return nil, err
		}
		res.Body = msg
	case protocol.KindError:
		res.Body = &message.ErrorObject{Message: string(body)}
	case protocol.KindAck:
		res.Body = message.Ack{}
	}
	return res, nil
}
