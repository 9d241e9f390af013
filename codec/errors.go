package codec

import "fmt"

// EncodingError reports a value that cannot be represented on the wire.
type EncodingError struct {
	Type   string // Schema type being encoded
	Field  string // Empty when the problem is not field specific
	Reason string
}

func (e *EncodingError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("codec: encode %s: %s", e.Type, e.Reason)
	}
	return fmt.Sprintf("codec: encode %s.%s: %s", e.Type, e.Field, e.Reason)
}

// DecodingError reports a malformed or truncated datagram.
type DecodingError struct {
	Type   string
	Field  string
	Offset int // Byte offset into the body where decoding stopped
	Reason string
	Err    error
}

func (e *DecodingError) Error() string {
	where := "header"
	if e.Type != "" {
		where = e.Type
		if e.Field != "" {
			where += "." + e.Field
		}
	}
	msg := fmt.Sprintf("codec: decode %s at offset %d: %s", where, e.Offset, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodingError) Unwrap() error { return e.Err }

// UnknownServiceError is returned when a service id has no entry in the table.
type UnknownServiceError struct {
	ServiceID uint16
}

func (e *UnknownServiceError) Error() string {
	return fmt.Sprintf("codec: unknown service id %d", e.ServiceID)
}

// UnknownTypeError is returned when a service names a type that has no schema entry,
// or when a message's type does not match the one the service expects.
type UnknownTypeError struct {
	ServiceID uint16
	TypeName  string
	Expected  string // Set on a type mismatch
}

func (e *UnknownTypeError) Error() string {
	if e.Expected != "" {
		return fmt.Sprintf("codec: service %d expects type %s, got %s", e.ServiceID, e.Expected, e.TypeName)
	}
	return fmt.Sprintf("codec: service %d refers to unknown type %s", e.ServiceID, e.TypeName)
}
