package codec

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"

	"booking-rpc/message"
	"booking-rpc/schema"
)

// MaxStringLen is the largest string a 2-byte length prefix can describe.
const MaxStringLen = math.MaxUint16

// appendFields writes msg's values in the order typ declares them.
//
//	int32   -- 4 bytes, big-endian two's complement
//	string  -- 2 bytes length + n bytes UTF-8
//	float32 -- 4 bytes, big-endian IEEE-754
//	bool    -- 1 byte, 0 or 1
func appendFields(buf []byte, typ *schema.Type, msg *message.Message) ([]byte, error) {
	if msg.Len() > len(typ.Fields) {
		for name := range msg.Fields() {
			if !hasField(typ, name) {
				return nil, &EncodingError{Type: typ.Name, Field: name, Reason: "not declared by the schema"}
			}
		}
	}

	for _, f := range typ.Fields {
		v, ok := msg.Get(f.Name)
		if !ok {
			return nil, &EncodingError{Type: typ.Name, Field: f.Name, Reason: "missing value"}
		}

		switch f.Type {
		case schema.Int32:
			n, ok := v.(int32)
			if !ok {
				return nil, mismatch(typ, f, v)
			}
			buf = binary.BigEndian.AppendUint32(buf, uint32(n))

		case schema.String:
			s, ok := v.(string)
			if !ok {
				return nil, mismatch(typ, f, v)
			}
			if len(s) > MaxStringLen {
				return nil, &EncodingError{Type: typ.Name, Field: f.Name,
					Reason: fmt.Sprintf("string of %d bytes exceeds %d", len(s), MaxStringLen)}
			}
			if !utf8.ValidString(s) {
				return nil, &EncodingError{Type: typ.Name, Field: f.Name, Reason: "string is not valid UTF-8"}
			}
			buf = binary.BigEndian.AppendUint16(buf, uint16(len(s)))
			buf = append(buf, s...)

		case schema.Float32:
			x, ok := v.(float32)
			if !ok {
				return nil, mismatch(typ, f, v)
			}
			buf = binary.BigEndian.AppendUint32(buf, math.Float32bits(x))

		case schema.Bool:
			b, ok := v.(bool)
			if !ok {
				return nil, mismatch(typ, f, v)
			}
			if b {
				buf = append(buf, 1)
			} else {
				buf = append(buf, 0)
			}
		}
	}
	return buf, nil
}

func hasField(typ *schema.Type, name string) bool {
	for _, f := range typ.Fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

func mismatch(typ *schema.Type, f schema.Field, v any) error {
	return &EncodingError{Type: typ.Name, Field: f.Name, Reason: fmt.Sprintf("expected %s, got %T", f.Type, v)}
}

// decodeFields reads typ's fields positionally. Running out of bytes exactly on a
// field boundary ends the message early (unless strict); running out inside a
// field, or a length prefix pointing past the end, is a DecodingError.
func (c *Codec) decodeFields(typ *schema.Type, data []byte) (*message.Message, error) {
	values := make(message.Fields, len(typ.Fields))
	offset := 0

	for _, f := range typ.Fields {
		if offset == len(data) {
			if c.strict {
				return nil, &DecodingError{Type: typ.Name, Field: f.Name, Offset: offset, Reason: "missing field"}
			}
			break
		}
		remaining := len(data) - offset

		switch f.Type {
		case schema.Int32:
			if remaining < 4 {
				return nil, truncated(typ, f, offset, 4, remaining)
			}
			values[f.Name] = int32(binary.BigEndian.Uint32(data[offset : offset+4]))
			offset += 4

		case schema.String:
			if remaining < 2 {
				return nil, truncated(typ, f, offset, 2, remaining)
			}
			n := int(binary.BigEndian.Uint16(data[offset : offset+2]))
			if remaining-2 < n {
				return nil, &DecodingError{Type: typ.Name, Field: f.Name, Offset: offset,
					Reason: fmt.Sprintf("length prefix %d exceeds remaining %d bytes", n, remaining-2)}
			}
			offset += 2
			values[f.Name] = string(data[offset : offset+n])
			offset += n

		case schema.Float32:
			if remaining < 4 {
				return nil, truncated(typ, f, offset, 4, remaining)
			}
			values[f.Name] = math.Float32frombits(binary.BigEndian.Uint32(data[offset : offset+4]))
			offset += 4

		case schema.Bool:
			values[f.Name] = data[offset] != 0
			offset++
		}
	}

	if c.strict && offset != len(data) {
		return nil, &DecodingError{Type: typ.Name, Offset: offset,
			Reason: fmt.Sprintf("%d trailing bytes", len(data)-offset)}
	}
	return message.New(typ.Name, values), nil
}

func truncated(typ *schema.Type, f schema.Field, offset, need, have int) error {
	return &DecodingError{Type: typ.Name, Field: f.Name, Offset: offset,
		Reason: fmt.Sprintf("need %d bytes for %s, have %d", need, f.Type, have)}
}
