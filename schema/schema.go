// Package schema holds the field-layout and service tables shared by both peers.
//
// The wire format carries no field names, so both sides must hold byte-identical
// tables: a type is an ordered list of (name, primitive type) pairs, and a service
// id is the only indirection from a number on the wire to a request/response pair.
//
//	Types:    "BookFacilityReq"  → [(facilityName, string), (timeSlot, string)]
//	Services: 2                  → {BookFacility, BookFacilityReq, BookFacilityResp}
package schema

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// FieldType is one of the four primitive types the codec can put on the wire.
type FieldType uint8

const (
	Int32   FieldType = 1 // 4 bytes, big-endian two's complement
	String  FieldType = 2 // 2-byte big-endian length prefix + UTF-8
	Float32 FieldType = 3 // 4 bytes, big-endian IEEE-754
	Bool    FieldType = 4 // 1 byte, 0 or 1
)

func (t FieldType) String() string {
	switch t {
	case Int32:
		return "int32"
	case String:
		return "string"
	case Float32:
		return "float32"
	case Bool:
		return "bool"
	default:
		return fmt.Sprintf("FieldType(%d)", uint8(t))
	}
}

// ParseFieldType accepts both the short names used by the JSON definition files
// ("int", "str", "float") and the Go-ish names.
func ParseFieldType(s string) (FieldType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "int", "int32":
		return Int32, nil
	case "str", "string":
		return String, nil
	case "float", "float32":
		return Float32, nil
	case "bool", "boolean":
		return Bool, nil
	default:
		return 0, fmt.Errorf("schema: unsupported field type %q", s)
	}
}

// Field is one positional slot of a Type.
type Field struct {
	Name string
	Type FieldType
}

// Type is a named, ordered field layout.
type Type struct {
	Name   string
	Fields []Field
}

// Service maps a wire service id to its request and response type names.
type Service struct {
	ID       uint16
	Name     string
	Request  string
	Response string
}

var (
	ErrDuplicateType    = errors.New("schema: duplicate type name")
	ErrDuplicateService = errors.New("schema: duplicate service id")
	ErrDuplicateField   = errors.New("schema: duplicate field name")
)

// Registry is the immutable lookup structure built from the two tables.
// It is safe for concurrent use because nothing mutates it after NewRegistry.
type Registry struct {
	types    map[string]*Type
	services map[uint16]*Service
	byName   map[string]*Service
}

// NewRegistry validates and indexes the tables. References from services to
// types are not checked here: a missing type surfaces as an UnknownTypeError at
// decode time, which is what the peer would observe anyway.
func NewRegistry(types []Type, services []Service) (*Registry, error) {
	r := &Registry{
		types:    make(map[string]*Type, len(types)),
		services: make(map[uint16]*Service, len(services)),
		byName:   make(map[string]*Service, len(services)),
	}

	for i := range types {
		t := types[i]
		if strings.TrimSpace(t.Name) == "" {
			return nil, fmt.Errorf("schema: type[%d] has no name", i)
		}
		if _, ok := r.types[t.Name]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateType, t.Name)
		}
		seen := make(map[string]struct{}, len(t.Fields))
		fields := make([]Field, len(t.Fields))
		for j, f := range t.Fields {
			if strings.TrimSpace(f.Name) == "" {
				return nil, fmt.Errorf("schema: type %s field[%d] has no name", t.Name, j)
			}
			if _, ok := seen[f.Name]; ok {
				return nil, fmt.Errorf("%w: %s.%s", ErrDuplicateField, t.Name, f.Name)
			}
			if f.Type < Int32 || f.Type > Bool {
				return nil, fmt.Errorf("schema: type %s field %s: invalid type %d", t.Name, f.Name, f.Type)
			}
			seen[f.Name] = struct{}{}
			fields[j] = f
		}
		r.types[t.Name] = &Type{Name: t.Name, Fields: fields}
	}

	for i := range services {
		s := services[i]
		if _, ok := r.services[s.ID]; ok {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateService, s.ID)
		}
		r.services[s.ID] = &s
		if s.Name != "" {
			r.byName[s.Name] = &s
		}
	}
	return r, nil
}

// Type looks up a field layout by type name.
func (r *Registry) Type(name string) (*Type, bool) {
	t, ok := r.types[name]
	return t, ok
}

// Service looks up a service entry by wire id.
func (r *Registry) Service(id uint16) (*Service, bool) {
	s, ok := r.services[id]
	return s, ok
}

// ServiceByName looks up a service entry by its name.
func (r *Registry) ServiceByName(name string) (*Service, bool) {
	s, ok := r.byName[name]
	return s, ok
}

// Services returns the service entries ordered by id.
func (r *Registry) Services() []Service {
	out := make([]Service, 0, len(r.services))
	for _, s := range r.services {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out
}
