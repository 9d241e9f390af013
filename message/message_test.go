package message

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"booking-rpc/protocol"
)

func TestNewNormalizesValues(t *testing.T) {
	m := New("Person", Fields{
		"age":       30,
		"height":    1.75,
		"name":      "alice",
		"isStudent": true,
	})

	if v, _ := m.Get("age"); v != int32(30) {
		t.Fatalf("expect int32 age, got %T", v)
	}
	if v, _ := m.Get("height"); v != float32(1.75) {
		t.Fatalf("expect float32 height, got %T", v)
	}
	if m.GetString("name") != "alice" || !m.GetBool("isStudent") {
		t.Fatalf("unexpected values: %s", m)
	}
}

func TestNewKeepsOutOfRangeInt(t *testing.T) {
	m := New("T", Fields{"big": int64(1) << 40})
	if _, ok := m.values["big"].(int64); !ok {
		t.Fatalf("expect out-of-range value kept as int64, got %T", m.values["big"])
	}
}

func TestNewRoundsFloat64(t *testing.T) {
	m := New("T", Fields{"u": 0.1})
	if v, _ := m.Get("u"); v != float32(0.1) {
		t.Fatalf("expect float64 rounded to float32, got %T %v", v, v)
	}
}

func TestMessageImmutable(t *testing.T) {
	src := Fields{"a": int32(1)}
	m := New("T", src)
	src["a"] = int32(2)

	out := m.Fields()
	out["a"] = int32(3)

	if m.GetInt32("a") != 1 {
		t.Fatalf("message was mutated through an alias: %s", m)
	}
}

func TestEqual(t *testing.T) {
	a := New("T", Fields{"x": 1, "y": "s"})
	b := New("T", Fields{"x": int32(1), "y": "s"})
	c := New("U", Fields{"x": 1, "y": "s"})
	d := New("T", Fields{"x": 1})

	if !a.Equal(b) {
		t.Error("expect a == b")
	}
	if a.Equal(c) || a.Equal(d) {
		t.Error("expect different type name / field count to be unequal")
	}
	var nilMsg *Message
	if a.Equal(nilMsg) || !nilMsg.Equal(nil) {
		t.Error("unexpected nil comparison")
	}
}

func TestString(t *testing.T) {
	m := New("T", Fields{"b": true, "a": 1})
	if got := m.String(); got != "T{a=1, b=true}" {
		t.Fatalf("unexpected String: %s", got)
	}
}

func TestResultAccessors(t *testing.T) {
	id := uuid.New()
	r := &Result{Body: &ErrorObject{Message: "no such facility"}, CorrelationID: id, Kind: protocol.KindError}
	if r.Message() != nil {
		t.Fatal("expect nil Message for ERROR frame")
	}
	eo := r.ErrorObject()
	if eo == nil || eo.Message != "no such facility" {
		t.Fatalf("unexpected error object: %+v", eo)
	}

	var err error = eo
	var target *ErrorObject
	if !errors.As(err, &target) {
		t.Fatal("expect ErrorObject to be usable as an error")
	}
}
