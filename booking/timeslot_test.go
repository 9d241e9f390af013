package booking

import (
	"errors"
	"testing"
)

func TestParseTimeSlot(t *testing.T) {
	ts, err := ParseTimeSlot("Mon,9,0 - Mon,10,30")
	if err != nil {
		t.Fatal(err)
	}
	want := TimeSlot{Start: Point{Mon, 9, 0}, End: Point{Mon, 10, 30}}
	if ts != want {
		t.Fatalf("expect %+v, got %+v", want, ts)
	}
	if ts.Duration() != 90 {
		t.Fatalf("expect 90 minutes, got %d", ts.Duration())
	}
	if ts.String() != "Mon,9,0 - Mon,10,30" {
		t.Fatalf("unexpected String %q", ts.String())
	}

	// Extra whitespace around the separators is tolerated.
	if _, err := ParseTimeSlot("Tue, 8 ,15 -Tue,9,0"); err != nil {
		t.Fatalf("expect lenient whitespace, got %v", err)
	}
}

func TestParseTimeSlotInvalid(t *testing.T) {
	for _, in := range []string{
		"",
		"Mon,9,0",
		"Mon,9,0 - Mon,10",
		"Monday,9,0 - Mon,10,0",
		"Mon,24,0 - Mon,10,0",
		"Mon,9,60 - Mon,10,0",
		"Mon,x,0 - Mon,10,0",
		"Mon,9,0 - Mon,10,0 - Mon,11,0",
	} {
		if _, err := ParseTimeSlot(in); !errors.Is(err, ErrInvalidSlot) {
			t.Errorf("%q: expect ErrInvalidSlot, got %v", in, err)
		}
	}
}

func TestDurationWrapsWeek(t *testing.T) {
	ts := MustParseTimeSlot("Sun,23,0 - Mon,1,0")
	if ts.Duration() != 120 {
		t.Fatalf("expect 120 minutes across the week boundary, got %d", ts.Duration())
	}
}

func TestShift(t *testing.T) {
	ts := MustParseTimeSlot("Mon,9,0 - Mon,10,0")

	if got := ts.Shift(90).String(); got != "Mon,10,30 - Mon,11,30" {
		t.Fatalf("shift +90: got %s", got)
	}
	if got := ts.Shift(-60).String(); got != "Mon,8,0 - Mon,9,0" {
		t.Fatalf("shift -60: got %s", got)
	}
	if got := ts.Shift(24 * 60).String(); got != "Tue,9,0 - Tue,10,0" {
		t.Fatalf("shift one day: got %s", got)
	}
	if got := ts.Shift(-10 * 60).String(); got != "Sun,23,0 - Mon,0,0" {
		t.Fatalf("shift back over the week start: got %s", got)
	}
}

func TestTimeSlotExtend(t *testing.T) {
	ts := MustParseTimeSlot("Wed,14,0 - Wed,15,0")
	if got := ts.Extend(45).String(); got != "Wed,14,0 - Wed,15,45" {
		t.Fatalf("unexpected extension %s", got)
	}
}

func TestOverlaps(t *testing.T) {
	base := MustParseTimeSlot("Mon,9,0 - Mon,10,0")
	cases := []struct {
		slot string
		want bool
	}{
		{"Mon,9,0 - Mon,10,0", true},
		{"Mon,9,30 - Mon,10,30", true},
		{"Mon,8,30 - Mon,9,1", true},
		{"Mon,8,0 - Mon,11,0", true},
		{"Mon,10,0 - Mon,11,0", false},
		{"Mon,8,0 - Mon,9,0", false},
		{"Tue,9,0 - Tue,10,0", false},
	}
	for _, c := range cases {
		if got := base.Overlaps(MustParseTimeSlot(c.slot)); got != c.want {
			t.Errorf("%s overlaps %s: expect %v, got %v", base, c.slot, c.want, got)
		}
	}
}

func TestParseDays(t *testing.T) {
	days, err := ParseDays("Mon, Wed,Mon")
	if err != nil {
		t.Fatal(err)
	}
	if len(days) != 2 || days[0] != Mon || days[1] != Wed {
		t.Fatalf("unexpected days %v", days)
	}
	if _, err := ParseDays("Mon,Funday"); err == nil {
		t.Fatal("expect an error for an unknown day")
	}
	if _, err := ParseDays(" "); err == nil {
		t.Fatal("expect an error for an empty day list")
	}
}
