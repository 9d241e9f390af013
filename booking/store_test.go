package booking

import (
	"errors"
	"net"
	"strconv"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore("Library", "Gym")
	n := 0
	s.newID = func() string {
		n++
		return "booking-" + strconv.Itoa(n)
	}
	return s
}

func mustBook(t *testing.T, s *Store, facility, slot string) Booking {
	t.Helper()
	b, err := s.Book(facility, MustParseTimeSlot(slot))
	if err != nil {
		t.Fatalf("book %s %s: %v", facility, slot, err)
	}
	return b
}

func TestBook(t *testing.T) {
	s := NewStore("Library")
	b := mustBook(t, s, "Library", "Mon,9,0 - Mon,10,30")
	if b.ConfirmationID == "" || b.Facility != "Library" {
		t.Fatalf("unexpected booking %+v", b)
	}
	got, ok := s.Get(b.ConfirmationID)
	if !ok || got != b {
		t.Fatalf("expect stored booking %+v, got %+v", b, got)
	}
}

func TestBookRules(t *testing.T) {
	s := newTestStore(t)
	mustBook(t, s, "Library", "Mon,9,0 - Mon,10,0")

	cases := []struct {
		facility string
		slot     string
		want     error
	}{
		{"Pool", "Mon,9,0 - Mon,10,0", ErrFacilityNotFound},
		{"", "Mon,9,0 - Mon,10,0", ErrInvalidArgument},
		{"Library", "Mon,9,30 - Mon,10,30", ErrUnavailable},
		{"Library", "Mon,18,0 - Tue,9,0", ErrMultiDay},
		{"Library", "Mon,7,30 - Mon,9,0", ErrOutsideHours},
		{"Library", "Mon,19,0 - Mon,20,1", ErrOutsideHours},
		{"Library", "Mon,11,0 - Mon,11,0", ErrEmptySlot},
		{"Library", "Mon,12,0 - Mon,11,0", ErrEmptySlot},
	}
	for _, c := range cases {
		if _, err := s.Book(c.facility, MustParseTimeSlot(c.slot)); !errors.Is(err, c.want) {
			t.Errorf("%s %s: expect %v, got %v", c.facility, c.slot, c.want, err)
		}
	}

	// Adjacent bookings and the full opening window edges are fine.
	mustBook(t, s, "Library", "Mon,8,0 - Mon,9,0")
	mustBook(t, s, "Library", "Mon,10,0 - Mon,20,0")
	// Same slot at another facility does not conflict.
	mustBook(t, s, "Gym", "Mon,9,0 - Mon,10,0")
}

func TestEdit(t *testing.T) {
	s := newTestStore(t)
	b := mustBook(t, s, "Library", "Mon,9,0 - Mon,10,0")
	mustBook(t, s, "Library", "Mon,12,0 - Mon,13,0")

	moved, err := s.Edit(b.ConfirmationID, 30)
	if err != nil {
		t.Fatal(err)
	}
	if moved.Slot.String() != "Mon,9,30 - Mon,10,30" {
		t.Fatalf("unexpected slot %s", moved.Slot)
	}

	// Moving onto the other booking fails and leaves the booking where it was.
	if _, err := s.Edit(b.ConfirmationID, 150); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expect ErrUnavailable, got %v", err)
	}
	if got, _ := s.Get(b.ConfirmationID); got.Slot != moved.Slot {
		t.Fatalf("failed edit must not change the booking, got %s", got.Slot)
	}

	// A booking may overlap its own previous position.
	if _, err := s.Edit(b.ConfirmationID, -15); err != nil {
		t.Fatalf("self overlap must be allowed, got %v", err)
	}

	if _, err := s.Edit(b.ConfirmationID, -120); !errors.Is(err, ErrOutsideHours) {
		t.Fatalf("expect ErrOutsideHours, got %v", err)
	}
	if _, err := s.Edit("nope", 10); !errors.Is(err, ErrBookingNotFound) {
		t.Fatalf("expect ErrBookingNotFound, got %v", err)
	}
}

func TestExtend(t *testing.T) {
	s := newTestStore(t)
	b := mustBook(t, s, "Gym", "Fri,18,0 - Fri,19,0")

	ext, err := s.Extend(b.ConfirmationID, 60)
	if err != nil {
		t.Fatal(err)
	}
	if ext.Slot.String() != "Fri,18,0 - Fri,20,0" {
		t.Fatalf("unexpected slot %s", ext.Slot)
	}
	if _, err := s.Extend(b.ConfirmationID, 1); !errors.Is(err, ErrOutsideHours) {
		t.Fatalf("expect ErrOutsideHours past closing, got %v", err)
	}
	if _, err := s.Extend(b.ConfirmationID, 0); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expect ErrInvalidArgument for zero minutes, got %v", err)
	}
	if _, err := s.Extend(b.ConfirmationID, MaxExtension+1); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expect ErrInvalidArgument beyond the maximum, got %v", err)
	}
}

func TestCancel(t *testing.T) {
	s := newTestStore(t)
	b := mustBook(t, s, "Library", "Tue,9,0 - Tue,10,0")

	if _, err := s.Cancel(b.ConfirmationID); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Get(b.ConfirmationID); ok {
		t.Fatal("cancelled booking still present")
	}
	// Cancelling twice is not idempotent.
	if _, err := s.Cancel(b.ConfirmationID); !errors.Is(err, ErrBookingNotFound) {
		t.Fatalf("expect ErrBookingNotFound, got %v", err)
	}
	// The slot is free again.
	mustBook(t, s, "Library", "Tue,9,0 - Tue,10,0")
}

func TestAvailability(t *testing.T) {
	s := newTestStore(t)
	mustBook(t, s, "Library", "Mon,10,30 - Mon,12,0")
	mustBook(t, s, "Library", "Mon,9,0 - Mon,10,0")
	mustBook(t, s, "Library", "Wed,8,0 - Wed,20,0")

	days := []Day{Mon, Wed, Tue}
	free, err := s.Availability("Library", days)
	if err != nil {
		t.Fatal(err)
	}
	got := FormatAvailability(days, free)
	want := "Mon: 08:00 - 09:00, 10:00 - 10:30, 12:00 - 20:00; Wed: none; Tue: 08:00 - 20:00"
	if got != want {
		t.Fatalf("expect %q, got %q", want, got)
	}

	if _, err := s.Availability("Pool", days); !errors.Is(err, ErrFacilityNotFound) {
		t.Fatalf("expect ErrFacilityNotFound, got %v", err)
	}
	if _, err := s.Availability("Library", nil); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expect ErrInvalidArgument, got %v", err)
	}
}

func TestUtilisation(t *testing.T) {
	s := newTestStore(t)
	u, n, err := s.Utilisation("Gym")
	if err != nil || u != 0 || n != 0 {
		t.Fatalf("expect an empty facility, got %v %d %v", u, n, err)
	}

	mustBook(t, s, "Gym", "Mon,8,0 - Mon,20,0")
	mustBook(t, s, "Gym", "Tue,8,0 - Tue,14,0")
	u, n, err = s.Utilisation("Gym")
	if err != nil {
		t.Fatal(err)
	}
	// 18 booked hours out of 84 open hours per week.
	if n != 2 || u != float32(18*60)/float32(84*60) {
		t.Fatalf("unexpected utilisation %v with %d bookings", u, n)
	}
}

func TestMonitors(t *testing.T) {
	s := newTestStore(t)
	now := time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	a := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 11999}
	b := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 12001}

	if _, err := s.AddMonitor("Library", a, 10*time.Minute); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddMonitor("Library", b, time.Minute); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddMonitor("Gym", a, time.Minute); err != nil {
		t.Fatal(err)
	}
	// Re-registering replaces instead of duplicating.
	if _, err := s.AddMonitor("Library", a, 10*time.Minute); err != nil {
		t.Fatal(err)
	}
	if got := s.Monitors("Library"); len(got) != 2 {
		t.Fatalf("expect 2 Library monitors, got %d", len(got))
	}

	now = now.Add(2 * time.Minute)
	got := s.Monitors("Library")
	if len(got) != 1 || got[0].Addr.String() != a.String() {
		t.Fatalf("expect only the long-lived monitor, got %+v", got)
	}
	if len(s.Monitors("Gym")) != 0 {
		t.Fatal("expired Gym monitor still listed")
	}

	if _, err := s.AddMonitor("Pool", a, time.Minute); !errors.Is(err, ErrFacilityNotFound) {
		t.Fatalf("expect ErrFacilityNotFound, got %v", err)
	}
	if _, err := s.AddMonitor("Library", a, 0); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expect ErrInvalidArgument, got %v", err)
	}
	if n := s.RemoveMonitors(a); n != 1 {
		t.Fatalf("expect 1 removed monitor, got %d", n)
	}
}
