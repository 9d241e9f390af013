package booking

import (
	"errors"
	"fmt"
	"net"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Opening hours apply to every day of the week.
const (
	OpenMinute  = 8 * 60
	CloseMinute = 20 * 60

	// MaxExtension caps a single ExtendBooking call.
	MaxExtension = 6 * minutesPerDay
)

var (
	ErrFacilityNotFound = errors.New("booking: facility not found")
	ErrBookingNotFound  = errors.New("booking: booking not found")
	ErrUnavailable      = errors.New("booking: facility is not available during the requested time slot")
	ErrMultiDay         = errors.New("booking: a booking cannot span more than one day")
	ErrOutsideHours     = errors.New("booking: facility is only open from 08:00 to 20:00")
	ErrEmptySlot        = errors.New("booking: end time must be after start time")
	ErrInvalidArgument  = errors.New("booking: invalid argument")
)

// Booking is one confirmed reservation.
type Booking struct {
	ConfirmationID string
	Facility       string
	Slot           TimeSlot
}

// Monitor is a client address that asked to be told about changes to one
// facility until Expires.
type Monitor struct {
	Facility string
	Addr     net.Addr
	Expires  time.Time
}

type facility struct {
	name     string
	bookings map[string]*Booking
}

// Store keeps facilities, their bookings and the registered monitors in memory.
// It is safe for concurrent use.
type Store struct {
	mu         sync.Mutex
	facilities map[string]*facility
	byID       map[string]*Booking
	monitors   []Monitor

	now   func() time.Time
	newID func() string
}

// NewStore creates a store holding the named facilities with no bookings.
func NewStore(facilities ...string) *Store {
	s := &Store{
		facilities: make(map[string]*facility),
		byID:       make(map[string]*Booking),
		now:        time.Now,
		newID:      func() string { return uuid.NewString() },
	}
	for _, name := range facilities {
		s.AddFacility(name)
	}
	return s
}

// AddFacility adds an empty facility; adding an existing name is a no-op.
func (s *Store) AddFacility(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: facility name cannot be empty", ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.facilities[name]; !ok {
		s.facilities[name] = &facility{name: name, bookings: make(map[string]*Booking)}
	}
	return nil
}

// Facilities returns the facility names in sorted order.
func (s *Store) Facilities() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.facilities))
	for name := range s.facilities {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (s *Store) facilityLocked(name string) (*facility, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: facility name cannot be empty", ErrInvalidArgument)
	}
	f, ok := s.facilities[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrFacilityNotFound, name)
	}
	return f, nil
}

// checkSlot enforces the per-booking rules: a non-empty period within opening
// hours of a single day that does not overlap another booking of the facility.
// skip names a booking to ignore, the one being edited.
func (f *facility) checkSlot(slot TimeSlot, skip string) error {
	if !slot.SameDay() {
		return ErrMultiDay
	}
	start, end := slot.Start.ClockMinutes(), slot.End.ClockMinutes()
	if end <= start {
		return ErrEmptySlot
	}
	if start < OpenMinute || end > CloseMinute {
		return ErrOutsideHours
	}
	for id, b := range f.bookings {
		if id != skip && b.Slot.Overlaps(slot) {
			return ErrUnavailable
		}
	}
	return nil
}

// Book reserves slot at the named facility and returns the new booking.
func (s *Store) Book(facilityName string, slot TimeSlot) (Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.facilityLocked(facilityName)
	if err != nil {
		return Booking{}, err
	}
	if err := f.checkSlot(slot, ""); err != nil {
		return Booking{}, err
	}
	b := &Booking{ConfirmationID: s.newID(), Facility: f.name, Slot: slot}
	f.bookings[b.ConfirmationID] = b
	s.byID[b.ConfirmationID] = b
	return *b, nil
}

// Get looks a booking up by confirmation id.
func (s *Store) Get(confirmationID string) (Booking, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.byID[confirmationID]
	if !ok {
		return Booking{}, false
	}
	return *b, true
}

func (s *Store) bookingLocked(confirmationID string) (*Booking, *facility, error) {
	if confirmationID == "" {
		return nil, nil, fmt.Errorf("%w: confirmation id cannot be empty", ErrInvalidArgument)
	}
	b, ok := s.byID[confirmationID]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrBookingNotFound, confirmationID)
	}
	return b, s.facilities[b.Facility], nil
}

// Edit shifts a booking by offset minutes, keeping its length. The booking is
// unchanged when the shifted slot breaks any booking rule.
func (s *Store) Edit(confirmationID string, offset int) (Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, f, err := s.bookingLocked(confirmationID)
	if err != nil {
		return Booking{}, err
	}
	shifted := b.Slot.Shift(offset)
	if err := f.checkSlot(shifted, b.ConfirmationID); err != nil {
		return Booking{}, fmt.Errorf("cannot move booking to %s: %w", shifted, err)
	}
	b.Slot = shifted
	return *b, nil
}

// Extend lengthens a booking by minutes, which must be positive.
func (s *Store) Extend(confirmationID string, minutes int) (Booking, error) {
	if minutes <= 0 {
		return Booking{}, fmt.Errorf("%w: additional minutes must be positive", ErrInvalidArgument)
	}
	if minutes > MaxExtension {
		return Booking{}, fmt.Errorf("%w: maximum extension is 6 days", ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b, f, err := s.bookingLocked(confirmationID)
	if err != nil {
		return Booking{}, err
	}
	extended := b.Slot.Extend(minutes)
	if err := f.checkSlot(extended, b.ConfirmationID); err != nil {
		return Booking{}, fmt.Errorf("cannot extend booking to %s: %w", extended, err)
	}
	b.Slot = extended
	return *b, nil
}

// Cancel removes a booking and returns what was removed.
func (s *Store) Cancel(confirmationID string) (Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, f, err := s.bookingLocked(confirmationID)
	if err != nil {
		return Booking{}, err
	}
	delete(f.bookings, confirmationID)
	delete(s.byID, confirmationID)
	return *b, nil
}

// Range is a free period within one day, in minutes from midnight.
type Range struct {
	Day   Day
	Start int
	End   int
}

func (r Range) String() string {
	return fmt.Sprintf("%s %s - %s", r.Day, clock(r.Start), clock(r.End))
}

func clock(m int) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// Availability lists the free ranges of a facility within opening hours for
// each requested day, in the order given.
func (s *Store) Availability(facilityName string, days []Day) ([]Range, error) {
	if len(days) == 0 {
		return nil, fmt.Errorf("%w: days cannot be empty", ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.facilityLocked(facilityName)
	if err != nil {
		return nil, err
	}
	var free []Range
	for _, d := range days {
		free = append(free, f.freeOn(d)...)
	}
	return free, nil
}

func (f *facility) freeOn(d Day) []Range {
	var booked [][2]int
	for _, b := range f.bookings {
		if b.Slot.Start.Day == d {
			booked = append(booked, [2]int{b.Slot.Start.ClockMinutes(), b.Slot.End.ClockMinutes()})
		}
	}
	slices.SortFunc(booked, func(a, b [2]int) int { return a[0] - b[0] })

	var free []Range
	cur := OpenMinute
	for _, r := range booked {
		if cur < r[0] {
			free = append(free, Range{Day: d, Start: cur, End: r[0]})
		}
		cur = max(cur, r[1])
	}
	if cur < CloseMinute {
		free = append(free, Range{Day: d, Start: cur, End: CloseMinute})
	}
	return free
}

// FormatAvailability renders free ranges grouped per day, e.g.
// "Mon: 08:00 - 09:00, 10:30 - 20:00; Tue: none". days fixes the order and lets
// fully booked days show up.
func FormatAvailability(days []Day, free []Range) string {
	var sb strings.Builder
	for i, d := range days {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(d.String())
		sb.WriteString(": ")
		n := 0
		for _, r := range free {
			if r.Day != d {
				continue
			}
			if n > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(clock(r.Start) + " - " + clock(r.End))
			n++
		}
		if n == 0 {
			sb.WriteString("none")
		}
	}
	return sb.String()
}

// AllDays is Mon through Sun.
func AllDays() []Day {
	return []Day{Mon, Tue, Wed, Thu, Fri, Sat, Sun}
}

// Utilisation returns the booked share of the facility's weekly opening hours
// and the number of bookings.
func (s *Store) Utilisation(facilityName string) (float32, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.facilityLocked(facilityName)
	if err != nil {
		return 0, 0, err
	}
	booked := 0
	for _, b := range f.bookings {
		booked += b.Slot.Duration()
	}
	open := 7 * (CloseMinute - OpenMinute)
	return float32(booked) / float32(open), len(f.bookings), nil
}

// Bookings returns the bookings of a facility ordered by start time.
func (s *Store) Bookings(facilityName string) ([]Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.facilityLocked(facilityName)
	if err != nil {
		return nil, err
	}
	out := make([]Booking, 0, len(f.bookings))
	for _, b := range f.bookings {
		out = append(out, *b)
	}
	slices.SortFunc(out, func(a, b Booking) int { return a.Slot.Start.Minutes() - b.Slot.Start.Minutes() })
	return out, nil
}
