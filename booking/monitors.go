package booking

import (
	"fmt"
	"net"
	"time"
)

// AddMonitor registers addr for change notifications on a facility for period.
// A second registration from the same address for the same facility replaces
// the first, so re-sent RegisterCallback requests do not multiply pushes.
func (s *Store) AddMonitor(facilityName string, addr net.Addr, period time.Duration) (Monitor, error) {
	if addr == nil {
		return Monitor{}, fmt.Errorf("%w: monitor address is required", ErrInvalidArgument)
	}
	if period <= 0 {
		return Monitor{}, fmt.Errorf("%w: monitoring period must be positive", ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.facilityLocked(facilityName); err != nil {
		return Monitor{}, err
	}
	m := Monitor{Facility: facilityName, Addr: addr, Expires: s.now().Add(period)}
	for i, old := range s.monitors {
		if old.Facility == facilityName && old.Addr.String() == addr.String() {
			s.monitors[i] = m
			return m, nil
		}
	}
	s.monitors = append(s.monitors, m)
	return m, nil
}

// Monitors returns the unexpired monitors of a facility and forgets expired ones.
func (s *Store) Monitors(facilityName string) []Monitor {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	live := s.monitors[:0]
	var out []Monitor
	for _, m := range s.monitors {
		if !now.Before(m.Expires) {
			continue
		}
		live = append(live, m)
		if m.Facility == facilityName {
			out = append(out, m)
		}
	}
	clear(s.monitors[len(live):])
	s.monitors = live
	return out
}

// RemoveMonitors drops every registration of addr and reports how many went.
func (s *Store) RemoveMonitors(addr net.Addr) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.monitors[:0]
	for _, m := range s.monitors {
		if m.Addr.String() != addr.String() {
			kept = append(kept, m)
		}
	}
	n := len(s.monitors) - len(kept)
	clear(s.monitors[len(kept):])
	s.monitors = kept
	return n
}
