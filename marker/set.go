package marker

import (
	"github.com/phil-mansfield/gomarker/fault"
)

// Set is a dense array of markers with a fixed capacity. Live markers occupy
// indices [0, Len()). Storage is allocated once and never grown.
type Set struct {
	ms []Marker
}

// NewSet allocates a Set which can hold up to capacity markers.
func NewSet(capacity int) *Set {
	return &Set{ms: make([]Marker, 0, capacity)}
}

// Len returns the number of live markers.
func (s *Set) Len() int { return len(s.ms) }

// Cap returns the maximum number of markers.
func (s *Set) Cap() int { return cap(s.ms) }

// Markers returns the live markers. The slice aliases the Set's storage.
func (s *Set) Markers() []Marker { return s.ms }

// At returns the marker at index i.
func (s *Set) At(i int) *Marker { return &s.ms[i] }

// Append adds a marker to the end of the live range.
func (s *Set) Append(m Marker) error {
	if len(s.ms) == cap(s.ms) {
		return fault.Capacityf(
			-1, "cannot add a marker to a full array of %d.", cap(s.ms),
		)
	}
	s.ms = append(s.ms, m)
	return nil
}

// Resize changes the number of live markers. Markers at indices beyond the
// old length hold stale values until they are overwritten.
func (s *Set) Resize(n int) error {
	if n > cap(s.ms) || n < 0 {
		return fault.Capacityf(
			-1, "cannot resize an array of capacity %d to %d markers.",
			cap(s.ms), n,
		)
	}
	s.ms = s.ms[:n]
	return nil
}

// Reset removes every marker.
func (s *Set) Reset() { s.ms = s.ms[:0] }
