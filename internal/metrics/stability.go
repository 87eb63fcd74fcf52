package metrics

import (
	"math"

	"github.com/san-kum/drop/internal/store"
)

// Bounds is the envelope a healthy object stays inside. A zero field
// disables that check.
type Bounds struct {
	MaxSpeed float64 // m/s
	MaxRange float64 // m from the origin
}

// Stability is the fraction of snapshots in which every object is finite
// and inside its bounds.
type Stability struct {
	bounds  Bounds
	bad     int
	samples int
}

func NewStability(b Bounds) *Stability {
	return &Stability{bounds: b}
}

func (s *Stability) Name() string { return "stability" }

func (s *Stability) Observe(snap store.Snapshot) {
	s.samples++
	for i := range snap.IDs {
		if s.escaped(snap, i) {
			s.bad++
			return
		}
	}
}

func (s *Stability) escaped(snap store.Snapshot, i int) bool {
	speed := snap.State.Velocity(i).Len()
	dist := snap.State.Position(i).Len()
	switch {
	case math.IsNaN(speed) || math.IsInf(speed, 0):
		return true
	case math.IsNaN(dist) || math.IsInf(dist, 0):
		return true
	case s.bounds.MaxSpeed > 0 && speed > s.bounds.MaxSpeed:
		return true
	case s.bounds.MaxRange > 0 && dist > s.bounds.MaxRange:
		return true
	}
	return false
}

func (s *Stability) Value() float64 {
	if s.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(s.bad)/float64(s.samples)
}

func (s *Stability) Reset() {
	s.bad = 0
	s.samples = 0
}
