package metrics

import (
	"math"

	"github.com/san-kum/drop/internal/dynamo"
	"github.com/san-kum/drop/internal/store"
)

// Mechanical returns the summed kinetic and potential energy of every
// object in snap, with the potential measured from z = 0.
func Mechanical(snap store.Snapshot, gravity float64) float64 {
	total := 0.0
	for i, m := range snap.Masses {
		if (i+1)*dynamo.Stride > len(snap.State) {
			break
		}
		v := snap.State.Velocity(i)
		z := snap.State.Position(i)[2]
		total += 0.5*m*v.Dot(v) + m*gravity*z
	}
	return total
}

// Energy reports the mean mechanical energy over the observed snapshots.
type Energy struct {
	name        string
	gravity     float64
	samples     int
	totalEnergy float64
}

func NewEnergy(gravity float64) *Energy {
	return &Energy{
		name:    "energy",
		gravity: gravity,
	}
}

func (e *Energy) Name() string { return e.name }

func (e *Energy) Observe(snap store.Snapshot) {
	e.totalEnergy += Mechanical(snap, e.gravity)
	e.samples++
}

func (e *Energy) Value() float64 {
	if e.samples == 0 {
		return 0
	}
	return e.totalEnergy / float64(e.samples)
}

func (e *Energy) Reset() {
	e.totalEnergy = 0
	e.samples = 0
}

// EnergyDrift tracks the largest relative change of mechanical energy since
// the first sample. The reference is re-taken whenever the object set
// changes, since adds and removes are not energy flows.
type EnergyDrift struct {
	name          string
	gravity       float64
	initialEnergy float64
	maxDrift      float64
	samples       int
	ids           []int
}

func NewEnergyDrift(gravity float64) *EnergyDrift {
	return &EnergyDrift{
		name:    "energy_drift",
		gravity: gravity,
	}
}

func (e *EnergyDrift) Name() string { return e.name }

func (e *EnergyDrift) Observe(snap store.Snapshot) {
	energy := Mechanical(snap, e.gravity)

	if e.samples == 0 || !sameIDs(e.ids, snap.IDs) {
		e.initialEnergy = energy
		e.ids = append(e.ids[:0], snap.IDs...)
	}
	e.samples++

	if e.initialEnergy != 0 {
		drift := math.Abs(energy-e.initialEnergy) / math.Abs(e.initialEnergy)
		e.maxDrift = math.Max(e.maxDrift, drift)
	}
}

func (e *EnergyDrift) Value() float64 {
	return e.maxDrift
}

func (e *EnergyDrift) Reset() {
	e.initialEnergy = 0
	e.maxDrift = 0
	e.samples = 0
	e.ids = e.ids[:0]
}

func sameIDs(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
