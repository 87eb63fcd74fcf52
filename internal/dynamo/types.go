package dynamo

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Stride is the number of state entries owned by one object.
const Stride = 6

type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Vec3 returns the 3-block starting at offset.
func (s State) Vec3(offset int) mgl64.Vec3 {
	return mgl64.Vec3{s[offset], s[offset+1], s[offset+2]}
}

// SetVec3 overwrites the 3-block starting at offset.
func (s State) SetVec3(offset int, v mgl64.Vec3) {
	s[offset] = v[0]
	s[offset+1] = v[1]
	s[offset+2] = v[2]
}

// Position returns the position of the object at positional index i.
func (s State) Position(i int) mgl64.Vec3 { return s.Vec3(Stride * i) }

// Velocity returns the velocity of the object at positional index i.
func (s State) Velocity(i int) mgl64.Vec3 { return s.Vec3(Stride*i + 3) }

// Derivative is the right-hand side of the ODE: it maps (t, x) to dx/dt.
// The returned vector must have the same length as x.
type Derivative func(t float64, x State) State

type Integrator interface {
	Step(f Derivative, x State, t, dt float64) State
}
