package store

import (
	"sync"

	"github.com/go-gl/mathgl/mgl64"
)

// ForceValidity is the number of derivative evaluations an external force
// stays active once latched: the four stages of one RK4 step.
const ForceValidity = 4

// Object is the parameter record of one simulated point mass. Position and
// velocity live in the store's state vector, not here.
type Object struct {
	ID   int
	Mass float64
	Drag float64

	mu       sync.Mutex
	wind     mgl64.Vec3
	force    mgl64.Vec3
	validity int
	pending  mgl64.Vec3
	armed    bool
}

func newObject(id int, mass, drag float64) *Object {
	return &Object{ID: id, Mass: mass, Drag: drag}
}

// Wind returns the current wind vector acting on the object.
func (o *Object) Wind() mgl64.Vec3 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.wind
}

func (o *Object) setWind(v mgl64.Vec3) {
	o.mu.Lock()
	o.wind = v
	o.mu.Unlock()
}

// armForce stages a force for the next integration step.
func (o *Object) armForce(v mgl64.Vec3) {
	o.mu.Lock()
	o.pending = v
	o.armed = true
	o.mu.Unlock()
}

// latchForce moves a staged force into the active slot and resets the
// validity counter. Called once per step with the state lock held.
func (o *Object) latchForce() {
	o.mu.Lock()
	if o.armed {
		o.force = o.pending
		o.validity = ForceValidity
		o.pending = mgl64.Vec3{}
		o.armed = false
	}
	o.mu.Unlock()
}

// TakeForce returns the active external force and consumes one evaluation
// of its validity window. Once the window is exhausted it returns zero.
func (o *Object) TakeForce() mgl64.Vec3 {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.validity <= 0 {
		return mgl64.Vec3{}
	}
	o.validity--
	return o.force
}

// Validity returns the remaining number of evaluations of the active force.
func (o *Object) Validity() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.validity
}
