package physics

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/drop/internal/dynamo"
	"github.com/san-kum/drop/internal/store"
)

// Model is the force model of a free-flight point mass: gravity, quadratic
// drag relative to the local wind and a transient external force.
type Model struct {
	Gravity    float64
	AirDensity float64
}

func NewModel() *Model {
	return &Model{
		Gravity:    DefaultGravity,
		AirDensity: DefaultAirDensity,
	}
}

func (m *Model) gravity() mgl64.Vec3 { return mgl64.Vec3{0, 0, -m.Gravity} }

// Drag returns the quadratic drag force on a body moving with velocity v
// through air moving with velocity wind.
func (m *Model) Drag(v, wind mgl64.Vec3, cs float64) mgl64.Vec3 {
	r := v.Sub(wind)
	q := 0.5 * m.AirDensity * r.Dot(r)
	if q == 0 {
		return mgl64.Vec3{}
	}
	return r.Normalize().Mul(-cs * q)
}

// Derive evaluates dx/dt for the given object table. The table must match
// x block for block; callers hold the store lock for the duration. Every
// call consumes one evaluation of each object's external force window.
func (m *Model) Derive(objects []*store.Object, t float64, x dynamo.State) dynamo.State {
	n := len(objects)
	dx := make(dynamo.State, n*dynamo.Stride)
	if n == 0 {
		return dx
	}

	// Position slots take the velocity of the same object.
	copy(dx[:len(dx)-3], x[3:])

	g := m.gravity()
	for i, o := range objects {
		v := x.Velocity(i)
		f := g.Mul(o.Mass).
			Add(m.Drag(v, o.Wind(), o.Drag)).
			Add(o.TakeForce())
		dx.SetVec3(dynamo.Stride*i+3, f.Mul(1/o.Mass))
	}

	return dx
}

// Bind returns the derivative function for one integration step over the
// current object table. It must not be kept past the step.
func (m *Model) Bind(objects []*store.Object) dynamo.Derivative {
	return func(t float64, x dynamo.State) dynamo.State {
		return m.Derive(objects, t, x)
	}
}
