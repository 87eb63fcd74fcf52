package physics

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

var (
	ErrCoefficientRange = errors.New("physics: coefficient outside [0, 1]")
	ErrFrictionOrder    = errors.New("physics: static friction below dynamic friction")
	ErrZeroNormal       = errors.New("physics: surface normal has zero length")
)

// Contact describes a requested collision against a static plane.
type Contact struct {
	Restitution     float64
	StaticFriction  float64
	DynamicFriction float64
	Normal          mgl64.Vec3
}

func inUnit(v float64) bool { return v >= 0 && v <= 1 }

func (c Contact) Validate() error {
	coeffs := []struct {
		name  string
		value float64
	}{
		{"restitution", c.Restitution},
		{"static friction", c.StaticFriction},
		{"dynamic friction", c.DynamicFriction},
	}
	for _, k := range coeffs {
		if !inUnit(k.value) {
			return fmt.Errorf("%w: %s=%g", ErrCoefficientRange, k.name, k.value)
		}
	}
	if c.StaticFriction < c.DynamicFriction {
		return fmt.Errorf("%w: %g < %g", ErrFrictionOrder, c.StaticFriction, c.DynamicFriction)
	}
	if c.Normal.Len() == 0 || math.IsNaN(c.Normal.Len()) {
		return ErrZeroNormal
	}
	return nil
}

// Resolver computes impulse responses for contacts with static planes.
type Resolver struct {
	GentlyPush  float64
	FrictionEps float64
}

func NewResolver() Resolver {
	return Resolver{GentlyPush: DefaultGentlyPush, FrictionEps: DefaultFrictionEps}
}

// Resolve returns the post-contact velocity of a body with velocity v and
// the given mass. The second result is false when the body is already
// separating from or resting on the plane and v is returned unchanged.
func (r Resolver) Resolve(v mgl64.Vec3, mass float64, c Contact) (mgl64.Vec3, bool) {
	n := c.Normal.Normalize()
	vn := v.Dot(n)
	if vn >= 0 {
		return v, false
	}

	vt := v.Sub(n.Mul(vn))

	approach := math.Min(vn, -r.GentlyPush)
	jr := -(1 + c.Restitution) * approach * mass
	out := v.Add(n.Mul(jr / mass))

	if vt.Dot(vt) > r.FrictionEps {
		speed := vt.Len()
		jf := -speed * mass
		js := c.StaticFriction * jr
		j := jf
		if math.Abs(jf) > js {
			j = -c.DynamicFriction * jr
		}
		out = out.Add(vt.Mul(1 / speed).Mul(j / mass))
	}

	return out, true
}
