package integrators

import "github.com/san-kum/drop/internal/dynamo"

// Euler is the explicit first-order stepper. It evaluates the derivative
// once per step, so a transient force armed for four evaluations spans four
// Euler steps.
type Euler struct{}

func NewEuler() *Euler {
	return &Euler{}
}

func (e *Euler) Step(f dynamo.Derivative, x dynamo.State, t float64, dt float64) dynamo.State {
	if len(x) == 0 {
		return dynamo.State{}
	}
	dx := f(t, x)
	result := make(dynamo.State, len(x))
	for i := range x {
		result[i] = x[i] + dt*dx[i]
	}
	return result
}
