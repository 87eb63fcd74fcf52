package dynamo

import (
	"errors"
	"fmt"
)

// Domain errors for simulation operations.
var (
	// ErrInvalidState indicates a state vector containing NaN or Inf.
	ErrInvalidState = errors.New("dynamo: invalid state (NaN or Inf detected)")

	// ErrDimensionMismatch indicates a state vector whose length does not
	// match the live object set.
	ErrDimensionMismatch = errors.New("dynamo: dimension mismatch between state and object set")

	// ErrUnknownIntegrator indicates an unsupported ODE method name.
	ErrUnknownIntegrator = errors.New("dynamo: unknown integrator")
)

// StepError wraps an error with the tick it was observed on.
type StepError struct {
	Step    uint64
	Time    float64
	Wrapped error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (t=%.4f): %v", e.Step, e.Time, e.Wrapped)
}

func (e *StepError) Unwrap() error {
	return e.Wrapped
}
