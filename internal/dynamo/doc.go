// Package dynamo provides the shared simulation primitives for drop.
//
// The package defines the vocabulary every other package speaks:
//
//   - [State]: flattened state vector, 6 entries (position, velocity) per object
//   - [Derivative]: right-hand side of the governing ODE, dX/dt = f(t, X)
//   - [Integrator]: fixed-step numerical stepper over any [Derivative]
//
// # Layout
//
// Object i occupies State[6*i : 6*i+6] as px, py, pz, vx, vy, vz. The
// [State.Vec3] and [State.SetVec3] helpers read and write one 3-block.
//
// # Thread Safety
//
// State values are plain slices and are NOT safe for concurrent use. The
// store package owns the live vector and hands out clones.
package dynamo
