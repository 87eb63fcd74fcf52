// Package physics provides the force model and contact response for
// free-flight point masses.
//
//   - [Model]: gravity, quadratic drag relative to wind, transient external
//     forces; evaluated as the right-hand side of the ODE
//   - [Resolver]: impulse response of a body hitting a static plane
//
// # Force Model
//
// The model is a pure function of the object table passed to each call.
// Nothing is cached between steps, so adding or removing objects never
// leaves a stale derivative behind:
//
//	s.Update(func(tx *store.Tx) {
//	    f := model.Bind(tx.Objects())
//	    tx.SetState(integ.Step(f, tx.State(), tx.Time(), dt))
//	})
//
// # Contacts
//
// Collisions are instantaneous velocity edits applied outside the
// integrator. A [Contact] carries restitution, static and dynamic friction
// and the plane normal.
package physics
