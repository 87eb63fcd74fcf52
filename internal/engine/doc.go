// Package engine runs a simulation session: it owns the object store, steps
// it on a fixed period and serves control requests against it.
//
// Two goroutines touch the store. The scheduler ticks every step time and
// performs lock, latch forces, integrate, advance clock, snapshot, unlock,
// then publishes the snapshot outside the lock. The command actor takes one
// control request at a time and holds the store lock only while applying it.
//
// A session starts Running and moves to Exiting on a shutdown request or on
// input that is not a command. The scheduler checks the status at the top of
// every tick, so a step in progress always completes.
package engine
