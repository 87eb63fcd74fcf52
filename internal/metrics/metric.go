package metrics

import "github.com/san-kum/drop/internal/store"

// Metric accumulates a scalar over the published snapshots of a session.
type Metric interface {
	Name() string
	Observe(snap store.Snapshot)
	Value() float64
	Reset()
}
