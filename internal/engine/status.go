package engine

import "sync/atomic"

type Status int32

const (
	Running Status = iota
	Exiting
)

func (s Status) String() string {
	switch s {
	case Running:
		return "running"
	case Exiting:
		return "exiting"
	default:
		return "unknown"
	}
}

// runStatus is a one-way latch from Running to Exiting.
type runStatus struct {
	v atomic.Int32
}

func (r *runStatus) Load() Status { return Status(r.v.Load()) }

// exit moves to Exiting and reports whether this call made the transition.
func (r *runStatus) exit() bool {
	return r.v.CompareAndSwap(int32(Running), int32(Exiting))
}
