package store

import (
	"sync"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/drop/internal/dynamo"
)

// NotFound is returned by FindIndex for ids that are not live.
const NotFound = -1

// Store owns the live object table, the flattened state vector and the
// logical clock. A single mutex guards all three so that
// len(objects)*6 == len(state) holds whenever the lock is free.
//
// Wind and force writes resolve the id under the whole-state lock, so they
// wait for a step in progress. The field write itself then happens under the
// per-object lock only.
type Store struct {
	mu      sync.Mutex
	nextID  int
	objects []*Object
	state   dynamo.State
	time    float64
}

func New() *Store {
	return &Store{state: dynamo.State{}}
}

// Snapshot is a consistent copy of the simulation taken under the lock.
type Snapshot struct {
	Time   float64
	IDs    []int
	Masses []float64
	State  dynamo.State
}

// Tx gives unlocked access to the store while Update holds the lock. A Tx
// and the slices it returns must not escape the Update callback.
type Tx struct {
	s *Store
}

// Update runs fn with the whole-state lock held.
func (s *Store) Update(fn func(tx *Tx)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&Tx{s: s})
}

func (tx *Tx) Objects() []*Object { return tx.s.objects }

// State returns the live vector itself, not a copy.
func (tx *Tx) State() dynamo.State { return tx.s.state }

// SetState replaces the vector if v has the current length. Writes of any
// other length are dropped and reported as false.
func (tx *Tx) SetState(v dynamo.State) bool {
	if len(v) != len(tx.s.state) {
		return false
	}
	tx.s.state = v
	return true
}

func (tx *Tx) Time() float64 { return tx.s.time }

func (tx *Tx) SetTime(t float64) { tx.s.time = t }

func (tx *Tx) Index(id int) int {
	for i, o := range tx.s.objects {
		if o.ID == id {
			return i
		}
	}
	return NotFound
}

func (tx *Tx) Object(i int) *Object { return tx.s.objects[i] }

func (tx *Tx) Velocity(i int) mgl64.Vec3 { return tx.s.state.Velocity(i) }

func (tx *Tx) SetVelocity(i int, v mgl64.Vec3) {
	tx.s.state.SetVec3(dynamo.Stride*i+3, v)
}

// LatchForces activates every force staged since the previous step.
func (tx *Tx) LatchForces() {
	for _, o := range tx.s.objects {
		o.latchForce()
	}
}

func (tx *Tx) Add(mass, drag float64, pos, vel mgl64.Vec3) int {
	s := tx.s
	id := s.nextID
	s.nextID++
	s.objects = append(s.objects, newObject(id, mass, drag))
	s.state = append(s.state, pos[0], pos[1], pos[2], vel[0], vel[1], vel[2])
	return id
}

func (tx *Tx) Remove(id int) bool {
	i := tx.Index(id)
	if i == NotFound {
		return false
	}
	s := tx.s
	s.objects = append(s.objects[:i], s.objects[i+1:]...)
	start := dynamo.Stride * i
	s.state = append(s.state[:start], s.state[start+dynamo.Stride:]...)
	return true
}

func (tx *Tx) Snapshot() Snapshot {
	ids := make([]int, len(tx.s.objects))
	masses := make([]float64, len(tx.s.objects))
	for i, o := range tx.s.objects {
		ids[i] = o.ID
		masses[i] = o.Mass
	}
	return Snapshot{Time: tx.s.time, IDs: ids, Masses: masses, State: tx.s.state.Clone()}
}

// AddObject appends a new object and returns its id. Ids are never reused.
// No validation of physical parameters happens here.
func (s *Store) AddObject(mass, drag float64, pos, vel mgl64.Vec3) int {
	var id int
	s.Update(func(tx *Tx) { id = tx.Add(mass, drag, pos, vel) })
	return id
}

// RemoveObject deletes the object and its 6-entry block. Unknown ids are a
// no-op; the return value reports whether anything was removed.
func (s *Store) RemoveObject(id int) bool {
	var ok bool
	s.Update(func(tx *Tx) { ok = tx.Remove(id) })
	return ok
}

// lookup resolves an object record under the whole-state lock and releases
// it before returning.
func (s *Store) lookup(id int) *Object {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.objects {
		if o.ID == id {
			return o
		}
	}
	return nil
}

// UpdateWind replaces the object's wind vector under its own lock.
func (s *Store) UpdateWind(id int, v mgl64.Vec3) bool {
	o := s.lookup(id)
	if o == nil {
		return false
	}
	o.setWind(v)
	return true
}

// UpdateForce stages an external force for the object. It becomes active at
// the start of the next integration step for ForceValidity evaluations.
func (s *Store) UpdateForce(id int, v mgl64.Vec3) bool {
	o := s.lookup(id)
	if o == nil {
		return false
	}
	o.armForce(v)
	return true
}

// State returns a copy of the flattened state vector.
func (s *Store) State() dynamo.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// SetState replaces the state vector when the length matches.
func (s *Store) SetState(v dynamo.State) bool {
	var ok bool
	s.Update(func(tx *Tx) { ok = tx.SetState(v.Clone()) })
	return ok
}

func (s *Store) FindIndex(id int) int {
	idx := NotFound
	s.Update(func(tx *Tx) { idx = tx.Index(id) })
	return idx
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

func (s *Store) Time() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.time
}

func (s *Store) Snapshot() Snapshot {
	var snap Snapshot
	s.Update(func(tx *Tx) { snap = tx.Snapshot() })
	return snap
}
