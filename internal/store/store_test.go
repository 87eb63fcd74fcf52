package store

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/drop/internal/dynamo"
)

func checkInvariant(t *testing.T, s *Store) {
	t.Helper()
	s.Update(func(tx *Tx) {
		if len(tx.Objects())*dynamo.Stride != len(tx.State()) {
			t.Fatalf("invariant broken: %d objects, state length %d", len(tx.Objects()), len(tx.State()))
		}
		seen := make(map[int]bool)
		for _, o := range tx.Objects() {
			if seen[o.ID] {
				t.Fatalf("duplicate id %d", o.ID)
			}
			seen[o.ID] = true
		}
	})
}

func TestAddRemoveLayout(t *testing.T) {
	s := New()
	for i := 0; i < 4; i++ {
		v := float64(i)
		id := s.AddObject(v+1, v, mgl64.Vec3{v, v, v}, mgl64.Vec3{v, v, v})
		if id != i {
			t.Fatalf("expected id %d, got %d", i, id)
		}
	}
	checkInvariant(t, s)

	s.RemoveObject(2)
	s.RemoveObject(0)

	snap := s.Snapshot()
	if len(snap.IDs) != 2 || snap.IDs[0] != 1 || snap.IDs[1] != 3 {
		t.Fatalf("unexpected ids after removal: %v", snap.IDs)
	}

	expected := dynamo.State{1, 1, 1, 1, 1, 1, 3, 3, 3, 3, 3, 3}
	for i := range expected {
		if snap.State[i] != expected[i] {
			t.Fatalf("state[%d] = %f, expected %f (state %v)", i, snap.State[i], expected[i], snap.State)
		}
	}
}

func TestIDsNeverReused(t *testing.T) {
	s := New()
	a := s.AddObject(1, 0, mgl64.Vec3{}, mgl64.Vec3{})
	b := s.AddObject(1, 0, mgl64.Vec3{}, mgl64.Vec3{})
	s.RemoveObject(b)
	c := s.AddObject(1, 0, mgl64.Vec3{}, mgl64.Vec3{})

	if c <= b || b <= a {
		t.Errorf("ids not strictly increasing: %d %d %d", a, b, c)
	}
}

func TestRemoveUnknownIsIdempotent(t *testing.T) {
	s := New()
	s.AddObject(1, 0, mgl64.Vec3{1, 2, 3}, mgl64.Vec3{})
	before := s.State()

	for i := 0; i < 3; i++ {
		if s.RemoveObject(42) {
			t.Error("remove of unknown id reported success")
		}
	}

	after := s.State()
	if s.Len() != 1 || len(after) != len(before) {
		t.Errorf("store changed: len %d, state %v", s.Len(), after)
	}
}

func TestRandomSequencesKeepInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	s := New()
	var live []int
	issued := make(map[int]bool)

	for step := 0; step < 500; step++ {
		if len(live) == 0 || rng.Float64() < 0.6 {
			id := s.AddObject(1+rng.Float64(), rng.Float64(), mgl64.Vec3{rng.Float64()}, mgl64.Vec3{})
			if issued[id] {
				t.Fatalf("id %d issued twice", id)
			}
			issued[id] = true
			live = append(live, id)
		} else {
			k := rng.Intn(len(live))
			s.RemoveObject(live[k])
			live = append(live[:k], live[k+1:]...)
		}
		if rng.Float64() < 0.1 {
			s.RemoveObject(-1 - rng.Intn(10))
		}
		checkInvariant(t, s)
	}

	if s.Len() != len(live) {
		t.Errorf("expected %d live objects, got %d", len(live), s.Len())
	}
	for i, id := range live {
		if idx := s.FindIndex(id); idx != i {
			t.Errorf("id %d: expected index %d, got %d", id, i, idx)
		}
	}
}

func TestSetStateLengthGuard(t *testing.T) {
	s := New()
	s.AddObject(1, 0, mgl64.Vec3{}, mgl64.Vec3{})

	if s.SetState(dynamo.State{1, 2, 3}) {
		t.Error("mismatched write was applied")
	}
	if got := s.State(); got[0] != 0 {
		t.Errorf("state changed by dropped write: %v", got)
	}

	if !s.SetState(dynamo.State{1, 2, 3, 4, 5, 6}) {
		t.Fatal("matching write was dropped")
	}
	if got := s.State(); got[5] != 6 {
		t.Errorf("write not applied: %v", got)
	}
}

func TestFindIndex(t *testing.T) {
	s := New()
	s.AddObject(1, 0, mgl64.Vec3{}, mgl64.Vec3{})
	id := s.AddObject(1, 0, mgl64.Vec3{}, mgl64.Vec3{})

	if idx := s.FindIndex(id); idx != 1 {
		t.Errorf("expected index 1, got %d", idx)
	}
	s.RemoveObject(0)
	if idx := s.FindIndex(id); idx != 0 {
		t.Errorf("expected index 0 after compaction, got %d", idx)
	}
	if idx := s.FindIndex(99); idx != NotFound {
		t.Errorf("expected NotFound, got %d", idx)
	}
}

func TestWindUpdate(t *testing.T) {
	s := New()
	id := s.AddObject(1, 0, mgl64.Vec3{}, mgl64.Vec3{})

	if !s.UpdateWind(id, mgl64.Vec3{1, 2, 3}) {
		t.Fatal("wind update on live object failed")
	}
	if s.UpdateWind(id+1, mgl64.Vec3{1, 2, 3}) {
		t.Error("wind update on unknown object reported success")
	}

	s.Update(func(tx *Tx) {
		if w := tx.Object(0).Wind(); w != (mgl64.Vec3{1, 2, 3}) {
			t.Errorf("unexpected wind %v", w)
		}
	})
}

func TestForceWindow(t *testing.T) {
	s := New()
	id := s.AddObject(1, 0, mgl64.Vec3{}, mgl64.Vec3{})

	if !s.UpdateForce(id, mgl64.Vec3{2, 0, 0}) {
		t.Fatal("force update on live object failed")
	}

	s.Update(func(tx *Tx) {
		o := tx.Object(0)
		if f := o.TakeForce(); f != (mgl64.Vec3{}) {
			t.Errorf("force active before latch: %v", f)
		}

		tx.LatchForces()
		for i := 0; i < ForceValidity; i++ {
			if f := o.TakeForce(); f != (mgl64.Vec3{2, 0, 0}) {
				t.Errorf("evaluation %d: expected force, got %v", i, f)
			}
		}
		if f := o.TakeForce(); f != (mgl64.Vec3{}) {
			t.Errorf("force survived its window: %v", f)
		}

		tx.LatchForces()
		if o.Validity() != 0 {
			t.Error("latch re-armed a consumed force")
		}
	})
}

func TestConcurrentAccess(t *testing.T) {
	s := New()
	var wg sync.WaitGroup

	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				id := s.AddObject(1, 0.1, mgl64.Vec3{}, mgl64.Vec3{})
				s.UpdateWind(id, mgl64.Vec3{1, 0, 0})
				s.UpdateForce(id, mgl64.Vec3{0, 1, 0})
				if i%2 == 0 {
					s.RemoveObject(id)
				}
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			s.Update(func(tx *Tx) {
				tx.LatchForces()
				tx.SetState(tx.State().Clone())
			})
		}
	}()

	wg.Wait()
	checkInvariant(t, s)
	if s.Len() != 400 {
		t.Errorf("expected 400 objects, got %d", s.Len())
	}
}
