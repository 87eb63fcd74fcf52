package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/drop/internal/config"
	"github.com/san-kum/drop/internal/dynamo"
	"github.com/san-kum/drop/internal/integrators"
	"github.com/san-kum/drop/internal/metrics"
	"github.com/san-kum/drop/internal/physics"
	"github.com/san-kum/drop/internal/protocol"
	"github.com/san-kum/drop/internal/store"
	"github.com/san-kum/drop/internal/transport"
)

// Recorder persists published snapshots.
type Recorder interface {
	Record(snap store.Snapshot) error
}

// Engine is the context of one simulation session. It implements
// protocol.Target.
type Engine struct {
	store      *store.Store
	model      *physics.Model
	resolver   physics.Resolver
	integrator dynamo.Integrator
	dt         float64
	period     time.Duration

	server   transport.Server
	handler  *protocol.Handler
	log      *slog.Logger
	metrics  *metrics.Collector
	recorder Recorder

	status runStatus

	// owned by the scheduler goroutine
	steps   uint64
	invalid bool
}

func New(cfg *config.Config, server transport.Server, log *slog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	integ, err := integrators.Get(cfg.ODEMethod)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}

	e := &Engine{
		store:      store.New(),
		model:      cfg.Model(),
		resolver:   cfg.Resolver(),
		integrator: integ,
		dt:         cfg.StepTime,
		period:     time.Duration(cfg.StepTime * float64(time.Second)),
		server:     server,
		log:        log,
	}
	e.handler = protocol.NewHandler(e, log.With("component", "control"))
	return e, nil
}

// SetMetrics attaches a collector to steps and commands.
func (e *Engine) SetMetrics(c *metrics.Collector) {
	e.metrics = c
	if c != nil {
		e.handler.SetObserver(c)
	}
}

func (e *Engine) SetRecorder(r Recorder) { e.recorder = r }

func (e *Engine) Store() *store.Store { return e.store }

func (e *Engine) Status() Status { return e.status.Load() }

func (e *Engine) AddObject(mass, drag float64, pos, vel mgl64.Vec3) int {
	id := e.store.AddObject(mass, drag, pos, vel)
	e.log.Debug("object added", "id", id, "mass", mass, "drag", drag)
	return id
}

func (e *Engine) RemoveObject(id int) bool {
	ok := e.store.RemoveObject(id)
	if ok {
		e.log.Debug("object removed", "id", id)
	}
	return ok
}

func (e *Engine) UpdateWind(id int, wind mgl64.Vec3) bool {
	return e.store.UpdateWind(id, wind)
}

func (e *Engine) UpdateForce(id int, force mgl64.Vec3) bool {
	return e.store.UpdateForce(id, force)
}

// Collide applies a plane contact impulse to the object's velocity. Unknown
// ids and separating bodies are left untouched.
func (e *Engine) Collide(id int, c physics.Contact) bool {
	applied := false
	e.store.Update(func(tx *store.Tx) {
		i := tx.Index(id)
		if i == store.NotFound {
			return
		}
		v, ok := e.resolver.Resolve(tx.Velocity(i), tx.Object(i).Mass, c)
		if ok {
			tx.SetVelocity(i, v)
			applied = true
		}
	})
	return applied
}

// Shutdown moves the session to Exiting.
func (e *Engine) Shutdown() {
	if e.status.exit() {
		e.log.Info("shutdown requested")
	}
}

// Step advances the simulation by one fixed step and publishes the result.
// The returned error reports a non-finite state; the state is kept as is.
func (e *Engine) Step() error {
	start := time.Now()

	var (
		snap    store.Snapshot
		dropErr error
		stepErr error
	)
	e.store.Update(func(tx *store.Tx) {
		tx.LatchForces()
		t := tx.Time()
		next := e.integrator.Step(e.model.Bind(tx.Objects()), tx.State(), t, e.dt)
		if !next.IsValid() {
			stepErr = &dynamo.StepError{Step: e.steps, Time: t, Wrapped: dynamo.ErrInvalidState}
		}
		if !tx.SetState(next) {
			dropErr = &dynamo.StepError{Step: e.steps, Time: t, Wrapped: dynamo.ErrDimensionMismatch}
		}
		// steps*dt, not a running sum
		tx.SetTime(float64(e.steps+1) * e.dt)
		snap = tx.Snapshot()
	})
	e.steps++
	elapsed := time.Since(start)

	if dropErr != nil {
		e.log.Warn("state write dropped", "err", dropErr)
		if e.metrics != nil {
			e.metrics.DroppedWrite()
		}
	}
	if stepErr != nil {
		if !e.invalid {
			e.log.Error("non-finite state", "err", stepErr)
		}
		if e.metrics != nil {
			e.metrics.InvalidState()
		}
	}
	e.invalid = stepErr != nil

	e.publish(snap)
	if e.metrics != nil {
		e.metrics.ObserveStep(elapsed, snap)
	}
	if e.recorder != nil {
		if err := e.recorder.Record(snap); err != nil {
			e.log.Error("recording stopped", "err", err)
			e.recorder = nil
		}
	}
	return stepErr
}

func (e *Engine) publish(snap store.Snapshot) {
	if e.server == nil {
		return
	}
	if err := e.server.Publish(protocol.FormatState(snap)); err != nil {
		if errors.Is(err, transport.ErrClosed) {
			return
		}
		e.log.Warn("publish failed", "err", err)
		if e.metrics != nil {
			e.metrics.PublishError()
		}
	}
}

// tick is the scheduler body.
func (e *Engine) tick() bool {
	if e.Status() == Exiting {
		return false
	}
	e.Step()
	return true
}

// serve is the command actor. It returns after handling the request that
// moved the session to Exiting.
func (e *Engine) serve(ctx context.Context) {
	requests := e.server.Requests()
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-requests:
			req.Reply(e.handler.Handle(req.Payload))
			if e.Status() == Exiting {
				return
			}
		}
	}
}

// Run ticks the simulation and serves control requests until the session
// exits or ctx is cancelled. Both actors have stopped when Run returns.
func (e *Engine) Run(ctx context.Context) error {
	if e.server == nil {
		return errors.New("engine: no transport")
	}
	e.log.Info("engine running", "step", e.dt, "objects", e.store.Len())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer cancel()
		Schedule(ctx, e.period, e.tick)
	}()
	go func() {
		defer wg.Done()
		defer cancel()
		e.serve(ctx)
	}()

	<-ctx.Done()
	e.Shutdown()
	wg.Wait()

	e.log.Info("engine stopped", "steps", e.steps, "time", e.store.Time())
	return nil
}
