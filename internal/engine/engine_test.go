package engine_test

import (
	"context"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/drop/internal/config"
	"github.com/san-kum/drop/internal/dynamo"
	"github.com/san-kum/drop/internal/engine"
	"github.com/san-kum/drop/internal/metrics"
	"github.com/san-kum/drop/internal/physics"
	"github.com/san-kum/drop/internal/protocol"
	"github.com/san-kum/drop/internal/store"
	"github.com/san-kum/drop/internal/transport"
)

const g = physics.DefaultGravity

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type countingRecorder struct{ snaps []store.Snapshot }

func (r *countingRecorder) Record(snap store.Snapshot) error {
	r.snaps = append(r.snaps, snap)
	return nil
}

func velocity(e *engine.Engine, id int) mgl64.Vec3 {
	snap := e.Store().Snapshot()
	for i, sid := range snap.IDs {
		if sid == id {
			return snap.State.Velocity(i)
		}
	}
	Fail("object not found")
	return mgl64.Vec3{}
}

var _ = Describe("Engine stepping", func() {
	var e *engine.Engine

	BeforeEach(func() {
		var err error
		e, err = engine.New(config.DefaultConfig(), nil, quietLogger())
		Expect(err).NotTo(HaveOccurred())
	})

	It("rejects an invalid configuration", func() {
		cfg := config.DefaultConfig()
		cfg.ODEMethod = "leapfrog"
		_, err := engine.New(cfg, nil, quietLogger())
		Expect(err).To(MatchError(config.ErrInvalidConfig))
	})

	It("follows the free fall parabola", func() {
		id := e.AddObject(1, 0, mgl64.Vec3{0, 0, 100}, mgl64.Vec3{})
		for i := 0; i < 1000; i++ {
			Expect(e.Step()).To(Succeed())
		}

		snap := e.Store().Snapshot()
		t := snap.Time
		Expect(t).To(BeNumerically("~", 3.0, 1e-9))
		Expect(snap.State.Position(0)[2]).To(BeNumerically("~", 100-0.5*g*t*t, 1e-6))
		Expect(velocity(e, id)[2]).To(BeNumerically("~", -g*t, 1e-6))
	})

	It("applies a force for exactly one step", func() {
		id := e.AddObject(1, 0, mgl64.Vec3{}, mgl64.Vec3{})
		Expect(e.UpdateForce(id, mgl64.Vec3{0, 0, g})).To(BeTrue())

		Expect(e.Step()).To(Succeed())
		Expect(velocity(e, id)[2]).To(BeNumerically("~", 0, 1e-12))

		Expect(e.Step()).To(Succeed())
		Expect(velocity(e, id)[2]).To(BeNumerically("~", -g*config.DefaultStepTime, 1e-12))
	})

	It("reflects with e=1 and stops with e=0", func() {
		a := e.AddObject(1, 0, mgl64.Vec3{}, mgl64.Vec3{0, 0, -5})
		b := e.AddObject(2, 0, mgl64.Vec3{}, mgl64.Vec3{0, 0, -5})
		up := mgl64.Vec3{0, 0, 1}

		Expect(e.Collide(a, physics.Contact{Restitution: 1, Normal: up})).To(BeTrue())
		Expect(e.Collide(b, physics.Contact{Restitution: 0, Normal: up})).To(BeTrue())
		Expect(velocity(e, a)[2]).To(BeNumerically("~", 5, 1e-12))
		Expect(velocity(e, b)[2]).To(BeNumerically("~", 0, 1e-12))
	})

	It("ignores collisions for unknown ids", func() {
		e.AddObject(1, 0, mgl64.Vec3{}, mgl64.Vec3{0, 0, -5})
		before := e.Store().State()
		Expect(e.Collide(42, physics.Contact{Restitution: 1, Normal: mgl64.Vec3{0, 0, 1}})).To(BeFalse())
		Expect(e.Store().State()).To(Equal(before))
	})

	It("reports non-finite states without masking them", func() {
		reg := metrics.New(nil)
		e.SetMetrics(reg)
		id := e.AddObject(1, 0, mgl64.Vec3{}, mgl64.Vec3{})
		e.UpdateForce(id, mgl64.Vec3{math.Inf(1), 0, 0})

		err := e.Step()
		Expect(err).To(MatchError(dynamo.ErrInvalidState))
		Expect(e.Store().State().IsValid()).To(BeFalse())
		Expect(e.Store().Time()).To(BeNumerically("~", config.DefaultStepTime, 1e-12))
	})

	It("stamps broadcasts with a clock free of accumulated rounding", func() {
		pipe := transport.NewPipe()
		frames, unsubscribe := pipe.Subscribe(8)
		DeferCleanup(unsubscribe)
		DeferCleanup(pipe.Close)

		e, err := engine.New(config.DefaultConfig(), pipe, quietLogger())
		Expect(err).NotTo(HaveOccurred())
		for i := 0; i < 3; i++ {
			Expect(e.Step()).To(Succeed())
		}

		var last []byte
		for i := 0; i < 3; i++ {
			Eventually(frames).Should(Receive(&last))
		}
		Expect(string(last)).To(Equal("0.009;"))
	})

	It("feeds every step to the recorder", func() {
		rec := &countingRecorder{}
		e.SetRecorder(rec)
		e.AddObject(1, 0.5, mgl64.Vec3{}, mgl64.Vec3{})
		for i := 0; i < 3; i++ {
			e.Step()
		}
		Expect(rec.snaps).To(HaveLen(3))
		Expect(rec.snaps[2].Time).To(BeNumerically("~", 3*config.DefaultStepTime, 1e-12))
	})
})

var _ = Describe("Engine session", func() {
	var (
		e      *engine.Engine
		pipe   *transport.Pipe
		frames <-chan []byte
		done   chan error
		cancel context.CancelFunc
		ctx    context.Context
	)

	request := func(msg string) string {
		reply, err := pipe.Request(ctx, []byte(msg))
		Expect(err).NotTo(HaveOccurred())
		return string(reply)
	}

	latest := func() protocol.Frame {
		var last []byte
		for {
			select {
			case msg := <-frames:
				last = msg
				continue
			default:
			}
			break
		}
		if last == nil {
			last = <-frames
		}
		frame, err := protocol.ParseState(last)
		Expect(err).NotTo(HaveOccurred())
		return frame
	}

	ids := func() []int {
		frame := latest()
		out := make([]int, 0, len(frame.Objects))
		for _, o := range frame.Objects {
			out = append(out, o.ID)
		}
		return out
	}

	BeforeEach(func() {
		cfg := config.DefaultConfig()
		cfg.StepTime = 0.001

		pipe = transport.NewPipe()
		var unsubscribe func()
		frames, unsubscribe = pipe.Subscribe(256)
		DeferCleanup(unsubscribe)

		var err error
		e, err = engine.New(cfg, pipe, quietLogger())
		Expect(err).NotTo(HaveOccurred())
		e.SetMetrics(metrics.New(nil))

		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		DeferCleanup(cancel)
		done = make(chan error, 1)
		go func() { done <- e.Run(ctx) }()
	})

	AfterEach(func() {
		cancel()
		Eventually(done).Should(Receive())
		pipe.Close()
	})

	It("issues increasing ids and drops removed objects from the broadcast", func() {
		Expect(request("a:1,0,0,0,100")).To(Equal("ok;0"))
		Expect(request("a:1,0.1,5,5,100,1,0,0")).To(Equal("ok;1"))
		Eventually(ids).Should(Equal([]int{0, 1}))

		Expect(request("r:0")).To(Equal("ok"))
		Eventually(ids).Should(Equal([]int{1}))
		Consistently(ids, 50*time.Millisecond).Should(Equal([]int{1}))

		Expect(request("a:1,0,0,0,0")).To(Equal("ok;2"))
		Expect(request("r:0")).To(Equal("ok"))
	})

	It("advances the broadcast clock", func() {
		first := latest().Time
		Eventually(func() float64 { return latest().Time }).Should(BeNumerically(">", first))
	})

	It("stops on shutdown after replying", func() {
		Expect(request("s")).To(Equal("ok"))
		Eventually(done).Should(Receive(BeNil()))
		Expect(e.Status()).To(Equal(engine.Exiting))
		done <- nil
	})

	It("treats an unknown command as fatal", func() {
		Expect(request("q:1")).To(Equal("error"))
		Eventually(done).Should(Receive())
		Expect(e.Status()).To(Equal(engine.Exiting))
		done <- nil
	})

	It("keeps running after a rejected payload", func() {
		Expect(request("a:1,2")).To(Equal("error"))
		Expect(request("f:9,1,1,1")).To(Equal("error"))
		Expect(e.Status()).To(Equal(engine.Running))
		Expect(request("a:1,0,0,0,0")).To(Equal("ok;0"))
	})
})
