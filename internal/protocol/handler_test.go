package protocol_test

import (
	"io"
	"log/slog"

	"github.com/go-gl/mathgl/mgl64"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/drop/internal/physics"
	"github.com/san-kum/drop/internal/protocol"
	"github.com/san-kum/drop/internal/store"
)

// storeTarget drives a real store and records collisions and shutdowns.
type storeTarget struct {
	*store.Store
	collisions []int
	shutdowns  int
}

func (t *storeTarget) Collide(id int, c physics.Contact) bool {
	t.collisions = append(t.collisions, id)
	return t.FindIndex(id) != store.NotFound
}

func (t *storeTarget) Shutdown() { t.shutdowns++ }

type observed struct {
	letter byte
	err    error
}

type recorder struct{ seen []observed }

func (r *recorder) ObserveCommand(letter byte, err error) {
	r.seen = append(r.seen, observed{letter, err})
}

var _ = Describe("Handler", func() {
	var (
		target  *storeTarget
		handler *protocol.Handler
		rec     *recorder
	)

	send := func(msg string) string {
		return string(handler.Handle([]byte(msg)))
	}

	BeforeEach(func() {
		target = &storeTarget{Store: store.New()}
		rec = &recorder{}
		handler = protocol.NewHandler(target, slog.New(slog.NewTextHandler(io.Discard, nil)))
		handler.SetObserver(rec)
	})

	Describe("add", func() {
		It("returns strictly increasing ids", func() {
			Expect(send("a:1,0,0,0,0")).To(Equal("ok;0"))
			Expect(send("a:1,0,0,0,0")).To(Equal("ok;1"))
			Expect(send("r:1")).To(Equal("ok"))
			Expect(send("a:1,0,0,0,0,1,1,1")).To(Equal("ok;2"))
		})

		It("stores position and velocity", func() {
			Expect(send("a:2,0.5,1,2,3,4,5,6")).To(Equal("ok;0"))
			Expect(target.State()).To(HaveExactElements(1.0, 2.0, 3.0, 4.0, 5.0, 6.0))
		})

		It("rejects malformed payloads without touching the store", func() {
			Expect(send("a:1,2")).To(Equal("error"))
			Expect(send("a:-1,0,0,0,0")).To(Equal("error"))
			Expect(target.Len()).To(BeZero())
			Expect(target.shutdowns).To(BeZero())
		})
	})

	Describe("remove", func() {
		It("replies ok for unknown ids", func() {
			Expect(send("r:42")).To(Equal("ok"))
			Expect(send("r:42")).To(Equal("ok"))
		})

		It("rejects a malformed id", func() {
			Expect(send("r:one")).To(Equal("error"))
		})
	})

	Describe("wind", func() {
		BeforeEach(func() {
			Expect(send("a:1,0,0,0,0")).To(Equal("ok;0"))
			Expect(send("a:1,0,0,0,0")).To(Equal("ok;1"))
		})

		It("applies every group", func() {
			Expect(send("w:0,1,0,0;1,0,2,0")).To(Equal("ok"))
			target.Update(func(tx *store.Tx) {
				Expect(tx.Object(0).Wind()).To(Equal(mgl64.Vec3{1, 0, 0}))
				Expect(tx.Object(1).Wind()).To(Equal(mgl64.Vec3{0, 2, 0}))
			})
		})

		It("applies nothing when a group is malformed", func() {
			Expect(send("w:0,1,0,0;1,bad,2,0")).To(Equal("error"))
			target.Update(func(tx *store.Tx) {
				Expect(tx.Object(0).Wind()).To(Equal(mgl64.Vec3{}))
			})
		})
	})

	Describe("force", func() {
		It("accepts live objects only", func() {
			Expect(send("a:1,0,0,0,0")).To(Equal("ok;0"))
			Expect(send("f:0,1,2,3")).To(Equal("ok"))
			Expect(send("f:5,1,2,3")).To(Equal("error"))
			Expect(rec.seen[len(rec.seen)-1].err).To(MatchError(protocol.ErrUnknownObject))
		})
	})

	Describe("collide", func() {
		It("forwards valid contacts", func() {
			Expect(send("j:0,0.5,0.5,0.3,0,0,1")).To(Equal("ok"))
			Expect(target.collisions).To(Equal([]int{0}))
		})

		It("rejects out of range coefficients", func() {
			Expect(send("j:0,0.5,0.2,0.3,0,0,1")).To(Equal("error"))
			Expect(send("j:0,0.5,0.5,0.3,0,0,0")).To(Equal("error"))
			Expect(target.collisions).To(BeEmpty())
		})
	})

	Describe("shutdown", func() {
		It("acknowledges s", func() {
			Expect(send("s")).To(Equal("ok"))
			Expect(target.shutdowns).To(Equal(1))
		})

		It("treats an unknown command as fatal", func() {
			Expect(send("z:1")).To(Equal("error"))
			Expect(target.shutdowns).To(Equal(1))
			Expect(rec.seen).To(HaveLen(1))
			Expect(rec.seen[0].letter).To(BeZero())
			Expect(rec.seen[0].err).To(MatchError(protocol.ErrUnknownCommand))
		})
	})
})
