package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/drop/internal/physics"
)

// Replies.
var (
	ReplyOK    = []byte("ok")
	ReplyError = []byte("error")
)

// Target is the simulation state a command acts on.
type Target interface {
	AddObject(mass, drag float64, pos, vel mgl64.Vec3) int
	RemoveObject(id int) bool
	UpdateWind(id int, wind mgl64.Vec3) bool
	UpdateForce(id int, force mgl64.Vec3) bool
	Collide(id int, c physics.Contact) bool
	Shutdown()
}

// Observer is notified about every handled command. Letter is 0 for
// messages that were not a command.
type Observer interface {
	ObserveCommand(letter byte, err error)
}

// Handler parses, validates and executes control messages.
type Handler struct {
	target   Target
	log      *slog.Logger
	observer Observer
}

func NewHandler(target Target, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{target: target, log: log}
}

func (h *Handler) SetObserver(o Observer) { h.observer = o }

// Handle executes one message and returns the reply payload. Malformed
// payloads leave the simulation untouched; input that is not a command at
// all also requests shutdown.
func (h *Handler) Handle(msg []byte) []byte {
	cmd, err := Parse(msg)
	if err != nil {
		letter := byte(0)
		if errors.Is(err, ErrUnknownCommand) {
			h.log.Warn("unrecognized command, shutting down", "msg", string(msg))
			h.target.Shutdown()
		} else {
			letter = bytes.TrimSpace(msg)[0]
			h.log.Debug("rejected command", "msg", string(msg), "err", err)
		}
		h.observe(letter, err)
		return ReplyError
	}

	reply, err := h.Execute(cmd)
	if err != nil {
		h.log.Debug("command failed", "msg", string(msg), "err", err)
	}
	h.observe(cmd.Letter(), err)
	return reply
}

// Execute applies an already parsed command.
func (h *Handler) Execute(cmd Command) ([]byte, error) {
	switch c := cmd.(type) {
	case Add:
		id := h.target.AddObject(c.Mass, c.Drag, c.Pos, c.Vel)
		return []byte("ok;" + strconv.Itoa(id)), nil
	case Remove:
		// Unknown ids are a silent no-op and still succeed.
		h.target.RemoveObject(c.ID)
		return ReplyOK, nil
	case Wind:
		for _, u := range c.Updates {
			h.target.UpdateWind(u.ID, u.Wind)
		}
		return ReplyOK, nil
	case Force:
		if !h.target.UpdateForce(c.ID, c.Force) {
			return ReplyError, fmt.Errorf("%w: %d", ErrUnknownObject, c.ID)
		}
		return ReplyOK, nil
	case Collide:
		h.target.Collide(c.ID, c.Contact)
		return ReplyOK, nil
	case Shutdown:
		h.target.Shutdown()
		return ReplyOK, nil
	default:
		return ReplyError, fmt.Errorf("%w: %T", ErrUnknownCommand, cmd)
	}
}

func (h *Handler) observe(letter byte, err error) {
	if h.observer != nil {
		h.observer.ObserveCommand(letter, err)
	}
}
