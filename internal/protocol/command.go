package protocol

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/drop/internal/physics"
)

// Command letters.
const (
	CmdAdd      = 'a'
	CmdRemove   = 'r'
	CmdWind     = 'w'
	CmdForce    = 'f'
	CmdCollide  = 'j'
	CmdShutdown = 's'
)

// Command is a parsed, validated control request.
type Command interface {
	Letter() byte
}

type Add struct {
	Mass, Drag float64
	Pos, Vel   mgl64.Vec3
}

type Remove struct {
	ID int
}

type WindUpdate struct {
	ID   int
	Wind mgl64.Vec3
}

// Wind carries every group of a bulk wind request. Parsing either yields
// all groups or none.
type Wind struct {
	Updates []WindUpdate
}

type Force struct {
	ID    int
	Force mgl64.Vec3
}

type Collide struct {
	ID      int
	Contact physics.Contact
}

type Shutdown struct{}

func (Add) Letter() byte      { return CmdAdd }
func (Remove) Letter() byte   { return CmdRemove }
func (Wind) Letter() byte     { return CmdWind }
func (Force) Letter() byte    { return CmdForce }
func (Collide) Letter() byte  { return CmdCollide }
func (Shutdown) Letter() byte { return CmdShutdown }

// Parse decodes one command message of the form <letter>:<payload>.
// Errors wrapping ErrUnknownCommand mean the message is not a command;
// every other error is a malformed payload for a known command.
func Parse(msg []byte) (Command, error) {
	msg = bytes.TrimSpace(msg)
	if len(msg) == 0 {
		return nil, fmt.Errorf("%w: empty message", ErrUnknownCommand)
	}

	letter := msg[0]
	if len(msg) > 1 && msg[1] != ':' {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, msg)
	}
	payload := ""
	if len(msg) > 2 {
		payload = string(msg[2:])
	}

	switch letter {
	case CmdAdd:
		return parseAdd(payload)
	case CmdRemove:
		id, err := parseID(payload)
		if err != nil {
			return nil, err
		}
		return Remove{ID: id}, nil
	case CmdWind:
		return parseWind(payload)
	case CmdForce:
		return parseForce(payload)
	case CmdCollide:
		return parseCollide(payload)
	case CmdShutdown:
		return Shutdown{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, letter)
	}
}

func fields(payload string) []string {
	parts := strings.Split(payload, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseFloat(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %q", ErrMalformedNumber, s)
	}
	return v, nil
}

func parseFloats(parts []string) ([]float64, error) {
	out := make([]float64, len(parts))
	for i, p := range parts {
		v, err := parseFloat(p)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func parseID(s string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: id %q", ErrMalformedNumber, s)
	}
	return id, nil
}

func vec(v []float64) mgl64.Vec3 { return mgl64.Vec3{v[0], v[1], v[2]} }

func parseAdd(payload string) (Command, error) {
	parts := fields(payload)
	if len(parts) != 5 && len(parts) != 8 {
		return nil, fmt.Errorf("%w: add takes 5 or 8, got %d", ErrFieldCount, len(parts))
	}
	v, err := parseFloats(parts)
	if err != nil {
		return nil, err
	}
	cmd := Add{Mass: v[0], Drag: v[1], Pos: vec(v[2:5])}
	if len(v) == 8 {
		cmd.Vel = vec(v[5:8])
	}
	if cmd.Mass <= 0 {
		return nil, fmt.Errorf("%w: mass %g must be positive", ErrOutOfRange, cmd.Mass)
	}
	if cmd.Drag < 0 {
		return nil, fmt.Errorf("%w: drag coefficient %g is negative", ErrOutOfRange, cmd.Drag)
	}
	return cmd, nil
}

// parseIDVec parses id,x,y,z.
func parseIDVec(group string) (int, mgl64.Vec3, error) {
	parts := fields(group)
	if len(parts) != 4 {
		return 0, mgl64.Vec3{}, fmt.Errorf("%w: expected 4, got %d", ErrFieldCount, len(parts))
	}
	id, err := parseID(parts[0])
	if err != nil {
		return 0, mgl64.Vec3{}, err
	}
	v, err := parseFloats(parts[1:])
	if err != nil {
		return 0, mgl64.Vec3{}, err
	}
	return id, vec(v), nil
}

func parseWind(payload string) (Command, error) {
	payload = strings.TrimSuffix(strings.TrimSpace(payload), ";")
	groups := strings.Split(payload, ";")
	cmd := Wind{Updates: make([]WindUpdate, 0, len(groups))}
	for i, g := range groups {
		id, w, err := parseIDVec(g)
		if err != nil {
			return nil, fmt.Errorf("wind group %d: %w", i, err)
		}
		cmd.Updates = append(cmd.Updates, WindUpdate{ID: id, Wind: w})
	}
	return cmd, nil
}

func parseForce(payload string) (Command, error) {
	id, f, err := parseIDVec(payload)
	if err != nil {
		return nil, err
	}
	return Force{ID: id, Force: f}, nil
}

func parseCollide(payload string) (Command, error) {
	parts := fields(payload)
	if len(parts) != 7 {
		return nil, fmt.Errorf("%w: collide takes 7, got %d", ErrFieldCount, len(parts))
	}
	id, err := parseID(parts[0])
	if err != nil {
		return nil, err
	}
	v, err := parseFloats(parts[1:])
	if err != nil {
		return nil, err
	}
	c := physics.Contact{
		Restitution:     v[0],
		StaticFriction:  v[1],
		DynamicFriction: v[2],
		Normal:          vec(v[3:6]),
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOutOfRange, err)
	}
	return Collide{ID: id, Contact: c}, nil
}
