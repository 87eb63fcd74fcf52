package protocol

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/drop/internal/dynamo"
	"github.com/san-kum/drop/internal/store"
)

// Broadcast layout:
//
//	<time>;<id> <px> <py> <pz> <vx> <vy> <vz>;<id> ...;
//
// Every object record is terminated by ';'. Fields use 6 significant digits.
// The time is rounded to the nanosecond before printing.

// ObjectState is one decoded object record of a broadcast.
type ObjectState struct {
	ID       int
	Position mgl64.Vec3
	Velocity mgl64.Vec3
}

// Frame is a decoded broadcast.
type Frame struct {
	Time    float64
	Objects []ObjectState
}

// Find returns the record with the given id.
func (f Frame) Find(id int) (ObjectState, bool) {
	for _, o := range f.Objects {
		if o.ID == id {
			return o, true
		}
	}
	return ObjectState{}, false
}

const timeResolution = 1e9

// AppendState encodes snap onto dst.
func AppendState(dst []byte, snap store.Snapshot) []byte {
	dst = strconv.AppendFloat(dst, math.Round(snap.Time*timeResolution)/timeResolution, 'f', -1, 64)
	dst = append(dst, ';')
	for i, id := range snap.IDs {
		dst = strconv.AppendInt(dst, int64(id), 10)
		block := snap.State[i*dynamo.Stride : (i+1)*dynamo.Stride]
		for _, v := range block {
			dst = append(dst, ' ')
			dst = strconv.AppendFloat(dst, v, 'g', 6, 64)
		}
		dst = append(dst, ';')
	}
	return dst
}

func FormatState(snap store.Snapshot) []byte {
	return AppendState(make([]byte, 0, 16+len(snap.IDs)*80), snap)
}

// ParseState decodes a broadcast produced by FormatState.
func ParseState(msg []byte) (Frame, error) {
	head, rest, ok := bytes.Cut(msg, []byte(";"))
	if !ok {
		return Frame{}, fmt.Errorf("%w: missing time separator", ErrMalformedState)
	}
	t, err := strconv.ParseFloat(string(head), 64)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: time %q", ErrMalformedState, head)
	}

	frame := Frame{Time: t}
	body := string(rest)
	if body == "" {
		return frame, nil
	}
	if !strings.HasSuffix(body, ";") {
		return Frame{}, fmt.Errorf("%w: unterminated record", ErrMalformedState)
	}

	for _, rec := range strings.Split(strings.TrimSuffix(body, ";"), ";") {
		parts := strings.Fields(rec)
		if len(parts) != 7 {
			return Frame{}, fmt.Errorf("%w: record %q", ErrMalformedState, rec)
		}
		id, err := strconv.Atoi(parts[0])
		if err != nil {
			return Frame{}, fmt.Errorf("%w: id %q", ErrMalformedState, parts[0])
		}
		var v [6]float64
		for i := range v {
			v[i], err = strconv.ParseFloat(parts[i+1], 64)
			if err != nil {
				return Frame{}, fmt.Errorf("%w: field %q", ErrMalformedState, parts[i+1])
			}
		}
		frame.Objects = append(frame.Objects, ObjectState{
			ID:       id,
			Position: mgl64.Vec3{v[0], v[1], v[2]},
			Velocity: mgl64.Vec3{v[3], v[4], v[5]},
		})
	}
	return frame, nil
}
