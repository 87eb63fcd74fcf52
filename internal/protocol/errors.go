package protocol

import "errors"

var (
	// ErrUnknownCommand marks input that is not a command at all. It is
	// fatal: the engine shuts down after replying.
	ErrUnknownCommand = errors.New("protocol: unknown command")

	ErrFieldCount      = errors.New("protocol: wrong number of fields")
	ErrMalformedNumber = errors.New("protocol: malformed number")
	ErrOutOfRange      = errors.New("protocol: value out of range")
	ErrUnknownObject   = errors.New("protocol: unknown object")
	ErrMalformedState  = errors.New("protocol: malformed state message")
)
