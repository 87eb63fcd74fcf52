// Package transport carries the engine's two byte channels: a state
// broadcast (pub/sub) and a control request/reply channel.
//
// Hub serves both over websockets. Pipe is an in-process equivalent used by
// tests and embedders.
package transport

import (
	"context"
	"errors"
)

var (
	ErrClosed = errors.New("transport: closed")
	ErrNoPeer = errors.New("transport: no reply")
)

// Publisher delivers state broadcasts to every current subscriber. Publish
// must not block on slow subscribers.
type Publisher interface {
	Publish(msg []byte) error
}

// Server is what the engine needs from a transport.
type Server interface {
	Publisher
	// Requests yields control messages one at a time. Every received
	// Request must be replied to.
	Requests() <-chan Request
}

// Observer receives transport health signals.
type Observer interface {
	PublishError()
	SetSubscribers(n int)
}

// Request is one control message waiting for its reply.
type Request struct {
	Payload []byte
	reply   chan<- []byte
}

func NewRequest(payload []byte) (Request, <-chan []byte) {
	ch := make(chan []byte, 1)
	return Request{Payload: payload, reply: ch}, ch
}

// Reply answers the request. Only the first call has an effect.
func (r Request) Reply(msg []byte) {
	select {
	case r.reply <- msg:
	default:
	}
}

// roundTrip submits payload to requests and waits for the reply.
func roundTrip(ctx context.Context, requests chan<- Request, done <-chan struct{}, payload []byte) ([]byte, error) {
	req, reply := NewRequest(payload)
	select {
	case requests <- req:
	case <-done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case msg := <-reply:
		return msg, nil
	case <-done:
		// The reply to the request that stopped the engine may race the close.
		select {
		case msg := <-reply:
			return msg, nil
		default:
			return nil, ErrNoPeer
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
