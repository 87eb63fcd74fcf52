package transport

import (
	"context"
	"sync"
)

// Pipe is an in-memory Server. Subscribers get a buffered channel; a
// subscriber whose buffer is full misses that broadcast.
type Pipe struct {
	requests chan Request
	done     chan struct{}
	once     sync.Once

	mu       sync.Mutex
	subs     map[int]chan []byte
	nextSub  int
	observer Observer
}

func NewPipe() *Pipe {
	return &Pipe{
		requests: make(chan Request),
		done:     make(chan struct{}),
		subs:     make(map[int]chan []byte),
	}
}

func (p *Pipe) SetObserver(o Observer) { p.observer = o }

func (p *Pipe) Requests() <-chan Request { return p.requests }

func (p *Pipe) Publish(msg []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	select {
	case <-p.done:
		return ErrClosed
	default:
	}
	for _, ch := range p.subs {
		select {
		case ch <- msg:
		default:
			if p.observer != nil {
				p.observer.PublishError()
			}
		}
	}
	return nil
}

// Request sends a control message and waits for the reply.
func (p *Pipe) Request(ctx context.Context, msg []byte) ([]byte, error) {
	return roundTrip(ctx, p.requests, p.done, msg)
}

// Subscribe registers a broadcast receiver. The returned cancel func
// unregisters it.
func (p *Pipe) Subscribe(buffer int) (<-chan []byte, func()) {
	ch := make(chan []byte, buffer)
	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = ch
	n := len(p.subs)
	p.mu.Unlock()
	if p.observer != nil {
		p.observer.SetSubscribers(n)
	}

	return ch, func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}

// Close stops the pipe. Pending and future requests fail with ErrClosed.
func (p *Pipe) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}
