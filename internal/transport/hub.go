package transport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait   = 2 * time.Second
	pingPeriod  = 15 * time.Second
	readLimit   = 64 << 10
	closeReason = "server shutting down"
)

// Hub serves the state broadcast and the control channel over websockets.
// Each state subscriber has a bounded send queue; a subscriber that falls a
// full queue behind is disconnected rather than stalling the simulation.
type Hub struct {
	upgrader websocket.Upgrader
	log      *slog.Logger
	buffer   int
	observer Observer

	requests chan Request
	done     chan struct{}
	once     sync.Once

	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

func NewHub(log *slog.Logger, buffer int) *Hub {
	if log == nil {
		log = slog.Default()
	}
	if buffer < 1 {
		buffer = 1
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log:      log,
		buffer:   buffer,
		requests: make(chan Request),
		done:     make(chan struct{}),
		subs:     make(map[*subscriber]struct{}),
	}
}

func (h *Hub) SetObserver(o Observer) { h.observer = o }

func (h *Hub) Requests() <-chan Request { return h.requests }

// Mount registers the state and control endpoints on mux.
func (h *Hub) Mount(mux *http.ServeMux, statePath, controlPath string) {
	mux.HandleFunc(statePath, h.ServeState)
	mux.HandleFunc(controlPath, h.ServeControl)
}

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
	mu   sync.Mutex
}

// WriteMessage sends a websocket message guarded by the subscriber's mutex
// and write deadline.
func (s *subscriber) WriteMessage(messageType int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.conn.WriteMessage(messageType, data)
}

// Publish queues msg for every subscriber without blocking.
func (h *Hub) Publish(msg []byte) error {
	select {
	case <-h.done:
		return ErrClosed
	default:
	}

	var slow []*subscriber
	h.mu.Lock()
	for s := range h.subs {
		select {
		case s.send <- msg:
		default:
			slow = append(slow, s)
		}
	}
	h.mu.Unlock()

	for _, s := range slow {
		h.log.Warn("dropping slow state subscriber", "remote", s.conn.RemoteAddr().String())
		if h.observer != nil {
			h.observer.PublishError()
		}
		h.drop(s)
	}
	return nil
}

func (h *Hub) ServeState(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("state upgrade failed", "err", err)
		return
	}
	s := &subscriber{conn: conn, send: make(chan []byte, h.buffer)}

	h.mu.Lock()
	select {
	case <-h.done:
		h.mu.Unlock()
		conn.Close()
		return
	default:
	}
	h.subs[s] = struct{}{}
	n := len(h.subs)
	h.mu.Unlock()
	h.countSubscribers(n)
	h.log.Debug("state subscriber connected", "remote", conn.RemoteAddr().String())

	go h.discardReads(s)
	h.writeLoop(s)
}

// writeLoop drains the subscriber queue until it is closed by drop.
func (h *Hub) writeLoop(s *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer s.conn.Close()

	for {
		select {
		case msg, ok := <-s.send:
			if !ok {
				s.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, closeReason))
				return
			}
			if err := s.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.log.Debug("state write failed", "err", err)
				h.drop(s)
				return
			}
		case <-ticker.C:
			if err := s.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.drop(s)
				return
			}
		}
	}
}

// discardReads keeps control frames flowing and notices client hangups.
func (h *Hub) discardReads(s *subscriber) {
	s.conn.SetReadLimit(readLimit)
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			h.drop(s)
			return
		}
	}
}

func (h *Hub) drop(s *subscriber) {
	h.mu.Lock()
	if _, ok := h.subs[s]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.subs, s)
	close(s.send)
	n := len(h.subs)
	h.mu.Unlock()
	h.countSubscribers(n)
}

func (h *Hub) countSubscribers(n int) {
	if h.observer != nil {
		h.observer.SetSubscribers(n)
	}
}

// ServeControl reads one request at a time from the connection, hands it to
// the engine and writes back the reply.
func (h *Hub) ServeControl(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("control upgrade failed", "err", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(readLimit)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Debug("control read failed", "err", err)
			}
			return
		}

		reply, err := roundTrip(ctx, h.requests, h.done, msg)
		if err != nil {
			if errors.Is(err, ErrClosed) || errors.Is(err, ErrNoPeer) {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, closeReason),
					time.Now().Add(writeWait))
			}
			return
		}

		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, reply); err != nil {
			h.log.Debug("control write failed", "err", err)
			return
		}
	}
}

// Close disconnects every subscriber and fails pending control requests.
func (h *Hub) Close() error {
	h.once.Do(func() {
		close(h.done)
		h.mu.Lock()
		subs := make([]*subscriber, 0, len(h.subs))
		for s := range h.subs {
			subs = append(subs, s)
		}
		h.mu.Unlock()
		for _, s := range subs {
			h.drop(s)
		}
	})
	return nil
}
