package transport

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Endpoint builds the websocket URL of a path on a listen address.
func Endpoint(addr, path string) string {
	u := url.URL{Scheme: "ws", Host: addr, Path: path}
	return u.String()
}

// Client is a control channel connection. Requests are serialized.
type Client struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func Dial(ctx context.Context, rawURL string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rawURL, err)
	}
	return &Client{conn: conn}, nil
}

// Request sends msg and waits for the reply.
func (c *Client) Request(ctx context.Context, msg []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		return nil, err
	}
	c.conn.SetReadDeadline(deadline)
	_, reply, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return reply, nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	return c.conn.Close()
}

// Subscribe connects to a state endpoint and streams broadcasts until ctx
// is cancelled or the server hangs up. The returned channel is closed on
// exit.
func Subscribe(ctx context.Context, rawURL string) (<-chan []byte, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rawURL, err)
	}

	out := make(chan []byte, 16)
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	go func() {
		defer close(out)
		defer close(done)
		defer conn.Close()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			select {
			case out <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
