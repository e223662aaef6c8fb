// Package client is the peer side of the signaling protocol: a WebSocket
// connection to the relay and an Agent that turns relay messages into
// negotiation steps.
package client

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

// Conn is a signaling connection. Send is safe for concurrent use; reads
// must come from a single goroutine.
type Conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func Dial(ctx context.Context, url string, header http.Header) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, err
	}
	return &Conn{ws: ws}, nil
}

func (c *Conn) Send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteJSON(v)
}

func (c *Conn) ReadMessage() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	return data, err
}

func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.ws.SetReadDeadline(t)
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	return c.ws.Close()
}
