package wsconn

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// handshakeTimeout bounds the WebSocket opening handshake.
	handshakeTimeout = 15 * time.Second
)

// WebsocketTransport implements Transport over gorilla/websocket.
type WebsocketTransport struct{}

// NewWebsocketTransport creates the production transport.
func NewWebsocketTransport() *WebsocketTransport {
	return &WebsocketTransport{}
}

// Dial opens a WebSocket connection. An explicit HTTP rejection
// (unauthorized/forbidden) from the venue is reported as terminal; refused or
// timed-out handshakes stay transient.
func (t *WebsocketTransport) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
	}

	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, &TerminalError{Err: fmt.Errorf("wsconn: dial %s: rejected with status %d", url, resp.StatusCode)}
		}
		return nil, fmt.Errorf("wsconn: dial %s: %w", url, err)
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	return &wsConn{conn: conn}, nil
}

// wsConn adapts a *websocket.Conn to the Conn interface. gorilla permits one
// concurrent reader and one concurrent writer; the write mutex serializes
// command writes against keepalive pings.
type wsConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *wsConn) WriteJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

func (c *wsConn) Ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}

func (c *wsConn) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	)
	c.writeMu.Unlock()
	return c.conn.Close()
}
