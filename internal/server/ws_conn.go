package server

import (
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// wsConn carries frames as WebSocket text messages: one message per frame,
// with the first message holding the raw username.
type wsConn struct {
	conn *websocket.Conn
	addr string
}

// NewWebSocketConn wraps an upgraded connection. Messages larger than
// maxFrameSize fail the read with websocket.ErrReadLimit.
func NewWebSocketConn(conn *websocket.Conn, addr string, maxFrameSize int) Conn {
	conn.SetReadLimit(int64(maxFrameSize))
	return &wsConn{conn: conn, addr: addr}
}

func (c *wsConn) ReadHandshake() (string, error) {
	data, err := c.ReadFrame()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func (c *wsConn) ReadFrame() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *wsConn) WriteFrame(frame []byte) error {
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

func (c *wsConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

func (c *wsConn) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}

func (c *wsConn) RemoteAddr() string {
	return c.addr
}

// Close sends a close frame before closing the socket. WriteControl may be
// called concurrently with WriteFrame.
func (c *wsConn) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return c.conn.Close()
}
