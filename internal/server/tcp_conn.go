package server

import (
	"net"
	"time"

	"github.com/Tyrowin/tcpchat/internal/protocol"
)

// tcpConn carries newline-delimited frames over a raw TCP stream.
type tcpConn struct {
	conn   net.Conn
	reader *protocol.Reader
}

// NewTCPConn wraps conn; frames longer than maxFrameSize are rejected.
func NewTCPConn(conn net.Conn, maxFrameSize int) Conn {
	return &tcpConn{
		conn:   conn,
		reader: protocol.NewReader(conn, maxFrameSize),
	}
}

func (c *tcpConn) ReadHandshake() (string, error) {
	return c.reader.ReadHandshake()
}

func (c *tcpConn) ReadFrame() ([]byte, error) {
	return c.reader.ReadFrame()
}

func (c *tcpConn) WriteFrame(frame []byte) error {
	buf := make([]byte, 0, len(frame)+1)
	buf = append(buf, frame...)
	buf = append(buf, '\n')
	_, err := c.conn.Write(buf)
	return err
}

func (c *tcpConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

func (c *tcpConn) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}

func (c *tcpConn) RemoteAddr() string {
	if addr := c.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

func (c *tcpConn) Close() error {
	return c.conn.Close()
}
