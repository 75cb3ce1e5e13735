package server

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Tyrowin/tcpchat/internal/protocol"
)

const testTimeout = 2 * time.Second

// fakeConn records frames written to it and can be told to fail writes,
// standing in for a peer that disconnected.
type fakeConn struct {
	mu         sync.Mutex
	addr       string
	frames     []protocol.Message
	failWrites bool
	closed     bool
}

func (c *fakeConn) ReadHandshake() (string, error) { return "", io.EOF }
func (c *fakeConn) ReadFrame() ([]byte, error)     { return nil, io.EOF }

func (c *fakeConn) WriteFrame(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.failWrites || c.closed {
		return errors.New("write: broken pipe")
	}
	c.frames = append(c.frames, protocol.Decode(frame))
	return nil
}

func (c *fakeConn) SetReadDeadline(time.Time) error  { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }
func (c *fakeConn) RemoteAddr() string               { return c.addr }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	return nil
}

func (c *fakeConn) messages() []protocol.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]protocol.Message(nil), c.frames...)
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.frames = nil
}

func (c *fakeConn) breakWrites() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.failWrites = true
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closed
}

func newTestSession(name string) (*Session, *fakeConn) {
	conn := &fakeConn{addr: "127.0.0.1:" + name}
	return NewSession(name, conn, *NewConfig(), zerolog.Nop()), conn
}

// joinAll registers sessions for names on hub and clears the welcome and
// join traffic so tests start from empty transcripts.
func joinAll(t *testing.T, hub *Hub, names ...string) ([]*Session, []*fakeConn) {
	t.Helper()

	sessions := make([]*Session, 0, len(names))
	conns := make([]*fakeConn, 0, len(names))
	for _, name := range names {
		s, conn := newTestSession(name)
		if err := hub.Join(s); err != nil {
			t.Fatalf("Join(%s) error = %v", name, err)
		}
		sessions = append(sessions, s)
		conns = append(conns, conn)
	}
	for _, conn := range conns {
		conn.reset()
	}
	return sessions, conns
}

func countContent(msgs []protocol.Message, kind protocol.Kind, content string) int {
	n := 0
	for _, m := range msgs {
		if m.Kind() == kind && m.Content() == content {
			n++
		}
	}
	return n
}

// testServer runs a Server on a loopback port for the duration of a test.
type testServer struct {
	*Server

	serveErr  chan error
	waitOnce  sync.Once
	waitError error
}

func startTestServer(t *testing.T, mutate func(*Config)) *testServer {
	t.Helper()
	return startTestServerContext(t, context.Background(), mutate)
}

// startTestServerContext is startTestServer with Serve bound to ctx.
func startTestServerContext(t *testing.T, ctx context.Context, mutate func(*Config)) *testServer {
	t.Helper()

	cfg := NewConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	cfg.HandshakeTimeout = testTimeout
	if mutate != nil {
		mutate(cfg)
	}

	ts := &testServer{
		Server:   New(*cfg, zerolog.Nop()),
		serveErr: make(chan error, 1),
	}
	if _, err := ts.Listen(); err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	go func() {
		ts.serveErr <- ts.Serve(ctx)
	}()

	t.Cleanup(func() {
		_ = ts.Shutdown(testTimeout)
		_ = ts.wait()
	})
	return ts
}

// wait returns Serve's result once it has exited.
func (ts *testServer) wait() error {
	ts.waitOnce.Do(func() {
		select {
		case ts.waitError = <-ts.serveErr:
		case <-time.After(testTimeout):
			ts.waitError = errors.New("Serve did not return")
		}
	})
	return ts.waitError
}

// testClient is a raw TCP peer speaking the wire protocol.
type testClient struct {
	t      *testing.T
	name   string
	conn   net.Conn
	reader *protocol.Reader
}

func dialRaw(t *testing.T, ts *testServer) *testClient {
	t.Helper()

	conn, err := net.DialTimeout("tcp", ts.Addr().String(), testTimeout)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	return &testClient{
		t:      t,
		conn:   conn,
		reader: protocol.NewReader(conn, protocol.DefaultMaxFrameSize),
	}
}

// connectUser dials, sends name and expects the welcome status.
func connectUser(t *testing.T, ts *testServer, name string) *testClient {
	t.Helper()

	c := dialRaw(t, ts)
	c.name = name
	c.sendRaw(name)
	c.expect(protocol.KindStatus, "Welcome to the chat, "+name+"!")
	return c
}

// connectUsers connects the users in order, waiting for every earlier user
// to see each join so later transcripts are deterministic.
func connectUsers(t *testing.T, ts *testServer, names ...string) []*testClient {
	t.Helper()

	clients := make([]*testClient, 0, len(names))
	for _, name := range names {
		c := connectUser(t, ts, name)
		for _, prev := range clients {
			prev.expect(protocol.KindStatus, name+" joined the chat")
		}
		clients = append(clients, c)
	}
	return clients
}

func (c *testClient) sendRaw(data string) {
	c.t.Helper()

	if _, err := c.conn.Write([]byte(data)); err != nil {
		c.t.Fatalf("write %q: %v", data, err)
	}
}

func (c *testClient) send(m protocol.Message) {
	c.t.Helper()

	if err := protocol.WriteFrame(c.conn, m); err != nil {
		c.t.Fatalf("WriteFrame() error = %v", err)
	}
}

func (c *testClient) recv() protocol.Message {
	c.t.Helper()

	_ = c.conn.SetReadDeadline(time.Now().Add(testTimeout))
	frame, err := c.reader.ReadFrame()
	if err != nil {
		c.t.Fatalf("%s: ReadFrame() error = %v", c.name, err)
	}
	return protocol.Decode(frame)
}

func (c *testClient) expect(kind protocol.Kind, content string) protocol.Message {
	c.t.Helper()

	m := c.recv()
	if m.Kind() != kind || m.Content() != content {
		c.t.Fatalf("%s received %s %q from %s, want %s %q", c.name, m.Kind(), m.Content(), m.Sender(), kind, content)
	}
	return m
}

// expectNothing fails if a frame arrives within d.
func (c *testClient) expectNothing(d time.Duration) {
	c.t.Helper()

	_ = c.conn.SetReadDeadline(time.Now().Add(d))
	frame, err := c.reader.ReadFrame()
	if err == nil {
		c.t.Fatalf("%s received unexpected frame %s", c.name, frame)
	}
	var netErr net.Error
	if !errors.As(err, &netErr) || !netErr.Timeout() {
		c.t.Fatalf("%s: connection failed while expecting silence: %v", c.name, err)
	}
}

// expectClosed fails unless the server closes the connection.
func (c *testClient) expectClosed() {
	c.t.Helper()

	_ = c.conn.SetReadDeadline(time.Now().Add(testTimeout))
	frame, err := c.reader.ReadFrame()
	if err == nil {
		c.t.Fatalf("%s received %s, want connection closed", c.name, frame)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		c.t.Fatalf("%s: connection still open", c.name)
	}
}

// waitFor polls cond until it holds or the test timeout passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(testTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
