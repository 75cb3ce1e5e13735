// Package client is the collaborator side of the chat protocol: it connects
// to a server, performs the username handshake and exchanges frames.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/Tyrowin/tcpchat/internal/protocol"
)

// ErrUsernameRejected is returned by Dial when the server refuses the username.
var ErrUsernameRejected = errors.New("username rejected by server")

// Options tunes Dial.
type Options struct {
	// Attempts is how many times a refused connection is tried. Defaults to 3.
	Attempts int
	// RetryDelay is the pause between attempts. Defaults to 2s.
	RetryDelay time.Duration
	// DialTimeout bounds each connection attempt. Defaults to 5s.
	DialTimeout time.Duration
	// MaxFrameSize bounds incoming frames. Defaults to protocol.DefaultMaxFrameSize.
	MaxFrameSize int
}

func (o Options) withDefaults() Options {
	if o.Attempts <= 0 {
		o.Attempts = 3
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 2 * time.Second
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = 5 * time.Second
	}
	if o.MaxFrameSize <= 0 {
		o.MaxFrameSize = protocol.DefaultMaxFrameSize
	}
	return o
}

// Client is a connected, registered chat user. Send may be called
// concurrently with Recv.
type Client struct {
	conn     net.Conn
	reader   *protocol.Reader
	username string

	writeMu sync.Mutex
}

// Dial connects to addr, sends username and waits for the server's first
// status frame, which is returned. A rejection closes the connection and
// returns the server's message along with ErrUsernameRejected.
func Dial(ctx context.Context, addr, username string, opts Options) (*Client, protocol.Message, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, protocol.Message{}, err
	}
	opts = opts.withDefaults()

	conn, err := dialWithRetry(ctx, addr, opts)
	if err != nil {
		return nil, protocol.Message{}, err
	}

	c := &Client{
		conn:     conn,
		reader:   protocol.NewReader(conn, opts.MaxFrameSize),
		username: username,
	}

	if _, err := conn.Write([]byte(username + "\n")); err != nil {
		conn.Close()
		return nil, protocol.Message{}, fmt.Errorf("send username: %w", err)
	}

	first, err := c.Recv()
	if err != nil {
		conn.Close()
		return nil, protocol.Message{}, fmt.Errorf("read handshake reply: %w", err)
	}

	if first.Kind() == protocol.KindStatus && !strings.HasPrefix(first.Content(), "Welcome") {
		conn.Close()
		return nil, first, fmt.Errorf("%w: %s", ErrUsernameRejected, first.Content())
	}

	return c, first, nil
}

func dialWithRetry(ctx context.Context, addr string, opts Options) (net.Conn, error) {
	dialer := net.Dialer{Timeout: opts.DialTimeout}

	var lastErr error
	for attempt := 1; attempt <= opts.Attempts; attempt++ {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			return conn, nil
		}
		lastErr = err

		if !errors.Is(err, syscall.ECONNREFUSED) || attempt == opts.Attempts {
			break
		}

		select {
		case <-time.After(opts.RetryDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("connect to %s: %w", addr, lastErr)
}

// Username returns the name the client registered with.
func (c *Client) Username() string {
	return c.username
}

// Send writes m as one frame.
func (c *Client) Send(m protocol.Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	return protocol.WriteFrame(c.conn, m)
}

// Recv blocks until the next frame arrives. Undecodable frames come back as
// error messages rather than errors; err is only set when the connection fails.
func (c *Client) Recv() (protocol.Message, error) {
	for {
		frame, err := c.reader.ReadFrame()
		if errors.Is(err, protocol.ErrFrameTooLarge) {
			continue
		}
		if err != nil {
			return protocol.Message{}, err
		}
		return protocol.Decode(frame), nil
	}
}

// Close closes the connection; the server treats this as the user leaving.
func (c *Client) Close() error {
	return c.conn.Close()
}
