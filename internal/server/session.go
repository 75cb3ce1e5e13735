// Package server manages individual chat sessions, serializing writes and
// controlling the lifecycle of each client connection.
package server

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Tyrowin/tcpchat/internal/protocol"
)

// Session binds a username to a live connection. It is created by the
// connection handler after a successful handshake and referenced by the
// Registry for routing. Send may be called from any goroutine.
type Session struct {
	ID       uuid.UUID
	Username string
	Addr     string

	conn         Conn
	writeTimeout time.Duration
	limiter      *rateLimiter
	logger       zerolog.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    bool
}

// NewSession creates a Session for username over conn.
func NewSession(username string, conn Conn, cfg Config, logger zerolog.Logger) *Session {
	id := uuid.New()
	return &Session{
		ID:           id,
		Username:     username,
		Addr:         conn.RemoteAddr(),
		conn:         conn,
		writeTimeout: cfg.WriteTimeout,
		limiter:      newRateLimiter(cfg.RateLimit),
		logger: logger.With().
			Str("session_id", id.String()).
			Str("addr", conn.RemoteAddr()).
			Str("user", username).
			Logger(),
	}
}

// Send encodes m and writes it to the client. Writes from concurrent
// broadcasts are serialized so frames never interleave.
func (s *Session) Send(m protocol.Message) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.sendLocked(m)
}

// sendLocked writes m; the caller holds writeMu.
func (s *Session) sendLocked(m protocol.Message) error {
	frame, err := protocol.Encode(m)
	if err != nil {
		return fmt.Errorf("encode %s message: %w", m.Kind(), err)
	}

	if s.closed {
		return ErrSessionClosed
	}

	if s.writeTimeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
			return fmt.Errorf("set write deadline for %s: %w", s.Username, err)
		}
	}

	if err := s.conn.WriteFrame(frame); err != nil {
		return fmt.Errorf("write to %s: %w", s.Username, err)
	}

	s.logger.Debug().Str("kind", string(m.Kind())).Msg("frame sent")
	return nil
}

// Close closes the underlying connection. It is safe to call more than once;
// blocked reads on the connection return with an error.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		// Close the connection first: it releases a write blocked on writeMu's holder.
		if err := s.conn.Close(); err != nil && !isExpectedCloseError(err) {
			s.logger.Warn().Err(err).Msg("error closing connection")
		}

		s.writeMu.Lock()
		s.closed = true
		s.writeMu.Unlock()
	})
}

// allow applies the per-session rate limit to one inbound frame.
func (s *Session) allow() bool {
	return s.limiter == nil || s.limiter.allow()
}
