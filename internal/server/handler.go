package server

import (
	"errors"
	"io"
	"net"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Tyrowin/tcpchat/internal/protocol"
)

// handleConn runs one connection through its states: awaiting a username,
// active, closed. It returns once the connection is closed.
func (s *Server) handleConn(conn Conn) {
	logger := s.logger.With().Str("addr", conn.RemoteAddr()).Logger()

	sess, err := s.handshake(conn, logger)
	if err != nil {
		logger.Debug().Err(err).Msg("handshake ended without a session")
		closeConn(conn, logger)
		return
	}

	defer s.hub.Disconnect(sess)
	s.receive(sess)
}

// handshake reads the username and joins the hub. On failure no session is
// ever visible to other clients.
func (s *Server) handshake(conn Conn, logger zerolog.Logger) (*Session, error) {
	if err := conn.SetReadDeadline(time.Now().Add(s.cfg.HandshakeTimeout)); err != nil {
		return nil, err
	}

	username, err := conn.ReadHandshake()
	if err != nil {
		return nil, err
	}

	if err := validateUsername(username); err != nil {
		logger.Info().Str("user", username).Msg("rejected invalid username")
		s.reject(conn, statusInvalidUsername, logger)
		return nil, err
	}

	sess := NewSession(username, conn, s.cfg, s.logger)
	if err := s.hub.Join(sess); err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			logger.Info().Str("user", username).Msg("rejected duplicate username")
			s.reject(conn, statusUsernameTaken, logger)
		}
		return nil, err
	}

	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		sess.logger.Debug().Err(err).Msg("clear handshake deadline")
	}
	return sess, nil
}

// receive reads frames until the peer goes away, dispatching each in order.
func (s *Server) receive(sess *Session) {
	for {
		if s.cfg.IdleTimeout > 0 {
			if err := sess.conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout)); err != nil {
				sess.logger.Debug().Err(err).Msg("set idle deadline")
				return
			}
		}

		frame, err := sess.conn.ReadFrame()
		if err != nil {
			if errors.Is(err, protocol.ErrFrameTooLarge) {
				sess.logger.Warn().Err(err).Msg("discarding oversized frame")
				if !s.notify(sess, protocol.NewError(errorTooLarge)) {
					return
				}
				continue
			}
			s.logReadError(sess, err)
			return
		}

		if !sess.allow() {
			sess.logger.Warn().Int("burst", s.cfg.RateLimit.Burst).Dur("interval", s.cfg.RateLimit.RefillInterval).Msg("rate limit exceeded; discarding message")
			if !s.notify(sess, protocol.NewError(errorRateLimited)) {
				return
			}
			continue
		}

		if !s.dispatch(sess, protocol.Decode(frame)) {
			return
		}
	}
}

// dispatch routes one decoded message and reports whether the session is
// still usable.
func (s *Server) dispatch(sess *Session, m protocol.Message) bool {
	sess.logger.Debug().Str("kind", string(m.Kind())).Str("content", m.Content()).Msg("frame received")

	switch m.Kind() {
	case protocol.KindCommand:
		s.hub.RouteCommand(m.WithSender(sess.Username), sess)
	case protocol.KindDM:
		s.hub.RouteDirect(m.WithSender(sess.Username), sess)
	case protocol.KindError:
		// Undecodable frames come back to their sender only.
		return s.notify(sess, m)
	default:
		s.hub.Broadcast(m.WithSender(sess.Username), sess.Username)
	}

	current, ok := s.hub.Registry().Lookup(sess.Username)
	return ok && current == sess
}

// notify sends m to sess alone, disconnecting sess if that fails.
func (s *Server) notify(sess *Session, m protocol.Message) bool {
	if err := sess.Send(m); err != nil {
		s.hub.logSendError(sess, err)
		return false
	}
	return true
}

// reject tells a connection without a session why it is being closed.
func (s *Server) reject(conn Conn, status string, logger zerolog.Logger) {
	frame, err := protocol.Encode(protocol.NewStatus(status))
	if err != nil {
		logger.Error().Err(err).Msg("encode rejection")
		return
	}
	if err := conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
		logger.Debug().Err(err).Msg("set rejection write deadline")
	}
	if err := conn.WriteFrame(frame); err != nil && !isExpectedCloseError(err) {
		logger.Warn().Err(err).Msg("error writing rejection")
	}
}

// logReadError logs the end of a receive loop at a level matching its cause.
func (s *Server) logReadError(sess *Session, err error) {
	var netErr net.Error

	switch {
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		sess.logger.Debug().Err(err).Msg("connection closed")
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived):
		sess.logger.Debug().Err(err).Msg("websocket client disconnected")
	case errors.Is(err, websocket.ErrReadLimit):
		sess.logger.Warn().Int("limit", s.cfg.BufferSize).Msg("websocket message exceeded maximum size")
	case errors.As(err, &netErr) && netErr.Timeout():
		sess.logger.Info().Dur("idle_timeout", s.cfg.IdleTimeout).Msg("closing idle connection")
	default:
		sess.logger.Warn().Err(err).Msg("read error")
	}
}

func closeConn(conn Conn, logger zerolog.Logger) {
	if err := conn.Close(); err != nil && !isExpectedCloseError(err) {
		logger.Debug().Err(err).Msg("error closing connection")
	}
}
