// Package server coordinates session registration, message broadcast, direct
// routing and disconnect cleanup for the chat system via the Hub type.
package server

import (
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Tyrowin/tcpchat/internal/protocol"
)

// Hub routes messages between the sessions of a Registry. Fan-out sends to a
// snapshot without holding the registry lock; sessions whose send fails are
// removed afterwards, each announced with exactly one "left" status.
type Hub struct {
	registry *Registry
	logger   zerolog.Logger
}

// NewHub creates a Hub over registry.
func NewHub(registry *Registry, logger zerolog.Logger) *Hub {
	return &Hub{
		registry: registry,
		logger:   logger,
	}
}

// Registry returns the registry the hub routes through.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Join registers s, sends it the welcome status and announces it to everyone
// else. A rejected username never becomes visible to other sessions. The
// welcome is written while holding the session's write lock, so it is the
// first frame the client sees even if a concurrent broadcast already picked
// the session up.
func (h *Hub) Join(s *Session) error {
	s.writeMu.Lock()
	if err := h.registry.Register(s); err != nil {
		s.writeMu.Unlock()
		return err
	}
	err := s.sendLocked(protocol.NewStatus("Welcome to the chat, " + s.Username + "!"))
	s.writeMu.Unlock()

	if err != nil {
		h.registry.Remove(s)
		s.Close()
		return err
	}

	h.logger.Info().Str("user", s.Username).Str("addr", s.Addr).Int("online", h.registry.Len()).Msg("client joined")
	h.Broadcast(protocol.NewStatus(s.Username+" joined the chat"), s.Username)
	return nil
}

// Broadcast sends m to every registered session except exclude, which may be
// empty. A failed send does not stop the fan-out; failed sessions are
// disconnected once it completes.
func (h *Hub) Broadcast(m protocol.Message, exclude string) {
	sessions := h.registry.Snapshot()
	failed := h.broadcastToSessions(sessions, m, exclude)
	h.removeFailedSessions(failed)
}

// broadcastToSessions sends the message to all sessions except the excluded one and returns failed sessions
func (h *Hub) broadcastToSessions(sessions []*Session, m protocol.Message, exclude string) []*Session {
	var failed []*Session

	for _, s := range sessions {
		if exclude != "" && s.Username == exclude {
			continue
		}
		if err := s.Send(m); err != nil {
			h.logSendError(s, err)
			failed = append(failed, s)
		}
	}

	return failed
}

// removeFailedSessions disconnects sessions that failed to receive a broadcast
func (h *Hub) removeFailedSessions(failed []*Session) {
	for _, s := range failed {
		h.Disconnect(s)
	}
}

// Disconnect removes s from the registry, closes its connection and tells the
// remaining sessions it left. It reports whether this call removed s; later
// calls for the same session only make sure the connection is closed.
func (h *Hub) Disconnect(s *Session) bool {
	removed := h.registry.Remove(s)
	s.Close()
	if !removed {
		return false
	}

	h.logger.Info().Str("user", s.Username).Str("addr", s.Addr).Int("online", h.registry.Len()).Msg("client disconnected")
	h.Broadcast(protocol.NewStatus(s.Username+" left the chat"), "")
	return true
}

// RouteDirect delivers a direct message from the session that sent it and
// reports the outcome back to that session.
func (h *Hub) RouteDirect(m protocol.Message, from *Session) {
	recipient, _ := m.Recipient()

	var reply protocol.Message
	if target, ok := h.registry.Lookup(recipient); ok {
		if err := target.Send(m); err != nil {
			h.logSendError(target, err)
			h.Disconnect(target)
		}
		reply = protocol.NewStatus("Message sent to " + recipient)
	} else {
		reply = protocol.NewStatus("User " + recipient + " not found")
	}

	h.reply(from, reply)
}

// RouteCommand answers a command message. Only the requesting session
// receives the response.
func (h *Hub) RouteCommand(m protocol.Message, from *Session) {
	name, _, _ := strings.Cut(strings.TrimSpace(m.Content()), " ")
	name = strings.TrimPrefix(name, "/")

	var reply protocol.Message
	switch name {
	case "users":
		reply = protocol.NewCommand(protocol.ServerSender, "Online users: "+strings.Join(h.registry.Usernames(), ", "))
	case "help":
		reply = protocol.NewCommand(protocol.ServerSender, "Commands: /help, /users, /dm <user> <message>, /quit")
	default:
		reply = protocol.NewError("Unknown command: " + name)
	}

	h.reply(from, reply)
}

// Shutdown announces the shutdown, closes every session and empties the registry.
func (h *Hub) Shutdown() int {
	h.Broadcast(protocol.NewStatus(statusShuttingDown), "")

	sessions := h.registry.Clear()
	for _, s := range sessions {
		s.Close()
	}

	h.logger.Info().Int("sessions", len(sessions)).Msg("closed all sessions")
	return len(sessions)
}

func (h *Hub) reply(to *Session, m protocol.Message) {
	if err := to.Send(m); err != nil {
		h.logSendError(to, err)
		h.Disconnect(to)
	}
}

func (h *Hub) logSendError(s *Session, err error) {
	if errors.Is(err, ErrSessionClosed) || isExpectedCloseError(err) {
		h.logger.Debug().Err(err).Str("user", s.Username).Msg("send to closed session")
		return
	}
	h.logger.Warn().Err(err).Str("user", s.Username).Msg("send failed")
}
