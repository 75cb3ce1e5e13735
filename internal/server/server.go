// Package server binds the chat listener, runs the accept loop and tracks
// every connection handler so shutdown can close and wait for them.
package server

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultShutdownTimeout bounds how long Serve waits for handlers when its
// context is cancelled.
const DefaultShutdownTimeout = 5 * time.Second

// Server accepts chat connections and runs one handler goroutine per
// connection. Handlers are tracked so Shutdown can close and wait for them.
type Server struct {
	cfg    Config
	logger zerolog.Logger
	hub    *Hub

	mu       sync.Mutex
	listener net.Listener
	conns    map[Conn]struct{}
	closing  bool

	wg    sync.WaitGroup
	slots chan struct{}
	done  chan struct{}

	shutdownOnce sync.Once
	shutdownErr  error
}

// New creates a Server from cfg. Invalid configuration values are replaced
// with defaults.
func New(cfg Config, logger zerolog.Logger) *Server {
	cfg = sanitizeConfig(cfg)
	return &Server{
		cfg:    cfg,
		logger: logger,
		hub:    NewHub(NewRegistry(), logger),
		conns:  make(map[Conn]struct{}),
		slots:  make(chan struct{}, cfg.MaxConnections),
		done:   make(chan struct{}),
	}
}

// Hub returns the routing engine, for collaborators that inject messages.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Config returns the sanitized configuration in use.
func (s *Server) Config() Config {
	return s.cfg
}

// Listen binds the listening socket. When PortRangeEnd is above Port the
// ports are probed in ascending order and the first free one wins.
func (s *Server) Listen() (net.Addr, error) {
	var lastErr error
	for port := s.cfg.Port; port <= s.cfg.PortRangeEnd; port++ {
		addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(port))
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			s.logger.Debug().Err(err).Str("addr", addr).Msg("port unavailable")
			lastErr = err
			continue
		}

		s.mu.Lock()
		s.listener = ln
		s.mu.Unlock()

		s.logger.Info().Str("addr", ln.Addr().String()).Msg("chat server listening")
		return ln.Addr(), nil
	}

	return nil, &BindError{
		Host:      s.cfg.Host,
		FirstPort: s.cfg.Port,
		LastPort:  s.cfg.PortRangeEnd,
		Err:       lastErr,
	}
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ListenAndServe binds and serves until ctx is cancelled or Shutdown is called.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if _, err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Serve runs the accept loop on the listener bound by Listen. Cancelling ctx
// shuts the server down. It always returns a non-nil error; after a
// shutdown that error is ErrServerClosed, returned only once the shutdown
// has finished and every handler has returned or the timeout has passed.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return errors.New("chat server: Serve called before Listen")
	}

	stop := context.AfterFunc(ctx, func() {
		_ = s.Shutdown(DefaultShutdownTimeout)
	})
	defer stop()

	var tempDelay time.Duration
	for {
		nc, err := ln.Accept()
		if err != nil {
			if s.isClosing() {
				return s.closed()
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}

			if tempDelay == 0 {
				tempDelay = 5 * time.Millisecond
			} else {
				tempDelay = min(tempDelay*2, time.Second)
			}
			s.logger.Warn().Err(err).Dur("retry_in", tempDelay).Msg("accept error")

			select {
			case <-time.After(tempDelay):
			case <-s.done:
				return s.closed()
			}
			continue
		}
		tempDelay = 0

		s.logger.Debug().Str("addr", nc.RemoteAddr().String()).Msg("connection accepted")
		s.ServeConn(NewTCPConn(nc, s.cfg.BufferSize))
	}
}

// closed waits for the shutdown in progress, which may have been started by
// ctx or by another caller, and returns ErrServerClosed.
func (s *Server) closed() error {
	if err := s.Shutdown(DefaultShutdownTimeout); err != nil {
		s.logger.Warn().Err(err).Msg("shutdown did not complete cleanly")
	}
	return ErrServerClosed
}

// ServeConn starts a handler goroutine for conn without blocking. It is used
// by the accept loop and by the WebSocket gateway.
func (s *Server) ServeConn(conn Conn) {
	logger := s.logger.With().Str("addr", conn.RemoteAddr()).Logger()

	if !s.trackConn(conn) {
		closeConn(conn, logger)
		return
	}

	select {
	case s.slots <- struct{}{}:
	default:
		logger.Warn().Int("max_connections", s.cfg.MaxConnections).Msg("connection limit reached")
		s.reject(conn, statusServerFull, logger)
		closeConn(conn, logger)
		s.untrackConn(conn)
		return
	}

	go func() {
		defer s.untrackConn(conn)
		defer func() { <-s.slots }()
		defer func() {
			if r := recover(); r != nil {
				logger.Error().Interface("panic", r).Msg("connection handler panicked")
				closeConn(conn, logger)
			}
		}()

		s.handleConn(conn)
	}()
}

func (s *Server) trackConn(conn Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closing {
		return false
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrackConn(conn Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	s.wg.Done()
}

func (s *Server) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closing
}

// Shutdown stops accepting, announces the shutdown to every session, closes
// all connections and waits up to timeout for their handlers to return.
// Calling it again returns the first result.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.shutdownOnce.Do(func() {
		s.shutdownErr = s.shutdown(timeout)
	})
	return s.shutdownErr
}

func (s *Server) shutdown(timeout time.Duration) error {
	s.logger.Info().Msg("shutting down chat server")

	s.mu.Lock()
	s.closing = true
	ln := s.listener
	s.mu.Unlock()
	close(s.done)

	if ln != nil {
		if err := ln.Close(); err != nil && !isExpectedCloseError(err) {
			s.logger.Warn().Err(err).Msg("error closing listener")
		}
	}

	s.hub.Shutdown()

	// Connections still in their handshake have no session to close.
	s.mu.Lock()
	pending := make([]Conn, 0, len(s.conns))
	for conn := range s.conns {
		pending = append(pending, conn)
	}
	s.mu.Unlock()
	for _, conn := range pending {
		closeConn(conn, s.logger)
	}

	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		s.logger.Info().Msg("chat server shutdown complete")
		return nil
	case <-time.After(timeout):
		s.logger.Warn().Dur("timeout", timeout).Msg("shutdown timeout reached, some handlers may still be running")
		return context.DeadlineExceeded
	}
}
