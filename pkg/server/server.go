package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Server accepts client connections on the raw TCP listener and the
// WebSocket bridge and hands each one to a Session.
type Server struct {
	cfg      *ServerConfig
	engine   *Engine
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu       sync.Mutex
	listener net.Listener
	sessions map[*Session]struct{}
	closed   bool
	wg       sync.WaitGroup
}

// NewServer builds a server around an engine. A nil cfg uses
// DefaultServerConfig.
func NewServer(engine *Engine, cfg *ServerConfig, logger *slog.Logger) *Server {
	if cfg == nil {
		cfg = DefaultServerConfig()
	}
	return &Server{
		cfg:    cfg,
		engine: engine,
		logger: logger.With("component", "server"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin:     cfg.CheckOrigin,
		},
		sessions: make(map[*Session]struct{}),
	}
}

// Run listens on the TCP address and accepts connections until ctx is
// cancelled or Close is called. It returns ErrServerClosed on graceful
// shutdown.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.TCPAddress)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.cfg.TCPAddress, err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ln.Close()
		return ErrServerClosed
	}
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("tcp listener started", "address", ln.Addr().String())

	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			s.wg.Wait()
			if s.isClosed() {
				return ErrServerClosed
			}
			return fmt.Errorf("server: accept: %w", err)
		}
		s.startSession(ctx, newTCPRecordConn(conn, s.cfg.SessionConfig))
	}
}

// Addr returns the bound TCP address, or "" before Run.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// WebSocketHandler upgrades HTTP requests and runs the same session
// protocol over WebSocket, one text message per record. Mounted at
// /ws by the HTTP mirror.
func (s *Server) WebSocketHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Warn("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
			return
		}
		// The request context dies with this handler; sessions
		// outlive it.
		sess := s.trackSession(newWSRecordConn(ws, s.cfg.SessionConfig))
		if sess == nil {
			ws.Close()
			return
		}
		s.runSession(context.Background(), sess)
	})
}

func (s *Server) startSession(ctx context.Context, conn recordConn) {
	sess := s.trackSession(conn)
	if sess == nil {
		conn.Close()
		return
	}
	go s.runSession(ctx, sess)
}

func (s *Server) trackSession(conn recordConn) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	sess := NewSession(s.engine, conn, s.cfg.SessionConfig, s.logger)
	s.sessions[sess] = struct{}{}
	s.wg.Add(1)
	return sess
}

func (s *Server) runSession(ctx context.Context, sess *Session) {
	defer func() {
		s.mu.Lock()
		delete(s.sessions, sess)
		s.mu.Unlock()
		s.wg.Done()
	}()
	sess.Run(ctx)
}

// Close stops the listener and closes every connection, identified or
// not. Safe to call more than once.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	ln := s.listener
	open := make([]*Session, 0, len(s.sessions))
	for sess := range s.sessions {
		open = append(open, sess)
	}
	s.mu.Unlock()

	if ln != nil {
		ln.Close()
	}
	for _, sess := range open {
		sess.Close()
	}
	return nil
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
