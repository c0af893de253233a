package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/pokerplan/pokerd/pkg/protocol"
)

// Session is one client connection: a reader goroutine decoding
// inbound records and a writer goroutine draining the bounded outbound
// queue. The reader owns id and identified; no other goroutine touches
// them.
type Session struct {
	engine  *Engine
	conn    recordConn
	cfg     *SessionConfig
	logger  *slog.Logger
	limiter *rate.Limiter

	send      chan *protocol.ServerMessage
	done      chan struct{}
	closeOnce sync.Once

	id         uuid.UUID
	identified bool
}

// NewSession wraps an accepted transport. Run must be called to start
// the loops.
func NewSession(engine *Engine, conn recordConn, cfg *SessionConfig, logger *slog.Logger) *Session {
	if cfg == nil {
		cfg = DefaultSessionConfig()
	}
	return &Session{
		engine:  engine,
		conn:    conn,
		cfg:     cfg,
		logger:  logger.With("component", "session", "remote", conn.RemoteAddr()),
		limiter: rate.NewLimiter(cfg.RateLimit, cfg.RateBurst),
		send:    make(chan *protocol.ServerMessage, cfg.SendQueueSize),
		done:    make(chan struct{}),
	}
}

// Run drives the connection until it closes, then tears down the
// participant. It blocks; the caller runs it in its own goroutine.
func (s *Session) Run(ctx context.Context) {
	go s.writeLoop()
	s.readLoop(ctx)
	s.Close()
	if s.identified {
		s.engine.Disconnect(s.id, s)
	}
}

func (s *Session) readLoop(ctx context.Context) {
	for {
		select {
		case <-s.done:
			return
		default:
		}

		record, err := s.conn.ReadRecord()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, ErrSessionClosed) {
				s.logger.Debug("read ended", "error", err)
			}
			return
		}

		if !s.limiter.Allow() {
			s.TrySend(protocol.NewError(protocol.CodeRateLimited, "message rate limit exceeded"))
			continue
		}

		msg, err := protocol.DecodeClientMessage(record)
		if err != nil {
			// Malformed records are dropped; the connection stays open.
			s.logger.Warn("malformed record dropped", "error", err)
			s.TrySend(protocol.NewError(protocol.CodeMalformed, err.Error()))
			continue
		}

		switch {
		case msg.Kind == protocol.KindLogin:
			s.id = s.engine.Login(ctx, s, s.id, msg)
			s.identified = true
		case s.identified:
			s.engine.Apply(ctx, s.id, msg)
		default:
			s.TrySend(protocol.NewError(protocol.CodeNotLoggedIn, "log in before issuing commands"))
			s.logger.Debug("command before login rejected", "kind", msg.Kind)
		}
	}
}

func (s *Session) writeLoop() {
	for {
		select {
		case msg := <-s.send:
			data, err := protocol.EncodeServerMessage(msg)
			if err != nil {
				s.logger.Error("encode outbound record", "error", err)
				continue
			}
			if err := s.conn.WriteRecord(data); err != nil {
				s.logger.Debug("write ended", "error", err)
				s.Close()
				return
			}
		case <-s.done:
			return
		}
	}
}

// TrySend enqueues one outbound record without blocking. It reports
// false when the session is closed or the queue is full; the caller
// decides what an overflow means.
func (s *Session) TrySend(msg *protocol.ServerMessage) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- msg:
		return true
	default:
		return false
	}
}

// Close shuts the connection down. Safe to call from any goroutine,
// any number of times. The reader unblocks via the closed transport.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}
