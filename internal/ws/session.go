package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/manga-lockstep/backend/internal/viewing"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var errSlowViewer = errors.New("outbound queue full")

// SessionConfig tunes a single viewer connection.
type SessionConfig struct {
	WriteTimeout   time.Duration
	SendBuffer     int
	MaxMessageSize int64
}

func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		WriteTimeout:   10 * time.Second,
		SendBuffer:     64,
		MaxMessageSize: 4096,
	}
}

// session is one viewer's connection. It registers with the shared state,
// writes the initial snapshot, then runs a read pump and a write pump until
// either fails. It implements viewing.Outbox.
type session struct {
	conn   *websocket.Conn
	state  *viewing.State
	config SessionConfig
	remote string

	send chan viewing.Frame

	mu     sync.Mutex
	closed bool
	cancel context.CancelCauseFunc

	id viewing.ViewerID
}

func newSession(conn *websocket.Conn, state *viewing.State, cfg SessionConfig, remote string) *session {
	def := DefaultSessionConfig()
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = def.SendBuffer
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	return &session{
		conn:   conn,
		state:  state,
		config: cfg,
		remote: remote,
		send:   make(chan viewing.Frame, cfg.SendBuffer),
	}
}

// Enqueue queues a frame without blocking. A full queue means the viewer is
// not keeping up; the session is cancelled and the frame dropped.
func (s *session) Enqueue(f viewing.Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	select {
	case s.send <- f:
		return true
	default:
		s.closed = true
		if s.cancel != nil {
			s.cancel(errSlowViewer)
		}
		return false
	}
}

func (s *session) markClosed() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// run drives the session until the connection ends or ctx is cancelled. It
// unregisters the viewer exactly once before returning.
func (s *session) run(ctx context.Context) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	id, initial := s.state.Register(s)
	s.id = id
	defer func() {
		s.markClosed()
		s.state.Unregister(id)
	}()

	logger := log.With().Str("viewer", id.String()).Str("remote", s.remote).Logger()

	s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	if err := s.conn.WriteJSON(initial); err != nil {
		s.conn.Close()
		logger.Debug().Err(err).Msg("failed to send initial snapshot")
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.readPump() })
	g.Go(func() error { return s.writePump(gctx) })

	err := g.Wait()
	if cause := context.Cause(ctx); errors.Is(cause, errSlowViewer) {
		err = cause
		logger.Warn().Msg("viewer too slow, disconnecting")
	}
	if err != nil && !isExpectedClose(err) {
		logger.Debug().Err(err).Msg("session ended")
	}
	return err
}

// readPump decodes viewer commands until the connection fails. Malformed or
// unknown messages are dropped.
func (s *session) readPump() error {
	if s.config.MaxMessageSize > 0 {
		s.conn.SetReadLimit(s.config.MaxMessageSize)
	}

	for {
		kind, data, err := s.conn.ReadMessage()
		if err != nil {
			return err
		}
		if kind != websocket.TextMessage {
			continue
		}

		msg, ok := parseClientMessage(data)
		if !ok {
			log.Debug().Str("viewer", s.id.String()).Int("bytes", len(data)).Msg("dropping unrecognized message")
			continue
		}
		if v, ok := msg.Vote(); ok {
			s.state.CastVote(s.id, v)
		}
	}
}

// writePump drains the outbound queue to the socket. It owns closing the
// connection, which also unblocks readPump.
func (s *session) writePump(ctx context.Context) error {
	defer s.conn.Close()

	for {
		select {
		case <-ctx.Done():
			deadline := time.Now().Add(s.config.WriteTimeout)
			s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), deadline)
			return ctx.Err()

		case f := <-s.send:
			deadline := time.Now().Add(s.config.WriteTimeout)
			var err error
			switch f.Kind {
			case viewing.FramePing:
				err = s.conn.WriteControl(websocket.PingMessage, nil, deadline)
			default:
				s.conn.SetWriteDeadline(deadline)
				err = s.conn.WriteJSON(f.Snapshot)
			}
			if err != nil {
				return err
			}
		}
	}
}

func isExpectedClose(err error) bool {
	return errors.Is(err, context.Canceled) ||
		websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived)
}
