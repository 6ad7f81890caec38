package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Harshitk-cp/sketchhive/internal/hub"
	"github.com/Harshitk-cp/sketchhive/internal/metrics"
	"github.com/Harshitk-cp/sketchhive/internal/model"
	"github.com/Harshitk-cp/sketchhive/internal/registry"
)

var (
	ErrRejected = errors.New("handshake rejected")
	ErrClosed   = errors.New("session closed")
)

// Reasons an inbound frame is ignored
const (
	dropMalformed       = "malformed"
	dropUnauthenticated = "unauthenticated"
	dropRateLimited     = "rate_limited"
)

// State is a session's position in its lifecycle
type State int

const (
	Unauthenticated State = iota
	Active
	Closed
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Active:
		return "active"
	case Closed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Hub is the part of the hub a session talks to
type Hub interface {
	Join(ctx context.Context, hello model.Hello, conn registry.Conn) (hub.JoinResult, error)
	Dispatch(ctx context.Context, p *registry.Peer, msg model.Inbound) error
	Leave(p *registry.Peer)
}

// Limiter throttles inbound frames per connection key
type Limiter interface {
	Allow(key string) error
	Reset(key string)
}

// Session drives one connection from handshake to teardown. It is owned by
// the connection's read loop and is not safe for concurrent use.
type Session struct {
	log     *slog.Logger
	hub     Hub
	conn    registry.Conn
	limiter Limiter
	metrics metrics.Collector
	connKey string

	state State
	peer  *registry.Peer
}

// New creates a session for conn. connKey must be unique per connection;
// it names the session in logs and its rate-limit bucket. limiter may be nil.
func New(log *slog.Logger, h Hub, conn registry.Conn, limiter Limiter, collector metrics.Collector, connKey string) *Session {
	return &Session{
		log:     log,
		hub:     h,
		conn:    conn,
		limiter: limiter,
		metrics: collector,
		connKey: connKey,
		state:   Unauthenticated,
	}
}

// State returns the current lifecycle state
func (s *Session) State() State {
	return s.state
}

// Peer returns the admitted peer, or nil before admission
func (s *Session) Peer() *registry.Peer {
	return s.peer
}

// Handle processes one inbound text frame. Frames that cannot be used are
// dropped without error; a returned error means the connection should end.
func (s *Session) Handle(ctx context.Context, frame []byte) error {
	if s.state == Closed {
		return ErrClosed
	}

	// The handshake is never throttled
	if s.state == Active && s.limiter != nil {
		if err := s.limiter.Allow(s.connKey); err != nil {
			s.metrics.MessageDropped(dropRateLimited)
			return nil
		}
	}

	msg, err := model.DecodeInbound(frame)
	if err != nil {
		s.metrics.MessageDropped(dropMalformed)
		s.log.Debug("Discarding inbound frame", "conn", s.connKey, "error", err)
		return nil
	}
	s.metrics.MessageReceived(model.InboundType(msg), len(frame))

	if s.state == Active {
		return s.hub.Dispatch(ctx, s.peer, msg)
	}

	hello, ok := msg.(model.Hello)
	if !ok {
		s.metrics.MessageDropped(dropUnauthenticated)
		return nil
	}
	return s.join(ctx, hello)
}

func (s *Session) join(ctx context.Context, hello model.Hello) error {
	res, err := s.hub.Join(ctx, hello, s.conn)
	if err != nil {
		s.state = Closed
		return fmt.Errorf("failed to join: %w", err)
	}

	if res.Rejection != nil {
		data, err := model.Encode(res.Rejection.Message())
		if err == nil {
			if err := s.conn.Send(data); err != nil {
				s.log.Debug("Failed to deliver rejection", "conn", s.connKey, "error", err)
			}
		}
		s.state = Closed
		s.conn.Close()
		return fmt.Errorf("%w: %s", ErrRejected, res.Rejection.Error())
	}

	s.peer = res.Peer
	s.state = Active
	return nil
}

// Close ends the session. An admitted peer is handed back to the hub for
// cleanup; calling Close again does nothing.
func (s *Session) Close() {
	if s.state == Closed {
		return
	}
	if s.state == Active {
		s.hub.Leave(s.peer)
		if s.limiter != nil {
			s.limiter.Reset(s.connKey)
		}
	}
	s.state = Closed
}
