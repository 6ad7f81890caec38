package hub

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Harshitk-cp/sketchhive/internal/eventlog"
	"github.com/Harshitk-cp/sketchhive/internal/identity"
	"github.com/Harshitk-cp/sketchhive/internal/metrics"
	"github.com/Harshitk-cp/sketchhive/internal/model"
	"github.com/Harshitk-cp/sketchhive/internal/registry"
)

var (
	ErrStopped        = errors.New("hub stopped")
	ErrGreetingFailed = errors.New("failed to greet peer")
)

// Departure causes reported to metrics and logs
const (
	causeLeft     = "left"
	causeEvicted  = "evicted"
	causeShutdown = "shutdown"
)

// JoinResult is the outcome of a handshake: either an admitted peer or a
// rejection to report to the client.
type JoinResult struct {
	Peer      *registry.Peer
	Rejection *model.Rejection
}

// Stats is a point-in-time view of the canvas
type Stats struct {
	Peers     int
	Events    int
	MaxEvents int
	StartedAt time.Time
}

// Options tune hub behavior
type Options struct {
	// PurgeOnDisconnect removes a departing peer's strokes from the log
	PurgeOnDisconnect bool
}

type joinRequest struct {
	hello model.Hello
	conn  registry.Conn
	reply chan joinReply
}

type joinReply struct {
	result JoinResult
	err    error
}

type inboundMessage struct {
	peer *registry.Peer
	msg  model.Inbound
}

// Hub owns the peer registry and the event log. Every mutation runs on the
// goroutine executing Run, and each mutation takes the snapshot it
// broadcasts before the loop picks up the next request.
type Hub struct {
	log      *slog.Logger
	metrics  metrics.Collector
	assigner *identity.Assigner
	registry *registry.Registry
	events   *eventlog.Log
	opts     Options

	// Handshakes from unauthenticated sessions
	join chan joinRequest

	// Sessions that reached Closed
	leave chan *registry.Peer

	// Messages from active sessions
	inbound chan inboundMessage

	// Stats requests
	stats chan chan Stats

	startedAt time.Time
	running   atomic.Bool
	done      chan struct{}
}

// New creates a new hub
func New(log *slog.Logger, collector metrics.Collector, assigner *identity.Assigner, reg *registry.Registry, events *eventlog.Log, opts Options) *Hub {
	return &Hub{
		log:      log,
		metrics:  collector,
		assigner: assigner,
		registry: reg,
		events:   events,
		opts:     opts,
		join:     make(chan joinRequest),
		leave:    make(chan *registry.Peer, 64),
		inbound:  make(chan inboundMessage, 256),
		stats:    make(chan chan Stats),
		done:     make(chan struct{}),
	}
}

// Run processes requests until ctx is cancelled. It must be called once.
func (h *Hub) Run(ctx context.Context) error {
	h.startedAt = time.Now()
	h.running.Store(true)
	defer func() {
		h.running.Store(false)
		close(h.done)
	}()

	h.log.Info("Hub started", "max_events", h.events.MaxEvents(), "purge_on_disconnect", h.opts.PurgeOnDisconnect)

	for {
		select {
		case req := <-h.join:
			res, err := h.handleJoin(req)
			req.reply <- joinReply{result: res, err: err}

		case p := <-h.leave:
			h.depart([]*registry.Peer{p}, causeLeft)

		case in := <-h.inbound:
			h.dispatch(in.peer, in.msg)

		case reply := <-h.stats:
			reply <- h.currentStats()

		case <-ctx.Done():
			h.shutdown()
			return nil
		}
	}
}

// Join submits a handshake and waits for the admission decision. A peer
// that was admitted but could not be greeted is already gone when Join
// returns ErrGreetingFailed.
func (h *Hub) Join(ctx context.Context, hello model.Hello, conn registry.Conn) (JoinResult, error) {
	req := joinRequest{hello: hello, conn: conn, reply: make(chan joinReply, 1)}
	select {
	case h.join <- req:
	case <-ctx.Done():
		return JoinResult{}, ctx.Err()
	case <-h.done:
		return JoinResult{}, ErrStopped
	}
	// The loop answers every request it accepted
	reply := <-req.reply
	return reply.result, reply.err
}

// Dispatch hands a message from an active peer to the loop
func (h *Hub) Dispatch(ctx context.Context, p *registry.Peer, msg model.Inbound) error {
	select {
	case h.inbound <- inboundMessage{peer: p, msg: msg}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return ErrStopped
	}
}

// Leave reports that a peer's connection is gone. Leaving twice, or leaving
// after eviction, is harmless.
func (h *Hub) Leave(p *registry.Peer) {
	select {
	case h.leave <- p:
	case <-h.done:
	}
}

// Stats returns the current canvas counters
func (h *Hub) Stats(ctx context.Context) (Stats, error) {
	reply := make(chan Stats, 1)
	select {
	case h.stats <- reply:
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	case <-h.done:
		return Stats{}, ErrStopped
	}
	return <-reply, nil
}

// Running reports whether the loop is active
func (h *Hub) Running() bool {
	return h.running.Load()
}

func (h *Hub) currentStats() Stats {
	return Stats{
		Peers:     h.registry.Len(),
		Events:    h.events.Len(),
		MaxEvents: h.events.MaxEvents(),
		StartedAt: h.startedAt,
	}
}

// shutdown closes every connection; their sessions will find the hub gone
func (h *Hub) shutdown() {
	peers := h.registry.Peers()
	for _, p := range peers {
		h.registry.Unregister(p)
		p.Conn.Close()
		h.metrics.PeerDeparted(causeShutdown, time.Since(p.JoinedAt))
	}
	h.metrics.PeersActive(0)
	h.log.Info("Hub stopped", "closed_peers", len(peers))
}
