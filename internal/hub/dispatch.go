package hub

import (
	"time"

	"github.com/Harshitk-cp/sketchhive/internal/model"
	"github.com/Harshitk-cp/sketchhive/internal/registry"
)

func (h *Hub) handleJoin(req joinRequest) (JoinResult, error) {
	admission, rejection := h.assigner.Admit(req.hello, h.registry)
	if rejection != nil {
		h.metrics.AdmissionRejected(rejection.Reason)
		h.log.Info("Handshake refused", "name", req.hello.Name, "reason", rejection.Reason, "banned", rejection.Banned)
		return JoinResult{Rejection: rejection}, nil
	}

	peer := &registry.Peer{
		Name:     admission.Name,
		Color:    admission.Color,
		Device:   admission.Device,
		Conn:     req.conn,
		JoinedAt: time.Now(),
	}
	for {
		peer.ID = h.assigner.NewID()
		if err := h.registry.Register(peer); err == nil {
			break
		}
		h.log.Warn("Peer id collision, regenerating", "peer_id", peer.ID)
	}

	h.metrics.PeerAdmitted()
	h.metrics.PeersActive(h.registry.Len())
	h.log.Info("Peer joined", "peer_id", peer.ID, "name", peer.Name, "color", peer.Color, "peers", h.registry.Len())

	// Identity first, then who is here, then what was drawn
	greeting := []model.Outbound{
		model.Welcome{ID: peer.ID, Name: peer.Name, Color: peer.Color},
		model.Roster{Peers: h.registry.Roster()},
		model.History{Events: h.events.Snapshot()},
	}
	for _, msg := range greeting {
		if err := h.unicast(peer, msg); err != nil {
			h.log.Warn("Failed to greet peer", "peer_id", peer.ID, "error", err)
			h.depart([]*registry.Peer{peer}, causeEvicted)
			return JoinResult{}, ErrGreetingFailed
		}
	}

	h.broadcast(model.Roster{Peers: h.registry.Roster()}, peer.ID)
	return JoinResult{Peer: peer}, nil
}

func (h *Hub) dispatch(p *registry.Peer, msg model.Inbound) {
	// Messages still queued from an evicted peer are dropped
	if !h.registry.Contains(p) {
		return
	}

	switch m := msg.(type) {
	case model.Dot:
		h.record(m.Event(p.ID, p.Color))

	case model.Draw:
		h.record(m.Event(p.ID, p.Color))

	case model.UndoMine:
		removed := h.events.RemoveLastStrokeOf(p.ID)
		h.log.Debug("Undo", "peer_id", p.ID, "removed_events", removed)
		h.metrics.EventLogSize(h.events.Len())
		h.broadcast(model.Rebuild{Events: h.events.Snapshot()})

	case model.ClearAll:
		cleared := h.events.Clear()
		h.log.Info("Canvas cleared", "peer_id", p.ID, "name", p.Name, "cleared_events", cleared)
		h.metrics.EventLogSize(0)
		h.broadcast(model.Rebuild{Events: h.events.Snapshot()})

	case model.Poke:
		h.poke(p, m.To)

	case model.Hello:
		// Already admitted; a repeated handshake is ignored
	}
}

// record appends a drawing event and relays it to everyone, sender included
func (h *Hub) record(ev model.DrawEvent) {
	if dropped := h.events.Append(ev); dropped > 0 {
		h.log.Debug("Event log trimmed", "dropped_events", dropped, "max_events", h.events.MaxEvents())
	}
	h.metrics.EventLogSize(h.events.Len())
	h.broadcast(ev)
}

func (h *Hub) poke(from *registry.Peer, to string) {
	target, ok := h.registry.Lookup(to)
	if !ok {
		return
	}
	if err := h.unicast(target, model.Boop{From: from.ID, FromName: from.Name}); err != nil {
		h.log.Warn("Failed to deliver poke", "peer_id", target.ID, "error", err)
		h.depart([]*registry.Peer{target}, causeEvicted)
	}
}

// depart unregisters the peers, purges their strokes when configured, and
// tells the remaining peers. Peers that are no longer registered are skipped.
func (h *Hub) depart(peers []*registry.Peer, cause string) {
	left, purged := 0, 0
	for _, p := range peers {
		if _, ok := h.registry.Unregister(p); !ok {
			continue
		}
		left++
		p.Conn.Close()
		connected := time.Since(p.JoinedAt)
		h.metrics.PeerDeparted(cause, connected)

		removed := 0
		if h.opts.PurgeOnDisconnect {
			removed = h.events.RemoveAllOf(p.ID)
			purged += removed
		}
		h.log.Info("Peer left", "peer_id", p.ID, "name", p.Name, "cause", cause, "connected_for", connected.Round(time.Second), "purged_events", removed, "peers", h.registry.Len())
	}
	if left == 0 {
		return
	}

	h.metrics.PeersActive(h.registry.Len())
	h.metrics.EventLogSize(h.events.Len())

	h.broadcast(model.Roster{Peers: h.registry.Roster()})
	if purged > 0 {
		h.broadcast(model.Rebuild{Events: h.events.Snapshot()})
	}
}
