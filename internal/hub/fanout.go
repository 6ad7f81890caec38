package hub

import (
	"fmt"

	"github.com/Harshitk-cp/sketchhive/internal/model"
	"github.com/Harshitk-cp/sketchhive/internal/registry"
	"github.com/samber/lo"
)

// sendFailure records a peer whose connection refused a frame
type sendFailure struct {
	peer *registry.Peer
	err  error
}

// fanout offers data to every peer not excluded. A failing peer does not
// stop delivery to the rest; failures are returned for the caller to act on.
func fanout(peers []*registry.Peer, data []byte, exclude []string) (int, []sendFailure) {
	delivered := 0
	var failed []sendFailure
	for _, p := range peers {
		if lo.Contains(exclude, p.ID) {
			continue
		}
		if err := p.Conn.Send(data); err != nil {
			failed = append(failed, sendFailure{peer: p, err: err})
			continue
		}
		delivered++
	}
	return delivered, failed
}

// broadcast serializes msg once and delivers it to every registered peer
// except the excluded ids. Peers that fail are evicted after the pass.
func (h *Hub) broadcast(msg model.Outbound, exclude ...string) {
	msgType := model.OutboundType(msg)
	data, err := model.Encode(msg)
	if err != nil {
		h.log.Error("Failed to encode message", "type", msgType, "error", err)
		return
	}

	// Iterate a snapshot: evictions below mutate the registry
	delivered, failed := fanout(h.registry.Peers(), data, exclude)
	h.metrics.MessageSent(msgType, len(data), delivered)
	if len(failed) == 0 {
		return
	}

	for _, f := range failed {
		h.metrics.SendFailed(msgType)
		h.log.Warn("Dropping peer after failed send", "peer_id", f.peer.ID, "type", msgType, "error", f.err)
	}
	h.depart(lo.Map(failed, func(f sendFailure, _ int) *registry.Peer {
		return f.peer
	}), causeEvicted)
}

// unicast delivers msg to a single peer
func (h *Hub) unicast(p *registry.Peer, msg model.Outbound) error {
	msgType := model.OutboundType(msg)
	data, err := model.Encode(msg)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", msgType, err)
	}
	if err := p.Conn.Send(data); err != nil {
		h.metrics.SendFailed(msgType)
		return fmt.Errorf("failed to send %s: %w", msgType, err)
	}
	h.metrics.MessageSent(msgType, len(data), 1)
	return nil
}
