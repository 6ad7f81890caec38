package registry

import (
	"errors"
	"strings"

	"github.com/Harshitk-cp/sketchhive/internal/model"
	"github.com/samber/lo"
)

var ErrDuplicateID = errors.New("peer id already registered")

// Registry is the authoritative set of admitted peers.
//
// It is not safe for concurrent use: the hub loop owns it and is the only
// goroutine that reads or mutates it.
type Registry struct {
	peers map[string]*Peer
	order []string // join order, drives the roster
}

// New creates an empty registry
func New() *Registry {
	return &Registry{
		peers: make(map[string]*Peer),
	}
}

// Register adds a peer. It fails only when the id is already in use; the
// caller is expected to generate a new id and retry.
func (r *Registry) Register(p *Peer) error {
	if _, exists := r.peers[p.ID]; exists {
		return ErrDuplicateID
	}
	r.peers[p.ID] = p
	r.order = append(r.order, p.ID)
	return nil
}

// Unregister removes the peer if it is still registered. Unknown or stale
// handles are ignored, so a connection may be torn down more than once.
func (r *Registry) Unregister(p *Peer) (*Peer, bool) {
	if p == nil {
		return nil, false
	}
	current, exists := r.peers[p.ID]
	if !exists || current != p {
		return nil, false
	}
	delete(r.peers, p.ID)
	r.order = lo.Without(r.order, p.ID)
	return current, true
}

// Lookup finds a registered peer by id
func (r *Registry) Lookup(id string) (*Peer, bool) {
	p, ok := r.peers[id]
	return p, ok
}

// Contains reports whether this exact peer is registered
func (r *Registry) Contains(p *Peer) bool {
	current, ok := r.peers[p.ID]
	return ok && current == p
}

// Peers returns a snapshot of the registered peers in join order
func (r *Registry) Peers() []*Peer {
	return lo.Map(r.order, func(id string, _ int) *Peer {
		return r.peers[id]
	})
}

// Roster returns the public projection of every peer in join order
func (r *Registry) Roster() []model.RosterEntry {
	return lo.Map(r.Peers(), func(p *Peer, _ int) model.RosterEntry {
		return p.Entry()
	})
}

// Len returns the number of registered peers
func (r *Registry) Len() int {
	return len(r.peers)
}

// NameTaken reports whether a peer already uses the name, ignoring case
func (r *Registry) NameTaken(name string) bool {
	return lo.SomeBy(r.Peers(), func(p *Peer) bool {
		return strings.EqualFold(p.Name, name)
	})
}

// ColorsInUse returns the set of colors held by registered peers
func (r *Registry) ColorsInUse() map[string]struct{} {
	colors := make(map[string]struct{}, len(r.peers))
	for _, p := range r.peers {
		colors[p.Color] = struct{}{}
	}
	return colors
}

// DeviceHolder returns the id of the peer bound to the device key.
// The empty key is never bound.
func (r *Registry) DeviceHolder(device string) (string, bool) {
	if device == "" {
		return "", false
	}
	p, ok := lo.Find(r.Peers(), func(p *Peer) bool {
		return p.Device == device
	})
	if !ok {
		return "", false
	}
	return p.ID, true
}
