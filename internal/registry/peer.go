//go:generate go run go.uber.org/mock/mockgen -source=peer.go -destination=mocks/mock_peer.go -package=mocks
package registry

import (
	"time"

	"github.com/Harshitk-cp/sketchhive/internal/model"
)

// Conn is the live channel to one client.
// Send must not block: it either queues the frame or reports why it could not.
type Conn interface {
	Send(data []byte) error
	Close()
}

// Peer represents an admitted client
type Peer struct {
	ID       string
	Name     string
	Color    string
	Device   string
	Conn     Conn
	JoinedAt time.Time
}

// Entry projects the peer into its public roster form
func (p *Peer) Entry() model.RosterEntry {
	return model.RosterEntry{
		ID:    p.ID,
		Name:  p.Name,
		Color: p.Color,
	}
}
