package model

import (
	"encoding/json"
	"fmt"
)

// Outbound is a server message. The set of implementations is closed:
// NeedName, Banned, Welcome, Roster, History, Rebuild, Boop and DrawEvent.
type Outbound interface {
	outbound()
}

// NeedName tells the client its handshake name was refused
type NeedName struct {
	Reason string `json:"reason"`
}

// Banned tells the client its device already holds a session
type Banned struct {
	Reason string `json:"reason,omitempty"`
}

// Welcome confirms the identity assigned to the client
type Welcome struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// RosterEntry is the public projection of a connected peer
type RosterEntry struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Roster lists every connected peer in join order
type Roster struct {
	Peers []RosterEntry `json:"peers"`
}

// History carries the event log to a new joiner
type History struct {
	Events []DrawEvent `json:"events"`
}

// Rebuild replaces every client's drawing with the given events
type Rebuild struct {
	Events []DrawEvent `json:"events"`
}

// Boop is a poke delivered to its target
type Boop struct {
	From     string `json:"from"`
	FromName string `json:"fromName"`
}

func (NeedName) outbound()  {}
func (Banned) outbound()    {}
func (Welcome) outbound()   {}
func (Roster) outbound()    {}
func (History) outbound()   {}
func (Rebuild) outbound()   {}
func (Boop) outbound()      {}
func (DrawEvent) outbound() {}

// Encode serializes an outbound message into a single text frame
func Encode(msg Outbound) ([]byte, error) {
	switch m := msg.(type) {
	case NeedName:
		return json.Marshal(struct {
			Type string `json:"type"`
			NeedName
		}{TypeNeedName, m})
	case Banned:
		return json.Marshal(struct {
			Type string `json:"type"`
			Banned
		}{TypeBanned, m})
	case Welcome:
		return json.Marshal(struct {
			Type string `json:"type"`
			Welcome
		}{TypeWelcome, m})
	case Roster:
		if m.Peers == nil {
			m.Peers = []RosterEntry{}
		}
		return json.Marshal(struct {
			Type string `json:"type"`
			Roster
		}{TypeRoster, m})
	case History:
		if m.Events == nil {
			m.Events = []DrawEvent{}
		}
		return json.Marshal(struct {
			Type string `json:"type"`
			History
		}{TypeHistory, m})
	case Rebuild:
		if m.Events == nil {
			m.Events = []DrawEvent{}
		}
		return json.Marshal(struct {
			Type string `json:"type"`
			Rebuild
		}{TypeRebuild, m})
	case Boop:
		return json.Marshal(struct {
			Type string `json:"type"`
			Boop
		}{TypeBoop, m})
	case DrawEvent:
		return json.Marshal(m)
	}
	return nil, fmt.Errorf("%w: %T", ErrUnknownType, msg)
}

// OutboundType returns the wire type of an outbound message
func OutboundType(msg Outbound) string {
	switch m := msg.(type) {
	case NeedName:
		return TypeNeedName
	case Banned:
		return TypeBanned
	case Welcome:
		return TypeWelcome
	case Roster:
		return TypeRoster
	case History:
		return TypeHistory
	case Rebuild:
		return TypeRebuild
	case Boop:
		return TypeBoop
	case DrawEvent:
		return string(m.Kind)
	}
	return "unknown"
}
