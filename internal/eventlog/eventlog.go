package eventlog

import (
	"github.com/Harshitk-cp/sketchhive/internal/model"
	"github.com/samber/lo"
)

// DefaultMaxEvents bounds the log. The whole log is replayed to every new
// joiner, so its length is also the worst-case join payload.
const DefaultMaxEvents = 8000

// Log is the shared, append-only drawing history.
//
// Like the registry it is owned by the hub loop and is not safe for
// concurrent use.
type Log struct {
	events    []model.DrawEvent
	maxEvents int
}

// New creates an empty log holding at most maxEvents entries
func New(maxEvents int) *Log {
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEvents
	}
	return &Log{
		events:    make([]model.DrawEvent, 0, 64),
		maxEvents: maxEvents,
	}
}

// Append adds an event at the end. When the log grows past its bound the
// oldest tenth (at least one event) is dropped; the number dropped is returned.
func (l *Log) Append(ev model.DrawEvent) int {
	l.events = append(l.events, ev)
	if len(l.events) <= l.maxEvents {
		return 0
	}

	drop := max(1, l.maxEvents/10)
	kept := make([]model.DrawEvent, 0, l.maxEvents+1)
	l.events = append(kept, l.events[drop:]...)
	return drop
}

// Snapshot returns a copy of the log in append order
func (l *Log) Snapshot() []model.DrawEvent {
	out := make([]model.DrawEvent, len(l.events))
	copy(out, l.events)
	return out
}

// RemoveLastStrokeOf removes the author's most recent stroke. The stroke is
// found from the newest event backwards, then every event of that
// (author, stroke) pair is removed wherever it sits in the log.
func (l *Log) RemoveLastStrokeOf(authorID string) int {
	last, _, found := lo.FindLastIndexOf(l.events, func(ev model.DrawEvent) bool {
		return ev.AuthorID == authorID
	})
	if !found {
		return 0
	}
	return l.removeWhere(func(ev model.DrawEvent) bool {
		return ev.SameStroke(authorID, last.StrokeID)
	})
}

// RemoveAllOf removes every event drawn by the author
func (l *Log) RemoveAllOf(authorID string) int {
	return l.removeWhere(func(ev model.DrawEvent) bool {
		return ev.AuthorID == authorID
	})
}

// Clear empties the log and returns how many events were dropped
func (l *Log) Clear() int {
	n := len(l.events)
	l.events = make([]model.DrawEvent, 0, 64)
	return n
}

// Len returns the number of events in the log
func (l *Log) Len() int {
	return len(l.events)
}

// MaxEvents returns the configured bound
func (l *Log) MaxEvents() int {
	return l.maxEvents
}

func (l *Log) removeWhere(match func(ev model.DrawEvent) bool) int {
	before := len(l.events)
	l.events = lo.Reject(l.events, func(ev model.DrawEvent, _ int) bool {
		return match(ev)
	})
	return before - len(l.events)
}
