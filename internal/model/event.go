package model

import (
	"encoding/json"
	"fmt"
)

// EventKind distinguishes the two drawing event shapes
type EventKind string

const (
	// KindDot is a single dab at (X0, Y0)
	KindDot EventKind = "dot"
	// KindSegment is a line from (X0, Y0) to (X1, Y1)
	KindSegment EventKind = "draw"
)

// DrawEvent is one entry of the shared drawing log.
// A stroke is identified by the pair (AuthorID, StrokeID); StrokeID alone is
// only unique per author.
type DrawEvent struct {
	Kind     EventKind
	X0       float64
	Y0       float64
	X1       float64
	Y1       float64
	Size     int
	Color    string
	AuthorID string
	StrokeID int64
}

type dotWire struct {
	Type     EventKind `json:"type"`
	X        float64   `json:"x"`
	Y        float64   `json:"y"`
	Size     int       `json:"size"`
	Color    string    `json:"color"`
	From     string    `json:"from"`
	StrokeID int64     `json:"sid"`
}

type segmentWire struct {
	Type     EventKind `json:"type"`
	X0       float64   `json:"x0"`
	Y0       float64   `json:"y0"`
	X1       float64   `json:"x1"`
	Y1       float64   `json:"y1"`
	Size     int       `json:"size"`
	Color    string    `json:"color"`
	From     string    `json:"from"`
	StrokeID int64     `json:"sid"`
}

// MarshalJSON implements json.Marshaler
func (e DrawEvent) MarshalJSON() ([]byte, error) {
	switch e.Kind {
	case KindDot:
		return json.Marshal(dotWire{
			Type:     KindDot,
			X:        e.X0,
			Y:        e.Y0,
			Size:     e.Size,
			Color:    e.Color,
			From:     e.AuthorID,
			StrokeID: e.StrokeID,
		})
	case KindSegment:
		return json.Marshal(segmentWire{
			Type:     KindSegment,
			X0:       e.X0,
			Y0:       e.Y0,
			X1:       e.X1,
			Y1:       e.Y1,
			Size:     e.Size,
			Color:    e.Color,
			From:     e.AuthorID,
			StrokeID: e.StrokeID,
		})
	}
	return nil, fmt.Errorf("%w: event kind %q", ErrUnknownType, e.Kind)
}

// UnmarshalJSON implements json.Unmarshaler
func (e *DrawEvent) UnmarshalJSON(data []byte) error {
	var envelope struct {
		Type EventKind `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return err
	}

	switch envelope.Type {
	case KindDot:
		var w dotWire
		if err := json.Unmarshal(data, &w); err != nil {
			return err
		}
		*e = DrawEvent{
			Kind:     KindDot,
			X0:       w.X,
			Y0:       w.Y,
			Size:     w.Size,
			Color:    w.Color,
			AuthorID: w.From,
			StrokeID: w.StrokeID,
		}
	case KindSegment:
		var w segmentWire
		if err := json.Unmarshal(data, &w); err != nil {
			return err
		}
		*e = DrawEvent{
			Kind:     KindSegment,
			X0:       w.X0,
			Y0:       w.Y0,
			X1:       w.X1,
			Y1:       w.Y1,
			Size:     w.Size,
			Color:    w.Color,
			AuthorID: w.From,
			StrokeID: w.StrokeID,
		}
	default:
		return fmt.Errorf("%w: event kind %q", ErrUnknownType, envelope.Type)
	}
	return nil
}

// SameStroke reports whether the event belongs to the given author's stroke
func (e DrawEvent) SameStroke(authorID string, strokeID int64) bool {
	return e.AuthorID == authorID && e.StrokeID == strokeID
}
