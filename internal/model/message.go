// internal/model/message.go

package model

import (
	"encoding/json"
	"fmt"
)

// Inbound message types (client to server)
const (
	TypeHello    = "hello"
	TypeDot      = "dot"
	TypeDraw     = "draw"
	TypeUndoMine = "undoMine"
	TypeClearAll = "clearAll"
	TypePoke     = "poke"
)

// Outbound message types (server to client)
const (
	TypeNeedName = "needName"
	TypeBanned   = "banned"
	TypeWelcome  = "welcome"
	TypeRoster   = "roster"
	TypeHistory  = "history"
	TypeRebuild  = "rebuild"
	TypeBoop     = "boop"
)

// Brush size bounds applied to inbound strokes
const (
	DefaultBrushSize = 4
	MinBrushSize     = 1
	MaxBrushSize     = 64
)

// Inbound is a decoded client message. The set of implementations is closed:
// Hello, Dot, Draw, UndoMine, ClearAll and Poke.
type Inbound interface {
	inbound()
}

// Hello is the handshake carrying a proposed display name and device key
type Hello struct {
	Name   string `json:"name"`
	Device string `json:"device"`
}

// Dot is a single brush dab
type Dot struct {
	X        float64
	Y        float64
	Size     int
	StrokeID int64
}

// Draw is a line segment of a stroke
type Draw struct {
	X0       float64
	Y0       float64
	X1       float64
	Y1       float64
	Size     int
	StrokeID int64
}

// UndoMine asks to remove the sender's most recent stroke
type UndoMine struct{}

// ClearAll wipes the shared canvas
type ClearAll struct{}

// Poke nudges another peer
type Poke struct {
	To string `json:"to"`
}

func (Hello) inbound()    {}
func (Dot) inbound()      {}
func (Draw) inbound()     {}
func (UndoMine) inbound() {}
func (ClearAll) inbound() {}
func (Poke) inbound()     {}

// Event stamps the dot with its author and server-assigned color
func (d Dot) Event(authorID, color string) DrawEvent {
	return DrawEvent{
		Kind:     KindDot,
		X0:       d.X,
		Y0:       d.Y,
		Size:     d.Size,
		Color:    color,
		AuthorID: authorID,
		StrokeID: d.StrokeID,
	}
}

// Event stamps the segment with its author and server-assigned color
func (d Draw) Event(authorID, color string) DrawEvent {
	return DrawEvent{
		Kind:     KindSegment,
		X0:       d.X0,
		Y0:       d.Y0,
		X1:       d.X1,
		Y1:       d.Y1,
		Size:     d.Size,
		Color:    color,
		AuthorID: authorID,
		StrokeID: d.StrokeID,
	}
}

// strokeFields are shared by dot and draw frames. Older clients send "sid",
// newer ones "strokeId".
type strokeFields struct {
	Size     *float64 `json:"size"`
	StrokeID *float64 `json:"strokeId"`
	SID      *float64 `json:"sid"`
}

func (f strokeFields) size() int {
	if f.Size == nil || *f.Size == 0 {
		return DefaultBrushSize
	}
	size := int(*f.Size)
	if size < MinBrushSize {
		return MinBrushSize
	}
	if size > MaxBrushSize {
		return MaxBrushSize
	}
	return size
}

func (f strokeFields) strokeID() int64 {
	switch {
	case f.StrokeID != nil:
		return int64(*f.StrokeID)
	case f.SID != nil:
		return int64(*f.SID)
	default:
		return 0
	}
}

// DecodeInbound parses one text frame into its message variant.
// Frames that are not JSON objects, or whose fields have the wrong shape,
// yield ErrMalformed; unrecognized types yield ErrUnknownType.
func DecodeInbound(data []byte) (Inbound, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch envelope.Type {
	case TypeHello:
		var msg Hello
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return msg, nil

	case TypeDot:
		var raw struct {
			X *float64 `json:"x"`
			Y *float64 `json:"y"`
			strokeFields
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if raw.X == nil || raw.Y == nil {
			return nil, fmt.Errorf("%w: dot without coordinates", ErrMalformed)
		}
		return Dot{X: *raw.X, Y: *raw.Y, Size: raw.size(), StrokeID: raw.strokeID()}, nil

	case TypeDraw:
		var raw struct {
			X0 *float64 `json:"x0"`
			Y0 *float64 `json:"y0"`
			X1 *float64 `json:"x1"`
			Y1 *float64 `json:"y1"`
			strokeFields
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if raw.X0 == nil || raw.Y0 == nil || raw.X1 == nil || raw.Y1 == nil {
			return nil, fmt.Errorf("%w: segment without coordinates", ErrMalformed)
		}
		return Draw{
			X0:       *raw.X0,
			Y0:       *raw.Y0,
			X1:       *raw.X1,
			Y1:       *raw.Y1,
			Size:     raw.size(),
			StrokeID: raw.strokeID(),
		}, nil

	case TypeUndoMine:
		return UndoMine{}, nil

	case TypeClearAll:
		return ClearAll{}, nil

	case TypePoke:
		var msg Poke
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return msg, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownType, envelope.Type)
}

// InboundType returns the wire type of an inbound message
func InboundType(msg Inbound) string {
	switch msg.(type) {
	case Hello:
		return TypeHello
	case Dot:
		return TypeDot
	case Draw:
		return TypeDraw
	case UndoMine:
		return TypeUndoMine
	case ClearAll:
		return TypeClearAll
	case Poke:
		return TypePoke
	}
	return "unknown"
}
