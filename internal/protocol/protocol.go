// Package protocol defines the JSON frames exchanged over the whiteboard
// websocket.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Event types. Client to server: draw, clear, undo, applySnapshot, cursor.
// Server to client: history, draw, clear, resetWithHistory, cursor,
// cursor:left.
const (
	TypeDraw             = "draw"
	TypeClear            = "clear"
	TypeUndo             = "undo"
	TypeApplySnapshot    = "applySnapshot"
	TypeCursor           = "cursor"
	TypeHistory          = "history"
	TypeResetWithHistory = "resetWithHistory"
	TypeCursorLeft       = "cursor:left"
)

var ErrMissingType = errors.New("frame type is required")

// Frame is the envelope of every websocket message.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// CursorIn is the pointer position a client reports.
type CursorIn struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Color string  `json:"color"`
}

// CursorOut is a cursor position relayed to the rest of the room.
type CursorOut struct {
	ID    string  `json:"id"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Color string  `json:"color"`
}

type CursorLeft struct {
	ID string `json:"id"`
}

// Encode marshals payload into a frame of the given type. A nil payload
// produces a frame without one.
func Encode(eventType string, payload any) ([]byte, error) {
	frame := Frame{Type: eventType}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
		}
		frame.Payload = raw
	}
	return json.Marshal(frame)
}

// Decode parses one websocket message.
func Decode(data []byte) (Frame, error) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	if frame.Type == "" {
		return Frame{}, ErrMissingType
	}
	return frame, nil
}
