package store

import (
	"encoding/json"
	"fmt"
	"time"
)

// PointType tells a renderer whether a point opens a path or extends it.
type PointType string

const (
	// Begins a new path at (x, y)
	PointStart PointType = "start"

	// Extends the current path to (x, y)
	PointDraw PointType = "draw"
)

// Valid reports whether t is a known point type.
func (t PointType) Valid() bool {
	return t == PointStart || t == PointDraw
}

// Point is one sample within a stroke.
type Point struct {
	X        float64   `json:"x"`
	Y        float64   `json:"y"`
	Type     PointType `json:"type"`
	Color    string    `json:"color"`
	Width    float64   `json:"width"`
	StrokeID string    `json:"strokeId"`
}

// Snapshot is a named copy of a room's history at save time.
type Snapshot struct {
	ID        string    `json:"id"`
	Room      string    `json:"room"`
	Name      string    `json:"name"`
	Data      []Point   `json:"data"`
	CreatedAt time.Time `json:"createdAt"`
}

// Info drops the point data for listings.
func (s Snapshot) Info() SnapshotInfo {
	return SnapshotInfo{
		ID:        s.ID,
		Room:      s.Room,
		Name:      s.Name,
		CreatedAt: s.CreatedAt,
	}
}

// SnapshotInfo is the metadata returned when saving or listing snapshots.
type SnapshotInfo struct {
	ID        string    `json:"id"`
	Room      string    `json:"room"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// DecodePoints parses a JSON array of points. Anything other than an
// array, or an array holding a point with an unknown type, is rejected.
func DecodePoints(raw json.RawMessage) ([]Point, error) {
	var points []Point
	if err := json.Unmarshal(raw, &points); err != nil {
		return nil, fmt.Errorf("decode points: %w", err)
	}
	if points == nil {
		return nil, fmt.Errorf("decode points: not an array")
	}
	for i, p := range points {
		if !p.Type.Valid() {
			return nil, fmt.Errorf("decode points: point %d has type %q", i, p.Type)
		}
	}
	return points, nil
}

// clonePoints never returns nil so callers always encode a JSON array.
func clonePoints(points []Point) []Point {
	out := make([]Point, len(points))
	copy(out, points)
	return out
}
