package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a snapshot lookup matches nothing.
var ErrNotFound = errors.New("not found")

// Backend is a persistence engine for room stroke logs and snapshots.
// Rooms passed in are already sanitized. Implementations return errors;
// the Store facade decides how a failure degrades.
type Backend interface {
	// Name identifies the engine in logs and stats.
	Name() string

	// LoadAll returns the room's log in receipt order. Unknown rooms
	// yield an empty log, not an error.
	LoadAll(ctx context.Context, room string) ([]Point, error)

	Append(ctx context.Context, room string, point Point) error
	Clear(ctx context.Context, room string) error

	// ReplaceAll discards the log and installs points in their place.
	ReplaceAll(ctx context.Context, room string, points []Point) error

	// SaveSnapshot persists snap and returns its metadata with the
	// identity assigned by the engine.
	SaveSnapshot(ctx context.Context, snap Snapshot) (SnapshotInfo, error)

	// ListSnapshots returns the room's snapshots, newest first.
	ListSnapshots(ctx context.Context, room string) ([]SnapshotInfo, error)

	// LoadSnapshot resolves key as an identity first and as a name
	// second. It returns ErrNotFound when neither matches.
	LoadSnapshot(ctx context.Context, room, key string) ([]Point, error)

	Close() error
}

// Undoer is implemented by backends that remove the last stroke natively.
// Backends without it get LoadAll, TrimLastStroke and ReplaceAll.
type Undoer interface {
	Undo(ctx context.Context, room string) ([]Point, error)
}

// StatsReporter is implemented by backends that can count what they hold.
type StatsReporter interface {
	Stats(ctx context.Context) (map[string]int, error)
}
