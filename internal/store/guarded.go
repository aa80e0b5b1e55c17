package store

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/sini-kannan/Collaborative-Drawing-App/internal/room"
)

// Status reports whether a Store call reached the backend cleanly.
type Status int

const (
	StatusOK Status = iota

	// The backend failed; the call was logged and a fallback value returned
	StatusDegraded
)

func (s Status) String() string {
	if s == StatusDegraded {
		return "degraded"
	}
	return "ok"
}

// Store is the only persistence surface the router and API see. It
// sanitizes room keys and never hands a backend error to its caller:
// failures are logged and reported as StatusDegraded.
type Store struct {
	backend Backend
	logger  *zap.Logger
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now for snapshot timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func New(backend Backend, logger *zap.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		backend: backend,
		logger:  logger.With(zap.String("component", "store"), zap.String("backend", backend.Name())),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Backend returns the engine name.
func (s *Store) Backend() string {
	return s.backend.Name()
}

func (s *Store) Close() error {
	return s.backend.Close()
}

func (s *Store) degrade(op, key string, err error) Status {
	s.logger.Warn("persistence failure",
		zap.String("op", op),
		zap.String("room", key),
		zap.Error(err),
	)
	return StatusDegraded
}

// LoadAll returns the room's history. A failed read yields an empty log.
func (s *Store) LoadAll(ctx context.Context, rawRoom string) ([]Point, Status) {
	key := room.Sanitize(rawRoom)
	points, err := s.backend.LoadAll(ctx, key)
	if err != nil {
		return []Point{}, s.degrade("load", key, err)
	}
	return clonePoints(points), StatusOK
}

func (s *Store) Append(ctx context.Context, rawRoom string, point Point) Status {
	key := room.Sanitize(rawRoom)
	if err := s.backend.Append(ctx, key, point); err != nil {
		return s.degrade("append", key, err)
	}
	return StatusOK
}

func (s *Store) Clear(ctx context.Context, rawRoom string) Status {
	key := room.Sanitize(rawRoom)
	if err := s.backend.Clear(ctx, key); err != nil {
		return s.degrade("clear", key, err)
	}
	return StatusOK
}

func (s *Store) ReplaceAll(ctx context.Context, rawRoom string, points []Point) Status {
	key := room.Sanitize(rawRoom)
	if err := s.backend.ReplaceAll(ctx, key, clonePoints(points)); err != nil {
		return s.degrade("replace", key, err)
	}
	return StatusOK
}

// Undo removes the room's last stroke and returns the resulting history.
// When the backend fails, the history it can still read is returned.
func (s *Store) Undo(ctx context.Context, rawRoom string) ([]Point, Status) {
	key := room.Sanitize(rawRoom)

	if undoer, ok := s.backend.(Undoer); ok {
		points, err := undoer.Undo(ctx, key)
		if err != nil {
			st := s.degrade("undo", key, err)
			current, _ := s.LoadAll(ctx, key)
			return current, st
		}
		return clonePoints(points), StatusOK
	}

	points, err := s.backend.LoadAll(ctx, key)
	if err != nil {
		return []Point{}, s.degrade("undo", key, err)
	}
	trimmed := TrimLastStroke(points)
	if err := s.backend.ReplaceAll(ctx, key, trimmed); err != nil {
		st := s.degrade("undo", key, err)
		current, _ := s.LoadAll(ctx, key)
		return current, st
	}
	return trimmed, StatusOK
}

// SaveSnapshot captures the room's current history under name. An empty
// name becomes the current timestamp. Nothing is saved if the history
// cannot be read.
func (s *Store) SaveSnapshot(ctx context.Context, rawRoom, name string) (SnapshotInfo, Status) {
	key := room.Sanitize(rawRoom)
	now := s.now().UTC()

	points, err := s.backend.LoadAll(ctx, key)
	if err != nil {
		return SnapshotInfo{}, s.degrade("snapshot", key, err)
	}

	info, err := s.backend.SaveSnapshot(ctx, Snapshot{
		Room:      key,
		Name:      room.SnapshotName(name, now),
		Data:      clonePoints(points),
		CreatedAt: now,
	})
	if err != nil {
		return SnapshotInfo{}, s.degrade("snapshot", key, err)
	}
	return info, StatusOK
}

// ListSnapshots returns the room's snapshots newest first.
func (s *Store) ListSnapshots(ctx context.Context, rawRoom string) ([]SnapshotInfo, Status) {
	key := room.Sanitize(rawRoom)
	infos, err := s.backend.ListSnapshots(ctx, key)
	if err != nil {
		return []SnapshotInfo{}, s.degrade("list_snapshots", key, err)
	}
	if infos == nil {
		infos = []SnapshotInfo{}
	}
	return infos, StatusOK
}

// LoadSnapshot returns the points of the snapshot matching key. Both a
// missing snapshot and a failed read return ErrNotFound.
func (s *Store) LoadSnapshot(ctx context.Context, rawRoom, snapshotKey string) ([]Point, error) {
	key := room.Sanitize(rawRoom)
	points, err := s.backend.LoadSnapshot(ctx, key, snapshotKey)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.degrade("load_snapshot", key, err)
		}
		return nil, ErrNotFound
	}
	return clonePoints(points), nil
}

// Stats returns backend counters, or nil when the backend keeps none or
// the query fails.
func (s *Store) Stats(ctx context.Context) map[string]int {
	reporter, ok := s.backend.(StatsReporter)
	if !ok {
		return nil
	}
	stats, err := reporter.Stats(ctx)
	if err != nil {
		s.degrade("stats", "", err)
		return nil
	}
	return stats
}
