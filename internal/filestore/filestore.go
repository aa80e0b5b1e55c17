// Package filestore keeps each room's stroke log and snapshots as JSON
// files on local disk.
//
// Layout under the root directory:
//
//	rooms/<room>.json                 ordered point array
//	snapshots/<room>/<enc(name)>.json {id, room, name, data, createdAt}
//
// enc is the unpadded base64url form of the sanitized snapshot name, so a
// file name is unique per name and never contains a path separator.
package filestore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/sini-kannan/Collaborative-Drawing-App/internal/room"
	"github.com/sini-kannan/Collaborative-Drawing-App/internal/store"
)

const (
	roomsDir     = "rooms"
	snapshotsDir = "snapshots"
	fileExt      = ".json"
)

// Store is the flat-file store.Backend.
type Store struct {
	dir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

var _ store.Backend = (*Store)(nil)

// Open prepares dir for use, creating it if needed.
func Open(dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("data directory is required")
	}
	dir = filepath.Clean(dir)
	for _, sub := range []string{roomsDir, snapshotsDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create %s directory: %w", sub, err)
		}
	}
	return &Store{
		dir:   dir,
		locks: make(map[string]*sync.Mutex),
	}, nil
}

func (s *Store) Name() string {
	return "file"
}

func (s *Store) Close() error {
	return nil
}

// roomLock serializes read-modify-write cycles on one room's files.
func (s *Store) roomLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	return lock
}

func (s *Store) logPath(key string) (string, error) {
	if !room.Valid(key) {
		return "", fmt.Errorf("invalid room key %q", key)
	}
	return filepath.Join(s.dir, roomsDir, key+fileExt), nil
}

func (s *Store) snapshotDir(key string) (string, error) {
	if !room.Valid(key) {
		return "", fmt.Errorf("invalid room key %q", key)
	}
	return filepath.Join(s.dir, snapshotsDir, key), nil
}

func snapshotFile(name string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(name)) + fileExt
}

func (s *Store) LoadAll(ctx context.Context, key string) ([]store.Point, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lock := s.roomLock(key)
	lock.Lock()
	defer lock.Unlock()

	return s.readLog(key)
}

func (s *Store) readLog(key string) ([]store.Point, error) {
	path, err := s.logPath(key)
	if err != nil {
		return nil, err
	}

	payload, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return []store.Point{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read room log: %w", err)
	}

	var points []store.Point
	if err := json.Unmarshal(payload, &points); err != nil {
		return nil, fmt.Errorf("decode room log %s: %w", key, err)
	}
	if points == nil {
		points = []store.Point{}
	}
	return points, nil
}

func (s *Store) writeLog(key string, points []store.Point) error {
	path, err := s.logPath(key)
	if err != nil {
		return err
	}
	if points == nil {
		points = []store.Point{}
	}
	payload, err := json.Marshal(points)
	if err != nil {
		return fmt.Errorf("encode room log: %w", err)
	}
	return writeFileAtomic(path, payload)
}

func (s *Store) Append(ctx context.Context, key string, point store.Point) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	lock := s.roomLock(key)
	lock.Lock()
	defer lock.Unlock()

	points, err := s.readLog(key)
	if err != nil {
		return err
	}
	return s.writeLog(key, append(points, point))
}

func (s *Store) Clear(ctx context.Context, key string) error {
	return s.ReplaceAll(ctx, key, []store.Point{})
}

func (s *Store) ReplaceAll(ctx context.Context, key string, points []store.Point) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	lock := s.roomLock(key)
	lock.Lock()
	defer lock.Unlock()

	return s.writeLog(key, points)
}

// SaveSnapshot writes the snapshot under its name. Saving a name that
// already exists in the room replaces the earlier file.
func (s *Store) SaveSnapshot(ctx context.Context, snap store.Snapshot) (store.SnapshotInfo, error) {
	if err := ctx.Err(); err != nil {
		return store.SnapshotInfo{}, err
	}
	if snap.Name == "" {
		return store.SnapshotInfo{}, fmt.Errorf("snapshot name is required")
	}
	dir, err := s.snapshotDir(snap.Room)
	if err != nil {
		return store.SnapshotInfo{}, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return store.SnapshotInfo{}, fmt.Errorf("create snapshot directory: %w", err)
	}

	snap.ID = snap.Name
	if snap.Data == nil {
		snap.Data = []store.Point{}
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return store.SnapshotInfo{}, fmt.Errorf("encode snapshot: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(dir, snapshotFile(snap.Name)), payload); err != nil {
		return store.SnapshotInfo{}, err
	}
	return snap.Info(), nil
}

func (s *Store) ListSnapshots(ctx context.Context, key string) ([]store.SnapshotInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, err := s.snapshotDir(key)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []store.SnapshotInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}

	infos := make([]store.SnapshotInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fileExt) {
			continue
		}
		snap, err := readSnapshot(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		infos = append(infos, snap.Info())
	}

	sort.SliceStable(infos, func(i, j int) bool {
		return infos[i].CreatedAt.After(infos[j].CreatedAt)
	})
	return infos, nil
}

// LoadSnapshot looks the key up as a snapshot name. On this backend the
// name is the identity, so both lookup paths resolve the same file.
func (s *Store) LoadSnapshot(ctx context.Context, key, name string) ([]store.Point, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, err := s.snapshotDir(key)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, store.ErrNotFound
	}

	snap, err := readSnapshot(filepath.Join(dir, snapshotFile(name)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return snap.Data, nil
}

func readSnapshot(path string) (store.Snapshot, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return store.Snapshot{}, fmt.Errorf("read snapshot: %w", err)
	}
	var snap store.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return store.Snapshot{}, fmt.Errorf("decode snapshot %s: %w", filepath.Base(path), err)
	}
	if snap.Data == nil {
		snap.Data = []store.Point{}
	}
	return snap, nil
}

// writeFileAtomic replaces path so readers never see a partial file.
func writeFileAtomic(path string, payload []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
