package boltstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/sini-kannan/Collaborative-Drawing-App/internal/store"
)

const (
	roomsBucket     = "rooms"
	snapshotsBucket = "snapshots"
)

// Store provides a BoltDB-backed stroke log. Each room is a nested
// bucket of points keyed by a big-endian sequence number.
type Store struct {
	db *bbolt.DB
}

var (
	_ store.Backend = (*Store)(nil)
	_ store.Undoer  = (*Store)(nil)
)

// Open opens a BoltDB-backed store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	db, err := bbolt.Open(cleanPath, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open storage db: %w", err)
	}

	s := &Store{db: db}
	if err := s.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Name() string {
	return "bolt"
}

// Close closes the underlying BoltDB database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) ensureBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{roomsBucket, snapshotsBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create %s bucket: %w", name, err)
			}
		}
		return nil
	})
}

func sequenceKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

func topBucket(tx *bbolt.Tx, name string) (*bbolt.Bucket, error) {
	bucket := tx.Bucket([]byte(name))
	if bucket == nil {
		return nil, fmt.Errorf("%s bucket is missing", name)
	}
	return bucket, nil
}

// readLog returns the points and their keys. Keys are copied so they
// outlive the transaction's cursor.
func readLog(bucket *bbolt.Bucket) ([]store.Point, [][]byte, error) {
	points := []store.Point{}
	var keys [][]byte
	if bucket == nil {
		return points, keys, nil
	}
	err := bucket.ForEach(func(k, v []byte) error {
		var p store.Point
		if err := json.Unmarshal(v, &p); err != nil {
			return fmt.Errorf("unmarshal point: %w", err)
		}
		points = append(points, p)
		keys = append(keys, append([]byte(nil), k...))
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return points, keys, nil
}

func putPoint(bucket *bbolt.Bucket, p store.Point) error {
	seq, err := bucket.NextSequence()
	if err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal point: %w", err)
	}
	return bucket.Put(sequenceKey(seq), payload)
}

func (s *Store) LoadAll(ctx context.Context, room string) ([]store.Point, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var points []store.Point
	err := s.db.View(func(tx *bbolt.Tx) error {
		rooms, err := topBucket(tx, roomsBucket)
		if err != nil {
			return err
		}
		points, _, err = readLog(rooms.Bucket([]byte(room)))
		return err
	})
	if err != nil {
		return nil, err
	}
	return points, nil
}

func (s *Store) Append(ctx context.Context, room string, point store.Point) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		rooms, err := topBucket(tx, roomsBucket)
		if err != nil {
			return err
		}
		bucket, err := rooms.CreateBucketIfNotExists([]byte(room))
		if err != nil {
			return fmt.Errorf("create room bucket: %w", err)
		}
		return putPoint(bucket, point)
	})
}

func (s *Store) Clear(ctx context.Context, room string) error {
	return s.ReplaceAll(ctx, room, nil)
}

func (s *Store) ReplaceAll(ctx context.Context, room string, points []store.Point) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		rooms, err := topBucket(tx, roomsBucket)
		if err != nil {
			return err
		}
		if err := rooms.DeleteBucket([]byte(room)); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
			return fmt.Errorf("delete room bucket: %w", err)
		}
		if len(points) == 0 {
			return nil
		}
		bucket, err := rooms.CreateBucket([]byte(room))
		if err != nil {
			return fmt.Errorf("create room bucket: %w", err)
		}
		for _, p := range points {
			if err := putPoint(bucket, p); err != nil {
				return err
			}
		}
		return nil
	})
}

// Undo trims the last stroke inside a single write transaction.
func (s *Store) Undo(ctx context.Context, room string) ([]store.Point, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	remaining := []store.Point{}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		rooms, err := topBucket(tx, roomsBucket)
		if err != nil {
			return err
		}
		bucket := rooms.Bucket([]byte(room))
		points, keys, err := readLog(bucket)
		if err != nil {
			return err
		}

		from := store.LastStrokeStart(points)
		if from < 0 {
			from = 0
		}
		for _, k := range keys[from:] {
			if err := bucket.Delete(k); err != nil {
				return fmt.Errorf("delete point: %w", err)
			}
		}
		remaining = points[:from]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return remaining, nil
}

func (s *Store) SaveSnapshot(ctx context.Context, snap store.Snapshot) (store.SnapshotInfo, error) {
	if err := ctx.Err(); err != nil {
		return store.SnapshotInfo{}, err
	}

	snap.ID = uuid.NewString()
	if snap.Data == nil {
		snap.Data = []store.Point{}
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return store.SnapshotInfo{}, fmt.Errorf("marshal snapshot: %w", err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		snapshots, err := topBucket(tx, snapshotsBucket)
		if err != nil {
			return err
		}
		bucket, err := snapshots.CreateBucketIfNotExists([]byte(snap.Room))
		if err != nil {
			return fmt.Errorf("create snapshot bucket: %w", err)
		}
		return bucket.Put([]byte(snap.ID), payload)
	})
	if err != nil {
		return store.SnapshotInfo{}, err
	}
	return snap.Info(), nil
}

// roomSnapshots decodes every snapshot of the room, newest first.
func (s *Store) roomSnapshots(room string) ([]store.Snapshot, error) {
	var snaps []store.Snapshot
	err := s.db.View(func(tx *bbolt.Tx) error {
		snapshots, err := topBucket(tx, snapshotsBucket)
		if err != nil {
			return err
		}
		bucket := snapshots.Bucket([]byte(room))
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(_, v []byte) error {
			var snap store.Snapshot
			if err := json.Unmarshal(v, &snap); err != nil {
				return fmt.Errorf("unmarshal snapshot: %w", err)
			}
			snaps = append(snaps, snap)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(snaps, func(i, j int) bool {
		return snaps[i].CreatedAt.After(snaps[j].CreatedAt)
	})
	return snaps, nil
}

func (s *Store) ListSnapshots(ctx context.Context, room string) ([]store.SnapshotInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snaps, err := s.roomSnapshots(room)
	if err != nil {
		return nil, err
	}
	infos := make([]store.SnapshotInfo, 0, len(snaps))
	for _, snap := range snaps {
		infos = append(infos, snap.Info())
	}
	return infos, nil
}

// LoadSnapshot matches key against snapshot ids, then names.
func (s *Store) LoadSnapshot(ctx context.Context, room, key string) ([]store.Point, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snaps, err := s.roomSnapshots(room)
	if err != nil {
		return nil, err
	}
	if _, parseErr := uuid.Parse(key); parseErr == nil {
		for _, snap := range snaps {
			if snap.ID == key {
				return snap.Data, nil
			}
		}
	}
	for _, snap := range snaps {
		if snap.Name == key {
			return snap.Data, nil
		}
	}
	return nil, store.ErrNotFound
}
