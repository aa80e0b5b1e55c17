package db

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/sini-kannan/Collaborative-Drawing-App/internal/store"
	"github.com/sini-kannan/Collaborative-Drawing-App/internal/store/storetest"
)

func setupTestDB(t *testing.T) (*Database, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "whiteboard-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	dbPath := filepath.Join(tmpDir, "test.db")
	db, err := New(dbPath)
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to create database: %v", err)
	}

	cleanup := func() {
		db.Close()
		os.RemoveAll(tmpDir)
	}

	return db, cleanup
}

func TestBackendContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Backend {
		dbPath := filepath.Join(t.TempDir(), "contract.db")
		db, err := New(dbPath)
		if err != nil {
			t.Fatalf("Failed to create database: %v", err)
		}
		return db
	})
}

func TestDatabaseCreation(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	if db == nil {
		t.Fatal("Database should not be nil")
	}
	if db.Name() != "sqlite" {
		t.Errorf("Expected backend name 'sqlite', got '%s'", db.Name())
	}
}

func TestStrokesFlattenInCreationOrder(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	s1Start := store.Point{X: 0, Y: 0, Type: store.PointStart, StrokeID: "s1"}
	s2Start := store.Point{X: 10, Y: 10, Type: store.PointStart, StrokeID: "s2"}
	s1Late := store.Point{X: 1, Y: 1, Type: store.PointDraw, StrokeID: "s1"}

	for _, p := range []store.Point{s1Start, s2Start, s1Late} {
		if err := db.Append(ctx, "alpha", p); err != nil {
			t.Fatalf("Failed to append: %v", err)
		}
	}

	got, err := db.LoadAll(ctx, "alpha")
	if err != nil {
		t.Fatalf("Failed to load: %v", err)
	}
	expected := []store.Point{s1Start, s1Late, s2Start}
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("Expected strokes grouped by document:\n got      %+v\n expected %+v", got, expected)
	}
}

func TestUndoDeletesNewestStrokeDocument(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	for _, p := range append(storetest.Stroke("s1", 2), storetest.Stroke("s2", 3)...) {
		if err := db.Append(ctx, "alpha", p); err != nil {
			t.Fatalf("Failed to append: %v", err)
		}
	}
	// A late point for s1 does not make it the newest document.
	late := store.Point{X: 99, Y: 99, Type: store.PointDraw, StrokeID: "s1"}
	if err := db.Append(ctx, "alpha", late); err != nil {
		t.Fatalf("Failed to append: %v", err)
	}

	got, err := db.Undo(ctx, "alpha")
	if err != nil {
		t.Fatalf("Failed to undo: %v", err)
	}
	expected := append(storetest.Stroke("s1", 2), late)
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("Expected %+v, got %+v", expected, got)
	}

	var strokes int
	if err := db.db.QueryRow("SELECT COUNT(*) FROM strokes WHERE room = ?", "alpha").Scan(&strokes); err != nil {
		t.Fatalf("Failed to count strokes: %v", err)
	}
	if strokes != 1 {
		t.Errorf("Expected 1 stroke document left, got %d", strokes)
	}
}

func TestUndoEmptyRoom(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	got, err := db.Undo(context.Background(), "empty")
	if err != nil {
		t.Fatalf("Failed to undo: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("Expected empty non-nil log, got %#v", got)
	}
}

func TestStrokeIDReusableAfterClear(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	for _, p := range storetest.Stroke("s1", 2) {
		db.Append(ctx, "alpha", p)
	}
	if err := db.Clear(ctx, "alpha"); err != nil {
		t.Fatalf("Failed to clear: %v", err)
	}
	for _, p := range storetest.Stroke("s1", 1) {
		if err := db.Append(ctx, "alpha", p); err != nil {
			t.Fatalf("Failed to append after clear: %v", err)
		}
	}

	got, _ := db.LoadAll(ctx, "alpha")
	if !reflect.DeepEqual(got, storetest.Stroke("s1", 1)) {
		t.Errorf("Expected fresh stroke after clear, got %+v", got)
	}
}

func TestSnapshotIdentityIsScopedToRoom(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	info, err := db.SaveSnapshot(ctx, store.Snapshot{
		Room:      "alpha",
		Name:      "mine",
		Data:      storetest.Stroke("s1", 1),
		CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("Failed to save snapshot: %v", err)
	}

	if _, err := db.LoadSnapshot(ctx, "beta", info.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound when loading another room's snapshot id, got %v", err)
	}
}

func TestSnapshotNameLookupPrefersNewest(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	base := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	older := storetest.Stroke("old", 1)
	newer := storetest.Stroke("new", 2)
	db.SaveSnapshot(ctx, store.Snapshot{Room: "alpha", Name: "daily", Data: older, CreatedAt: base})
	db.SaveSnapshot(ctx, store.Snapshot{Room: "alpha", Name: "daily", Data: newer, CreatedAt: base.Add(time.Hour)})

	got, err := db.LoadSnapshot(ctx, "alpha", "daily")
	if err != nil {
		t.Fatalf("Failed to load snapshot: %v", err)
	}
	if !reflect.DeepEqual(got, newer) {
		t.Errorf("Expected newest snapshot data, got %+v", got)
	}

	infos, _ := db.ListSnapshots(ctx, "alpha")
	if len(infos) != 2 {
		t.Errorf("Expected both snapshots to be kept, got %d", len(infos))
	}
}

func TestSnapshotNameShapedLikeUUID(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	name := "123e4567-e89b-12d3-a456-426614174000"
	data := storetest.Stroke("s1", 1)
	if _, err := db.SaveSnapshot(ctx, store.Snapshot{Room: "alpha", Name: name, Data: data, CreatedAt: time.Now()}); err != nil {
		t.Fatalf("Failed to save snapshot: %v", err)
	}

	got, err := db.LoadSnapshot(ctx, "alpha", name)
	if err != nil {
		t.Fatalf("Expected name fallback after id miss: %v", err)
	}
	if !reflect.DeepEqual(got, data) {
		t.Errorf("Expected %+v, got %+v", data, got)
	}
}

func TestStats(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	for _, p := range append(storetest.Stroke("s1", 2), storetest.Stroke("s2", 1)...) {
		if err := db.Append(ctx, "stats-room-a", p); err != nil {
			t.Fatalf("Failed to append: %v", err)
		}
	}
	for _, p := range storetest.Stroke("s1", 0) {
		db.Append(ctx, "stats-room-b", p)
	}
	db.SaveSnapshot(ctx, store.Snapshot{Room: "stats-room-a", Name: "n", Data: []store.Point{}, CreatedAt: time.Now()})

	stats, err := db.Stats(ctx)
	if err != nil {
		t.Fatalf("Failed to get stats: %v", err)
	}

	expected := map[string]int{
		"room_count":     2,
		"stroke_count":   3,
		"point_count":    6,
		"snapshot_count": 1,
	}
	if !reflect.DeepEqual(stats, expected) {
		t.Errorf("Expected %v, got %v", expected, stats)
	}
}
