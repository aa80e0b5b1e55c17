// Package storetest holds the behaviour every store.Backend must share.
// Each backend package runs Run against a fresh instance.
package storetest

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/sini-kannan/Collaborative-Drawing-App/internal/store"
)

// Opener returns an empty backend. The suite closes it.
type Opener func(t *testing.T) store.Backend

// Stroke builds a contiguous stroke: one start point followed by n draw points.
func Stroke(id string, n int) []store.Point {
	points := []store.Point{{X: 0, Y: 0, Type: store.PointStart, Color: "#000000", Width: 2, StrokeID: id}}
	for i := 1; i <= n; i++ {
		points = append(points, store.Point{
			X:        float64(i),
			Y:        float64(i * 2),
			Type:     store.PointDraw,
			Color:    "#000000",
			Width:    2,
			StrokeID: id,
		})
	}
	return points
}

func Run(t *testing.T, open Opener) {
	tests := []struct {
		name string
		fn   func(t *testing.T, b store.Backend)
	}{
		{"UnknownRoomIsEmpty", testUnknownRoomIsEmpty},
		{"AppendPreservesOrder", testAppendPreservesOrder},
		{"ClearEmptiesLog", testClearEmptiesLog},
		{"RoomsAreIsolated", testRoomsAreIsolated},
		{"ReplaceAll", testReplaceAll},
		{"UndoRemovesLastStroke", testUndoRemovesLastStroke},
		{"UndoUntilEmpty", testUndoUntilEmpty},
		{"SnapshotRoundTrip", testSnapshotRoundTrip},
		{"SnapshotListNewestFirst", testSnapshotListNewestFirst},
		{"SnapshotLookupByIdentity", testSnapshotLookupByIdentity},
		{"SnapshotMissing", testSnapshotMissing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := open(t)
			t.Cleanup(func() {
				if err := b.Close(); err != nil {
					t.Errorf("Failed to close backend: %v", err)
				}
			})
			tt.fn(t, b)
		})
	}
}

func appendAll(t *testing.T, b store.Backend, room string, points []store.Point) {
	t.Helper()
	for _, p := range points {
		if err := b.Append(context.Background(), room, p); err != nil {
			t.Fatalf("Failed to append: %v", err)
		}
	}
}

func loadAll(t *testing.T, b store.Backend, room string) []store.Point {
	t.Helper()
	points, err := b.LoadAll(context.Background(), room)
	if err != nil {
		t.Fatalf("Failed to load: %v", err)
	}
	return points
}

func assertPoints(t *testing.T, got, expected []store.Point) {
	t.Helper()
	if len(got) == 0 && len(expected) == 0 {
		return
	}
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("Point mismatch:\n got      %+v\n expected %+v", got, expected)
	}
}

func undo(t *testing.T, b store.Backend, room string) []store.Point {
	t.Helper()
	ctx := context.Background()
	if undoer, ok := b.(store.Undoer); ok {
		points, err := undoer.Undo(ctx, room)
		if err != nil {
			t.Fatalf("Failed to undo: %v", err)
		}
		return points
	}
	trimmed := store.TrimLastStroke(loadAll(t, b, room))
	if err := b.ReplaceAll(ctx, room, trimmed); err != nil {
		t.Fatalf("Failed to replace: %v", err)
	}
	return trimmed
}

func testUnknownRoomIsEmpty(t *testing.T, b store.Backend) {
	points := loadAll(t, b, "nobody-here")
	if len(points) != 0 {
		t.Errorf("Expected empty log, got %d points", len(points))
	}
}

func testAppendPreservesOrder(t *testing.T, b store.Backend) {
	var expected []store.Point
	expected = append(expected, Stroke("s1", 3)...)
	expected = append(expected, Stroke("s2", 2)...)
	expected[4].Color = "#ff0000"
	expected[4].Width = 7.5

	appendAll(t, b, "alpha", expected)
	assertPoints(t, loadAll(t, b, "alpha"), expected)
}

func testClearEmptiesLog(t *testing.T, b store.Backend) {
	appendAll(t, b, "alpha", Stroke("s1", 4))

	if err := b.Clear(context.Background(), "alpha"); err != nil {
		t.Fatalf("Failed to clear: %v", err)
	}
	if points := loadAll(t, b, "alpha"); len(points) != 0 {
		t.Errorf("Expected empty log after clear, got %d points", len(points))
	}

	if err := b.Clear(context.Background(), "never-written"); err != nil {
		t.Errorf("Clearing an unknown room should succeed: %v", err)
	}
}

func testRoomsAreIsolated(t *testing.T, b store.Backend) {
	alpha := Stroke("a1", 2)
	beta := Stroke("b1", 1)
	appendAll(t, b, "alpha", alpha)
	appendAll(t, b, "beta", beta)

	if err := b.Clear(context.Background(), "beta"); err != nil {
		t.Fatalf("Failed to clear: %v", err)
	}

	assertPoints(t, loadAll(t, b, "alpha"), alpha)
	if points := loadAll(t, b, "beta"); len(points) != 0 {
		t.Errorf("Expected beta to be empty, got %d points", len(points))
	}
}

func testReplaceAll(t *testing.T, b store.Backend) {
	appendAll(t, b, "alpha", Stroke("old", 5))

	replacement := append(Stroke("n1", 1), Stroke("n2", 2)...)
	if err := b.ReplaceAll(context.Background(), "alpha", replacement); err != nil {
		t.Fatalf("Failed to replace: %v", err)
	}
	assertPoints(t, loadAll(t, b, "alpha"), replacement)

	if err := b.ReplaceAll(context.Background(), "alpha", []store.Point{}); err != nil {
		t.Fatalf("Failed to replace with empty log: %v", err)
	}
	if points := loadAll(t, b, "alpha"); len(points) != 0 {
		t.Errorf("Expected empty log, got %d points", len(points))
	}
}

func testUndoRemovesLastStroke(t *testing.T, b store.Backend) {
	first := Stroke("s1", 2)
	appendAll(t, b, "alpha", first)
	appendAll(t, b, "alpha", Stroke("s2", 2))

	got := undo(t, b, "alpha")
	assertPoints(t, got, first)
	assertPoints(t, loadAll(t, b, "alpha"), first)
}

func testUndoUntilEmpty(t *testing.T, b store.Backend) {
	appendAll(t, b, "alpha", Stroke("s1", 1))

	if got := undo(t, b, "alpha"); len(got) != 0 {
		t.Errorf("Expected empty log after undoing the only stroke, got %d points", len(got))
	}
	if got := undo(t, b, "alpha"); len(got) != 0 {
		t.Errorf("Expected undo on empty log to stay empty, got %d points", len(got))
	}
}

func testSnapshotRoundTrip(t *testing.T, b store.Backend) {
	ctx := context.Background()
	data := Stroke("s1", 3)

	info, err := b.SaveSnapshot(ctx, store.Snapshot{
		Room:      "alpha",
		Name:      "first draft",
		Data:      data,
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Failed to save snapshot: %v", err)
	}
	if info.ID == "" {
		t.Error("Snapshot should have an identity")
	}
	if info.Name != "first draft" || info.Room != "alpha" {
		t.Errorf("Unexpected snapshot metadata: %+v", info)
	}

	got, err := b.LoadSnapshot(ctx, "alpha", "first draft")
	if err != nil {
		t.Fatalf("Failed to load snapshot by name: %v", err)
	}
	assertPoints(t, got, data)

	if _, err := b.LoadSnapshot(ctx, "beta", "first draft"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound from another room, got %v", err)
	}
}

func testSnapshotListNewestFirst(t *testing.T, b store.Backend) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	names := []string{"one", "two", "three"}
	for i, name := range names {
		_, err := b.SaveSnapshot(ctx, store.Snapshot{
			Room:      "alpha",
			Name:      name,
			Data:      Stroke(name, 1),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("Failed to save snapshot %s: %v", name, err)
		}
	}
	if _, err := b.SaveSnapshot(ctx, store.Snapshot{Room: "beta", Name: "other", Data: []store.Point{}, CreatedAt: base}); err != nil {
		t.Fatalf("Failed to save snapshot: %v", err)
	}

	infos, err := b.ListSnapshots(ctx, "alpha")
	if err != nil {
		t.Fatalf("Failed to list snapshots: %v", err)
	}
	if len(infos) != 3 {
		t.Fatalf("Expected 3 snapshots, got %d", len(infos))
	}
	for i, expected := range []string{"three", "two", "one"} {
		if infos[i].Name != expected {
			t.Errorf("Snapshot %d: expected %q, got %q", i, expected, infos[i].Name)
		}
		if infos[i].Room != "alpha" {
			t.Errorf("Snapshot %d: expected room alpha, got %q", i, infos[i].Room)
		}
	}
	if !infos[0].CreatedAt.Equal(base.Add(2 * time.Minute)) {
		t.Errorf("Expected createdAt to survive storage, got %v", infos[0].CreatedAt)
	}
}

func testSnapshotLookupByIdentity(t *testing.T, b store.Backend) {
	ctx := context.Background()
	data := Stroke("s9", 2)
	info, err := b.SaveSnapshot(ctx, store.Snapshot{
		Room:      "alpha",
		Name:      "by-id",
		Data:      data,
		CreatedAt: time.Date(2026, 5, 5, 5, 5, 5, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Failed to save snapshot: %v", err)
	}

	got, err := b.LoadSnapshot(ctx, "alpha", info.ID)
	if err != nil {
		t.Fatalf("Failed to load snapshot by identity %q: %v", info.ID, err)
	}
	assertPoints(t, got, data)
}

func testSnapshotMissing(t *testing.T, b store.Backend) {
	_, err := b.LoadSnapshot(context.Background(), "alpha", "does-not-exist")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	infos, err := b.ListSnapshots(context.Background(), "alpha")
	if err != nil {
		t.Fatalf("Failed to list snapshots: %v", err)
	}
	if len(infos) != 0 {
		t.Errorf("Expected no snapshots, got %d", len(infos))
	}
}
