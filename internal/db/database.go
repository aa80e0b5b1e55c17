package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/sini-kannan/Collaborative-Drawing-App/internal/store"
)

// Database stores each stroke as one document row with its points in an
// ordered child table. Snapshots carry a generated UUID identity.
type Database struct {
	db  *sql.DB
	now func() time.Time
}

var (
	_ store.Backend       = (*Database)(nil)
	_ store.Undoer        = (*Database)(nil)
	_ store.StatsReporter = (*Database)(nil)
)

func New(dbPath string) (*Database, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// SQLite has a single writer; one pooled connection keeps
	// concurrent appends from failing with SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Database{db: db, now: time.Now}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS strokes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		room TEXT NOT NULL,
		stroke_id TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		UNIQUE (room, stroke_id)
	);

	CREATE INDEX IF NOT EXISTS idx_strokes_room ON strokes(room, id);

	CREATE TABLE IF NOT EXISTS stroke_points (
		stroke_row INTEGER NOT NULL,
		ord INTEGER NOT NULL,
		x REAL NOT NULL,
		y REAL NOT NULL,
		type TEXT NOT NULL,
		color TEXT NOT NULL DEFAULT '',
		width REAL NOT NULL DEFAULT 0,
		PRIMARY KEY (stroke_row, ord)
	);

	CREATE TABLE IF NOT EXISTS snapshots (
		id TEXT PRIMARY KEY,
		room TEXT NOT NULL,
		name TEXT NOT NULL,
		data TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_room_created ON snapshots(room, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_snapshots_room_name ON snapshots(room, name);
	`

	_, err := db.Exec(schema)
	return err
}

func (d *Database) Name() string {
	return "sqlite"
}

func (d *Database) Close() error {
	return d.db.Close()
}

// Stroke log operations

// LoadAll flattens the room's strokes in creation order, then each
// stroke's points in append order.
func (d *Database) LoadAll(ctx context.Context, room string) ([]store.Point, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT p.x, p.y, p.type, p.color, p.width, s.stroke_id
		FROM strokes s
		JOIN stroke_points p ON p.stroke_row = s.id
		WHERE s.room = ?
		ORDER BY s.id ASC, p.ord ASC
	`, room)
	if err != nil {
		return nil, fmt.Errorf("query strokes: %w", err)
	}
	defer rows.Close()

	points := []store.Point{}
	for rows.Next() {
		var p store.Point
		if err := rows.Scan(&p.X, &p.Y, &p.Type, &p.Color, &p.Width, &p.StrokeID); err != nil {
			return nil, fmt.Errorf("scan point: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// Append adds the point to its stroke document, creating the document
// on the stroke's first point.
func (d *Database) Append(ctx context.Context, room string, point store.Point) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	if err := d.appendTx(ctx, tx, room, point); err != nil {
		return err
	}
	return tx.Commit()
}

func (d *Database) appendTx(ctx context.Context, tx *sql.Tx, room string, point store.Point) error {
	if _, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO strokes (room, stroke_id, created_at) VALUES (?, ?, ?)",
		room, point.StrokeID, d.now().UnixNano(),
	); err != nil {
		return fmt.Errorf("upsert stroke: %w", err)
	}

	var strokeRow int64
	if err := tx.QueryRowContext(ctx,
		"SELECT id FROM strokes WHERE room = ? AND stroke_id = ?",
		room, point.StrokeID,
	).Scan(&strokeRow); err != nil {
		return fmt.Errorf("find stroke: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO stroke_points (stroke_row, ord, x, y, type, color, width)
		SELECT ?, COALESCE(MAX(ord) + 1, 0), ?, ?, ?, ?, ?
		FROM stroke_points WHERE stroke_row = ?
	`, strokeRow, point.X, point.Y, string(point.Type), point.Color, point.Width, strokeRow); err != nil {
		return fmt.Errorf("insert point: %w", err)
	}
	return nil
}

func (d *Database) Clear(ctx context.Context, room string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin clear: %w", err)
	}
	defer tx.Rollback()

	if err := clearTx(ctx, tx, room); err != nil {
		return err
	}
	return tx.Commit()
}

func clearTx(ctx context.Context, tx *sql.Tx, room string) error {
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM stroke_points WHERE stroke_row IN (SELECT id FROM strokes WHERE room = ?)",
		room,
	); err != nil {
		return fmt.Errorf("delete points: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM strokes WHERE room = ?", room); err != nil {
		return fmt.Errorf("delete strokes: %w", err)
	}
	return nil
}

// ReplaceAll rebuilds the room's stroke documents from points in one
// transaction. Points are grouped by stroke in order of first appearance.
func (d *Database) ReplaceAll(ctx context.Context, room string, points []store.Point) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer tx.Rollback()

	if err := clearTx(ctx, tx, room); err != nil {
		return err
	}
	for _, p := range points {
		if err := d.appendTx(ctx, tx, room, p); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Undo deletes the most recently created stroke document.
func (d *Database) Undo(ctx context.Context, room string) ([]store.Point, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin undo: %w", err)
	}
	defer tx.Rollback()

	var strokeRow int64
	err = tx.QueryRowContext(ctx,
		"SELECT id FROM strokes WHERE room = ? ORDER BY id DESC LIMIT 1",
		room,
	).Scan(&strokeRow)
	if errors.Is(err, sql.ErrNoRows) {
		return []store.Point{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find last stroke: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM stroke_points WHERE stroke_row = ?", strokeRow); err != nil {
		return nil, fmt.Errorf("delete points: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM strokes WHERE id = ?", strokeRow); err != nil {
		return nil, fmt.Errorf("delete stroke: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit undo: %w", err)
	}

	return d.LoadAll(ctx, room)
}

// Snapshot operations

func (d *Database) SaveSnapshot(ctx context.Context, snap store.Snapshot) (store.SnapshotInfo, error) {
	if snap.Data == nil {
		snap.Data = []store.Point{}
	}
	data, err := json.Marshal(snap.Data)
	if err != nil {
		return store.SnapshotInfo{}, fmt.Errorf("encode snapshot: %w", err)
	}

	snap.ID = uuid.NewString()
	if _, err := d.db.ExecContext(ctx,
		"INSERT INTO snapshots (id, room, name, data, created_at) VALUES (?, ?, ?, ?, ?)",
		snap.ID, snap.Room, snap.Name, string(data), snap.CreatedAt.UnixNano(),
	); err != nil {
		return store.SnapshotInfo{}, fmt.Errorf("insert snapshot: %w", err)
	}
	return snap.Info(), nil
}

// ListSnapshots returns all snapshots for a room, newest first
func (d *Database) ListSnapshots(ctx context.Context, room string) ([]store.SnapshotInfo, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, room, name, created_at
		FROM snapshots
		WHERE room = ?
		ORDER BY created_at DESC, rowid DESC
	`, room)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	infos := []store.SnapshotInfo{}
	for rows.Next() {
		var info store.SnapshotInfo
		var createdAt int64
		if err := rows.Scan(&info.ID, &info.Room, &info.Name, &createdAt); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		info.CreatedAt = time.Unix(0, createdAt).UTC()
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// LoadSnapshot resolves key as a snapshot id when it parses as a UUID,
// otherwise (or when no id matches) as the newest snapshot with that name.
func (d *Database) LoadSnapshot(ctx context.Context, room, key string) ([]store.Point, error) {
	var data string
	var err error

	if _, parseErr := uuid.Parse(key); parseErr == nil {
		err = d.db.QueryRowContext(ctx,
			"SELECT data FROM snapshots WHERE id = ? AND room = ?",
			key, room,
		).Scan(&data)
		if err == nil {
			return decodeSnapshotData(data)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("query snapshot by id: %w", err)
		}
	}

	err = d.db.QueryRowContext(ctx, `
		SELECT data FROM snapshots
		WHERE room = ? AND name = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1
	`, room, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query snapshot by name: %w", err)
	}
	return decodeSnapshotData(data)
}

func decodeSnapshotData(data string) ([]store.Point, error) {
	var points []store.Point
	if err := json.Unmarshal([]byte(data), &points); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if points == nil {
		points = []store.Point{}
	}
	return points, nil
}

// Stats

func (d *Database) Stats(ctx context.Context) (map[string]int, error) {
	stats := make(map[string]int)

	queries := []struct {
		key   string
		query string
	}{
		{"room_count", "SELECT COUNT(DISTINCT room) FROM strokes"},
		{"stroke_count", "SELECT COUNT(*) FROM strokes"},
		{"point_count", "SELECT COUNT(*) FROM stroke_points"},
		{"snapshot_count", "SELECT COUNT(*) FROM snapshots"},
	}
	for _, q := range queries {
		var n int
		if err := d.db.QueryRowContext(ctx, q.query).Scan(&n); err != nil {
			return nil, fmt.Errorf("%s: %w", q.key, err)
		}
		stats[q.key] = n
	}
	return stats, nil
}
