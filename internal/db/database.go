// Package db persists the room activity journal in SQLite. The journal is an
// append-only audit trail; live room state is never restored from it.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Activity kinds.
const (
	KindRoomCreated       = "room_created"
	KindRoomEvicted       = "room_evicted"
	KindParticipantJoined = "participant_joined"
	KindParticipantLeft   = "participant_left"
	KindChatMessage       = "chat_message"
)

type Database struct {
	db *sql.DB
}

// Entry is one row of the activity journal.
type Entry struct {
	ID            int64     `json:"id"`
	RoomID        string    `json:"roomId"`
	Kind          string    `json:"kind"`
	ParticipantID string    `json:"participantId,omitempty"`
	Detail        string    `json:"detail,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Stats summarizes the journal.
type Stats struct {
	Entries int            `json:"entries"`
	Rooms   int            `json:"rooms"`
	ByKind  map[string]int `json:"byKind"`
}

func New(dbPath string) (*Database, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create database dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &Database{db: db}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS room_activity (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		room_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		participant_id TEXT NOT NULL DEFAULT '',
		detail TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_room_activity_room_id ON room_activity(room_id, id DESC);
	`

	_, err := db.Exec(schema)
	return err
}

func (d *Database) Close() error {
	return d.db.Close()
}

// InsertActivity writes entries in one transaction.
func (d *Database) InsertActivity(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO room_activity (room_id, kind, participant_id, detail, created_at)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.RoomID, e.Kind, e.ParticipantID, e.Detail, e.CreatedAt.UnixMilli()); err != nil {
			return fmt.Errorf("insert %s for room %s: %w", e.Kind, e.RoomID, err)
		}
	}
	return tx.Commit()
}

// ListActivity returns up to limit entries for roomID, newest first.
func (d *Database) ListActivity(ctx context.Context, roomID string, limit int) ([]Entry, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, room_id, kind, participant_id, detail, created_at
		FROM room_activity
		WHERE room_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("query activity: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e  Entry
			ms int64
		)
		if err := rows.Scan(&e.ID, &e.RoomID, &e.Kind, &e.ParticipantID, &e.Detail, &ms); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		e.CreatedAt = time.UnixMilli(ms).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Stats

func (d *Database) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{ByKind: make(map[string]int)}

	if err := d.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COUNT(DISTINCT room_id) FROM room_activity",
	).Scan(&stats.Entries, &stats.Rooms); err != nil {
		return Stats{}, fmt.Errorf("count activity: %w", err)
	}

	rows, err := d.db.QueryContext(ctx, "SELECT kind, COUNT(*) FROM room_activity GROUP BY kind")
	if err != nil {
		return Stats{}, fmt.Errorf("count by kind: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			kind string
			n    int
		)
		if err := rows.Scan(&kind, &n); err != nil {
			return Stats{}, fmt.Errorf("scan kind count: %w", err)
		}
		stats.ByKind[kind] = n
	}
	return stats, rows.Err()
}
