// Package store persists the game metadata — set names, best records,
// ticker messages and audio blob metadata — in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"soundpairs/internal/records"
	"soundpairs/internal/sets"

	_ "modernc.org/sqlite"
)

// ErrAudioNotFound is returned when no audio metadata exists for a key.
var ErrAudioNotFound = errors.New("audio metadata not found")

// AudioMetadata describes one stored audio blob. Name is the client-chosen
// key; DiskName is the opaque on-disk filename.
type AudioMetadata struct {
	Name        string
	ContentType string
	DiskName    string
	SizeBytes   int64
	CreatedAt   time.Time
}

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database and runs migrations.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	st := &Store{db: db}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	slog.Info("sqlite store opened", "path", path)
	return st, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS set_names (
	slot INTEGER PRIMARY KEY CHECK(slot IN (1, 2)),
	name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS best_records (
	set_id INTEGER PRIMARY KEY CHECK(set_id BETWEEN 0 AND 2),
	best_time INTEGER,
	best_attempts INTEGER
);

CREATE TABLE IF NOT EXISTS messages (
	position INTEGER PRIMARY KEY,
	body TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS audio_blobs (
	name TEXT PRIMARY KEY,
	content_type TEXT NOT NULL,
	disk_name TEXT NOT NULL UNIQUE,
	size_bytes INTEGER NOT NULL CHECK(size_bytes >= 0),
	created_at_unix_ms INTEGER NOT NULL
);
`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("run sqlite migrations: %w", err)
	}
	slog.Debug("sqlite migrations applied")
	return nil
}

// Names returns both custom-set display names, defaulting unset slots.
func (s *Store) Names(ctx context.Context) ([2]string, error) {
	names := sets.DefaultNames

	rows, err := s.db.QueryContext(ctx, `SELECT slot, name FROM set_names`)
	if err != nil {
		return names, fmt.Errorf("query set names: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var slot int
		var name string
		if err := rows.Scan(&slot, &name); err != nil {
			return names, fmt.Errorf("scan set name: %w", err)
		}
		if slot == 1 || slot == 2 {
			names[slot-1] = name
		}
	}
	return names, rows.Err()
}

// SetName stores one slot's display name. Blank names fall back to the
// default, mirroring the admin UI behavior.
func (s *Store) SetName(ctx context.Context, slot int, name string) error {
	if slot != 1 && slot != 2 {
		return fmt.Errorf("slot must be 1 or 2, got %d", slot)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = sets.DefaultNames[slot-1]
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO set_names (slot, name) VALUES (?, ?)`, slot, name)
	if err != nil {
		return fmt.Errorf("save set name: %w", err)
	}
	return nil
}

// BestRecords loads all persisted best records.
func (s *Store) BestRecords(ctx context.Context) (map[int]records.Best, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT set_id, best_time, best_attempts FROM best_records`)
	if err != nil {
		return nil, fmt.Errorf("query best records: %w", err)
	}
	defer rows.Close()

	out := make(map[int]records.Best)
	for rows.Next() {
		var setID int
		var bestTime, bestAttempts sql.NullInt64
		if err := rows.Scan(&setID, &bestTime, &bestAttempts); err != nil {
			return nil, fmt.Errorf("scan best record: %w", err)
		}
		var b records.Best
		if bestTime.Valid {
			t := int(bestTime.Int64)
			b.Time = &t
		}
		if bestAttempts.Valid {
			a := int(bestAttempts.Int64)
			b.Attempts = &a
		}
		out[setID] = b
	}
	return out, rows.Err()
}

// SaveBest stores one set's record. Nil minima persist as NULL.
func (s *Store) SaveBest(ctx context.Context, set int, b records.Best) error {
	if set < 0 || set > 2 {
		return fmt.Errorf("set id must be 0..2, got %d", set)
	}
	var bestTime, bestAttempts sql.NullInt64
	if b.Time != nil {
		bestTime = sql.NullInt64{Int64: int64(*b.Time), Valid: true}
	}
	if b.Attempts != nil {
		bestAttempts = sql.NullInt64{Int64: int64(*b.Attempts), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO best_records (set_id, best_time, best_attempts) VALUES (?, ?, ?)`,
		set, bestTime, bestAttempts)
	if err != nil {
		return fmt.Errorf("save best record: %w", err)
	}
	slog.Debug("best record saved", "set", set)
	return nil
}

// Messages returns the stored ticker messages in upload order.
func (s *Store) Messages(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT body FROM messages ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, body)
	}
	return out, rows.Err()
}

// ReplaceMessages atomically swaps the full message list.
func (s *Store) ReplaceMessages(ctx context.Context, msgs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin message replace: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages`); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}
	for i, body := range msgs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (position, body) VALUES (?, ?)`, i, body); err != nil {
			return fmt.Errorf("insert message %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit message replace: %w", err)
	}
	slog.Debug("messages replaced", "count", len(msgs))
	return nil
}

// UpsertAudio stores blob metadata under its client key, replacing any
// previous entry. Returns the disk name of the replaced entry so the caller
// can unlink its bytes, or "" if the key was new.
func (s *Store) UpsertAudio(ctx context.Context, meta AudioMetadata) (string, error) {
	if strings.TrimSpace(meta.Name) == "" {
		return "", fmt.Errorf("audio name is required")
	}
	if strings.TrimSpace(meta.ContentType) == "" {
		return "", fmt.Errorf("audio content type is required")
	}
	if strings.TrimSpace(meta.DiskName) == "" {
		return "", fmt.Errorf("audio disk name is required")
	}
	if meta.SizeBytes < 0 {
		return "", fmt.Errorf("audio size must be non-negative")
	}
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now().UTC()
	}

	var prevDisk string
	err := s.db.QueryRowContext(ctx,
		`SELECT disk_name FROM audio_blobs WHERE name = ?`, meta.Name).Scan(&prevDisk)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("query previous audio: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
INSERT OR REPLACE INTO audio_blobs (name, content_type, disk_name, size_bytes, created_at_unix_ms)
VALUES (?, ?, ?, ?, ?)`,
		meta.Name, meta.ContentType, meta.DiskName, meta.SizeBytes, meta.CreatedAt.UnixMilli())
	if err != nil {
		return "", fmt.Errorf("upsert audio metadata: %w", err)
	}
	slog.Debug("audio metadata stored", "name", meta.Name, "size", meta.SizeBytes, "replaced", prevDisk != "")
	return prevDisk, nil
}

// AudioByName returns audio metadata by client key.
func (s *Store) AudioByName(ctx context.Context, name string) (AudioMetadata, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return AudioMetadata{}, fmt.Errorf("audio name is required")
	}

	var (
		meta      AudioMetadata
		createdMs int64
	)
	err := s.db.QueryRowContext(ctx, `
SELECT name, content_type, disk_name, size_bytes, created_at_unix_ms
FROM audio_blobs WHERE name = ?`, name).Scan(
		&meta.Name, &meta.ContentType, &meta.DiskName, &meta.SizeBytes, &createdMs)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return AudioMetadata{}, ErrAudioNotFound
		}
		return AudioMetadata{}, fmt.Errorf("query audio metadata: %w", err)
	}
	meta.CreatedAt = time.UnixMilli(createdMs).UTC()
	return meta, nil
}

// DeleteAudio removes one metadata row, returning it so the caller can
// unlink the blob bytes.
func (s *Store) DeleteAudio(ctx context.Context, name string) (AudioMetadata, error) {
	meta, err := s.AudioByName(ctx, name)
	if err != nil {
		return AudioMetadata{}, err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM audio_blobs WHERE name = ?`, meta.Name); err != nil {
		return AudioMetadata{}, fmt.Errorf("delete audio metadata: %w", err)
	}
	slog.Debug("audio metadata deleted", "name", meta.Name)
	return meta, nil
}

// ListAudioNames returns all stored audio keys, sorted.
func (s *Store) ListAudioNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM audio_blobs ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query audio names: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan audio name: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}
