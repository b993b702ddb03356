// Package snapshot records the content of beatmap files over time and diffs
// consecutive recordings.
package snapshot

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	_ "modernc.org/sqlite" // database/sql driver "sqlite".
)

// ErrNoRecording is returned when a file has never been recorded.
var ErrNoRecording = errors.New("no recording")

const (
	dirPerm     = 0o750
	busyTimeout = 5000
)

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	set_key     TEXT    NOT NULL,
	file        TEXT    NOT NULL,
	recorded_at INTEGER NOT NULL,
	hash        TEXT    NOT NULL,
	raw_size    INTEGER NOT NULL,
	compressed  INTEGER NOT NULL,
	content     BLOB    NOT NULL
);
CREATE INDEX IF NOT EXISTS snapshots_lookup ON snapshots (set_key, file, recorded_at);
`

// Recording is one stored version of a file.
type Recording struct {
	File       string
	RecordedAt time.Time
	Hash       string
	Content    string
}

// Store persists recordings in a SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	mkdirErr := os.MkdirAll(filepath.Dir(path), dirPerm)
	if mkdirErr != nil {
		return nil, fmt.Errorf("create snapshot directory: %w", mkdirErr)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)", path, busyTimeout)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open snapshot database: %w", err)
	}

	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	_, execErr := db.ExecContext(ctx, schema)
	if execErr != nil {
		db.Close()

		return nil, fmt.Errorf("apply snapshot schema: %w", execErr)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Hash returns the content hash used to detect changes.
func Hash(content []byte) string {
	sum := sha256.Sum256(content)

	return hex.EncodeToString(sum[:])
}

// Save stores a new recording of file.
func (s *Store) Save(ctx context.Context, setKey, file string, at time.Time, content []byte) error {
	data, compressed := compress(content)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (set_key, file, recorded_at, hash, raw_size, compressed, content)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		setKey, file, at.UnixMilli(), Hash(content), len(content), compressed, data)
	if err != nil {
		return fmt.Errorf("save snapshot of %s: %w", file, err)
	}

	return nil
}

// Latest returns the most recent recording of file.
func (s *Store) Latest(ctx context.Context, setKey, file string) (Recording, error) {
	recordings, err := s.History(ctx, setKey, file, 1)
	if err != nil {
		return Recording{}, err
	}

	if len(recordings) == 0 {
		return Recording{}, fmt.Errorf("%w of %s", ErrNoRecording, file)
	}

	return recordings[0], nil
}

// History returns up to limit most recent recordings of file, oldest first.
// A limit of zero or less returns every recording.
func (s *Store) History(ctx context.Context, setKey, file string, limit int) ([]Recording, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT recorded_at, hash, raw_size, compressed, content FROM snapshots
		 WHERE set_key = ? AND file = ?
		 ORDER BY recorded_at DESC, id DESC
		 LIMIT ?`,
		setKey, file, limit)
	if err != nil {
		return nil, fmt.Errorf("query snapshots of %s: %w", file, err)
	}
	defer rows.Close()

	var recordings []Recording

	for rows.Next() {
		var (
			recordedAt int64
			rawSize    int
			compressed bool
			data       []byte
			rec        = Recording{File: file}
		)

		scanErr := rows.Scan(&recordedAt, &rec.Hash, &rawSize, &compressed, &data)
		if scanErr != nil {
			return nil, fmt.Errorf("scan snapshot of %s: %w", file, scanErr)
		}

		content, decErr := decompress(data, rawSize, compressed)
		if decErr != nil {
			return nil, fmt.Errorf("snapshot of %s: %w", file, decErr)
		}

		rec.RecordedAt = time.UnixMilli(recordedAt)
		rec.Content = string(content)
		recordings = append(recordings, rec)
	}

	rowsErr := rows.Err()
	if rowsErr != nil {
		return nil, fmt.Errorf("read snapshots of %s: %w", file, rowsErr)
	}

	slices.Reverse(recordings)

	return recordings, nil
}

// Files returns the recorded file names of a set.
func (s *Store) Files(ctx context.Context, setKey string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT file FROM snapshots WHERE set_key = ? ORDER BY file`, setKey)
	if err != nil {
		return nil, fmt.Errorf("query snapshot files: %w", err)
	}
	defer rows.Close()

	var files []string

	for rows.Next() {
		var f string

		scanErr := rows.Scan(&f)
		if scanErr != nil {
			return nil, fmt.Errorf("scan snapshot file: %w", scanErr)
		}

		files = append(files, f)
	}

	return files, rows.Err()
}
