// Package notes implements the note store that cloud sync replicates:
// notes with pin and soft-delete flags, plus free-form tags keyed by
// (note_id, tag).
package notes

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/skiffdb/skiff/internal/cloud/db"
	"github.com/skiffdb/skiff/internal/cloud/schema"
)

// Note is one stored note. Timestamps are epoch milliseconds; a zero
// DeletedAt means the note is live.
type Note struct {
	ID        string
	Body      string
	Pinned    bool
	CreatedAt int64
	UpdatedAt int64
	DeletedAt int64
	Tags      []string
}

// Migrate creates the note tables. Notes and tags sync independently
// and in no guaranteed order, so there is deliberately no foreign key
// between them.
func Migrate(conn *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS notes (
			id TEXT PRIMARY KEY,
			body TEXT NOT NULL DEFAULT '',
			pinned INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL DEFAULT 0,
			updated_at INTEGER NOT NULL DEFAULT 0,
			deleted_at INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS note_tags (
			note_id TEXT NOT NULL,
			tag TEXT NOT NULL,
			created_at INTEGER NOT NULL DEFAULT 0,
			updated_at INTEGER NOT NULL DEFAULT 0,
			deleted_at INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (note_id, tag)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notes_updated_at ON notes(updated_at)`,
		`CREATE INDEX IF NOT EXISTS idx_note_tags_updated_at ON note_tags(updated_at)`,
	}
	for _, stmt := range stmts {
		if _, err := conn.Exec(stmt); err != nil {
			return fmt.Errorf("migrate notes schema: %w", err)
		}
	}
	return nil
}

// Schema declares the synced tables for the schema provider.
func Schema() (*schema.Static, error) {
	return schema.NewStatic(
		schema.Table{
			Name:        "notes",
			Columns:     []string{"id", "body", "pinned", "created_at", "updated_at", "deleted_at"},
			PrimaryKeys: []string{"id"},
			Types: map[string]string{
				"id": "TEXT", "body": "TEXT", "pinned": "INTEGER",
				"created_at": "INTEGER", "updated_at": "INTEGER", "deleted_at": "INTEGER",
			},
		},
		schema.Table{
			Name:        "note_tags",
			Columns:     []string{"note_id", "tag", "created_at", "updated_at", "deleted_at"},
			PrimaryKeys: []string{"note_id", "tag"},
			Types: map[string]string{
				"note_id": "TEXT", "tag": "TEXT",
				"created_at": "INTEGER", "updated_at": "INTEGER", "deleted_at": "INTEGER",
			},
		},
	)
}

// Store provides note operations over the managed local database.
type Store struct {
	mgr *db.Manager
}

// NewStore wraps a database manager.
func NewStore(mgr *db.Manager) *Store {
	return &Store{mgr: mgr}
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// Add creates a note and returns it.
func (s *Store) Add(body string) (Note, error) {
	n := Note{
		ID:        uuid.NewString(),
		Body:      body,
		CreatedAt: nowMillis(),
	}
	n.UpdatedAt = n.CreatedAt
	err := s.mgr.Execute(
		`INSERT INTO notes (id, body, pinned, created_at, updated_at, deleted_at)
		 VALUES (?, ?, 0, ?, ?, 0)`,
		n.ID, n.Body, n.CreatedAt, n.UpdatedAt)
	if err != nil {
		return Note{}, fmt.Errorf("add note: %w", err)
	}
	return n, nil
}

// List returns live notes, pinned first, most recently updated next.
// Tags are attached to each note.
func (s *Store) List() ([]Note, error) {
	rows, err := s.mgr.QueryStrings(
		`SELECT id, body, pinned, created_at, updated_at, deleted_at
		 FROM notes WHERE deleted_at = 0
		 ORDER BY pinned DESC, updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}

	out := make([]Note, 0, len(rows))
	for _, row := range rows {
		if len(row) != 6 {
			continue
		}
		n := Note{ID: row[0].String, Body: row[1].String}
		n.Pinned = row[2].String == "1"
		n.CreatedAt = parseMillis(row[3].String)
		n.UpdatedAt = parseMillis(row[4].String)
		n.DeletedAt = parseMillis(row[5].String)
		tags, err := s.Tags(n.ID)
		if err != nil {
			return nil, err
		}
		n.Tags = tags
		out = append(out, n)
	}
	return out, nil
}

// Get returns one note by id, including soft-deleted ones.
func (s *Store) Get(id string) (Note, error) {
	rows, err := s.mgr.QueryStrings(
		`SELECT id, body, pinned, created_at, updated_at, deleted_at
		 FROM notes WHERE id = ?`, id)
	if err != nil {
		return Note{}, fmt.Errorf("get note: %w", err)
	}
	if len(rows) == 0 {
		return Note{}, fmt.Errorf("note %s not found", id)
	}
	row := rows[0]
	n := Note{ID: row[0].String, Body: row[1].String}
	n.Pinned = row[2].String == "1"
	n.CreatedAt = parseMillis(row[3].String)
	n.UpdatedAt = parseMillis(row[4].String)
	n.DeletedAt = parseMillis(row[5].String)
	return n, nil
}

// Pin sets or clears a note's pinned flag.
func (s *Store) Pin(id string, pinned bool) error {
	flag := 0
	if pinned {
		flag = 1
	}
	err := s.mgr.Execute(
		`UPDATE notes SET pinned = ?, updated_at = ? WHERE id = ? AND deleted_at = 0`,
		flag, nowMillis(), id)
	if err != nil {
		return fmt.Errorf("pin note: %w", err)
	}
	return nil
}

// Delete soft-deletes a note so the deletion replicates. The row stays
// until a future compaction; sync carries the tombstone.
func (s *Store) Delete(id string) error {
	now := nowMillis()
	err := s.mgr.Execute(
		`UPDATE notes SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at = 0`,
		now, now, id)
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	return nil
}

// Tag attaches a tag to a note. Re-tagging is a no-op.
func (s *Store) Tag(noteID, tag string) error {
	now := nowMillis()
	err := s.mgr.Execute(
		`INSERT INTO note_tags (note_id, tag, created_at, updated_at, deleted_at)
		 VALUES (?, ?, ?, ?, 0)
		 ON CONFLICT(note_id, tag) DO NOTHING`,
		noteID, tag, now, now)
	if err != nil {
		return fmt.Errorf("tag note: %w", err)
	}
	return nil
}

// Tags returns the live tags attached to a note, sorted.
func (s *Store) Tags(noteID string) ([]string, error) {
	rows, err := s.mgr.QueryStrings(
		`SELECT tag FROM note_tags WHERE note_id = ? AND deleted_at = 0 ORDER BY tag`,
		noteID)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	tags := make([]string, 0, len(rows))
	for _, row := range rows {
		if len(row) == 1 && row[0].Valid {
			tags = append(tags, row[0].String)
		}
	}
	return tags, nil
}

func parseMillis(s string) int64 {
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}
