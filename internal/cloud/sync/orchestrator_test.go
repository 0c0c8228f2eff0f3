package sync

import (
	"context"
	"strings"
	"testing"

	"github.com/skiffdb/skiff/internal/cloud/schema"
)

func TestSyncAll_MultipleTables(t *testing.T) {
	const tagsDDL = `CREATE TABLE note_tags (
		note_id TEXT,
		tag TEXT,
		updated_at INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (note_id, tag)
	)`
	provider, err := schema.NewStatic(
		schema.Table{
			Name:        "notes",
			Columns:     []string{"id", "text", "updated_at"},
			PrimaryKeys: []string{"id"},
			Types:       map[string]string{"updated_at": "INTEGER"},
		},
		schema.Table{
			Name:        "note_tags",
			Columns:     []string{"note_id", "tag", "updated_at"},
			PrimaryKeys: []string{"note_id", "tag"},
			Types:       map[string]string{"updated_at": "INTEGER"},
		},
		// No updated_at column: must be skipped, not failed.
		schema.Table{
			Name:        "settings",
			Columns:     []string{"key", "value"},
			PrimaryKeys: []string{"key"},
		},
	)
	if err != nil {
		t.Fatal(err)
	}

	f := newFakeRemote(t)
	f.mustExec(t, notesDDL)
	f.mustExec(t, tagsDDL)
	s, store := newTestSyncer(t, f, provider)
	mustExecLocal(t, store, notesDDL)
	mustExecLocal(t, store, tagsDDL)
	mustExecLocal(t, store,
		`INSERT INTO notes (id, text, updated_at) VALUES ('1', 'a', 1000)`)
	mustExecLocal(t, store,
		`INSERT INTO note_tags (note_id, tag, updated_at) VALUES ('1', 'todo', 1000)`)

	results, err := s.SyncAll(context.Background())
	if err != nil {
		t.Fatalf("SyncAll() failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2 (settings skipped)", len(results))
	}
	// Results come back sorted by table name.
	if results[0].Table != "note_tags" || results[1].Table != "notes" {
		t.Errorf("result order: %s, %s", results[0].Table, results[1].Table)
	}
	for _, r := range results {
		if r.Pushed != 1 {
			t.Errorf("table %s: Pushed = %d, want 1", r.Table, r.Pushed)
		}
	}
}

func TestSyncAll_AggregatesFailures(t *testing.T) {
	provider, err := schema.NewStatic(
		schema.Table{
			Name:        "notes",
			Columns:     []string{"id", "text", "updated_at"},
			PrimaryKeys: []string{"id"},
			Types:       map[string]string{"updated_at": "INTEGER"},
		},
		schema.Table{
			Name:        "missing_remote",
			Columns:     []string{"id", "updated_at"},
			PrimaryKeys: []string{"id"},
			Types:       map[string]string{"updated_at": "INTEGER"},
		},
	)
	if err != nil {
		t.Fatal(err)
	}

	f := newFakeRemote(t)
	f.mustExec(t, notesDDL)
	s, store := newTestSyncer(t, f, provider)
	mustExecLocal(t, store, notesDDL)
	mustExecLocal(t, store,
		`CREATE TABLE missing_remote (id TEXT PRIMARY KEY, updated_at INTEGER NOT NULL DEFAULT 0)`)
	mustExecLocal(t, store,
		`INSERT INTO notes (id, text, updated_at) VALUES ('1', 'a', 1000)`)

	results, err := s.SyncAll(context.Background())
	if err == nil {
		t.Fatal("SyncAll() succeeded despite a missing remote table")
	}
	if !strings.Contains(err.Error(), "missing_remote") {
		t.Errorf("aggregate error does not name the failed table: %v", err)
	}
	if strings.Contains(err.Error(), "notes:") {
		t.Errorf("healthy table reported as failed: %v", err)
	}
	// The healthy sibling still completed.
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if n := f.count(t, `SELECT COUNT(*) FROM notes`); n != 1 {
		t.Error("healthy table did not sync alongside the failing one")
	}
}

func TestEnsureRemoteSchema_AddsDeclaredColumns(t *testing.T) {
	provider, err := schema.NewStatic(schema.Table{
		Name:        "notes",
		Columns:     []string{"id", "text", "created_at", "updated_at", "deleted_at"},
		PrimaryKeys: []string{"id"},
		Types: map[string]string{
			"created_at": "DATETIME",
			"updated_at": "INTEGER",
			"deleted_at": "INTEGER",
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	f := newFakeRemote(t)
	f.mustExec(t, `CREATE TABLE notes (id TEXT PRIMARY KEY, text TEXT, updated_at INTEGER NOT NULL DEFAULT 0)`)
	s, _ := newTestSyncer(t, f, provider)

	s.EnsureRemoteSchema(context.Background())

	for _, col := range []string{"created_at", "deleted_at"} {
		n := f.count(t,
			`SELECT COUNT(*) FROM pragma_table_info('notes') WHERE name = ?`, col)
		if n != 1 {
			t.Errorf("column %s not added remotely", col)
		}
	}
	// The declared type string carries through to the ALTER.
	if n := f.count(t,
		`SELECT COUNT(*) FROM pragma_table_info('notes') WHERE name = 'created_at' AND type = 'DATETIME'`); n != 1 {
		t.Error("created_at was not added with its declared DATETIME type")
	}

	// Second run hits duplicate-column errors, which are discarded.
	s.EnsureRemoteSchema(context.Background())
	if n := f.count(t, `SELECT COUNT(*) FROM pragma_table_info('notes')`); n != 5 {
		t.Errorf("remote notes has %d columns, want 5", n)
	}
}

func TestEnsureRemoteSchema_SkipsUndeclaredColumns(t *testing.T) {
	// notesProvider declares only id, text and updated_at: the other
	// bookkeeping columns must not sprout remotely.
	f := newFakeRemote(t)
	f.mustExec(t, `CREATE TABLE notes (id TEXT PRIMARY KEY, text TEXT, updated_at INTEGER NOT NULL DEFAULT 0)`)
	s, _ := newTestSyncer(t, f, notesProvider(t))

	s.EnsureRemoteSchema(context.Background())

	for _, col := range []string{"created_at", "deleted_at"} {
		n := f.count(t,
			`SELECT COUNT(*) FROM pragma_table_info('notes') WHERE name = ?`, col)
		if n != 0 {
			t.Errorf("column %s was added remotely although the local schema does not declare it", col)
		}
	}
	if n := f.count(t, `SELECT COUNT(*) FROM pragma_table_info('notes')`); n != 3 {
		t.Errorf("remote notes has %d columns, want 3", n)
	}
}
