package schema

import (
	"os"
	"path/filepath"
	"testing"
)

func notesTable() Table {
	return Table{
		Name:        "notes",
		Columns:     []string{"id", "body", "updated_at"},
		PrimaryKeys: []string{"id"},
		Types:       map[string]string{"id": "TEXT", "body": "TEXT", "updated_at": "INTEGER"},
	}
}

func TestStaticProvider(t *testing.T) {
	s, err := NewStatic(notesTable())
	if err != nil {
		t.Fatalf("NewStatic() failed: %v", err)
	}

	if got := s.Tables(); len(got) != 1 || got[0] != "notes" {
		t.Errorf("Tables() = %v", got)
	}
	if got := s.Columns("notes"); len(got) != 3 || got[0] != "id" {
		t.Errorf("Columns() = %v", got)
	}
	if got := s.PrimaryKeys("notes"); len(got) != 1 || got[0] != "id" {
		t.Errorf("PrimaryKeys() = %v", got)
	}
	typ, ok := s.ColumnType("notes", "updated_at")
	if !ok || typ != "INTEGER" {
		t.Errorf("ColumnType() = %q, %v", typ, ok)
	}
	if _, ok := s.ColumnType("notes", "missing"); ok {
		t.Error("ColumnType() reported a type for an unknown column")
	}
	if got := s.Columns("unknown"); got != nil {
		t.Errorf("Columns(unknown) = %v, want nil", got)
	}
}

func TestTableValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Table)
		wantErr bool
	}{
		{"valid", func(*Table) {}, false},
		{"missing name", func(tb *Table) { tb.Name = "" }, true},
		{"no columns", func(tb *Table) { tb.Columns = nil }, true},
		{"duplicate column", func(tb *Table) { tb.Columns = append(tb.Columns, "id") }, true},
		{"no primary key", func(tb *Table) { tb.PrimaryKeys = nil }, true},
		{"pk not a column", func(tb *Table) { tb.PrimaryKeys = []string{"nope"} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tb := notesTable()
			tt.mutate(&tb)
			err := tb.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadStatic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.yaml")
	doc := `tables:
  - name: notes
    columns: [id, body, updated_at]
    primary_keys: [id]
    types:
      updated_at: INTEGER
  - name: note_tags
    columns: [note_id, tag, updated_at]
    primary_keys: [note_id, tag]
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write schema file: %v", err)
	}

	s, err := LoadStatic(path)
	if err != nil {
		t.Fatalf("LoadStatic() failed: %v", err)
	}
	if got := s.Tables(); len(got) != 2 || got[1] != "note_tags" {
		t.Errorf("Tables() = %v", got)
	}
	if got := s.PrimaryKeys("note_tags"); len(got) != 2 || got[0] != "note_id" || got[1] != "tag" {
		t.Errorf("composite PrimaryKeys() = %v", got)
	}
	typ, ok := s.ColumnType("notes", "updated_at")
	if !ok || typ != "INTEGER" {
		t.Errorf("ColumnType() = %q, %v", typ, ok)
	}
}

func TestLoadStatic_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.yaml")
	if err := os.WriteFile(path, []byte("tables: []\n"), 0o644); err != nil {
		t.Fatalf("write schema file: %v", err)
	}
	if _, err := LoadStatic(path); err == nil {
		t.Fatal("LoadStatic() accepted an empty declaration")
	}
	if _, err := LoadStatic(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("LoadStatic() accepted a missing file")
	}
}
