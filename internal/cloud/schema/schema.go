// Package schema describes the tables that participate in cloud sync.
//
// The sync engine consumes schema information through the small
// Provider capability set. Two implementations exist: Static, declared
// by the embedding application (in code or loaded from a YAML file),
// and the runtime introspector in introspect.go, which reads column
// metadata out of the local database catalog.
package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// UpdatedAtColumn is the bookkeeping column every syncable table must
// declare. Tables without it are excluded from sync.
const UpdatedAtColumn = "updated_at"

// Provider supplies per-table column metadata to the sync engine.
type Provider interface {
	// Tables returns the names of the tables configured for sync.
	Tables() []string

	// Columns returns the ordered column names for a table, or nil if
	// the table is unknown.
	Columns(table string) []string

	// PrimaryKeys returns the ordered primary-key column names for a
	// table. Order matters for composite keys.
	PrimaryKeys(table string) []string

	// ColumnType returns the declared SQL type of a column, if known.
	ColumnType(table, column string) (string, bool)
}

// SyncableTables filters a provider's tables down to those carrying
// the updated_at bookkeeping column.
func SyncableTables(p Provider) []string {
	var out []string
	for _, table := range p.Tables() {
		for _, col := range p.Columns(table) {
			if col == UpdatedAtColumn {
				out = append(out, table)
				break
			}
		}
	}
	return out
}

// Table declares one table for the static provider.
type Table struct {
	Name        string            `yaml:"name"`
	Columns     []string          `yaml:"columns"`
	PrimaryKeys []string          `yaml:"primary_keys"`
	Types       map[string]string `yaml:"types,omitempty"`
}

// Validate checks the declaration for internal consistency.
func (t Table) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("table declaration missing name")
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("table %s declares no columns", t.Name)
	}
	seen := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		if seen[c] {
			return fmt.Errorf("table %s declares column %s twice", t.Name, c)
		}
		seen[c] = true
	}
	if len(t.PrimaryKeys) == 0 {
		return fmt.Errorf("table %s declares no primary key", t.Name)
	}
	for _, pk := range t.PrimaryKeys {
		if !seen[pk] {
			return fmt.Errorf("table %s primary key %s is not a declared column", t.Name, pk)
		}
	}
	return nil
}

// HasColumn reports whether the declaration contains the named column.
func (t Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Static is a Provider backed by literal table declarations.
type Static struct {
	order  []string
	tables map[string]Table
}

// NewStatic builds a static provider from table declarations.
func NewStatic(tables ...Table) (*Static, error) {
	s := &Static{tables: make(map[string]Table, len(tables))}
	for _, t := range tables {
		if err := t.Validate(); err != nil {
			return nil, err
		}
		if _, dup := s.tables[t.Name]; dup {
			return nil, fmt.Errorf("table %s declared twice", t.Name)
		}
		s.order = append(s.order, t.Name)
		s.tables[t.Name] = t
	}
	return s, nil
}

// LoadStatic reads table declarations from a YAML file of the form:
//
//	tables:
//	  - name: notes
//	    columns: [id, body, updated_at]
//	    primary_keys: [id]
//	    types:
//	      updated_at: INTEGER
func LoadStatic(path string) (*Static, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema file: %w", err)
	}
	var doc struct {
		Tables []Table `yaml:"tables"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse schema file %s: %w", path, err)
	}
	if len(doc.Tables) == 0 {
		return nil, fmt.Errorf("schema file %s declares no tables", path)
	}
	return NewStatic(doc.Tables...)
}

// Tables implements Provider.
func (s *Static) Tables() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Columns implements Provider.
func (s *Static) Columns(table string) []string {
	t, ok := s.tables[table]
	if !ok {
		return nil
	}
	out := make([]string, len(t.Columns))
	copy(out, t.Columns)
	return out
}

// PrimaryKeys implements Provider.
func (s *Static) PrimaryKeys(table string) []string {
	t, ok := s.tables[table]
	if !ok {
		return nil
	}
	out := make([]string, len(t.PrimaryKeys))
	copy(out, t.PrimaryKeys)
	return out
}

// ColumnType implements Provider.
func (s *Static) ColumnType(table, column string) (string, bool) {
	t, ok := s.tables[table]
	if !ok {
		return "", false
	}
	typ, ok := t.Types[column]
	return typ, ok
}
