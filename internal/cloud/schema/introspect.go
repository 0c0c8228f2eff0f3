package schema

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
)

// Introspect builds a provider by reading column metadata from the
// local database catalog for each requested table.
func Introspect(conn *sql.DB, tables ...string) (*Static, error) {
	return IntrospectContext(context.Background(), conn, tables...)
}

// IntrospectContext builds a provider with context support.
//
// For each table, PRAGMA table_info supplies column name, declared
// type, and primary-key ordinal. Columns with a nonzero ordinal form
// the primary key, sorted by ordinal so composite-key order survives.
// When no column is marked as primary key but a column named "id"
// exists, it is used as a single-column fallback key.
func IntrospectContext(ctx context.Context, conn *sql.DB, tables ...string) (*Static, error) {
	decls := make([]Table, 0, len(tables))
	for _, table := range tables {
		decl, err := introspectTable(ctx, conn, table)
		if err != nil {
			return nil, err
		}
		decls = append(decls, decl)
	}
	return NewStatic(decls...)
}

func introspectTable(ctx context.Context, conn *sql.DB, table string) (Table, error) {
	// PRAGMA arguments cannot be bound as parameters.
	rows, err := conn.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%q)", table))
	if err != nil {
		return Table{}, fmt.Errorf("introspect table %s: %w", table, err)
	}
	defer rows.Close()

	type pkColumn struct {
		name    string
		ordinal int
	}

	decl := Table{Name: table, Types: make(map[string]string)}
	var pks []pkColumn

	for rows.Next() {
		var (
			cid      int
			name     string
			colType  string
			notNull  int
			dflt     sql.NullString
			pkSerial int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pkSerial); err != nil {
			return Table{}, fmt.Errorf("scan column metadata for %s: %w", table, err)
		}
		decl.Columns = append(decl.Columns, name)
		decl.Types[name] = colType
		if pkSerial > 0 {
			pks = append(pks, pkColumn{name: name, ordinal: pkSerial})
		}
	}
	if err := rows.Err(); err != nil {
		return Table{}, fmt.Errorf("iterate column metadata for %s: %w", table, err)
	}
	if len(decl.Columns) == 0 {
		return Table{}, fmt.Errorf("table %s not found in local database", table)
	}

	sort.Slice(pks, func(i, j int) bool { return pks[i].ordinal < pks[j].ordinal })
	for _, pk := range pks {
		decl.PrimaryKeys = append(decl.PrimaryKeys, pk.name)
	}
	if len(decl.PrimaryKeys) == 0 && decl.HasColumn("id") {
		decl.PrimaryKeys = []string{"id"}
	}

	return decl, nil
}
