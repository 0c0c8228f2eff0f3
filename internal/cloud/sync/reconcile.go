package sync

import (
	"context"
	"fmt"

	"github.com/skiffdb/skiff/internal/cloud/schema"
)

// bookkeepingColumns are added to every remote table when missing so
// both sides agree on the sync metadata columns.
var bookkeepingColumns = []string{"updated_at", "created_at", "deleted_at"}

// EnsureRemoteSchema issues best-effort ALTER TABLE statements adding
// the bookkeeping columns to every syncable remote table, one
// goroutine per (table, column) pair. Only columns the local schema
// declares are mirrored; the remote rejects the ALTER when a column
// already exists, so per-statement errors are discarded.
func (s *Syncer) EnsureRemoteSchema(ctx context.Context) {
	type unit struct{ table, column, colType string }
	var units []unit
	for _, table := range schema.SyncableTables(s.provider) {
		for _, col := range bookkeepingColumns {
			colType, ok := s.provider.ColumnType(table, col)
			if !ok || colType == "" {
				continue
			}
			units = append(units, unit{table, col, colType})
		}
	}

	done := make(chan struct{})
	for _, u := range units {
		go func(table, column, colType string) {
			defer func() { done <- struct{}{} }()
			stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s",
				table, column, columnDef(colType))
			_ = s.remote.ExecuteBatch(ctx, s.url, s.token, []string{stmt})
		}(u.table, u.column, u.colType)
	}
	for range units {
		<-done
	}
}

// columnDef keeps the locally declared type in the added column and
// pairs it with the matching zero default.
func columnDef(colType string) string {
	if integerType(colType) {
		return colType + " DEFAULT 0"
	}
	return colType + " DEFAULT '1970-01-01T00:00:00'"
}
