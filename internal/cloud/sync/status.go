package sync

import (
	"fmt"
	"strconv"

	"github.com/skiffdb/skiff/internal/cloud/db"
)

// The sync_status ledger lives in the local database and records, per
// table, the watermark reached by the most recent cycle, the direction
// rows moved, and a monotonically increasing cycle count.

const directionBoth = "both"

func ensureLedger(store *db.Manager) error {
	err := store.Execute(`CREATE TABLE IF NOT EXISTS sync_status (
		table_name TEXT PRIMARY KEY,
		last_sync_time TEXT NOT NULL,
		last_sync_direction TEXT NOT NULL DEFAULT 'both',
		sync_count INTEGER NOT NULL DEFAULT 0
	)`)
	if err != nil {
		return fmt.Errorf("create sync ledger: %w", err)
	}
	return nil
}

// lastSyncTime returns the stored watermark for a table, or the empty
// string when the table has never completed a cycle.
func lastSyncTime(store *db.Manager, table string) (string, error) {
	rows, err := store.QueryStrings(
		`SELECT last_sync_time FROM sync_status WHERE table_name = ?`, table)
	if err != nil {
		return "", fmt.Errorf("read sync ledger: %w", err)
	}
	if len(rows) == 0 || len(rows[0]) == 0 || !rows[0][0].Valid {
		return "", nil
	}
	return rows[0][0].String, nil
}

// recordCycle upserts the ledger row for a table, advancing the
// watermark and incrementing the cycle count (starting at 1).
func recordCycle(store *db.Manager, table, watermark string) error {
	err := store.Execute(`INSERT OR REPLACE INTO sync_status
		(table_name, last_sync_time, last_sync_direction, sync_count)
		VALUES (?, ?, ?, COALESCE((SELECT sync_count FROM sync_status WHERE table_name = ?), 0) + 1)`,
		table, watermark, directionBoth, table)
	if err != nil {
		return fmt.Errorf("record sync cycle: %w", err)
	}
	return nil
}

// TableStatus is one row of the sync_status ledger.
type TableStatus struct {
	Table        string
	LastSyncTime string
	Direction    string
	SyncCount    int64
}

// ReadStatus returns the ledger contents ordered by table name.
// Creates the ledger table if this runs before any cycle has.
func ReadStatus(store *db.Manager) ([]TableStatus, error) {
	if err := ensureLedger(store); err != nil {
		return nil, err
	}
	rows, err := store.QueryStrings(
		`SELECT table_name, last_sync_time, last_sync_direction, sync_count
		 FROM sync_status ORDER BY table_name`)
	if err != nil {
		return nil, fmt.Errorf("read sync ledger: %w", err)
	}
	out := make([]TableStatus, 0, len(rows))
	for _, row := range rows {
		if len(row) != 4 {
			continue
		}
		st := TableStatus{
			Table:        row[0].String,
			LastSyncTime: row[1].String,
			Direction:    row[2].String,
		}
		if row[3].Valid {
			st.SyncCount, _ = strconv.ParseInt(row[3].String, 10, 64)
		}
		out = append(out, st)
	}
	return out, nil
}
