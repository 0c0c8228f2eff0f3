// Package sync implements the application-level table sync engine:
// watermark-delta push and pull per table with last-writer-wins
// conflict resolution, the remote schema reconciler, and the
// orchestrator that fans cycles out across tables.
package sync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/skiffdb/skiff/internal/cloud/db"
	"github.com/skiffdb/skiff/internal/cloud/remote"
	"github.com/skiffdb/skiff/internal/cloud/schema"
)

// Syncer moves rows between the local database and a remote endpoint
// one table at a time. The local connection is serialized by the
// Manager's lock; remote calls are stateless HTTP batches.
type Syncer struct {
	store    *db.Manager
	remote   *remote.Executor
	provider schema.Provider
	url      string
	token    string
	logger   *log.Logger
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithLogger overrides the default stderr logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Syncer) { s.logger = l }
}

// WithExecutor overrides the remote statement executor.
func WithExecutor(e *remote.Executor) Option {
	return func(s *Syncer) { s.remote = e }
}

// New builds a Syncer for the given endpoint credentials.
func New(store *db.Manager, provider schema.Provider, url, token string, opts ...Option) *Syncer {
	s := &Syncer{
		store:    store,
		remote:   remote.New(),
		provider: provider,
		url:      url,
		token:    token,
		logger:   log.New(os.Stderr, "[sync] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Result reports what one table's cycle moved.
type Result struct {
	Table     string `json:"table"`
	Pushed    int    `json:"pushed"`
	Pulled    int    `json:"pulled"`
	Conflicts int    `json:"conflicts"`
	Skipped   int    `json:"skipped"`
}

// SyncTable runs one push/pull cycle for a single table and advances
// its watermark. The cycle boundary is captured before any rows are
// read so writes landing mid-cycle are picked up next time.
func (s *Syncer) SyncTable(ctx context.Context, table string) (Result, error) {
	res := Result{Table: table}

	cols := s.provider.Columns(table)
	if len(cols) == 0 {
		return res, fmt.Errorf("table %s: no column metadata", table)
	}
	pks := s.provider.PrimaryKeys(table)
	if len(pks) == 0 {
		return res, fmt.Errorf("table %s: no primary key metadata", table)
	}
	colType, ok := s.provider.ColumnType(table, schema.UpdatedAtColumn)
	if !ok || colType == "" {
		colType = "TEXT"
	}

	if err := ensureLedger(s.store); err != nil {
		return res, err
	}

	now := nowWatermark(colType)

	stored, err := lastSyncTime(s.store, table)
	if err != nil {
		return res, err
	}
	watermark := normalizeWatermark(stored, colType)

	if err := s.push(ctx, table, cols, pks, watermark, &res); err != nil {
		return res, fmt.Errorf("push %s: %w", table, err)
	}
	if err := s.pull(ctx, table, cols, pks, colType, watermark, &res); err != nil {
		return res, fmt.Errorf("pull %s: %w", table, err)
	}

	if err := recordCycle(s.store, table, now); err != nil {
		return res, err
	}
	return res, nil
}

// push uploads local rows modified since the watermark as one batch of
// guarded upserts. The remote arbitrates last-writer-wins through the
// updated_at condition on the conflict clause. The diff read is not
// isolated from concurrent local writers; rows written during the
// window sync on the next cycle.
func (s *Syncer) push(ctx context.Context, table string, cols, pks []string, watermark string, res *Result) error {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s > ?",
		strings.Join(cols, ", "), table, schema.UpdatedAtColumn)
	rows, err := s.store.QueryStrings(query, watermark)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	stmts := make([]string, 0, len(rows))
	for _, row := range rows {
		stmts = append(stmts, upsertStatement(table, cols, pks, row))
	}
	if err := s.remote.ExecuteBatch(ctx, s.url, s.token, stmts); err != nil {
		return err
	}
	res.Pushed = len(rows)
	return nil
}

// pull applies remote rows modified since the watermark inside one
// local transaction. A local row with a strictly newer updated_at
// wins; remote rows missing any primary-key value are skipped.
func (s *Syncer) pull(ctx context.Context, table string, cols, pks []string, colType, watermark string, res *Result) error {
	updatedIdx := indexOf(cols, schema.UpdatedAtColumn)
	if updatedIdx < 0 {
		return fmt.Errorf("table %s: no %s column", table, schema.UpdatedAtColumn)
	}
	pkIdx := make([]int, len(pks))
	for i, pk := range pks {
		pkIdx[i] = indexOf(cols, pk)
		if pkIdx[i] < 0 {
			return fmt.Errorf("table %s: primary key %s not in column set", table, pk)
		}
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s > %s",
		strings.Join(cols, ", "), table,
		schema.UpdatedAtColumn, watermarkLiteral(watermark, colType))
	remoteRows, err := s.remote.FetchRows(ctx, s.url, s.token, query)
	if err != nil {
		return err
	}
	if len(remoteRows) == 0 {
		return nil
	}

	replace := fmt.Sprintf("INSERT OR REPLACE INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), placeholders(len(cols)))
	lookup := fmt.Sprintf("SELECT %s FROM %s WHERE %s",
		schema.UpdatedAtColumn, table, pkPredicate(pks))

	return s.store.WithTx(func(tx *sql.Tx) error {
		for _, row := range remoteRows {
			if len(row) != len(cols) {
				res.Skipped++
				continue
			}
			keyArgs, ok := pkValues(row, pkIdx)
			if !ok {
				// a row without a complete key cannot be addressed
				res.Skipped++
				continue
			}
			var localUpdated sql.NullString
			err := tx.QueryRow(lookup, keyArgs...).Scan(&localUpdated)
			switch {
			case errors.Is(err, sql.ErrNoRows):
			case err != nil:
				return err
			case localWins(localUpdated, row[updatedIdx], colType):
				res.Conflicts++
				continue
			}
			if _, err := tx.Exec(replace, rowArgs(row)...); err != nil {
				return err
			}
			res.Pulled++
		}
		return nil
	})
}

// upsertStatement renders one guarded upsert. Values are embedded as
// SQL literals because the batch wire format carries bare statements;
// column affinity restores numeric types on the remote.
func upsertStatement(table string, cols, pks []string, row []sql.NullString) string {
	vals := make([]string, len(cols))
	for i := range cols {
		if i < len(row) {
			vals[i] = sqlLiteral(row[i])
		} else {
			vals[i] = "NULL"
		}
	}
	updates := make([]string, 0, len(cols))
	for _, col := range cols {
		if isPrimaryKey(col, pks) {
			continue
		}
		updates = append(updates, fmt.Sprintf("%s = excluded.%s", col, col))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), strings.Join(vals, ", "))
	if len(updates) == 0 {
		fmt.Fprintf(&b, " ON CONFLICT(%s) DO NOTHING", strings.Join(pks, ", "))
		return b.String()
	}
	fmt.Fprintf(&b, " ON CONFLICT(%s) DO UPDATE SET %s WHERE excluded.%s > %s.%s",
		strings.Join(pks, ", "), strings.Join(updates, ", "),
		schema.UpdatedAtColumn, table, schema.UpdatedAtColumn)
	return b.String()
}

func sqlLiteral(v sql.NullString) string {
	if !v.Valid {
		return "NULL"
	}
	return "'" + strings.ReplaceAll(v.String, "'", "''") + "'"
}

func isPrimaryKey(col string, pks []string) bool {
	for _, pk := range pks {
		if col == pk {
			return true
		}
	}
	return false
}

func indexOf(cols []string, name string) int {
	for i, c := range cols {
		if c == name {
			return i
		}
	}
	return -1
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func pkPredicate(pks []string) string {
	parts := make([]string, len(pks))
	for i, pk := range pks {
		parts[i] = pk + " = ?"
	}
	return strings.Join(parts, " AND ")
}

// pkValues extracts the primary-key values from a row, reporting false
// when any key column is NULL or empty.
func pkValues(row []sql.NullString, idx []int) ([]any, bool) {
	args := make([]any, len(idx))
	for i, j := range idx {
		if !row[j].Valid || strings.TrimSpace(row[j].String) == "" {
			return nil, false
		}
		args[i] = row[j].String
	}
	return args, true
}

func rowArgs(row []sql.NullString) []any {
	args := make([]any, len(row))
	for i, v := range row {
		if v.Valid {
			args[i] = v.String
		}
	}
	return args
}
