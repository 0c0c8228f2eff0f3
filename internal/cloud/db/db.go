// Package db owns the local database handle shared by the application
// and the sync engine.
//
// The Manager wraps one embedded SQLite connection. In local-only mode
// the database is a plain file opened through the sqlite3 driver; in
// cloud mode bootstrap hands the Manager a connection bound to the
// remote as an embedded replica, together with the replica's own sync
// primitive.
//
// Every discrete local read or write goes through the Manager's
// exclusive lock. Concurrent table sync tasks therefore serialize on
// local access while their network calls overlap.
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// ErrNotInitialized reports a Manager whose database has not been
// opened yet.
var ErrNotInitialized = errors.New("database not initialized")

// ErrLocalOnly reports a replica operation on a local-only Manager.
var ErrLocalOnly = errors.New("cloud sync not enabled")

// Manager holds the local database connection and, in cloud mode, the
// replica sync handle. Construct it once at startup (via bootstrap)
// and thread it through every operation that touches the database.
type Manager struct {
	mu          sync.Mutex
	conn        *sql.DB
	path        string
	cloudURL    string
	replicaSync func() error
	closers     []io.Closer
}

// NewPlaceholder returns a Manager with no open database. Every
// operation fails with ErrNotInitialized until Adopt transfers state
// from a completed bootstrap. This lets the application publish its
// shared Manager before an asynchronous bootstrap finishes.
func NewPlaceholder(path string) *Manager {
	return &Manager{path: path}
}

// NewCloud wraps a replica-backed connection. syncFn is the replica's
// own sync primitive; closers are released on Close after the
// connection itself.
func NewCloud(conn *sql.DB, path, url string, syncFn func() error, closers ...io.Closer) *Manager {
	return &Manager{
		conn:        conn,
		path:        path,
		cloudURL:    url,
		replicaSync: syncFn,
		closers:     closers,
	}
}

// OpenLocal opens (or creates) a purely local database at path.
//
// The parent directory is created if needed. WAL journaling, a busy
// timeout, and foreign-key enforcement are enabled on the new
// connection. An unreadable database reports integrity diagnostics in
// the returned error instead of a bare driver message.
func OpenLocal(path string) (*Manager, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, openDiagnostics(path, err)
	}

	// The sync engine assumes one exclusive local handle.
	conn.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			diag := integrityDiagnostics(path, conn)
			_ = conn.Close()
			return nil, fmt.Errorf("configure database: %w (%s)", err, diag)
		}
	}

	return &Manager{conn: conn, path: path}, nil
}

// Conn returns the underlying connection for callers that manage their
// own statements (bootstrap migrations, introspection).
func (m *Manager) Conn() (*sql.DB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return nil, ErrNotInitialized
	}
	return m.conn, nil
}

// Path returns the local database file path.
func (m *Manager) Path() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.path
}

// CloudSyncEnabled reports whether the Manager operates in cloud mode.
func (m *Manager) CloudSyncEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cloudURL != ""
}

// SyncURL returns the cloud endpoint URL, or "" in local-only mode.
func (m *Manager) SyncURL() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cloudURL
}

// TriggerSync invokes the replica's own sync primitive. This is the
// frame-level replication sync, distinct from the application-level
// table sync cycle.
func (m *Manager) TriggerSync() error {
	m.mu.Lock()
	syncFn := m.replicaSync
	conn := m.conn
	m.mu.Unlock()

	if conn == nil {
		return ErrNotInitialized
	}
	if syncFn == nil {
		return ErrLocalOnly
	}
	if err := syncFn(); err != nil {
		return fmt.Errorf("replica sync: %w", err)
	}
	return nil
}

// Adopt transfers the open database state from src into m, releasing
// any connection m already held. src is left empty. This is the
// state-transfer step for bootstraps that complete after a placeholder
// Manager was already published.
func (m *Manager) Adopt(src *Manager) {
	src.mu.Lock()
	conn, path, url := src.conn, src.path, src.cloudURL
	syncFn, closers := src.replicaSync, src.closers
	src.conn, src.replicaSync, src.closers = nil, nil, nil
	src.cloudURL = ""
	src.mu.Unlock()

	m.mu.Lock()
	old, oldClosers := m.conn, m.closers
	m.conn, m.path, m.cloudURL = conn, path, url
	m.replicaSync, m.closers = syncFn, closers
	m.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	for _, c := range oldClosers {
		_ = c.Close()
	}
}

// Close releases the connection and any replica handles. Safe to call
// more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	conn, closers := m.conn, m.closers
	m.conn, m.replicaSync, m.closers = nil, nil, nil
	m.mu.Unlock()

	var firstErr error
	if conn != nil {
		if err := conn.Close(); err != nil {
			firstErr = fmt.Errorf("close database: %w", err)
		}
	}
	for _, c := range closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close replica handle: %w", err)
		}
	}
	return firstErr
}

// Execute runs one write statement under the exclusive local lock.
func (m *Manager) Execute(query string, args ...any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return ErrNotInitialized
	}
	if _, err := m.conn.Exec(query, args...); err != nil {
		return fmt.Errorf("execute statement: %w", err)
	}
	return nil
}

// QueryStrings runs one read statement under the exclusive local lock
// and returns every row as nullable strings, positionally aligned with
// the result columns. Native values are rendered as text so the local
// and remote row representations stay uniform.
func (m *Manager) QueryStrings(query string, args ...any) ([][]sql.NullString, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return nil, ErrNotInitialized
	}

	rows, err := m.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()
	return scanStringRows(rows)
}

// WithTx runs fn inside one local transaction, holding the exclusive
// lock for the duration. The transaction is rolled back when fn
// returns an error.
func (m *Manager) WithTx(fn func(tx *sql.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return ErrNotInitialized
	}

	tx, err := m.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// IntegrityCheck runs PRAGMA integrity_check and returns its verdict.
func (m *Manager) IntegrityCheck() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return "", ErrNotInitialized
	}
	var verdict string
	if err := m.conn.QueryRow("PRAGMA integrity_check").Scan(&verdict); err != nil {
		return "", fmt.Errorf("integrity check: %w", err)
	}
	return verdict, nil
}

// scanStringRows converts a dynamic result set into nullable strings.
func scanStringRows(rows *sql.Rows) ([][]sql.NullString, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	var out [][]sql.NullString
	for rows.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		row := make([]sql.NullString, len(cols))
		for i, v := range raw {
			row[i] = stringifyValue(v)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// stringifyValue renders one driver value as a nullable string.
func stringifyValue(v any) sql.NullString {
	switch val := v.(type) {
	case nil:
		return sql.NullString{}
	case string:
		return sql.NullString{String: val, Valid: true}
	case []byte:
		return sql.NullString{String: string(val), Valid: true}
	case int64:
		return sql.NullString{String: strconv.FormatInt(val, 10), Valid: true}
	case float64:
		return sql.NullString{String: strconv.FormatFloat(val, 'g', -1, 64), Valid: true}
	case bool:
		return sql.NullString{String: strconv.FormatBool(val), Valid: true}
	case time.Time:
		return sql.NullString{String: val.Format("2006-01-02 15:04:05"), Valid: true}
	default:
		return sql.NullString{String: fmt.Sprint(val), Valid: true}
	}
}

// openDiagnostics enriches an open failure with file-level detail.
func openDiagnostics(path string, cause error) error {
	info, statErr := os.Stat(path)
	if statErr != nil {
		return fmt.Errorf("open database: %w (file inaccessible: %v)", cause, statErr)
	}
	return fmt.Errorf("open database: %w (file size %d bytes, image may be malformed)", cause, info.Size())
}

// integrityDiagnostics reports integrity state for error messages when
// a freshly opened database misbehaves.
func integrityDiagnostics(path string, conn *sql.DB) string {
	size := int64(-1)
	if info, err := os.Stat(path); err == nil {
		size = info.Size()
	}
	if size == 0 {
		return "file is empty"
	}
	var verdict string
	if err := conn.QueryRow("PRAGMA integrity_check").Scan(&verdict); err != nil {
		return fmt.Sprintf("file size %d bytes, integrity check unavailable: %v", size, err)
	}
	return fmt.Sprintf("file size %d bytes, integrity check: %s", size, verdict)
}
