// Package bootstrap opens the local database and, when cloud
// credentials are present, binds it to the remote as an embedded
// replica.
//
// Cloud failures degrade to local-only mode instead of preventing
// startup: the application must stay usable offline, so everything
// short of a migration failure falls back with a log entry. The one
// recovery path is a local replica whose replication lineage no longer
// matches the remote's; that file is quarantined and the replica is
// rebuilt exactly once.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	libsql "github.com/tursodatabase/go-libsql"

	"github.com/skiffdb/skiff/internal/cloud/db"
	"github.com/skiffdb/skiff/internal/cloud/remote"
)

const (
	// QuarantineSuffix marks a replica file set aside for rebuild.
	// Any prior quarantine at that name is deleted first.
	QuarantineSuffix = ".quarantine"

	walSuffix     = "-wal"
	shmSuffix     = "-shm"
	metaDirSuffix = "-metadata"

	validateTimeout = 10 * time.Second
)

// MigrateFunc runs the caller's schema migrations on the freshly
// opened connection. It runs in every mode, cloud or local.
type MigrateFunc func(conn *sql.DB) error

// generationSignatures are substrings of replica errors that indicate
// the local file's replication lineage diverged from the remote and a
// rebuild is required rather than an incremental resync.
var generationSignatures = []string{
	"generation",
	"wal index",
	"replica is out of sync",
}

// Seams for tests: building a replica needs a reachable remote, and
// validation needs accepted credentials.
var (
	buildReplica   = libsqlReplica
	validateRemote = func(url, token string) error {
		ctx, cancel := context.WithTimeout(context.Background(), validateTimeout)
		defer cancel()
		return remote.New().Validate(ctx, url, token)
	}
)

// Open opens or creates the database at path and runs migrations.
// See OpenWithLogger for the full decision sequence.
func Open(path string, migrate MigrateFunc) (*db.Manager, error) {
	return OpenWithLogger(path, migrate, nil)
}

// OpenWithLogger opens the database, choosing cloud or local mode:
//
//  1. Without a usable sidecar config, open a purely local database.
//  2. With one, validate the remote and token; on failure fall back to
//     local-only (log only).
//  3. Build an embedded replica bound to the remote and force one
//     immediate sync.
//  4. On a generation-conflict failure, quarantine the local file and
//     retry once.
//  5. On any other failure, or a failed retry, fall back to local-only.
//  6. In every mode, enable foreign keys and run migrations.
func OpenWithLogger(path string, migrate MigrateFunc, logger *log.Logger) (*db.Manager, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[bootstrap] ", log.LstdFlags)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		logger.Printf("sync config unreadable, continuing local-only: %v", err)
		cfg = nil
	}
	if !cfg.Enabled() {
		return finishLocal(path, migrate)
	}

	if err := validateRemote(cfg.URL, cfg.Token); err != nil {
		logger.Printf("cloud validation failed, falling back to local-only: %v", err)
		return finishLocal(path, migrate)
	}

	mgr, err := openReplica(path, cfg)
	if err != nil && isGenerationConflict(err) {
		logger.Printf("local replica conflicts with remote generation, quarantining: %v", err)
		if qerr := Quarantine(path); qerr != nil {
			logger.Printf("quarantine failed, falling back to local-only: %v", qerr)
			return finishLocal(path, migrate)
		}
		mgr, err = openReplica(path, cfg)
	}
	if err != nil {
		logger.Printf("replica unavailable, falling back to local-only: %v", err)
		return finishLocal(path, migrate)
	}

	logger.Printf("cloud sync active: %s", cfg.URL)
	return finish(mgr, migrate)
}

// OpenAsync publishes a placeholder Manager immediately and completes
// bootstrap in the background, transferring state into the placeholder
// when done. done, if non-nil, receives the bootstrap outcome.
func OpenAsync(path string, migrate MigrateFunc, logger *log.Logger, done func(error)) *db.Manager {
	placeholder := db.NewPlaceholder(path)
	go func() {
		mgr, err := OpenWithLogger(path, migrate, logger)
		if err == nil {
			placeholder.Adopt(mgr)
		}
		if done != nil {
			done(err)
		}
	}()
	return placeholder
}

// Quarantine sets the replica file aside for a clean rebuild: the
// prior quarantine backup is removed, the database file is renamed to
// the quarantine suffix, and its WAL/SHM side files and replication
// metadata directory are deleted.
func Quarantine(path string) error {
	backup := path + QuarantineSuffix
	if err := os.Remove(backup); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove prior quarantine: %w", err)
	}
	if err := os.Rename(path, backup); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("quarantine database file: %w", err)
	}
	for _, side := range []string{path + walSuffix, path + shmSuffix} {
		if err := os.Remove(side); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove side file %s: %w", side, err)
		}
	}
	if err := os.RemoveAll(path + metaDirSuffix); err != nil {
		return fmt.Errorf("remove replica metadata: %w", err)
	}
	return nil
}

func isGenerationConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range generationSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}

// libsqlReplica builds an embedded replica connection bound to the
// remote. The returned sync function is the replica's own sync
// primitive, surfaced through Manager.TriggerSync.
func libsqlReplica(path, url, token string) (*sql.DB, func() error, io.Closer, error) {
	connector, err := libsql.NewEmbeddedReplicaConnector(path, url, libsql.WithAuthToken(token))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create embedded replica: %w", err)
	}
	conn := sql.OpenDB(connector)
	syncFn := func() error {
		_, err := connector.Sync()
		return err
	}
	return conn, syncFn, connector, nil
}

func openReplica(path string, cfg *SyncConfig) (*db.Manager, error) {
	conn, syncFn, closer, err := buildReplica(path, cfg.URL, cfg.Token)
	if err != nil {
		return nil, err
	}
	// Force one immediate full sync so the local copy starts current.
	if err := syncFn(); err != nil {
		_ = conn.Close()
		if closer != nil {
			_ = closer.Close()
		}
		return nil, fmt.Errorf("initial replica sync: %w", err)
	}
	if closer != nil {
		return db.NewCloud(conn, path, cfg.URL, syncFn, closer), nil
	}
	return db.NewCloud(conn, path, cfg.URL, syncFn), nil
}

func finishLocal(path string, migrate MigrateFunc) (*db.Manager, error) {
	mgr, err := db.OpenLocal(path)
	if err != nil {
		return nil, err
	}
	return finish(mgr, migrate)
}

// finish enables foreign keys and runs migrations on the opened
// database, regardless of mode.
func finish(mgr *db.Manager, migrate MigrateFunc) (*db.Manager, error) {
	conn, err := mgr.Conn()
	if err != nil {
		return nil, err
	}
	if _, err := conn.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = mgr.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if migrate != nil {
		if err := migrate(conn); err != nil {
			_ = mgr.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}
	return mgr, nil
}
