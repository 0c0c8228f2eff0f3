// Package daemon runs timer-triggered sync cycles in the background.
//
// The daemon:
// 1. Runs one sync cycle immediately on startup
// 2. Schedules recurring cycles on a cron expression
// 3. Watches the sync sidecar config and re-syncs when it changes
// 4. Handles graceful shutdown
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"

	tablesync "github.com/skiffdb/skiff/internal/cloud/sync"
)

// CycleFunc runs one full sync cycle and reports per-table outcomes.
type CycleFunc func(ctx context.Context) ([]tablesync.Result, error)

// Config holds configuration for the daemon.
type Config struct {
	// Schedule is a cron expression for recurring cycles, e.g.
	// "@every 5m" or "*/10 * * * *".
	Schedule string

	// Logger for daemon activity
	Logger *log.Logger

	// OnCycle, if set, receives the outcome of every cycle. Used to
	// feed the dashboard broadcaster.
	OnCycle func(results []tablesync.Result, err error)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Schedule: "@every 5m",
		Logger:   log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon schedules sync cycles and reacts to sidecar config changes.
type Daemon struct {
	run        CycleFunc
	configPath string
	config     *Config

	cron    *cron.Cron
	watcher *fsnotify.Watcher

	// cycleMu is try-locked so an overlapping trigger skips instead of
	// queueing behind a slow cycle.
	cycleMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a daemon that invokes run on the configured schedule and
// whenever the sidecar config at configPath changes.
func New(run CycleFunc, configPath string, config *Config) (*Daemon, error) {
	if run == nil {
		return nil, fmt.Errorf("run cannot be nil")
	}
	if configPath == "" {
		return nil, fmt.Errorf("configPath cannot be empty")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Schedule == "" {
		config.Schedule = DefaultConfig().Schedule
	}
	if config.Logger == nil {
		config.Logger = DefaultConfig().Logger
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		run:        run,
		configPath: configPath,
		config:     config,
		cron:       cron.New(),
		watcher:    watcher,
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// Start begins the daemon's operation.
//
// The daemon will:
// 1. Run an immediate sync cycle
// 2. Schedule recurring cycles
// 3. Watch the sidecar config directory for changes
//
// This blocks until ctx is cancelled or an error occurs.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting sync daemon")

	d.runCycle()

	if _, err := d.cron.AddFunc(d.config.Schedule, d.runCycle); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", d.config.Schedule, err)
	}
	d.cron.Start()
	d.config.Logger.Printf("Scheduled sync cycles: %s", d.config.Schedule)

	// Watch the directory, not the file: editors and SaveConfig may
	// replace the sidecar rather than write it in place.
	if err := d.watcher.Add(filepath.Dir(d.configPath)); err != nil {
		return fmt.Errorf("failed to watch config directory: %w", err)
	}
	d.wg.Add(1)
	go d.watchConfig()

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon.
func (d *Daemon) Stop() error {
	d.config.Logger.Println("Stopping sync daemon")

	d.cancel()
	<-d.cron.Stop().Done()

	if err := d.watcher.Close(); err != nil {
		d.config.Logger.Printf("Error closing watcher: %v", err)
	}
	d.wg.Wait()

	d.config.Logger.Println("Sync daemon stopped")
	return nil
}

// runCycle executes one sync cycle unless one is already in flight.
func (d *Daemon) runCycle() {
	if !d.cycleMu.TryLock() {
		d.config.Logger.Println("Previous cycle still running, skipping")
		return
	}
	defer d.cycleMu.Unlock()

	start := time.Now()
	results, err := d.run(d.ctx)
	if err != nil {
		d.config.Logger.Printf("Sync cycle failed: %v", err)
	} else {
		var pushed, pulled int
		for _, r := range results {
			pushed += r.Pushed
			pulled += r.Pulled
		}
		d.config.Logger.Printf("Sync cycle complete in %v: %d tables, %d pushed, %d pulled",
			time.Since(start).Round(time.Millisecond), len(results), pushed, pulled)
	}

	if d.config.OnCycle != nil {
		d.config.OnCycle(results, err)
	}
}

// watchConfig triggers a cycle whenever the sidecar config is written
// or replaced, so credential changes take effect without a restart.
func (d *Daemon) watchConfig() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if event.Name != d.configPath {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			d.config.Logger.Printf("Sync config changed: %s", event.Op)
			d.runCycle()

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}
