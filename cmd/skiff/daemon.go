package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/skiffdb/skiff/internal/cloud/bootstrap"
	"github.com/skiffdb/skiff/internal/cloud/daemon"
	"github.com/skiffdb/skiff/internal/cloud/dashboard"
	"github.com/skiffdb/skiff/internal/cloud/db"
	tablesync "github.com/skiffdb/skiff/internal/cloud/sync"
	"github.com/skiffdb/skiff/internal/ui"
)

var (
	daemonSchedule      string
	daemonDashboardPort int
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run recurring sync cycles (foreground)",
	Long: `Run the sync daemon in the foreground.

The daemon:
  1. Runs one sync cycle immediately
  2. Repeats on the configured schedule
  3. Re-syncs when sync_config.json changes
  4. Optionally serves a WebSocket dashboard of cycle outcomes

Press Ctrl+C to stop.`,
	Run: func(cmd *cobra.Command, args []string) {
		mgr, err := openStore()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
			os.Exit(1)
		}
		defer mgr.Close()

		cfg, err := bootstrap.LoadConfig(dbPath())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading sync config: %v\n", err)
			os.Exit(1)
		}
		if !cfg.Enabled() {
			fmt.Fprintf(os.Stderr, "Error: cloud sync is not configured\n")
			fmt.Fprintf(os.Stderr, "Run 'skiff config set' first\n")
			os.Exit(1)
		}

		provider, err := buildProvider(mgr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading schema: %v\n", err)
			os.Exit(1)
		}
		syncer := tablesync.New(mgr, provider, cfg.URL, cfg.Token,
			tablesync.WithLogger(appLogger))

		dcfg := daemon.DefaultConfig()
		dcfg.Schedule = daemonSchedule
		dcfg.Logger = appLogger

		if daemonDashboardPort > 0 {
			dash := dashboard.NewServer(&dashboard.Config{
				Port:   daemonDashboardPort,
				Logger: appLogger,
			})
			if err := dash.Start(); err != nil {
				fmt.Fprintf(os.Stderr, "Error starting dashboard: %v\n", err)
				os.Exit(1)
			}
			defer dash.Stop()
			dcfg.OnCycle = dash.BroadcastCycle
			fmt.Printf("%s Dashboard: http://%s\n", ui.RenderAccent("📊"), dash.Addr())
		}

		cycle := func(ctx context.Context) ([]tablesync.Result, error) {
			// Refresh the embedded replica first so pulls see the
			// latest remote state.
			if err := mgr.TriggerSync(); err != nil && !errors.Is(err, db.ErrLocalOnly) {
				appLogger.Printf("replica sync failed: %v", err)
			}
			return syncer.SyncAll(ctx)
		}

		d, err := daemon.New(cycle, bootstrap.ConfigPath(dbPath()), dcfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating daemon: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Starting sync daemon (%s)...\n", ui.RenderAccent("🚀"), dcfg.Schedule)
		fmt.Printf("   Database: %s\n", dbPath())
		fmt.Printf("   Endpoint: %s\n", cfg.URL)
		fmt.Printf("\nPress Ctrl+C to stop\n\n")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := d.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Daemon stopped with error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	daemonCmd.Flags().StringVar(&daemonSchedule, "schedule", "@every 5m",
		"cron schedule for sync cycles")
	daemonCmd.Flags().IntVar(&daemonDashboardPort, "dashboard-port", 0,
		"serve the WebSocket dashboard on this port (0 disables)")
	rootCmd.AddCommand(daemonCmd)
}
