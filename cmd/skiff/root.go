package main

import (
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/skiffdb/skiff/internal/cloud/bootstrap"
	"github.com/skiffdb/skiff/internal/cloud/db"
	"github.com/skiffdb/skiff/internal/notes"
)

var rootCmd = &cobra.Command{
	Use:   "skiff",
	Short: "Local-first notes with cloud sync",
	Long: `skiff keeps your notes in a local SQLite database and
synchronizes them with a Turso-compatible cloud endpoint.

All commands work offline. When cloud sync is configured (see
'skiff config set'), the database opens as an embedded replica and
'skiff sync' pushes and pulls changes table by table.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogger()
	},
}

// appLogger is shared by every component started from the CLI. It is
// replaced by a rotating file sink when --log-file is set.
var appLogger = log.New(os.Stderr, "[skiff] ", log.LstdFlags)

func init() {
	rootCmd.PersistentFlags().String("db", "",
		"path to the local database (default ~/.skiff/skiff.db)")
	rootCmd.PersistentFlags().String("log-file", "",
		"write logs to this file, rotated, instead of stderr")

	viper.SetEnvPrefix("SKIFF")
	viper.AutomaticEnv()
	_ = viper.BindPFlag("db", rootCmd.PersistentFlags().Lookup("db"))
	_ = viper.BindPFlag("log_file", rootCmd.PersistentFlags().Lookup("log-file"))
}

func setupLogger() {
	path := viper.GetString("log_file")
	if path == "" {
		return
	}
	sink := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	}
	appLogger = log.New(sink, "[skiff] ", log.LstdFlags)
}

// dbPath resolves the local database path from --db, SKIFF_DB, or the
// per-user default.
func dbPath() string {
	if p := viper.GetString("db"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "skiff.db"
	}
	return filepath.Join(home, ".skiff", "skiff.db")
}

// openStore runs the full bootstrap: sidecar config decides local or
// cloud mode, migrations run in either case.
func openStore() (*db.Manager, error) {
	return bootstrap.OpenWithLogger(dbPath(), notes.Migrate, appLogger)
}
