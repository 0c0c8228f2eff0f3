package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/skiffdb/skiff/internal/cloud/bootstrap"
	"github.com/skiffdb/skiff/internal/ui"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the database and run migrations",
	Long: `Create the local database at the resolved path, apply schema
migrations, and attach the embedded replica if cloud sync is already
configured. Safe to run more than once.`,
	Run: func(cmd *cobra.Command, args []string) {
		path := dbPath()

		mgr, err := openStore()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error initializing database: %v\n", err)
			os.Exit(1)
		}
		defer mgr.Close()

		fmt.Printf("%s Database ready at %s\n", ui.RenderPass("✓"), path)
		if mgr.CloudSyncEnabled() {
			fmt.Printf("%s Cloud sync enabled (%s)\n", ui.RenderPass("✓"), mgr.SyncURL())
		} else if cfg, _ := bootstrap.LoadConfig(path); cfg.Enabled() {
			fmt.Printf("%s Cloud sync configured but unreachable, running local-only\n", ui.RenderWarn("⚠"))
		} else {
			fmt.Printf("  Local-only mode. Run %s to connect a cloud endpoint\n", ui.RenderAccent("skiff config set"))
		}
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
