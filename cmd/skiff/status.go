package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/skiffdb/skiff/internal/cloud/bootstrap"
	tablesync "github.com/skiffdb/skiff/internal/cloud/sync"
	"github.com/skiffdb/skiff/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database and sync status",
	Long: `Display the local database location, whether cloud sync is
configured, and the per-table sync ledger (watermark and cycle count).`,
	Run: func(cmd *cobra.Command, args []string) {
		path := dbPath()

		info, err := os.Stat(path)
		if os.IsNotExist(err) {
			fmt.Printf("\n%s No database at %s\n", ui.RenderWarn("⚠"), path)
			fmt.Printf("   Run any skiff command to create it\n\n")
			return
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error checking database: %v\n", err)
			os.Exit(1)
		}

		mgr, err := openStore()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
			os.Exit(1)
		}
		defer mgr.Close()

		fmt.Printf("\n%s skiff status\n\n", ui.RenderAccent("📊"))
		fmt.Printf("Database: %s\n", path)
		fmt.Printf("Size: %s\n", formatSize(info.Size()))
		fmt.Printf("Modified: %s\n", info.ModTime().Format("2006-01-02 15:04:05"))

		if mgr.CloudSyncEnabled() {
			fmt.Printf("Cloud sync: %s (%s)\n", ui.RenderPass("enabled"), mgr.SyncURL())
		} else if cfg, cfgErr := bootstrap.LoadConfig(path); cfgErr == nil && cfg.Enabled() {
			fmt.Printf("Cloud sync: %s\n", ui.RenderWarn("configured but unreachable"))
		} else {
			fmt.Printf("Cloud sync: %s\n", ui.RenderDim("not configured"))
		}

		statuses, err := tablesync.ReadStatus(mgr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading sync ledger: %v\n", err)
			os.Exit(1)
		}
		if len(statuses) == 0 {
			fmt.Printf("Ledger: %s\n\n", ui.RenderDim("no cycles recorded"))
			return
		}

		fmt.Println("\nPer-table sync ledger:")
		for _, st := range statuses {
			fmt.Printf("   %s: %d cycles, watermark %s\n",
				st.Table, st.SyncCount, formatWatermark(st.LastSyncTime))
		}
		fmt.Println()
	},
}

func formatSize(size int64) string {
	switch {
	case size > 1024*1024:
		return fmt.Sprintf("%.1f MB", float64(size)/(1024*1024))
	case size > 1024:
		return fmt.Sprintf("%.1f KB", float64(size)/1024)
	default:
		return fmt.Sprintf("%d bytes", size)
	}
}

// formatWatermark renders epoch-millisecond watermarks as local time;
// text watermarks pass through.
func formatWatermark(w string) string {
	millis, err := strconv.ParseInt(w, 10, 64)
	if err != nil || millis == 0 {
		return w
	}
	return time.UnixMilli(millis).Format("2006-01-02 15:04:05")
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
