package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/skiffdb/skiff/internal/cloud/bootstrap"
	"github.com/skiffdb/skiff/internal/cloud/remote"
	"github.com/skiffdb/skiff/internal/ui"
)

var (
	configURL   string
	configToken string
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage cloud sync credentials",
	Long: `Manage the sync sidecar config (sync_config.json) stored next
to the local database. Cloud sync is active only when both the database
URL and auth token are set.`,
}

var configSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Set the cloud database URL and auth token",
	Run: func(cmd *cobra.Command, args []string) {
		url, token := configURL, configToken

		if url == "" || token == "" {
			form := huh.NewForm(huh.NewGroup(
				huh.NewInput().
					Title("Database URL").
					Placeholder("libsql://your-db.turso.io").
					Value(&url),
				huh.NewInput().
					Title("Auth token").
					EchoMode(huh.EchoModePassword).
					Value(&token),
			))
			if err := form.Run(); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}

		cfg := bootstrap.SyncConfig{
			URL:   strings.TrimSpace(url),
			Token: strings.TrimSpace(token),
		}
		if !cfg.Enabled() {
			fmt.Fprintf(os.Stderr, "Error: both URL and token are required\n")
			os.Exit(1)
		}

		// Probe the endpoint. A failure is not fatal: bootstrap falls
		// back to local-only until the endpoint becomes reachable.
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := remote.New().Validate(ctx, cfg.URL, cfg.Token); err != nil {
			fmt.Printf("%s Endpoint validation failed: %v\n", ui.RenderWarn("⚠"), err)
			fmt.Printf("   Saving anyway; sync stays local-only until it is reachable\n")
		} else {
			fmt.Printf("%s Endpoint validated\n", ui.RenderPass("✓"))
		}

		if err := bootstrap.SaveConfig(dbPath(), cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Sync config saved to %s\n",
			ui.RenderPass("✓"), bootstrap.ConfigPath(dbPath()))
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current sync config with the token masked",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := bootstrap.LoadConfig(dbPath())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading sync config: %v\n", err)
			os.Exit(1)
		}
		if cfg == nil {
			fmt.Printf("%s Cloud sync is not configured\n", ui.RenderDim("—"))
			return
		}
		fmt.Printf("URL: %s\n", cfg.URL)
		fmt.Printf("Token: %s\n", maskSecret(cfg.Token))
		if !cfg.Enabled() {
			fmt.Printf("%s Config incomplete; cloud sync disabled\n", ui.RenderWarn("⚠"))
		}
	},
}

// maskSecret keeps just enough of a token to recognize it.
func maskSecret(s string) string {
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

func init() {
	configSetCmd.Flags().StringVar(&configURL, "url", "", "cloud database URL (libsql:// or https://)")
	configSetCmd.Flags().StringVar(&configToken, "token", "", "auth token")
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
