package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/skiffdb/skiff/internal/cloud/db"
	"github.com/skiffdb/skiff/internal/notes"
	"github.com/skiffdb/skiff/internal/ui"
)

var addCmd = &cobra.Command{
	Use:   "add <text>",
	Short: "Add a note",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		store, mgr := openNotes()
		defer mgr.Close()

		n, err := store.Add(strings.Join(args, " "))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error adding note: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Added %s\n", ui.RenderPass("✓"), ui.RenderDim(n.ID))
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List notes, pinned first",
	Run: func(cmd *cobra.Command, args []string) {
		store, mgr := openNotes()
		defer mgr.Close()

		all, err := store.List()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing notes: %v\n", err)
			os.Exit(1)
		}
		if len(all) == 0 {
			fmt.Println(ui.RenderDim("No notes yet. Try 'skiff add'."))
			return
		}
		for _, n := range all {
			marker := " "
			if n.Pinned {
				marker = ui.RenderAccent("*")
			}
			line := fmt.Sprintf("%s %s  %s", marker, ui.RenderDim(shortID(n.ID)), n.Body)
			if len(n.Tags) > 0 {
				line += ui.RenderDim("  #" + strings.Join(n.Tags, " #"))
			}
			line += ui.RenderDim("  " + time.UnixMilli(n.UpdatedAt).Format("2006-01-02 15:04"))
			fmt.Println(line)
		}
	},
}

var tagCmd = &cobra.Command{
	Use:   "tag <note-id> <tag>...",
	Short: "Attach tags to a note",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		store, mgr := openNotes()
		defer mgr.Close()

		id, err := resolveID(store, args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		for _, tag := range args[1:] {
			if err := store.Tag(id, tag); err != nil {
				fmt.Fprintf(os.Stderr, "Error tagging note: %v\n", err)
				os.Exit(1)
			}
		}
		fmt.Printf("%s Tagged %s\n", ui.RenderPass("✓"), ui.RenderDim(shortID(id)))
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm <note-id>",
	Short: "Delete a note",
	Long: `Delete a note. The deletion is a soft delete so it replicates
to the cloud on the next sync cycle.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		store, mgr := openNotes()
		defer mgr.Close()

		id, err := resolveID(store, args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if err := store.Delete(id); err != nil {
			fmt.Fprintf(os.Stderr, "Error deleting note: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Deleted %s\n", ui.RenderPass("✓"), ui.RenderDim(shortID(id)))
	},
}

var pinCmd = &cobra.Command{
	Use:   "pin <note-id>",
	Short: "Pin or unpin a note",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		store, mgr := openNotes()
		defer mgr.Close()

		id, err := resolveID(store, args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		n, err := store.Get(id)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if err := store.Pin(id, !n.Pinned); err != nil {
			fmt.Fprintf(os.Stderr, "Error pinning note: %v\n", err)
			os.Exit(1)
		}
		verb := "Pinned"
		if n.Pinned {
			verb = "Unpinned"
		}
		fmt.Printf("%s %s %s\n", ui.RenderPass("✓"), verb, ui.RenderDim(shortID(id)))
	},
}

func openNotes() (*notes.Store, *db.Manager) {
	mgr, err := openStore()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	return notes.NewStore(mgr), mgr
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// resolveID accepts a full note id or an unambiguous prefix.
func resolveID(store *notes.Store, arg string) (string, error) {
	all, err := store.List()
	if err != nil {
		return "", err
	}
	var match string
	for _, n := range all {
		if n.ID == arg {
			return n.ID, nil
		}
		if strings.HasPrefix(n.ID, arg) {
			if match != "" {
				return "", fmt.Errorf("note id %q is ambiguous", arg)
			}
			match = n.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("note %q not found", arg)
	}
	return match, nil
}

func init() {
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(tagCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(pinCmd)
}
