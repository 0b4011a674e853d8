package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vaultsync/vaultsync/internal/config"
	"github.com/vaultsync/vaultsync/internal/daemon"
	"github.com/vaultsync/vaultsync/internal/ui"
)

var syncFull bool

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Run one reconciliation pass",
	Long: `Run a single reconciliation pass and exit.

A pass fetches remote changes since the stored cursor, merges them into the
snapshot cache, and updates the vault: creating, renaming, relocating, and
trashing documents so the tree matches the remote state. With --full the
entire remote dataset is fetched and orphaned documents are swept into
their lifecycle folders.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		d, err := daemon.New(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer d.Close()

		mode := "incremental"
		if syncFull {
			mode = "full"
		}
		fmt.Printf("%s Running %s pass...\n", ui.RenderAccent("🔄"), mode)
		start := time.Now()

		stats, err := d.RunOnce(context.Background(), syncFull)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: pass failed: %v\n", err)
			os.Exit(1)
		}

		elapsed := time.Since(start)
		fmt.Printf("%s Pass complete in %v\n", ui.RenderSuccess("✓"), elapsed.Round(time.Millisecond))
		fmt.Printf("   Created: %d\n", stats.Created)
		fmt.Printf("   Updated: %d\n", stats.Updated)
		fmt.Printf("   Relocated: %d\n", stats.Relocated)
		fmt.Printf("   Removed: %d\n", stats.Removed)
		if stats.Skipped > 0 {
			fmt.Printf("   %s\n", ui.RenderWarning(fmt.Sprintf("Skipped: %d", stats.Skipped)))
		}
		if stats.Failed > 0 {
			fmt.Printf("   %s\n", ui.RenderWarning(fmt.Sprintf("Failed: %d", stats.Failed)))
		}
	},
}

func init() {
	syncCmd.Flags().BoolVar(&syncFull, "full", false, "fetch the full remote dataset and sweep orphans")
	rootCmd.AddCommand(syncCmd)
}
