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

var pushCmd = &cobra.Command{
	Use:     "push",
	GroupID: "sync",
	Short:   "Push local edits to the remote service now",
	Long: `Scan the vault for task documents that differ from the snapshot cache
and dispatch the resulting commands immediately, without waiting for the
daemon's debounce window.

Useful after editing documents while the daemon is not running.`,
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

		fmt.Printf("%s Scanning vault for local edits...\n", ui.RenderAccent("🔄"))
		start := time.Now()

		if err := d.Push(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "Error: push failed: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Push complete in %v\n", ui.RenderSuccess("✓"), time.Since(start).Round(time.Millisecond))
	},
}

func init() {
	rootCmd.AddCommand(pushCmd)
}
