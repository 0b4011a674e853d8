package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vaultsync/vaultsync/internal/config"
	"github.com/vaultsync/vaultsync/internal/daemon"
	"github.com/vaultsync/vaultsync/internal/ui"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Run the sync daemon (foreground)",
	Long: `Run vaultsync as a long-lived foreground process.

The daemon:
  1. Runs an initial full reconciliation pass
  2. Watches the vault for local task edits
  3. Debounces and pushes edits as batched commands
  4. Runs incremental passes on the configured interval

Stop it with Ctrl+C; pending local edits are flushed on shutdown by the
command queue before it stops.`,
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

		fmt.Printf("%s Starting vaultsync daemon...\n", ui.RenderAccent("🚀"))
		fmt.Printf("   Vault: %s\n", cfg.VaultDir)
		fmt.Printf("   Interval: %s\n", cfg.SyncInterval)
		if cfg.DashboardAddr != "" {
			fmt.Printf("   Status: http://%s/status\n", cfg.DashboardAddr)
		}
		fmt.Printf("\nPress Ctrl+C to stop\n\n")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := d.Run(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Daemon stopped with error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}
