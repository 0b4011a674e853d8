package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// configPath is the --config flag, shared by every subcommand.
var configPath string

var rootCmd = &cobra.Command{
	Use:   "vaultsync",
	Short: "Mirror a remote task service into a Markdown vault",
	Long: `vaultsync keeps a Markdown vault convergent with a remote task service.

Projects become folders, sections become subfolders, and tasks become
Markdown documents with YAML frontmatter. Remote changes are pulled by
reconciliation passes; local edits to task documents are detected, queued,
and pushed back as batched commands.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/vaultsync/config.yaml)")
	rootCmd.AddGroup(
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
		&cobra.Group{ID: "setup", Title: "Setup Commands:"},
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
