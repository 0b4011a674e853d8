package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vaultsync/vaultsync/internal/config"
	"github.com/vaultsync/vaultsync/internal/dashboard"
	"github.com/vaultsync/vaultsync/internal/state"
	"github.com/vaultsync/vaultsync/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show mirror status",
	Long: `Display the state of the local mirror.

Shows the snapshot cache counts and sync cursor from the state database.
When a running daemon exposes a status endpoint, its live queue state is
shown as well.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if _, err := os.Stat(cfg.StatePath); os.IsNotExist(err) {
			fmt.Printf("\n%s No state database yet\n", ui.RenderWarning("⚠"))
			fmt.Printf("   Run 'vaultsync sync --full' to initialize the mirror\n\n")
			return
		}

		store, err := state.Open(cfg.StatePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening state database: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()

		projects, sections, tasks := store.Counts()
		cursor := store.Cursor()
		if cursor == "" {
			cursor = ui.RenderMuted("(none — next pass is full)")
		}

		fmt.Printf("\n%s Mirror Status\n\n", ui.RenderAccent("📊"))
		fmt.Printf("Vault: %s\n", cfg.VaultDir)
		fmt.Printf("State: %s\n", cfg.StatePath)
		fmt.Printf("Projects: %d\n", projects)
		fmt.Printf("Sections: %d\n", sections)
		fmt.Printf("Tasks: %d\n", tasks)
		fmt.Printf("Cursor: %s\n", cursor)

		if live, ok := fetchLive(cfg.DashboardAddr); ok {
			fmt.Printf("Daemon: %s\n", ui.RenderSuccess("running"))
			fmt.Printf("Queue: %s (%d pending)\n", live.QueueState, live.PendingIntents)
		}
		fmt.Println()
	},
}

// fetchLive asks a running daemon for its status. A missing or unreachable
// daemon is not an error.
func fetchLive(addr string) (dashboard.StatusData, bool) {
	var data dashboard.StatusData
	if addr == "" {
		return data, false
	}
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get("http://" + addr + "/status")
	if err != nil {
		return data, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return data, false
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return data, false
	}
	return data, true
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
