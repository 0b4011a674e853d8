package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/vaultsync/vaultsync/internal/config"
	"github.com/vaultsync/vaultsync/internal/ui"
)

var authCmd = &cobra.Command{
	Use:     "auth",
	GroupID: "setup",
	Short:   "Store the remote service API token",
	Long: `Prompt for the remote service API token and save it to the config file.

The token is read without echo when stdin is a terminal. It can also be
provided non-interactively via the VAULTSYNC_API_TOKEN environment
variable, in which case this command is unnecessary.`,
	Run: func(cmd *cobra.Command, args []string) {
		token, err := readToken()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading token: %v\n", err)
			os.Exit(1)
		}
		if token == "" {
			fmt.Fprintf(os.Stderr, "Error: empty token\n")
			os.Exit(1)
		}

		path := configPath
		if path == "" {
			path = config.DefaultPath()
		}
		if err := config.SaveToken(path, token); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Token saved to %s\n", ui.RenderSuccess("✓"), path)
	},
}

func readToken() (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Print("API token: ")
		b, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}

	// Piped input, e.g. `echo $TOKEN | vaultsync auth`.
	var line string
	if _, err := fmt.Fscanln(os.Stdin, &line); err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func init() {
	rootCmd.AddCommand(authCmd)
}
