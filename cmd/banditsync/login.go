package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Burtson-Labs/bandit-sync/internal/config"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store the gateway auth token",
	Long: `Prompt for the sync gateway auth token and store it in the config file.
The token is read without echo when stdin is a terminal.`,
	Run: func(cmd *cobra.Command, args []string) {
		var token string
		fd := int(os.Stdin.Fd())
		if term.IsTerminal(fd) {
			fmt.Fprint(os.Stderr, "Gateway token: ")
			raw, err := term.ReadPassword(fd)
			fmt.Fprintln(os.Stderr)
			if err != nil {
				fatalf("failed to read token: %v", err)
			}
			token = string(raw)
		} else {
			// Piped input, e.g. banditsync login < token.txt
			var line string
			if _, err := fmt.Fscanln(os.Stdin, &line); err != nil {
				fatalf("failed to read token from stdin: %v", err)
			}
			token = line
		}

		token = strings.TrimSpace(token)
		if token == "" {
			fatalf("empty token")
		}

		path := configPath
		if path == "" {
			path = config.DefaultPath()
		}
		if err := config.SaveToken(path, token); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("Token saved to %s\n", path)
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
}
