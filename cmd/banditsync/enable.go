package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var enableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Turn sync on for this account",
	Long: `Turn sync on. The preference is pushed to the gateway and a full sync
runs immediately, uploading any local-only conversations and projects.`,
	Run: func(cmd *cobra.Command, args []string) {
		toggleSync(true)
	},
}

var disableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Turn sync off for this account",
	Run: func(cmd *cobra.Command, args []string) {
		toggleSync(false)
	},
}

func toggleSync(enabled bool) {
	ctx := context.Background()
	rt, err := setup(ctx)
	if err != nil {
		fatalf("%v", err)
	}
	defer rt.close()

	if err := rt.engine.Initialize(ctx); err != nil {
		fatalf("initialization failed: %v", err)
	}
	if err := rt.engine.SetSyncEnabled(ctx, enabled); err != nil {
		fatalf("failed to update sync preference: %v", err)
	}

	if enabled {
		state := rt.engine.State()
		fmt.Printf("Sync enabled. %d conversations and %d projects on server.\n",
			state.ServerConversationCount, state.ServerProjectCount)
	} else {
		fmt.Println("Sync disabled. Local data is kept; nothing further is uploaded.")
	}
}

func init() {
	rootCmd.AddCommand(enableCmd)
	rootCmd.AddCommand(disableCmd)
}
