package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync exchange with the gateway",
	Long: `Run a single forced sync exchange: pending local changes are uploaded,
remote changes are pulled (following pagination), and a summary is printed.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		rt, err := setup(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		defer rt.close()

		if err := rt.engine.Initialize(ctx); err != nil {
			fatalf("initialization failed: %v", err)
		}

		start := time.Now()
		if err := rt.engine.RunSync(ctx, true); err != nil {
			fatalf("sync failed: %v", err)
		}

		state := rt.engine.State()
		if state.Status == "error" {
			fatalf("sync finished with error: %s", state.LastError)
		}

		convCount, _ := rt.store.CountConversations(ctx)
		projCount, _ := rt.store.CountProjects(ctx)
		fmt.Printf("Sync complete in %v\n", time.Since(start).Round(time.Millisecond))
		fmt.Printf("  Conversations: %d local, %d on server\n", convCount, state.ServerConversationCount)
		fmt.Printf("  Projects:      %d local, %d on server\n", projCount, state.ServerProjectCount)
		if len(state.WarningConversations) > 0 {
			fmt.Printf("  Near size limit: %v\n", state.WarningConversations)
		}
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
