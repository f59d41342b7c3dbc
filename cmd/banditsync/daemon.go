package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Burtson-Labs/bandit-sync/internal/dashboard"
	"github.com/Burtson-Labs/bandit-sync/internal/importer"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the sync engine continuously",
	Long: `Run the engine as a long-lived process: local changes auto-sync on a
debounce timer, the import inbox is watched for conversation exports, and
a local dashboard serves live sync state over HTTP and WebSocket.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		rt, err := setup(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		defer rt.close()

		srv := dashboard.New(rt.cfg.DashboardAddr, rt.engine, rt.store, rt.logger)
		rt.engine.SetOnChange(srv.Publish)
		if err := srv.Start(); err != nil {
			fatalf("failed to start dashboard: %v", err)
		}
		defer srv.Stop()

		imp := importer.New(rt.store, rt.cfg.ImportDir, rt.logger)
		if err := imp.Start(ctx); err != nil {
			fatalf("failed to start importer: %v", err)
		}
		defer imp.Stop()

		if err := rt.engine.Initialize(ctx); err != nil {
			fatalf("initialization failed: %v", err)
		}

		fmt.Printf("banditsync daemon running\n")
		fmt.Printf("  dashboard: http://%s\n", srv.Addr())
		fmt.Printf("  import inbox: %s\n", rt.cfg.ImportDir)

		<-ctx.Done()
		fmt.Println("shutting down")
	},
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}
