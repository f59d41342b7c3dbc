package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Burtson-Labs/bandit-sync/internal/importer"
)

var importCmd = &cobra.Command{
	Use:   "import <file>...",
	Short: "Import conversation JSON exports into the local store",
	Long: `Import one or more conversation export files. Each file may hold a
single conversation or an array. Imported conversations are queued for
upload on the next sync.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		rt, err := setup(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		defer rt.close()

		imp := importer.New(rt.store, rt.cfg.ImportDir, rt.logger)
		for _, path := range args {
			if err := imp.ImportFile(ctx, path); err != nil {
				fatalf("%v", err)
			}
			fmt.Printf("Imported %s\n", path)
		}
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
}
