package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var vectorFeaturesCmd = &cobra.Command{
	Use:   "vector-features on|off",
	Short: "Toggle sync of vector-backed memory and knowledge features",
	Long: `Toggle whether vector-backed memory and knowledge features participate
in sync. The preference is pushed to the gateway; when both sync and the
flag end up enabled, a full sync runs immediately.`,
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
			return fmt.Errorf("expected exactly one argument: on or off")
		}
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		enabled := args[0] == "on"

		ctx := context.Background()
		rt, err := setup(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		defer rt.close()

		if err := rt.engine.Initialize(ctx); err != nil {
			fatalf("initialization failed: %v", err)
		}
		if err := rt.engine.SetAdvancedVectorFeaturesEnabled(ctx, enabled); err != nil {
			fatalf("failed to update vector features preference: %v", err)
		}

		if enabled {
			fmt.Println("Advanced vector features enabled for sync.")
		} else {
			fmt.Println("Advanced vector features excluded from sync.")
		}
	},
}

func init() {
	rootCmd.AddCommand(vectorFeaturesCmd)
}
