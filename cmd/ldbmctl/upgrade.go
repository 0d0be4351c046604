package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var upgradeCmd = &cobra.Command{
	Use:   "upgrade",
	Short: "Run the storage engine's version/encoding upgrade pass explicitly",
	Long: `upgrade is idempotent: an instance already on the current version and
encoding has nothing left to rewrite. Open already runs this
automatically, so this subcommand exists mainly to trigger it
out-of-band (e.g. before a scheduled maintenance window).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := engine.Upgrade(context.Background()); err != nil {
			return err
		}
		fmt.Println("upgrade: done")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(upgradeCmd)
}
