package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var rebuildIndexTypes []string

var rebuildIndexCmd = &cobra.Command{
	Use:   "rebuild-index",
	Short: "Rebuild one or more attribute indexes (offline)",
	Long: `rebuild-index clears the named attribute indexes (every registered
attribute if --type is omitted) and walks id2entry to repopulate them,
per the storage core's offline rebuild preconditions.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := engine.RebuildIndex(context.Background(), rebuildIndexTypes); err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(map[string]bool{"ok": true})
			return nil
		}
		fmt.Println("rebuild-index: done")
		return nil
	},
}

func init() {
	rebuildIndexCmd.Flags().StringArrayVar(&rebuildIndexTypes, "type", nil, "attribute type to rebuild, repeatable (default: all)")
	rootCmd.AddCommand(rebuildIndexCmd)
}
