package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dirserv/ldbm"
)

var dirtySince uint64

var dirtyCmd = &cobra.Command{
	Use:   "dirty",
	Short: "List ids marked dirty since --since, and the cursor to resume from",
	Long: `dirty is the SUPPLEMENT incremental-export query: every id a
committed mutation has touched since the caller's last pass, without
re-scanning id2entry.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, next, err := engine.DirtyIDs(context.Background(), dirtySince)
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(struct {
				IDs  []ldbm.ID `json:"ids"`
				Next uint64    `json:"next"`
			}{ids, next})
			return nil
		}
		fmt.Printf("dirty ids: %v (next since=%d)\n", ids, next)
		return nil
	},
}

func init() {
	dirtyCmd.Flags().Uint64Var(&dirtySince, "since", 0, "sequence cursor returned by a previous dirty call")
	rootCmd.AddCommand(dirtyCmd)
}
