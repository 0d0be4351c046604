package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search <filter>",
	Short: "Evaluate a filter against the index layer and list candidate IDs",
	Long: `search runs SearchCandidates: it never reads id2entry itself, only the
per-attribute indexes, so an unindexed attribute in the filter shows up
as needsFilterTest=true rather than as an error.

Example:
  ldbmctl --dir ./data search '(&(objectclass=person)(cn=alice))'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		candidates, needsFilterTest, err := engine.SearchCandidates(context.Background(), args[0])
		if err != nil {
			return err
		}
		var ids []uint32
		if candidates != nil && !candidates.IsEmpty() {
			for id := candidates.FirstID(); id != 0; id = candidates.NextID(id) {
				ids = append(ids, uint32(id))
			}
		}
		if jsonOutput {
			outputJSON(struct {
				IDs             []uint32 `json:"ids"`
				NeedsFilterTest bool     `json:"needsFilterTest"`
			}{ids, needsFilterTest})
			return nil
		}
		fmt.Printf("candidates: %v (needsFilterTest=%v)\n", ids, needsFilterTest)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(searchCmd)
}
