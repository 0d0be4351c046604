package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dirserv/ldbm"
	"github.com/dirserv/ldbm/internal/entry"
)

var seqPosition string

var seqDirections = map[string]ldbm.SeqDirection{
	"first": ldbm.SeqFirst,
	"next":  ldbm.SeqNext,
	"prev":  ldbm.SeqPrev,
	"last":  ldbm.SeqLast,
}

var seqCmd = &cobra.Command{
	Use:   "seq <attr> <value>",
	Short: "Position on an equality index key and stream its members",
	Long: `seq implements the storage core's index-walk primitive directly: it
does not parse a filter, it positions a cursor on one equality key and
streams every entry the key's IDL names, in --position direction order.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, ok := seqDirections[seqPosition]
		if !ok {
			return fmt.Errorf("ldbmctl: --position must be one of first, next, prev, last")
		}
		var results []*entry.Entry
		err := engine.Seq(context.Background(), args[0], []byte(args[1]), dir, func(ent *entry.Entry) error {
			results = append(results, ent)
			return nil
		})
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(results)
			return nil
		}
		for _, ent := range results {
			fmt.Printf("id=%d dn=%s\n", ent.ID, ent.DN)
		}
		return nil
	},
}

func init() {
	seqCmd.Flags().StringVar(&seqPosition, "position", "first", "first, next, prev, or last")
	rootCmd.AddCommand(seqCmd)
}
