package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dirserv/ldbm/internal/entry"
	"github.com/dirserv/ldbm/internal/mutate"
)

var (
	addAttrs []string
	addCSN   string
)

var addCmd = &cobra.Command{
	Use:   "add <dn>",
	Short: "Add an entry",
	Long: `Add an entry at dn, with zero or more --attr type=value pairs.

Examples:
  ldbmctl --dir ./data add cn=alice,dc=example,dc=com --attr cn=alice --attr objectclass=person
  ldbmctl --ephemeral add cn=bob,dc=example,dc=com --attr cn=bob`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e := entry.New(args[0])
		for _, kv := range addAttrs {
			typ, val, ok := strings.Cut(kv, "=")
			if !ok {
				return fmt.Errorf("ldbmctl: --attr %q must be type=value", kv)
			}
			e.AddValues(typ, entry.Value(val))
		}

		added, err := engine.Add(context.Background(), mutate.AddRequest{Entry: e, CSN: addCSN})
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(added)
			return nil
		}
		fmt.Printf("added id=%d dn=%s\n", added.ID, added.DN)
		return nil
	},
}

func init() {
	addCmd.Flags().StringArrayVar(&addAttrs, "attr", nil, "type=value attribute, repeatable")
	addCmd.Flags().StringVar(&addCSN, "csn", "", "change sequence number for this write")
	rootCmd.AddCommand(addCmd)
}
