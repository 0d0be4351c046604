package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var backupCmd = &cobra.Command{
	Use:   "backup <dest-dir>",
	Short: "Back up the instance to dest-dir",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := engine.Backup(context.Background(), args[0]); err != nil {
			return err
		}
		fmt.Printf("backup written to %s\n", args[0])
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore <src-dir>",
	Short: "Restore the instance from a backup directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := engine.Restore(context.Background(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(map[string]int{"restored": n})
			return nil
		}
		fmt.Printf("restored %d entries from %s\n", n, args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(backupCmd, restoreCmd)
}
