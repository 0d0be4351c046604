package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Stream every live entry to file, gob-encoded",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Create(args[0])
		if err != nil {
			return fmt.Errorf("ldbmctl: creating %s: %w", args[0], err)
		}
		defer func() { _ = f.Close() }()
		return engine.Export(context.Background(), f)
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Add every entry an export file holds",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("ldbmctl: opening %s: %w", args[0], err)
		}
		defer func() { _ = f.Close() }()
		n, err := engine.Import(context.Background(), f)
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(map[string]int{"imported": n})
			return nil
		}
		fmt.Printf("imported %d entries\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd, importCmd)
}
