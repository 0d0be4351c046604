package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print newly dirty ids as the instance's store file changes",
	Long: `watch follows --dir's ldbm.sqlite with fsnotify and, on every write
event, calls DirtyIDs again from where the last call left off — a
poor man's incremental-export daemon for an ldbm instance another
process is writing to.

ldbm.Engine itself does not own this loop: the storage core answers
"what's dirty since X", a front end decides when to ask. watch is
that front end.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if ephemeral {
			return fmt.Errorf("ldbmctl: watch requires --dir, not --ephemeral (there is no file to watch)")
		}

		w, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("ldbmctl: creating watcher: %w", err)
		}
		defer func() { _ = w.Close() }()

		dbFile := filepath.Join(instanceDir, "ldbm.sqlite")
		if err := w.Add(instanceDir); err != nil {
			return fmt.Errorf("ldbmctl: watching %s: %w", instanceDir, err)
		}

		var since uint64
		report := func() error {
			ids, next, err := engine.DirtyIDs(context.Background(), since)
			if err != nil {
				return err
			}
			since = next
			if len(ids) > 0 {
				fmt.Printf("%s dirty: %v (since=%d)\n", time.Now().UTC().Format(time.RFC3339), ids, since)
			}
			return nil
		}
		if err := report(); err != nil {
			return err
		}

		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return nil
				}
				if ev.Name != dbFile {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := report(); err != nil {
					return err
				}
			case err, ok := <-w.Errors:
				if !ok {
					return nil
				}
				fmt.Fprintf(os.Stderr, "ldbmctl: watch error: %v\n", err)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
