// Command ldbmctl is a thin operator CLI over the ldbm storage engine
// core: open an instance directory (or an --ephemeral in-memory one)
// and drive add/search/seq/rebuild-index/export/import/backup/restore/
// upgrade against it.
//
// Grounded on the teacher's cmd/bd/main.go: one persistent rootCmd
// holding shared flags and an open handle, one file per subcommand
// registering itself on rootCmd from its own init(), PersistentPostRun
// closing what PersistentPreRun opened.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dirserv/ldbm"
	"github.com/dirserv/ldbm/internal/index"
)

var (
	instanceDir string
	ephemeral   bool
	jsonOutput  bool

	engine *ldbm.Engine
)

func registry() index.Registry {
	return index.Registry{
		"cn":           index.AttrInfo{Type: "cn", Kinds: []index.Kind{index.KindEquality, index.KindSubstring}},
		"sn":           index.AttrInfo{Type: "sn", Kinds: []index.Kind{index.KindEquality}},
		"objectclass":  index.AttrInfo{Type: "objectclass", Kinds: []index.Kind{index.KindEquality}},
		"uid":          index.AttrInfo{Type: "uid", Kinds: []index.Kind{index.KindEquality}},
		"mail":         index.AttrInfo{Type: "mail", Kinds: []index.Kind{index.KindEquality}},
		"userpassword": index.AttrInfo{Type: "userpassword", Kinds: nil},
	}
}

var rootCmd = &cobra.Command{
	Use:   "ldbmctl",
	Short: "ldbmctl - operator CLI for an ldbm storage instance",
	Long:  `ldbmctl drives an ldbm.Engine directly: add, search, seq, rebuild-index, export/import, backup/restore, upgrade.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "completion" || cmd.Name() == "help" {
			return nil
		}
		if !ephemeral && instanceDir == "" {
			return fmt.Errorf("ldbmctl: --dir is required unless --ephemeral is set")
		}
		e, err := ldbm.Open(context.Background(), instanceDir, registry(), ldbm.Options{Ephemeral: ephemeral})
		if err != nil {
			return fmt.Errorf("ldbmctl: opening instance: %w", err)
		}
		engine = e
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if engine == nil {
			return nil
		}
		return engine.Close()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&instanceDir, "dir", "", "instance directory (ldbm.toml, DBVERSION, ldbm.sqlite)")
	rootCmd.PersistentFlags().BoolVar(&ephemeral, "ephemeral", false, "back the instance with an in-memory store instead of --dir")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
