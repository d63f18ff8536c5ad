package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configFile string
	quiet      bool
)

var rootCmd = &cobra.Command{
	Use:   "bookkeepd",
	Short: "bookkeepd - a content-addressed double-entry accounting engine",
	Long: `bookkeepd serves a content-addressed double-entry accounting ledger:
accounts, entries, transactions, and height-chained rollups, each identified
by the hash of its own canonical fields rather than a sequence number.`,
	Version: "0.1.0-dev",
}

// Execute adds all child commands to the root command and runs it. It is
// called once from main.main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "conf", "", "configuration file path (bookkeepd.toml)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress startup banner")
}
