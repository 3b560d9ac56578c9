package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tarmount/tarmount/internal/config"
	"github.com/tarmount/tarmount/internal/logging"
)

// cfg holds the user configuration loaded before any command runs.
var cfg config.Config

var rootCmd = &cobra.Command{
	Use:   "tarmount",
	Short: "tarmount mounts TAR archives with fast random access",
	Long: "tarmount scans a TAR archive once into a SQLite offset index and then\n" +
		"serves its contents as a read-only filesystem without unpacking it.",
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		level := cfg.LogLevel
		if v, _ := cmd.Flags().GetBool("verbose"); v {
			level = "debug"
		}
		if q, _ := cmd.Flags().GetBool("quiet"); q {
			level = "quiet"
		}
		logging.Setup(level)
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("tarmount: run 'tarmount --help' to see available commands")
	},
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().Bool("verbose", false, "enable debug output")
	rootCmd.PersistentFlags().Bool("quiet", false, "suppress all diagnostics")
}
