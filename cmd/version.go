package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tarmount/tarmount/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("tarmount %s (index format %s)\n", version.Version, version.IndexFormat)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
