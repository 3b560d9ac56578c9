package cmd

import (
	"github.com/spf13/cobra"

	"github.com/tarmount/tarmount/internal/archive"
)

var clearCacheCmd = &cobra.Command{
	Use:   "clear-cache <archive>",
	Short: "Delete all cached index files for an archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return archive.ClearIndexCaches(args[0])
	},
}

func init() {
	rootCmd.AddCommand(clearCacheCmd)
}
