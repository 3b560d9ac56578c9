package cmd

import (
	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index <archive>",
	Short: "Build the offset index without mounting",
	Long: "Build the offset index without mounting. A valid cached index is kept as\n" +
		"is, pass -c to force a rebuild. Example:\n  tarmount index -c backup.tar.gz",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		arc, err := openArchive(cmd, args[0])
		if err != nil {
			return err
		}
		return arc.Close()
	},
}

func init() {
	archiveFlags(indexCmd)
	rootCmd.AddCommand(indexCmd)
}
