package cmd

import (
	"github.com/spf13/cobra"

	"github.com/tarmount/tarmount/internal/archive"
)

// archiveFlags registers the flags shared by all commands that open an
// archive and may (re)build its index.
func archiveFlags(cmd *cobra.Command) {
	cmd.Flags().BoolP("recreate-index", "c", false, "delete cached index files and build a fresh index")
	cmd.Flags().BoolP("recursive", "r", false, "index nested .tar members as directories (only effective while creating an index)")
	cmd.Flags().Int64("checkpoint-spacing", 0, "seek point spacing for compressed archives in MiB")
}

// openArchive opens the archive honoring the shared flags and the user
// configuration.
func openArchive(cmd *cobra.Command, path string) (*archive.Archive, error) {
	recreate, _ := cmd.Flags().GetBool("recreate-index")
	recursive, _ := cmd.Flags().GetBool("recursive")
	spacingMiB, _ := cmd.Flags().GetInt64("checkpoint-spacing")

	spacing := cfg.Spacing()
	if spacingMiB > 0 {
		spacing = spacingMiB * 1024 * 1024
	}
	return archive.Open(path, archive.Options{
		RecreateIndex:     recreate,
		Recursive:         recursive,
		WriteIndex:        true,
		CheckpointSpacing: spacing,
	})
}
