package cmd

import (
	"fmt"
	"io"
	"os"
	"path"

	"github.com/spf13/cobra"

	"github.com/tarmount/tarmount/internal/index"
)

var catCmd = &cobra.Command{
	Use:   "cat <archive> <path>",
	Short: "Write one archive member to stdout",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		arc, err := openArchive(cmd, args[0])
		if err != nil {
			return err
		}
		defer func() { _ = arc.Close() }()

		e, err := arc.Resolve(args[1])
		if err != nil {
			return err
		}
		if e == nil {
			return fmt.Errorf("no such path in archive: %s", args[1])
		}
		if e.IsDir() {
			return fmt.Errorf("%s is a directory", args[1])
		}
		if e.IsSymlink() {
			target, err := arc.Resolve(symlinkTarget(*e))
			if err != nil {
				return err
			}
			if target == nil {
				return fmt.Errorf("broken symlink: %s -> %s", args[1], e.LinkName)
			}
			e = target
		}

		_, err = io.Copy(os.Stdout, arc.MemberReader(*e))
		return err
	},
}

// symlinkTarget maps a link target to an archive path. Relative targets are
// relative to the directory containing the link.
func symlinkTarget(e index.Entry) string {
	if path.IsAbs(e.LinkName) {
		return e.LinkName
	}
	return path.Join(e.Path, e.LinkName)
}

func init() {
	archiveFlags(catCmd)
	rootCmd.AddCommand(catCmd)
}
