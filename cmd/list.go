package cmd

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tarmount/tarmount/internal/index"
)

var listCmd = &cobra.Command{
	Use:   "list <archive> [path]",
	Short: "List archive contents from the index",
	Long:  "List archive contents from the index. Example:\n  tarmount list backup.tar /etc",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		arc, err := openArchive(cmd, args[0])
		if err != nil {
			return err
		}
		defer func() { _ = arc.Close() }()

		dir := "/"
		if len(args) > 1 {
			dir = args[1]
		}
		entries, err := arc.Repo.ListDir(dir)
		if err != nil {
			return err
		}
		if entries == nil {
			// not a directory, maybe a single file
			e, err := arc.Repo.Lookup(dir)
			if err != nil {
				return err
			}
			if e == nil {
				return fmt.Errorf("no such path in archive: %s", dir)
			}
			entries = []index.Entry{*e}
		}

		long, _ := cmd.Flags().GetBool("long")
		for _, e := range entries {
			if long {
				printLong(e)
			} else {
				fmt.Println(e.Name)
			}
		}
		return nil
	},
}

func printLong(e index.Entry) {
	name := e.Name
	if e.IsSymlink() {
		name += " -> " + e.LinkName
	}
	fmt.Printf("%s %5d %5d %8s %s %s\n",
		e.FileMode(), e.UID, e.GID,
		humanize.IBytes(uint64(e.Size)),
		time.Unix(e.Mtime, 0).Format("2006-01-02 15:04"),
		name)
}

func init() {
	archiveFlags(listCmd)
	listCmd.Flags().BoolP("long", "l", false, "show mode, owner, size and mtime")
	rootCmd.AddCommand(listCmd)
}
