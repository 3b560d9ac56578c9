package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tarmount/tarmount/internal/compress"
	"github.com/tarmount/tarmount/internal/index"
)

var infoCmd = &cobra.Command{
	Use:   "info <archive> [path]",
	Short: "Show archive and index details, or details of one member",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		arc, err := openArchive(cmd, args[0])
		if err != nil {
			return err
		}
		defer func() { _ = arc.Close() }()

		if len(args) > 1 {
			e, err := arc.Repo.Lookup(args[1])
			if err != nil {
				return err
			}
			if e == nil {
				return fmt.Errorf("no such path in archive: %s", args[1])
			}
			printMember(*e)
			return nil
		}

		fmt.Printf("archive:     %s\n", arc.Path)
		fmt.Printf("compression: %s\n", arc.Format)
		if fi, err := os.Stat(arc.Path); err == nil {
			fmt.Printf("size:        %s\n", humanize.IBytes(uint64(fi.Size())))
		}
		n, err := arc.Repo.CountEntries()
		if err != nil {
			return err
		}
		fmt.Printf("members:     %d\n", n)

		indexPath := arc.IndexPath
		if indexPath == "" {
			indexPath = "(in memory)"
		}
		fmt.Printf("index:       %s\n", indexPath)

		if arc.Format != compress.FormatNone {
			cps, err := arc.Repo.LoadCheckpoints()
			if err != nil {
				return err
			}
			if len(cps) > 0 {
				last := cps[len(cps)-1]
				fmt.Printf("checkpoints: %d\n", len(cps))
				if last.Compressed > 0 {
					fmt.Printf("ratio:       %.2f\n", float64(last.Uncompressed)/float64(last.Compressed))
				}
			}
		}
		return nil
	},
}

func printMember(e index.Entry) {
	fmt.Printf("path:   %s\n", e.FullPath())
	fmt.Printf("mode:   %s\n", e.FileMode())
	fmt.Printf("size:   %s\n", humanize.IBytes(uint64(e.Size)))
	fmt.Printf("mtime:  %s\n", time.Unix(e.Mtime, 0).Format(time.RFC3339))
	fmt.Printf("owner:  %d:%d\n", e.UID, e.GID)
	fmt.Printf("offset: %d (header %d)\n", e.DataOffset, e.HeaderOffset)
	if e.LinkName != "" {
		fmt.Printf("link:   %s\n", e.LinkName)
	}
	if e.IsSparse {
		fmt.Println("sparse: yes")
	}
	if e.IsTar {
		fmt.Println("nested: indexed as directory")
	}
}

func init() {
	archiveFlags(infoCmd)
	rootCmd.AddCommand(infoCmd)
}
