package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tarmount/tarmount/internal/mount"
)

var mountCmd = &cobra.Command{
	Use:   "mount <archive> [mountpoint]",
	Short: "Mount a TAR archive as a read-only filesystem",
	Long: "Mount a TAR archive as a read-only filesystem. The offset index is created\n" +
		"on first use and cached next to the archive (or under ~/.tarmount when the\n" +
		"archive's directory is not writable). Example:\n  tarmount mount backup.tar.gz /mnt/backup",
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		archivePath, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		mountpoint := defaultMountpoint(archivePath)
		if len(args) > 1 {
			mountpoint = args[1]
		}

		foreground, _ := cmd.Flags().GetBool("foreground")
		if !foreground {
			return respawnDetached()
		}

		arc, err := openArchive(cmd, archivePath)
		if err != nil {
			return err
		}
		defer func() { _ = arc.Close() }()

		fuseOpts, _ := cmd.Flags().GetString("fuse")
		if fuseOpts == "" {
			fuseOpts = cfg.FuseOptions
		}
		prefix, _ := cmd.Flags().GetString("prefix")
		debugFuse, _ := cmd.Flags().GetBool("debug-fuse")

		srv, err := mount.Mount(arc, mountpoint, mount.Options{
			FuseOptions: fuseOpts,
			Prefix:      prefix,
			Debug:       debugFuse,
		})
		if err != nil {
			return err
		}
		srv.Wait()
		return nil
	},
}

// defaultMountpoint strips the archive extension, so backup.tar.gz mounts at
// ./backup next to it.
func defaultMountpoint(archivePath string) string {
	lower := strings.ToLower(archivePath)
	for _, ext := range []string{".tar", ".tar.bz2", ".tbz2", ".tar.gz", ".tgz", ".tar.zst", ".tzst"} {
		if strings.HasSuffix(lower, ext) {
			return archivePath[:len(archivePath)-len(ext)]
		}
	}
	return strings.TrimSuffix(archivePath, filepath.Ext(archivePath))
}

// respawnDetached re-executes this command with --foreground in a new
// session, so the shell gets its prompt back while the mount stays up.
func respawnDetached() error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	child := exec.Command(exe, append(os.Args[1:], "--foreground")...)
	child.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	child.Stdout = os.Stdout
	child.Stderr = os.Stderr
	if err := child.Start(); err != nil {
		return fmt.Errorf("detach: %w", err)
	}
	return nil
}

func init() {
	archiveFlags(mountCmd)
	mountCmd.Flags().BoolP("foreground", "f", false, "stay in the foreground instead of detaching")
	mountCmd.Flags().StringP("prefix", "p", "", "mount the given archive subdirectory as the filesystem root")
	mountCmd.Flags().StringP("fuse", "o", "", "comma separated FUSE options, see 'man mount.fuse'")
	mountCmd.Flags().Bool("debug-fuse", false, "trace the FUSE protocol")
	rootCmd.AddCommand(mountCmd)
}
