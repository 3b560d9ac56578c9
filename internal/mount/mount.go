// Package mount serves an indexed archive as a read-only FUSE filesystem.
package mount

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/rs/zerolog/log"

	"github.com/tarmount/tarmount/internal/archive"
	"github.com/tarmount/tarmount/internal/index"
)

// Options controls the FUSE mount.
type Options struct {
	// FuseOptions is a comma separated key[=value] list, the usual -o format.
	FuseOptions string
	// Prefix mounts the given archive subdirectory as the filesystem root.
	Prefix string
	// Debug enables FUSE protocol tracing.
	Debug bool
}

// Server is a running FUSE mount.
type Server struct {
	srv        *fuse.Server
	mountpoint string
	created    bool
}

// Mount exposes the archive at the given mountpoint. The mountpoint is
// created when missing and removed again after unmount.
func Mount(arc *archive.Archive, mountpoint string, opts Options) (*Server, error) {
	created := false
	if _, err := os.Stat(mountpoint); os.IsNotExist(err) {
		if err := os.Mkdir(mountpoint, 0o755); err != nil {
			return nil, fmt.Errorf("create mountpoint: %w", err)
		}
		created = true
	}

	if opts.Prefix != "" {
		prefix := index.NormalizePath(opts.Prefix)
		ok, err := arc.Repo.IsDir(prefix)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("prefix %s is not a directory in the archive", prefix)
		}
		opts.Prefix = prefix
	}

	re, err := rootEntry(arc)
	if err != nil {
		return nil, err
	}
	t := &tree{arc: arc, prefix: strings.TrimSuffix(opts.Prefix, "/")}
	root := &node{tree: t, path: "", entry: re}

	timeout := time.Second
	mopts := fuse.MountOptions{
		FsName: arc.Path,
		Name:   "tarmount",
		Debug:  opts.Debug,
	}
	for _, opt := range splitFuseOptions(opts.FuseOptions) {
		switch opt {
		case "allow_other":
			mopts.AllowOther = true
		case "":
		default:
			mopts.Options = append(mopts.Options, opt)
		}
	}
	mopts.Options = append(mopts.Options, "ro")

	srv, err := fs.Mount(mountpoint, root, &fs.Options{
		MountOptions: mopts,
		AttrTimeout:  &timeout,
		EntryTimeout: &timeout,
	})
	if err != nil {
		if created {
			_ = os.Remove(mountpoint)
		}
		return nil, fmt.Errorf("mount %s: %w", mountpoint, err)
	}
	log.Info().Str("archive", arc.Path).Str("mountpoint", mountpoint).Msg("mounted")
	return &Server{srv: srv, mountpoint: mountpoint, created: created}, nil
}

// Wait blocks until the filesystem is unmounted, then cleans up a mountpoint
// this process created.
func (s *Server) Wait() {
	s.srv.Wait()
	if s.created {
		_ = os.Remove(s.mountpoint)
	}
}

// Unmount detaches the filesystem.
func (s *Server) Unmount() error {
	return s.srv.Unmount()
}

// rootEntry fabricates the mount root from the archive file's own stat: same
// permissions with the directory bit set and read bits propagated to execute
// bits so listings work.
func rootEntry(arc *archive.Archive) (index.Entry, error) {
	fi, err := os.Stat(arc.Path)
	if err != nil {
		return index.Entry{}, err
	}
	e := index.Entry{
		Size:  fi.Size(),
		Mtime: fi.ModTime().Unix(),
		Mode:  dirModeFrom(uint32(fi.Mode().Perm())),
		IsTar: true,
	}
	return e, nil
}

func dirModeFrom(perm uint32) uint32 {
	mode := perm&0o777 | index.ModeDir
	if mode&0o400 != 0 {
		mode |= 0o100
	}
	if mode&0o040 != 0 {
		mode |= 0o010
	}
	if mode&0o004 != 0 {
		mode |= 0o001
	}
	return mode
}

func splitFuseOptions(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
