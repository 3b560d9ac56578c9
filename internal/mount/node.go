package mount

import (
	"context"
	"errors"
	"hash/fnv"
	"io"
	"path"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/rs/zerolog/log"

	"github.com/tarmount/tarmount/internal/archive"
	"github.com/tarmount/tarmount/internal/index"
)

// shared state of one mounted archive.
type tree struct {
	arc    *archive.Archive
	prefix string // archive subdirectory mounted as root, "" for the whole archive
}

// archivePath maps a mount-relative path to the indexed archive path.
func (t *tree) archivePath(rel string) string {
	return index.NormalizePath(t.prefix + "/" + rel)
}

// node is one inode of the mounted archive.
type node struct {
	fs.Inode
	tree  *tree
	path  string // mount-relative path, "" for the root
	entry index.Entry
}

var (
	_ fs.NodeGetattrer  = (*node)(nil)
	_ fs.NodeLookuper   = (*node)(nil)
	_ fs.NodeReaddirer  = (*node)(nil)
	_ fs.NodeOpener     = (*node)(nil)
	_ fs.NodeReadlinker = (*node)(nil)
)

func (n *node) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	fillAttr(n.entry, &out.Attr)
	return 0
}

func (n *node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	rel := path.Join(n.path, name)
	e, err := n.tree.arc.Resolve(n.tree.archivePath(rel))
	if err != nil {
		log.Error().Err(err).Str("path", rel).Msg("index lookup failed")
		return nil, syscall.EIO
	}
	if e == nil {
		return nil, syscall.ENOENT
	}
	child := &node{tree: n.tree, path: rel, entry: *e}
	stable := fs.StableAttr{Mode: e.Mode & index.ModeTypeMask, Ino: pathIno(rel)}
	fillAttr(*e, &out.Attr)
	return n.NewInode(ctx, child, stable), 0
}

func (n *node) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	entries, err := n.tree.arc.Repo.ListDir(n.tree.archivePath(n.path))
	if err != nil {
		log.Error().Err(err).Str("path", n.path).Msg("index listing failed")
		return nil, syscall.EIO
	}
	if entries == nil {
		return nil, syscall.ENOENT
	}
	out := make([]fuse.DirEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, fuse.DirEntry{
			Name: e.Name,
			Mode: e.Mode & index.ModeTypeMask,
			Ino:  pathIno(path.Join(n.path, e.Name)),
		})
	}
	return fs.NewListDirStream(out), 0
}

func (n *node) Readlink(ctx context.Context) ([]byte, syscall.Errno) {
	if !n.entry.IsSymlink() {
		return nil, syscall.EINVAL
	}
	return []byte(n.entry.LinkName), 0
}

func (n *node) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	if flags&(syscall.O_WRONLY|syscall.O_RDWR) != 0 {
		return nil, 0, syscall.EROFS
	}
	// Data is served straight from the index offsets; keeping the kernel
	// page cache across opens is safe because the mount is immutable.
	return &handle{tree: n.tree, entry: n.entry}, fuse.FOPEN_KEEP_CACHE, 0
}

// handle reads one member's bytes.
type handle struct {
	tree  *tree
	entry index.Entry
}

var _ fs.FileReader = (*handle)(nil)

func (h *handle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	n, err := h.tree.arc.ReadMemberAt(h.entry, dest, off)
	if err != nil && !errors.Is(err, io.EOF) {
		log.Error().Err(err).Str("path", h.entry.FullPath()).Msg("read from archive failed")
		return nil, syscall.EIO
	}
	return fuse.ReadResultData(dest[:n]), 0
}

// fillAttr converts an index entry to FUSE attributes. Write bits are always
// cleared: the whole mount is read-only.
func fillAttr(e index.Entry, out *fuse.Attr) {
	out.Mode = e.Mode &^ 0o222
	out.Size = uint64(e.Size)
	if e.Mtime > 0 {
		out.Mtime = uint64(e.Mtime)
		out.Atime = out.Mtime
		out.Ctime = out.Mtime
	}
	out.Uid = uint32(e.UID)
	out.Gid = uint32(e.GID)
	out.Nlink = 1
	if e.IsDir() {
		out.Nlink = 2
	}
}

func pathIno(rel string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte("/" + rel))
	return h.Sum64()
}
