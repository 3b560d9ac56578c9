// Package index stores and queries the SQLite offset index for an archive.
package index

import (
	"os"
	"path"
	"strings"
)

// Entry is one row of the files table: everything needed to stat a member
// and to read its bytes straight out of the archive.
type Entry struct {
	Path         string // parent directory, "" for members of the archive root
	Name         string
	HeaderOffset int64 // offset of the tar header block
	DataOffset   int64 // offset of the member data
	Size         int64 // expanded size for sparse members
	Mtime        int64
	Mode         uint32
	Type         byte // tar type flag
	LinkName     string
	UID          int
	GID          int
	IsTar        bool // nested archive presented as a directory
	IsSparse     bool
}

// Unix file type bits, kept platform independent so indexes built on one OS
// serve on another.
const (
	ModeTypeMask uint32 = 0o170000
	ModeFifo     uint32 = 0o010000
	ModeChar     uint32 = 0o020000
	ModeDir      uint32 = 0o040000
	ModeBlock    uint32 = 0o060000
	ModeRegular  uint32 = 0o100000
	ModeSymlink  uint32 = 0o120000
)

// IsDir reports whether the entry is a directory.
func (e Entry) IsDir() bool { return e.Mode&ModeTypeMask == ModeDir }

// IsSymlink reports whether the entry is a symbolic link.
func (e Entry) IsSymlink() bool { return e.Mode&ModeTypeMask == ModeSymlink }

// IsRegular reports whether the entry is a regular file.
func (e Entry) IsRegular() bool { return e.Mode&ModeTypeMask == ModeRegular }

// IsHardLink reports whether the entry is a tar hard link: no file type bits
// but a link target. Reads and stats follow the target.
func (e Entry) IsHardLink() bool {
	return e.Mode&ModeTypeMask != ModeRegular && e.Mode&ModeTypeMask != ModeSymlink && e.LinkName != ""
}

// FileMode converts the stored unix mode bits to an os.FileMode for display.
func (e Entry) FileMode() os.FileMode {
	mode := os.FileMode(e.Mode & 0o777)
	switch e.Mode & ModeTypeMask {
	case ModeDir:
		mode |= os.ModeDir
	case ModeSymlink:
		mode |= os.ModeSymlink
	case ModeChar:
		mode |= os.ModeDevice | os.ModeCharDevice
	case ModeBlock:
		mode |= os.ModeDevice
	case ModeFifo:
		mode |= os.ModeNamedPipe
	}
	return mode
}

// FullPath returns the entry's absolute path inside the archive.
func (e Entry) FullPath() string {
	return e.Path + "/" + e.Name
}

// NormalizePath cleans p and roots it at '/'. The archive root is "/".
func NormalizePath(p string) string {
	return "/" + strings.TrimLeft(path.Clean("/"+p), "/")
}

// SplitPath splits a normalized path into the (path, name) pair used as the
// files table primary key. "/foo/bar" -> ("/foo", "bar"), "/foo" -> ("", "foo").
func SplitPath(full string) (dir, name string) {
	full = NormalizePath(full)
	i := strings.LastIndex(full, "/")
	return full[:i], full[i+1:]
}
