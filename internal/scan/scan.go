// Package scan walks a TAR stream once and fills the offset index.
package scan

import (
	"archive/tar"
	"errors"
	"io"
	"path"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/tarmount/tarmount/internal/index"
	"github.com/tarmount/tarmount/internal/stencil"
)

// Source is the decompressed archive stream the scanner walks. Random access
// is needed for nested archive scanning; sequential reads drive the walk
// itself.
type Source interface {
	io.ReaderAt
	io.ReadSeeker
}

// Options controls a scan.
type Options struct {
	// Recursive scans .tar members and mounts their contents below the
	// member's path.
	Recursive bool
	// TotalSize of the stream when known; only used for progress estimates.
	TotalSize int64
}

// Scan walks the archive stream and stores every member into the repository.
// The caller is responsible for writing version and stat metadata afterwards.
func Scan(repo *index.Repository, src Source, opts Options) error {
	if err := repo.BeginScan(); err != nil {
		return err
	}
	w := &walker{repo: repo, src: src, opts: opts, progress: newProgress(opts.TotalSize)}
	if err := w.walk(src, "", 0); err != nil {
		return err
	}
	return repo.Finalize(0o555|index.ModeDir, tar.TypeDir)
}

type walker struct {
	repo     *index.Repository
	src      Source
	opts     Options
	progress *progress
}

// walk reads one tar stream. prefix is the archive path members are mounted
// below ("" for the outermost archive); base is the offset of this stream
// within the outer source, added so stored offsets always address src.
func (w *walker) walk(r io.ReadSeeker, prefix string, base int64) error {
	t := newTracker(r)
	tr := tar.NewReader(t)
	for {
		t.markHeader()
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			// A truncated archive still yields a usable index for the
			// members seen so far.
			if errors.Is(err, io.ErrUnexpectedEOF) {
				log.Warn().Msg("archive is incomplete, members past the truncation point are missing")
				return nil
			}
			return err
		}

		headerOffset := base + t.header
		dataOffset := base + t.pos
		w.progress.update(dataOffset)

		cleaned := strings.TrimLeft(path.Clean("/"+hdr.Name), "/")
		if cleaned == "" {
			// "." or ".." members would collide with the implicit root.
			log.Debug().Str("member", hdr.Name).Msg("skipping member without a usable name")
			continue
		}
		full := prefix + "/" + cleaned
		mode := unixMode(hdr)
		isTar := false

		if w.opts.Recursive && hdr.Typeflag == tar.TypeReg && strings.HasSuffix(hdr.Name, ".tar") && hdr.Size > 0 {
			nested, err := stencil.New(w.src, []stencil.Segment{{Offset: dataOffset, Length: hdr.Size}})
			if err != nil {
				return err
			}
			if looksLikeTar(nested) {
				if _, err := nested.Seek(0, io.SeekStart); err != nil {
					return err
				}
				if err := w.walk(nested, full, dataOffset); err != nil {
					return err
				}
				mode = dirify(mode)
				isTar = true
			}
		}

		dir, name := index.SplitPath(full)
		e := index.Entry{
			Path:         dir,
			Name:         name,
			HeaderOffset: headerOffset,
			DataOffset:   dataOffset,
			Size:         hdr.Size,
			Mtime:        hdr.ModTime.Unix(),
			Mode:         mode,
			Type:         hdr.Typeflag,
			LinkName:     hdr.Linkname,
			UID:          hdr.Uid,
			GID:          hdr.Gid,
			IsTar:        isTar,
			IsSparse:     isSparse(hdr),
		}
		if err := w.repo.InsertEntry(e); err != nil {
			return err
		}
	}
}

// looksLikeTar probes the first header of a candidate nested archive.
func looksLikeTar(r io.Reader) bool {
	_, err := tar.NewReader(r).Next()
	return err == nil
}

// blockSize is the tar block granularity; headers always start on a block
// boundary.
const blockSize = 512

// tracker observes the positions the tar reader touches. tar.Reader disposes
// of a member's unread data lazily inside Next: a seek to the last unread
// data byte, a one-byte verification read, then a short read for the block
// padding. None of those mark the header; the header chain starts at the
// first full-block read on a block boundary after the mark.
type tracker struct {
	rs      io.ReadSeeker
	pos     int64
	capture bool
	header  int64
}

func newTracker(rs io.ReadSeeker) *tracker {
	return &tracker{rs: rs}
}

// markHeader arms the tracker: the next header-block read starts a member.
func (t *tracker) markHeader() { t.capture = true }

func (t *tracker) Read(p []byte) (int, error) {
	if t.capture && len(p) >= blockSize && t.pos%blockSize == 0 {
		t.header = t.pos
		t.capture = false
	}
	n, err := t.rs.Read(p)
	t.pos += int64(n)
	return n, err
}

func (t *tracker) Seek(offset int64, whence int) (int64, error) {
	pos, err := t.rs.Seek(offset, whence)
	if err != nil {
		return pos, err
	}
	t.pos = pos
	return pos, nil
}

// unixMode folds the tar type flag into the permission bits. Hard links keep
// no type bits so readers know to follow the link target.
func unixMode(hdr *tar.Header) uint32 {
	mode := uint32(hdr.Mode) & 0o7777
	switch hdr.Typeflag {
	case tar.TypeDir:
		mode |= index.ModeDir
	case tar.TypeSymlink:
		mode |= index.ModeSymlink
	case tar.TypeChar:
		mode |= index.ModeChar
	case tar.TypeBlock:
		mode |= index.ModeBlock
	case tar.TypeFifo:
		mode |= index.ModeFifo
	case tar.TypeLink:
		// hard link: leave untyped
	default:
		mode |= index.ModeRegular
	}
	return mode
}

// dirify turns a member's mode into a directory mode, propagating each read
// bit to the matching execute bit so the directory can be entered.
func dirify(mode uint32) uint32 {
	mode = mode&0o777 | index.ModeDir
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

func isSparse(hdr *tar.Header) bool {
	if hdr.Typeflag == tar.TypeGNUSparse {
		return true
	}
	for key := range hdr.PAXRecords {
		if strings.HasPrefix(key, "GNU.sparse.") {
			return true
		}
	}
	return false
}
