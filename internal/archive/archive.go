// Package archive opens a TAR archive together with its offset index,
// building or rebuilding the index as needed.
package archive

import (
	"archive/tar"
	"database/sql"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"

	"github.com/tarmount/tarmount/internal/compress"
	"github.com/tarmount/tarmount/internal/config"
	"github.com/tarmount/tarmount/internal/db"
	"github.com/tarmount/tarmount/internal/index"
	"github.com/tarmount/tarmount/internal/scan"
	"github.com/tarmount/tarmount/internal/stencil"
	"github.com/tarmount/tarmount/internal/version"
)

// Options controls how an archive is opened and indexed.
type Options struct {
	// RecreateIndex deletes cached index files before opening.
	RecreateIndex bool
	// Recursive indexes nested .tar members as directories.
	Recursive bool
	// WriteIndex persists a freshly built index; when false (or when no
	// candidate location is writable) the index lives in memory only.
	WriteIndex bool
	// CheckpointSpacing for compressed archives; 0 uses the default.
	CheckpointSpacing int64
}

// Archive is an opened TAR archive with a loaded index. All reads of member
// data go through Reader, which addresses the decompressed stream.
type Archive struct {
	Path   string
	Format compress.Format
	Repo   *index.Repository
	// IndexPath is the index database location, empty for in-memory.
	IndexPath string

	file   *os.File
	stream *compress.Stream
	reader scan.Source
	conn   *sql.DB
}

// Open opens the archive at path, loading a cached index when one is valid
// and building a new one otherwise.
func Open(path string, opts Options) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	a := &Archive{Path: path, file: f}

	a.Format, err = compress.Detect(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	if a.Format == compress.FormatNone {
		a.reader = f
	} else {
		spacing := opts.CheckpointSpacing
		if spacing <= 0 {
			spacing = config.DefaultCheckpointSpacing
		}
		a.stream, err = compress.NewStream(f, a.Format, spacing)
		if err != nil {
			f.Close()
			return nil, err
		}
		a.reader = a.stream
	}

	if err := a.openIndex(opts); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *Archive) openIndex(opts Options) error {
	candidates, err := config.IndexCandidates(a.Path)
	if err != nil {
		return err
	}
	if opts.RecreateIndex {
		for _, c := range candidates {
			if err := os.Remove(c); err != nil && !os.IsNotExist(err) {
				log.Warn().Str("index", c).Err(err).Msg("could not remove cached index")
			}
		}
	}

	if a.tryLoad(candidates) {
		if a.stream != nil {
			if cps, err := a.Repo.LoadCheckpoints(); err == nil && len(cps) > 0 {
				last := cps[len(cps)-1]
				log.Debug().
					Int("checkpoints", len(cps)).
					Str("indexed", humanize.IBytes(uint64(last.Uncompressed))).
					Msg("loaded compression seek points")
			}
		}
		return nil
	}
	return a.build(candidates, opts)
}

// tryLoad attempts each candidate index in order, discarding the ones that
// fail validation.
func (a *Archive) tryLoad(candidates []string) bool {
	for _, c := range candidates {
		if _, err := os.Stat(c); err != nil {
			continue
		}
		conn, err := db.Open(c)
		if err != nil {
			// Remove it, or the location stays blocked for rebuilding.
			log.Warn().Str("index", c).Err(err).Msg("removing unreadable cached index")
			if err := os.Remove(c); err != nil {
				log.Warn().Str("index", c).Err(err).Msg("could not remove cached index")
			}
			continue
		}
		repo := index.NewRepository(conn)
		if err := repo.Validate(a.Path, version.IndexFormat); err != nil {
			log.Warn().Str("index", c).Err(err).Msg("discarding stale index, it will be recreated")
			conn.Close()
			if err := os.Remove(c); err != nil {
				log.Warn().Str("index", c).Err(err).Msg("could not remove stale index")
			}
			continue
		}
		log.Debug().Str("index", c).Msg("loaded cached index")
		a.conn, a.Repo, a.IndexPath = conn, repo, c
		return true
	}
	return false
}

// build scans the archive into a new index at the first writable candidate
// location, or in memory when persisting is disabled or impossible.
func (a *Archive) build(candidates []string, opts Options) error {
	target := ":memory:"
	if opts.WriteIndex {
		for _, c := range candidates {
			if writable(c) {
				target = c
				break
			}
		}
		if target == ":memory:" {
			log.Warn().Msg("no writable index location, index will not be persisted and the next mount will be slow")
		}
	}

	conn, err := db.Open(target)
	if err != nil {
		if target == ":memory:" {
			return err
		}
		log.Warn().Str("index", target).Err(err).Msg("could not create index file, falling back to in-memory index")
		target = ":memory:"
		if conn, err = db.Open(target); err != nil {
			return err
		}
	}
	repo := index.NewRepository(conn)

	total := int64(0)
	if a.Format == compress.FormatNone {
		if fi, err := a.file.Stat(); err == nil {
			total = fi.Size()
		}
	}
	log.Info().Str("archive", a.Path).Str("compression", a.Format.String()).Msg("creating offset index")
	if err := scan.Scan(repo, a.reader, scan.Options{Recursive: opts.Recursive, TotalSize: total}); err != nil {
		conn.Close()
		return fmt.Errorf("scan archive: %w", err)
	}
	if err := repo.WriteVersions(version.Version, version.IndexFormat); err != nil {
		conn.Close()
		return err
	}
	if err := repo.WriteArchiveStat(a.Path); err != nil {
		log.Warn().Err(err).Msg("could not record archive metadata, stale index detection will not work")
	}
	if a.stream != nil {
		cps := a.stream.Checkpoints()
		out := make([]index.Checkpoint, len(cps))
		for i, cp := range cps {
			out[i] = index.Checkpoint{Uncompressed: cp.Uncompressed, Compressed: cp.Compressed}
		}
		if err := repo.SaveCheckpoints(out); err != nil {
			log.Warn().Err(err).Msg("could not store compression checkpoints")
		}
	}

	if target != ":memory:" {
		if fi, err := os.Stat(target); err == nil {
			log.Info().Str("index", target).Int64("bytes", fi.Size()).Msg("index written")
		}
		a.IndexPath = target
	}
	a.conn, a.Repo = conn, repo
	return nil
}

// writable probes whether an index file can be created at path.
func writable(path string) bool {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return false
	}
	f.Close()
	os.Remove(path)
	return true
}

// Reader returns the decompressed archive stream.
func (a *Archive) Reader() scan.Source { return a.reader }

// ReadMemberAt reads member data, expanding sparse members through the tar
// layer. It implements the usual ReaderAt contract per member: reads past the
// member end return io.EOF.
func (a *Archive) ReadMemberAt(e index.Entry, p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	if off >= e.Size {
		return 0, io.EOF
	}
	if max := e.Size - off; int64(len(p)) > max {
		p = p[:max]
	}
	if e.IsSparse {
		return a.readSparseAt(e, p, off)
	}
	return a.reader.ReadAt(p, e.DataOffset+off)
}

// readSparseAt cuts the member's whole tar block out of the archive and lets
// the tar layer expand the holes. The block length is bounded by the expanded
// size, which can only overshoot into following members' headers; the tar
// reader stops at the member end regardless.
func (a *Archive) readSparseAt(e index.Entry, p []byte, off int64) (int, error) {
	blockLen := e.DataOffset - e.HeaderOffset + e.Size
	block, err := stencil.New(a.reader, []stencil.Segment{{Offset: e.HeaderOffset, Length: blockLen}})
	if err != nil {
		return 0, err
	}
	tr := tar.NewReader(block)
	if _, err := tr.Next(); err != nil {
		return 0, fmt.Errorf("reparse sparse member %s: %w", e.FullPath(), err)
	}
	if _, err := io.CopyN(io.Discard, tr, off); err != nil {
		if err == io.EOF {
			return 0, io.EOF
		}
		return 0, err
	}
	n, err := io.ReadFull(tr, p)
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		err = nil
	}
	return n, err
}

// Resolve looks up an archive path and follows hard links to their target.
// It returns nil without error when the path does not exist.
func (a *Archive) Resolve(full string) (*index.Entry, error) {
	full = index.NormalizePath(full)
	e, err := a.Repo.Lookup(full)
	if err != nil || e == nil {
		return e, err
	}
	for hops := 0; e.IsHardLink() && hops < 40; hops++ {
		target := index.NormalizePath(e.LinkName)
		if target == full {
			break
		}
		next, err := a.Repo.Lookup(target)
		if err != nil || next == nil {
			return next, err
		}
		full, e = target, next
	}
	return e, nil
}

// MemberReader returns a sequential reader over one member's expanded
// contents.
func (a *Archive) MemberReader(e index.Entry) *io.SectionReader {
	return io.NewSectionReader(memberReaderAt{a: a, e: e}, 0, e.Size)
}

type memberReaderAt struct {
	a *Archive
	e index.Entry
}

func (m memberReaderAt) ReadAt(p []byte, off int64) (int, error) {
	return m.a.ReadMemberAt(m.e, p, off)
}

// Close releases the index connection and the archive file.
func (a *Archive) Close() error {
	if a.conn != nil {
		_ = a.conn.Close()
	}
	if a.stream != nil {
		_ = a.stream.Close()
	}
	if a.file != nil {
		return a.file.Close()
	}
	return nil
}

// ClearIndexCaches removes all cached index files for the given archive.
func ClearIndexCaches(archivePath string) error {
	candidates, err := config.IndexCandidates(archivePath)
	if err != nil {
		return err
	}
	for _, c := range candidates {
		if err := os.Remove(c); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", c, err)
		}
	}
	return nil
}
