package compress

import (
	"compress/bzip2"
	"fmt"
	"io"
	"sync"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// DefaultBlockSize is the granularity of the decompressed block cache.
const DefaultBlockSize = 512 * 1024

// DefaultCacheBytes bounds the decompressed block cache.
const DefaultCacheBytes = 64 * 1024 * 1024

// Checkpoint samples the compressed stream position at a decompressed offset.
// The compressed offset is approximate (decoders read ahead); checkpoints are
// used for progress and ratio estimates, not for exact resume.
type Checkpoint struct {
	Uncompressed int64
	Compressed   int64
}

// Source is what a Stream needs from the underlying archive file.
type Source interface {
	io.ReaderAt
	io.ReadSeeker
}

type decoderFactory func(io.Reader) (io.ReadCloser, error)

// Stream exposes a compressed file's decompressed contents as an io.ReaderAt
// and io.ReadSeeker. There is no general random access into deflate or bzip2
// streams, so seeking works by decompressing forward from the current decoder
// position and restarting from the beginning for backward jumps; a block
// cache absorbs the cost of repeated and backward reads.
type Stream struct {
	mu         sync.Mutex
	src        Source
	newDecoder decoderFactory

	dec    io.ReadCloser
	decOff int64 // decompressed offset the decoder will return next

	pos  int64 // logical position for Read/Seek
	size int64 // decompressed size, -1 until the stream has been read to EOF

	blockSize int64
	cache     *ristretto.Cache[int64, []byte]
	// lastBlock guards against cache admission lag: the most recent block is
	// always retained so an immediate re-read never restarts the decoder.
	lastBlockIdx int64
	lastBlock    []byte

	spacing     int64
	checkpoints []Checkpoint
}

// NewStream wraps src with a decoder for the given format. spacing controls
// how often checkpoints are sampled; 0 disables sampling. FormatNone and
// FormatXz are not valid here.
func NewStream(src Source, format Format, spacing int64) (*Stream, error) {
	var factory decoderFactory
	switch format {
	case FormatGzip:
		factory = func(r io.Reader) (io.ReadCloser, error) {
			return gzip.NewReader(r)
		}
	case FormatBzip2:
		factory = func(r io.Reader) (io.ReadCloser, error) {
			return io.NopCloser(bzip2.NewReader(r)), nil
		}
	case FormatZstd:
		factory = func(r io.Reader) (io.ReadCloser, error) {
			dec, err := zstd.NewReader(r)
			if err != nil {
				return nil, err
			}
			return dec.IOReadCloser(), nil
		}
	default:
		return nil, fmt.Errorf("no decoder for format %s", format)
	}

	cache, err := ristretto.NewCache(&ristretto.Config[int64, []byte]{
		NumCounters: 1 << 14,
		MaxCost:     DefaultCacheBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create block cache: %w", err)
	}

	return &Stream{
		src:          src,
		newDecoder:   factory,
		size:         -1,
		blockSize:    DefaultBlockSize,
		cache:        cache,
		lastBlockIdx: -1,
		spacing:      spacing,
	}, nil
}

// Checkpoints returns the samples collected while decompressing.
func (s *Stream) Checkpoints() []Checkpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Checkpoint, len(s.checkpoints))
	copy(out, s.checkpoints)
	return out
}

// Size returns the decompressed size, or -1 if the stream has not yet been
// read to its end.
func (s *Stream) Size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// ReadAt implements io.ReaderAt over the decompressed stream.
func (s *Stream) ReadAt(p []byte, off int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readAt(p, off)
}

func (s *Stream) readAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	total := 0
	for total < len(p) {
		idx := (off + int64(total)) / s.blockSize
		block, err := s.block(idx)
		if err != nil {
			return total, err
		}
		within := (off + int64(total)) - idx*s.blockSize
		if within >= int64(len(block)) {
			return total, io.EOF
		}
		total += copy(p[total:], block[within:])
		if int64(len(block)) < s.blockSize {
			// short block: end of stream
			if total < len(p) {
				return total, io.EOF
			}
		}
	}
	return total, nil
}

func (s *Stream) block(idx int64) ([]byte, error) {
	if idx == s.lastBlockIdx {
		return s.lastBlock, nil
	}
	if block, ok := s.cache.Get(idx); ok {
		s.lastBlockIdx, s.lastBlock = idx, block
		return block, nil
	}

	start := idx * s.blockSize
	if s.size >= 0 && start >= s.size {
		return nil, io.EOF
	}
	if err := s.ensureDecoderAt(start); err != nil {
		return nil, err
	}

	buf := make([]byte, s.blockSize)
	n, err := io.ReadFull(s.dec, buf)
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		s.size = s.decOff + int64(n)
		err = nil
	}
	if err != nil {
		return nil, fmt.Errorf("decompress at %d: %w", start, err)
	}
	s.decOff += int64(n)
	s.sample()
	buf = buf[:n]
	s.cache.Set(idx, buf, int64(len(buf)))
	s.lastBlockIdx, s.lastBlock = idx, buf
	if n == 0 {
		return nil, io.EOF
	}
	return buf, nil
}

// ensureDecoderAt positions the decoder so its next byte is the given
// decompressed offset, restarting from the beginning when necessary.
func (s *Stream) ensureDecoderAt(off int64) error {
	if s.dec == nil || s.decOff > off {
		if s.dec != nil {
			_ = s.dec.Close()
		}
		if _, err := s.src.Seek(0, io.SeekStart); err != nil {
			return err
		}
		dec, err := s.newDecoder(s.src)
		if err != nil {
			return fmt.Errorf("open decoder: %w", err)
		}
		s.dec = dec
		s.decOff = 0
	}
	if skip := off - s.decOff; skip > 0 {
		n, err := io.CopyN(io.Discard, s.dec, skip)
		s.decOff += n
		if err == io.EOF {
			s.size = s.decOff
			return io.EOF
		}
		if err != nil {
			return fmt.Errorf("skip to %d: %w", off, err)
		}
		s.sample()
	}
	return nil
}

// sample records a checkpoint when the decompressed position crossed the
// configured spacing since the previous sample.
func (s *Stream) sample() {
	if s.spacing <= 0 {
		return
	}
	var last int64
	if len(s.checkpoints) > 0 {
		last = s.checkpoints[len(s.checkpoints)-1].Uncompressed
	}
	if s.decOff-last < s.spacing {
		return
	}
	compressed, err := s.src.Seek(0, io.SeekCurrent)
	if err != nil {
		return
	}
	s.checkpoints = append(s.checkpoints, Checkpoint{Uncompressed: s.decOff, Compressed: compressed})
}

// Read implements io.Reader at the current position.
func (s *Stream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.readAt(p, s.pos)
	s.pos += int64(n)
	if err == io.EOF && n > 0 {
		err = nil
	}
	return n, err
}

// Seek implements io.Seeker. io.SeekEnd forces the stream to be decompressed
// to its end once so the size is known.
func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = s.pos + offset
	case io.SeekEnd:
		if s.size < 0 {
			if err := s.discoverSize(); err != nil {
				return 0, err
			}
		}
		pos = s.size + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if pos < 0 {
		return 0, fmt.Errorf("seek before start of file")
	}
	s.pos = pos
	return pos, nil
}

func (s *Stream) discoverSize() error {
	if err := s.ensureDecoderAt(0); err != nil && err != io.EOF {
		return err
	}
	n, err := io.Copy(io.Discard, s.dec)
	if err != nil {
		return fmt.Errorf("read to end: %w", err)
	}
	s.decOff += n
	s.size = s.decOff
	return nil
}

// Close releases the decoder and the block cache.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Close()
	if s.dec != nil {
		err := s.dec.Close()
		s.dec = nil
		return err
	}
	return nil
}
