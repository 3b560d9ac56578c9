// Package stencil presents selected segments of an underlying file as one
// contiguous read-only file.
package stencil

import (
	"fmt"
	"io"
	"sort"
)

// Segment selects length bytes starting at offset of the underlying file.
type Segment struct {
	Offset int64
	Length int64
}

// File is a read-only view composed of an ordered list of segments of an
// io.ReaderAt. Segments may overlap or repeat; their order is preserved.
// It implements io.ReaderAt, io.ReadSeeker and io.Closer.
type File struct {
	r        io.ReaderAt
	segments []Segment
	cum      []int64 // cum[i] is the view offset where segment i starts; len(segments)+1 entries
	pos      int64
}

// New creates a stenciled view of r. All segment offsets must be non-negative
// and all lengths positive.
func New(r io.ReaderAt, segments []Segment) (*File, error) {
	cum := make([]int64, len(segments)+1)
	for i, s := range segments {
		if s.Offset < 0 || s.Length <= 0 {
			return nil, fmt.Errorf("invalid segment %d: offset %d length %d", i, s.Offset, s.Length)
		}
		cum[i+1] = cum[i] + s.Length
	}
	return &File{r: r, segments: segments, cum: cum}, nil
}

// Size returns the total size of the view.
func (f *File) Size() int64 { return f.cum[len(f.cum)-1] }

// findSegment returns the index of the segment containing the view offset.
// Offsets on a boundary belong to the following segment.
func (f *File) findSegment(off int64) int {
	i := sort.Search(len(f.cum), func(i int) bool { return f.cum[i] > off }) - 1
	if i < 0 {
		i = 0
	}
	return i
}

// ReadAt implements io.ReaderAt over the stenciled view.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	total := 0
	for total < len(p) && off < f.Size() {
		i := f.findSegment(off)
		seg := f.segments[i]
		within := off - f.cum[i]
		n := int64(len(p) - total)
		if rest := seg.Length - within; rest < n {
			n = rest
		}
		read, err := f.r.ReadAt(p[total:total+int(n)], seg.Offset+within)
		total += read
		off += int64(read)
		if err != nil {
			return total, err
		}
	}
	if total < len(p) {
		return total, io.EOF
	}
	return total, nil
}

// Read implements io.Reader at the current position.
func (f *File) Read(p []byte) (int, error) {
	if f.pos >= f.Size() {
		return 0, io.EOF
	}
	n, err := f.ReadAt(p, f.pos)
	f.pos += int64(n)
	if err == io.EOF && n > 0 {
		err = nil
	}
	return n, err
}

// Seek implements io.Seeker. Seeking beyond the end is allowed; the next read
// returns io.EOF.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = f.pos + offset
	case io.SeekEnd:
		pos = f.Size() + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if pos < 0 {
		return 0, fmt.Errorf("seek before start of file")
	}
	f.pos = pos
	return pos, nil
}

// Close releases nothing; the underlying reader stays open for other views.
func (f *File) Close() error { return nil }
