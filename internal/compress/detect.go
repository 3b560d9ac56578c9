// Package compress detects archive compression and exposes the decompressed
// stream as a seekable, cached reader.
package compress

import (
	"bytes"
	"fmt"
	"io"
)

// Format identifies the compression wrapping an archive file.
type Format int

const (
	FormatNone Format = iota
	FormatGzip
	FormatBzip2
	FormatZstd
	FormatXz
)

func (f Format) String() string {
	switch f {
	case FormatNone:
		return "none"
	case FormatGzip:
		return "gzip"
	case FormatBzip2:
		return "bzip2"
	case FormatZstd:
		return "zstd"
	case FormatXz:
		return "xz"
	}
	return "unknown"
}

var (
	magicGzip  = []byte{0x1f, 0x8b}
	magicBzip2 = []byte("BZh")
	magicZstd  = []byte{0x28, 0xb5, 0x2f, 0xfd}
	magicXz    = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
)

// Detect sniffs the first bytes of r and returns the compression format.
// Anything without a known compression magic is treated as uncompressed; the
// tar layer decides whether it is a valid archive. xz is recognized but
// rejected because no seekable decoder is wired in.
func Detect(r io.ReaderAt) (Format, error) {
	buf := make([]byte, 6)
	n, err := r.ReadAt(buf, 0)
	if err != nil && err != io.EOF {
		return FormatNone, fmt.Errorf("read archive head: %w", err)
	}
	buf = buf[:n]
	switch {
	case bytes.HasPrefix(buf, magicXz):
		return FormatXz, fmt.Errorf("xz compressed archives are not supported")
	case bytes.HasPrefix(buf, magicGzip):
		return FormatGzip, nil
	case bytes.HasPrefix(buf, magicBzip2):
		return FormatBzip2, nil
	case bytes.HasPrefix(buf, magicZstd):
		return FormatZstd, nil
	}
	return FormatNone, nil
}
