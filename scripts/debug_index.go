// Debug helper that indexes a generated archive and dumps the result.
package main

import (
	"archive/tar"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tarmount/tarmount/internal/archive"
	"github.com/tarmount/tarmount/internal/index"
)

func main() {
	tmp, err := os.MkdirTemp("", "tarmount-debug")
	if err != nil {
		panic(err)
	}
	defer func() { _ = os.RemoveAll(tmp) }()

	path := filepath.Join(tmp, "sample.tar")
	if err := os.WriteFile(path, sampleTar(), 0o644); err != nil {
		panic(err)
	}

	arc, err := archive.Open(path, archive.Options{WriteIndex: true, Recursive: true})
	if err != nil {
		panic(err)
	}
	defer func() { _ = arc.Close() }()

	fmt.Println("index:", arc.IndexPath)
	dump(arc, "/", 0)

	e, err := arc.Resolve("/docs/readme.txt")
	if err != nil {
		panic(err)
	}
	data, err := io.ReadAll(arc.MemberReader(*e))
	fmt.Printf("readme contents: %q err: %v\n", data, err)
}

func dump(arc *archive.Archive, dir string, depth int) {
	entries, err := arc.Repo.ListDir(dir)
	if err != nil {
		panic(err)
	}
	for _, e := range entries {
		fmt.Printf("%s%s %s (%d bytes at %d)\n",
			strings.Repeat("  ", depth), e.FileMode(), e.Name, e.Size, e.DataOffset)
		if e.IsDir() {
			dump(arc, index.NormalizePath(dir+"/"+e.Name), depth+1)
		}
	}
}

func sampleTar() []byte {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	now := time.Now()
	write := func(hdr tar.Header, body string) {
		hdr.ModTime = now
		if hdr.Typeflag == tar.TypeReg {
			hdr.Size = int64(len(body))
		}
		if err := tw.WriteHeader(&hdr); err != nil {
			panic(err)
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			panic(err)
		}
	}
	write(tar.Header{Name: "docs/", Mode: 0o755, Typeflag: tar.TypeDir}, "")
	write(tar.Header{Name: "docs/readme.txt", Mode: 0o644, Typeflag: tar.TypeReg}, "hello from the sample archive\n")
	write(tar.Header{Name: "data.bin", Mode: 0o600, Typeflag: tar.TypeReg}, strings.Repeat("x", 2048))
	if err := tw.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
