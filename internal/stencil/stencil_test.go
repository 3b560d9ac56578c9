package stencil

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestReadAtConcatenatesSegments(t *testing.T) {
	base := strings.NewReader("0123456789")
	f, err := New(base, []Segment{{Offset: 2, Length: 3}, {Offset: 0, Length: 2}, {Offset: 8, Length: 2}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if f.Size() != 7 {
		t.Fatalf("Size = %d, want 7", f.Size())
	}
	got, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "2340189" {
		t.Fatalf("read %q, want %q", got, "2340189")
	}
}

func TestReadAtAcrossBoundary(t *testing.T) {
	base := strings.NewReader("abcdef")
	f, err := New(base, []Segment{{Offset: 0, Length: 2}, {Offset: 4, Length: 2}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	buf := make([]byte, 2)
	if _, err := f.ReadAt(buf, 1); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if string(buf) != "be" {
		t.Fatalf("ReadAt(1) = %q, want %q", buf, "be")
	}
}

func TestReadAtPastEnd(t *testing.T) {
	base := strings.NewReader("abcdef")
	f, err := New(base, []Segment{{Offset: 0, Length: 4}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	buf := make([]byte, 8)
	n, err := f.ReadAt(buf, 2)
	if err != io.EOF {
		t.Fatalf("err = %v, want io.EOF", err)
	}
	if n != 2 || string(buf[:n]) != "cd" {
		t.Fatalf("read %d bytes %q, want 2 bytes %q", n, buf[:n], "cd")
	}
	if _, err := f.ReadAt(buf, 10); err != io.EOF {
		t.Fatalf("err = %v, want io.EOF", err)
	}
}

func TestSeek(t *testing.T) {
	base := bytes.NewReader([]byte("abcdef"))
	f, err := New(base, []Segment{{Offset: 0, Length: 6}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := f.Seek(-2, io.SeekEnd); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	got, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "ef" {
		t.Fatalf("read %q, want %q", got, "ef")
	}
	if _, err := f.Seek(-1, io.SeekStart); err == nil {
		t.Fatal("expected error seeking before start")
	}
}

func TestInvalidSegments(t *testing.T) {
	base := strings.NewReader("abc")
	if _, err := New(base, []Segment{{Offset: -1, Length: 1}}); err == nil {
		t.Fatal("expected error for negative offset")
	}
	if _, err := New(base, []Segment{{Offset: 0, Length: 0}}); err == nil {
		t.Fatal("expected error for zero length")
	}
}
