package index

import (
	"os"
	"testing"
)

func TestNormalizePath(t *testing.T) {
	cases := []struct{ in, want string }{
		{"", "/"},
		{"/", "/"},
		{"foo", "/foo"},
		{"/foo/", "/foo"},
		{"./foo/../bar", "/bar"},
		{"a//b", "/a/b"},
	}
	for _, tc := range cases {
		if got := NormalizePath(tc.in); got != tc.want {
			t.Fatalf("NormalizePath(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSplitPath(t *testing.T) {
	cases := []struct{ in, dir, name string }{
		{"/", "", ""},
		{"/foo", "", "foo"},
		{"/foo/bar", "/foo", "bar"},
		{"foo/bar/baz", "/foo/bar", "baz"},
	}
	for _, tc := range cases {
		dir, name := SplitPath(tc.in)
		if dir != tc.dir || name != tc.name {
			t.Fatalf("SplitPath(%q) = (%q, %q), want (%q, %q)", tc.in, dir, name, tc.dir, tc.name)
		}
	}
}

func TestEntryKinds(t *testing.T) {
	dir := Entry{Mode: 0o755 | ModeDir}
	if !dir.IsDir() || dir.IsRegular() || dir.IsSymlink() {
		t.Fatal("directory entry misclassified")
	}
	reg := Entry{Mode: 0o644 | ModeRegular}
	if !reg.IsRegular() || reg.IsDir() {
		t.Fatal("regular entry misclassified")
	}
	sym := Entry{Mode: 0o777 | ModeSymlink, LinkName: "target"}
	if !sym.IsSymlink() || sym.IsHardLink() {
		t.Fatal("symlink entry misclassified")
	}
	hard := Entry{Mode: 0o644, LinkName: "target"}
	if !hard.IsHardLink() {
		t.Fatal("hard link entry misclassified")
	}
}

func TestFileMode(t *testing.T) {
	cases := []struct {
		mode uint32
		want os.FileMode
	}{
		{0o755 | ModeDir, os.ModeDir | 0o755},
		{0o644 | ModeRegular, 0o644},
		{0o777 | ModeSymlink, os.ModeSymlink | 0o777},
		{0o660 | ModeChar, os.ModeDevice | os.ModeCharDevice | 0o660},
		{0o660 | ModeBlock, os.ModeDevice | 0o660},
		{0o600 | ModeFifo, os.ModeNamedPipe | 0o600},
	}
	for _, tc := range cases {
		e := Entry{Mode: tc.mode}
		if got := e.FileMode(); got != tc.want {
			t.Fatalf("FileMode(%o) = %v, want %v", tc.mode, got, tc.want)
		}
	}
}
