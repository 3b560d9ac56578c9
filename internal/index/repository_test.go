package index

import (
	"archive/tar"
	"testing"

	"github.com/tarmount/tarmount/internal/db"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	conn, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return NewRepository(conn)
}

func fillRepo(t *testing.T, r *Repository, entries []Entry) {
	t.Helper()
	if err := r.BeginScan(); err != nil {
		t.Fatalf("BeginScan: %v", err)
	}
	for _, e := range entries {
		if err := r.InsertEntry(e); err != nil {
			t.Fatalf("InsertEntry(%s): %v", e.FullPath(), err)
		}
	}
	if err := r.Finalize(0o555|ModeDir, tar.TypeDir); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
}

func TestLookup(t *testing.T) {
	r := newTestRepo(t)
	fillRepo(t, r, []Entry{
		{Path: "", Name: "hello.txt", Size: 5, Mode: 0o644 | ModeRegular, Type: tar.TypeReg},
		{Path: "/sub", Name: "world.txt", Size: 7, Mode: 0o600 | ModeRegular, Type: tar.TypeReg},
	})

	e, err := r.Lookup("/hello.txt")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if e == nil || e.Size != 5 {
		t.Fatalf("Lookup(/hello.txt) = %+v", e)
	}

	e, err = r.Lookup("/sub/world.txt")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if e == nil || e.Size != 7 {
		t.Fatalf("Lookup(/sub/world.txt) = %+v", e)
	}

	e, err = r.Lookup("/no/such/file")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if e != nil {
		t.Fatalf("Lookup of missing path = %+v, want nil", e)
	}
}

func TestSynthesizedParentFolders(t *testing.T) {
	r := newTestRepo(t)
	fillRepo(t, r, []Entry{
		{Path: "/a/b/c", Name: "deep.txt", Mode: 0o644 | ModeRegular, Type: tar.TypeReg},
	})

	for _, dir := range []string{"/a", "/a/b", "/a/b/c"} {
		e, err := r.Lookup(dir)
		if err != nil {
			t.Fatalf("Lookup(%s): %v", dir, err)
		}
		if e == nil || !e.IsDir() {
			t.Fatalf("Lookup(%s) = %+v, want synthesized directory", dir, e)
		}
	}
}

func TestDuplicatePathLastWins(t *testing.T) {
	r := newTestRepo(t)
	fillRepo(t, r, []Entry{
		{Path: "", Name: "f", Size: 1, Mode: 0o644 | ModeRegular, Type: tar.TypeReg},
		{Path: "", Name: "f", Size: 2, Mode: 0o644 | ModeRegular, Type: tar.TypeReg},
	})

	e, err := r.Lookup("/f")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if e == nil || e.Size != 2 {
		t.Fatalf("Lookup(/f) = %+v, want last inserted version (size 2)", e)
	}
}

func TestExplicitMemberBeatsSynthesizedDir(t *testing.T) {
	r := newTestRepo(t)
	fillRepo(t, r, []Entry{
		{Path: "/d", Name: "f", Mode: 0o644 | ModeRegular, Type: tar.TypeReg},
		{Path: "", Name: "d", Mtime: 99, Mode: 0o750 | ModeDir, Type: tar.TypeDir},
	})

	e, err := r.Lookup("/d")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if e == nil || e.Mtime != 99 || e.Mode != 0o750|ModeDir {
		t.Fatalf("Lookup(/d) = %+v, want the explicit archive member", e)
	}
}

func TestListDir(t *testing.T) {
	r := newTestRepo(t)
	fillRepo(t, r, []Entry{
		{Path: "", Name: "top.txt", Mode: 0o644 | ModeRegular, Type: tar.TypeReg},
		{Path: "/sub", Name: "b.txt", Mode: 0o644 | ModeRegular, Type: tar.TypeReg},
		{Path: "/sub", Name: "a.txt", Mode: 0o644 | ModeRegular, Type: tar.TypeReg},
		{Path: "/empty", Name: "", Mode: 0o755 | ModeDir, Type: tar.TypeDir},
		{Path: "", Name: "empty", Mode: 0o755 | ModeDir, Type: tar.TypeDir},
	})

	entries, err := r.ListDir("/")
	if err != nil {
		t.Fatalf("ListDir(/): %v", err)
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	want := []string{"empty", "sub", "top.txt"}
	if len(names) != len(want) {
		t.Fatalf("ListDir(/) = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("ListDir(/) = %v, want %v", names, want)
		}
	}

	entries, err = r.ListDir("/sub")
	if err != nil {
		t.Fatalf("ListDir(/sub): %v", err)
	}
	if len(entries) != 2 || entries[0].Name != "a.txt" || entries[1].Name != "b.txt" {
		t.Fatalf("ListDir(/sub) = %+v, want a.txt and b.txt in order", entries)
	}

	entries, err = r.ListDir("/empty")
	if err != nil {
		t.Fatalf("ListDir(/empty): %v", err)
	}
	if entries == nil || len(entries) != 0 {
		t.Fatalf("ListDir(/empty) = %+v, want empty non-nil slice", entries)
	}

	entries, err = r.ListDir("/missing")
	if err != nil {
		t.Fatalf("ListDir(/missing): %v", err)
	}
	if entries != nil {
		t.Fatalf("ListDir(/missing) = %+v, want nil", entries)
	}

	// A regular file is not listable; callers rely on nil to fall back to a
	// single-entry lookup.
	entries, err = r.ListDir("/sub/a.txt")
	if err != nil {
		t.Fatalf("ListDir(/sub/a.txt): %v", err)
	}
	if entries != nil {
		t.Fatalf("ListDir(/sub/a.txt) = %+v, want nil for a file path", entries)
	}
}

func TestIsDir(t *testing.T) {
	r := newTestRepo(t)
	fillRepo(t, r, []Entry{
		{Path: "/sub", Name: "f", Mode: 0o644 | ModeRegular, Type: tar.TypeReg},
	})

	cases := []struct {
		path string
		want bool
	}{
		{"/", true},
		{"/sub", true},
		{"/sub/f", false},
		{"/missing", false},
	}
	for _, tc := range cases {
		got, err := r.IsDir(tc.path)
		if err != nil {
			t.Fatalf("IsDir(%s): %v", tc.path, err)
		}
		if got != tc.want {
			t.Fatalf("IsDir(%s) = %v, want %v", tc.path, got, tc.want)
		}
	}
}

func TestCountEntries(t *testing.T) {
	r := newTestRepo(t)
	fillRepo(t, r, []Entry{
		{Path: "", Name: "a", Mode: 0o644 | ModeRegular, Type: tar.TypeReg},
		{Path: "/d", Name: "b", Mode: 0o644 | ModeRegular, Type: tar.TypeReg},
	})
	// a, b and the synthesized directory d
	n, err := r.CountEntries()
	if err != nil {
		t.Fatalf("CountEntries: %v", err)
	}
	if n != 3 {
		t.Fatalf("CountEntries = %d, want 3", n)
	}
}

func TestBeginScanRejectsLeftoverStaging(t *testing.T) {
	r := newTestRepo(t)
	if err := r.BeginScan(); err != nil {
		t.Fatalf("BeginScan: %v", err)
	}
	if err := r.BeginScan(); err == nil {
		t.Fatal("expected error for leftover staging tables")
	}
}

func TestCheckpointsRoundTrip(t *testing.T) {
	r := newTestRepo(t)
	in := []Checkpoint{
		{Uncompressed: 1 << 20, Compressed: 400000},
		{Uncompressed: 2 << 20, Compressed: 810000},
	}
	if err := r.SaveCheckpoints(in); err != nil {
		t.Fatalf("SaveCheckpoints: %v", err)
	}
	out, err := r.LoadCheckpoints()
	if err != nil {
		t.Fatalf("LoadCheckpoints: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("LoadCheckpoints returned %d checkpoints, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("checkpoint %d = %+v, want %+v", i, out[i], in[i])
		}
	}

	// Saving again replaces, not appends.
	if err := r.SaveCheckpoints(in[:1]); err != nil {
		t.Fatalf("SaveCheckpoints: %v", err)
	}
	out, err = r.LoadCheckpoints()
	if err != nil {
		t.Fatalf("LoadCheckpoints: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("LoadCheckpoints returned %d checkpoints after replace, want 1", len(out))
	}
}
