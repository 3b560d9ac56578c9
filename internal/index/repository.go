package index

import (
	"database/sql"
	"fmt"
	"strings"

	idxdb "github.com/tarmount/tarmount/internal/db"
)

// Repository provides read and write access to an archive index database.
type Repository struct {
	db *sql.DB

	// parentCache remembers the (path, name) pairs most recently submitted to
	// the parentfolders staging table. Archives are usually sorted by
	// hierarchy, so a short cache suppresses nearly all duplicate inserts.
	parentCache []parentPair
}

type parentPair struct{ path, name string }

// NewRepository creates a Repository using db.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// DB exposes the underlying connection.
func (r *Repository) DB() *sql.DB { return r.db }

// BeginScan prepares the staging tables for a fresh scan. The filestmp table
// is created without constraints so inserts stay append-only and fast; rows
// are sorted into files once, in Finalize.
func (r *Repository) BeginScan() error {
	tables, err := idxdb.TableNames(r.db)
	if err != nil {
		return err
	}
	if tables["filestmp"] || tables["parentfolders"] {
		return fmt.Errorf("index already contains staging tables, recreate the index")
	}
	_, err = r.db.Exec(`
		CREATE TABLE filestmp AS SELECT * FROM files WHERE 0;
		CREATE TABLE parentfolders (
			path  TEXT NOT NULL,
			name  TEXT NOT NULL,
			PRIMARY KEY (path, name)
		);
	`)
	if err != nil {
		return fmt.Errorf("create staging tables: %w", err)
	}
	return nil
}

// InsertEntry appends a scanned member to the staging table and records any
// parent directories that may not exist as explicit archive members.
func (r *Repository) InsertEntry(e Entry) error {
	_, err := r.db.Exec(
		"INSERT INTO filestmp VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)",
		e.Path, e.Name, e.HeaderOffset, e.DataOffset, e.Size, e.Mtime,
		e.Mode, e.Type, e.LinkName, e.UID, e.GID, e.IsTar, e.IsSparse,
	)
	if err != nil {
		return fmt.Errorf("insert entry %s: %w", e.FullPath(), err)
	}
	return r.addParentFolders(e.Path)
}

func (r *Repository) addParentFolders(dir string) error {
	if dir == "" {
		return nil
	}
	parts := strings.Split(dir, "/")
	var missing []parentPair
	for i := 1; i < len(parts); i++ {
		p := parentPair{path: strings.Join(parts[:i], "/"), name: parts[i]}
		cached := false
		for _, c := range r.parentCache {
			if c == p {
				cached = true
				break
			}
		}
		if !cached {
			missing = append(missing, p)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	r.parentCache = append(r.parentCache, missing...)
	if len(r.parentCache) > 16 {
		r.parentCache = r.parentCache[len(r.parentCache)-8:]
	}
	for _, p := range missing {
		if _, err := r.db.Exec("INSERT OR IGNORE INTO parentfolders VALUES (?,?)", p.path, p.name); err != nil {
			return fmt.Errorf("insert parent folder: %w", err)
		}
	}
	return nil
}

// Finalize sorts the staged rows into the files table, synthesizes directory
// entries for parent folders that had no own archive member, and drops the
// staging tables. The one-time resort is cheaper than keeping files sorted
// during insertion.
func (r *Repository) Finalize(dirMode uint32, dirType byte) error {
	_, err := r.db.Exec(fmt.Sprintf(`
		INSERT OR REPLACE INTO files SELECT * FROM filestmp ORDER BY path, name, rowid;
		DROP TABLE filestmp;
		INSERT OR IGNORE INTO files
			SELECT path, name, 0, 0, 1, 0, %d, %d, '', 0, 0, 0, 0
			FROM parentfolders ORDER BY path, name;
		DROP TABLE parentfolders;
	`, dirMode, dirType))
	if err != nil {
		return fmt.Errorf("finalize index: %w", err)
	}
	return nil
}

// Lookup returns the entry stored for the given archive path, or nil when the
// path does not exist.
func (r *Repository) Lookup(fullPath string) (*Entry, error) {
	dir, name := SplitPath(fullPath)
	row := r.db.QueryRow(
		"SELECT path, name, offsetheader, offset, size, mtime, mode, type, linkname, uid, gid, istar, issparse FROM files WHERE path = ? AND name = ?",
		dir, name,
	)
	var e Entry
	if err := scanEntry(row.Scan, &e); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

// ListDir returns the entries directly below the given directory path, or nil
// when the path is unknown or not a directory. An existing but empty directory
// yields an empty non-nil slice via its own row.
func (r *Repository) ListDir(dirPath string) ([]Entry, error) {
	key := strings.TrimSuffix(NormalizePath(dirPath), "/")
	rows, err := r.db.Query(
		"SELECT path, name, offsetheader, offset, size, mtime, mode, type, linkname, uid, gid, istar, issparse FROM files WHERE path = ? ORDER BY name",
		key,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Entry
	found := false
	for rows.Next() {
		found = true
		var e Entry
		if err := scanEntry(rows.Scan, &e); err != nil {
			return nil, err
		}
		// The root row and directories own-rows have an empty name.
		if e.Name != "" {
			out = append(out, e)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if !found {
		// Directories are also listed as a member of their parent.
		if key == "" {
			return []Entry{}, nil
		}
		own, err := r.Lookup(dirPath)
		if err != nil || own == nil {
			return nil, err
		}
		if !own.IsDir() {
			return nil, nil
		}
		return []Entry{}, nil
	}
	if out == nil {
		out = []Entry{}
	}
	return out, nil
}

// CountEntries returns the number of indexed members, not counting the
// nameless own-rows of synthesized directories.
func (r *Repository) CountEntries() (int64, error) {
	var n int64
	err := r.db.QueryRow("SELECT COUNT(*) FROM files WHERE name != ''").Scan(&n)
	return n, err
}

// IsDir reports whether the given path is a directory known to the index.
func (r *Repository) IsDir(p string) (bool, error) {
	key := strings.TrimSuffix(NormalizePath(p), "/")
	if key == "" {
		return true, nil
	}
	var n int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM files WHERE path = ?", key).Scan(&n); err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}
	e, err := r.Lookup(p)
	if err != nil || e == nil {
		return false, err
	}
	return e.IsDir(), nil
}

type scanFunc func(dest ...any) error

func scanEntry(scan scanFunc, e *Entry) error {
	return scan(
		&e.Path, &e.Name, &e.HeaderOffset, &e.DataOffset, &e.Size, &e.Mtime,
		&e.Mode, &e.Type, &e.LinkName, &e.UID, &e.GID, &e.IsTar, &e.IsSparse,
	)
}
