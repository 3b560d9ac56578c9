package index

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	idxdb "github.com/tarmount/tarmount/internal/db"
)

// archiveStat is the consistency snapshot stored in the metadata table. A
// cached index is only trusted while the archive it was built from still has
// the same size and modification time.
type archiveStat struct {
	Size  int64 `json:"size"`
	Mtime int64 `json:"mtime"`
}

// WriteArchiveStat records the archive's current stat into the metadata table.
func (r *Repository) WriteArchiveStat(archivePath string) error {
	fi, err := os.Stat(archivePath)
	if err != nil {
		return fmt.Errorf("stat archive: %w", err)
	}
	blob, err := json.Marshal(archiveStat{Size: fi.Size(), Mtime: fi.ModTime().Unix()})
	if err != nil {
		return err
	}
	if _, err := r.db.Exec("DELETE FROM metadata WHERE key = 'archivestat'"); err != nil {
		return err
	}
	if _, err := r.db.Exec("INSERT INTO metadata VALUES ('archivestat', ?)", string(blob)); err != nil {
		return fmt.Errorf("store archive stat: %w", err)
	}
	return nil
}

// WriteVersions records the tool version and the index format version so a
// later run can detect indexes written by incompatible versions.
func (r *Repository) WriteVersions(toolVersion, indexFormat string) error {
	if _, err := r.db.Exec("DELETE FROM versions"); err != nil {
		return err
	}
	for _, row := range []struct{ name, version string }{
		{"tarmount", toolVersion},
		{"index", indexFormat},
	} {
		major, minor, patch := splitVersion(row.version)
		if _, err := r.db.Exec("INSERT INTO versions VALUES (?,?,?,?,?)",
			row.name, row.version, major, minor, patch); err != nil {
			return fmt.Errorf("store version %s: %w", row.name, err)
		}
	}
	return nil
}

func splitVersion(v string) (major, minor, patch int) {
	nums := make([]int, 0, 3)
	for _, part := range strings.Split(strings.TrimPrefix(v, "v"), ".") {
		digits := strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' {
				return r
			}
			return -1
		}, part)
		n, _ := strconv.Atoi(digits)
		nums = append(nums, n)
	}
	for len(nums) < 3 {
		nums = append(nums, 0)
	}
	return nums[0], nums[1], nums[2]
}

// Validate checks a loaded index for completeness, format compatibility and
// consistency with the archive on disk. A non-nil error means the index must
// be discarded and rebuilt.
func (r *Repository) Validate(archivePath, indexFormat string) error {
	tables, err := idxdb.TableNames(r.db)
	if err != nil {
		return err
	}
	if !tables["files"] {
		return fmt.Errorf("index is empty")
	}
	if tables["filestmp"] || tables["parentfolders"] {
		return fmt.Errorf("index is incomplete, a previous scan was interrupted")
	}

	major, minor, ok, err := r.indexFormatVersion()
	if err != nil {
		return err
	}
	wantMajor, wantMinor, _ := splitVersion(indexFormat)
	if !ok || major != wantMajor || minor < wantMinor {
		return fmt.Errorf("index format %d.%d is older than required %d.%d", major, minor, wantMajor, wantMinor)
	}

	return r.checkArchiveStat(archivePath)
}

func (r *Repository) indexFormatVersion() (major, minor int, ok bool, err error) {
	row := r.db.QueryRow("SELECT major, minor FROM versions WHERE name = 'index'")
	if err := row.Scan(&major, &minor); err != nil {
		if err == sql.ErrNoRows {
			return 0, 0, false, nil
		}
		return 0, 0, false, err
	}
	return major, minor, true, nil
}

func (r *Repository) checkArchiveStat(archivePath string) error {
	var blob string
	row := r.db.QueryRow("SELECT value FROM metadata WHERE key = 'archivestat'")
	if err := row.Scan(&blob); err != nil {
		if err == sql.ErrNoRows {
			// Older indexes may lack the snapshot; staleness then goes
			// undetected but the index itself is usable.
			return nil
		}
		return err
	}
	var stored archiveStat
	if err := json.Unmarshal([]byte(blob), &stored); err != nil {
		return fmt.Errorf("parse archive stat snapshot: %w", err)
	}
	fi, err := os.Stat(archivePath)
	if err != nil {
		return fmt.Errorf("stat archive: %w", err)
	}
	if fi.Size() != stored.Size {
		return fmt.Errorf("archive size changed from %d to %d since indexing", stored.Size, fi.Size())
	}
	if fi.ModTime().Unix() != stored.Mtime {
		return fmt.Errorf("archive modification time changed since indexing")
	}
	return nil
}
