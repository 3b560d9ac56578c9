package index

import "fmt"

// Checkpoint maps a decompressed stream offset to the compressed offset at
// which decompression can resume.
type Checkpoint struct {
	Uncompressed int64
	Compressed   int64
}

// SaveCheckpoints replaces all stored seek points for the archive.
func (r *Repository) SaveCheckpoints(cps []Checkpoint) error {
	trx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = trx.Rollback() }()

	if _, err := trx.Exec("DELETE FROM checkpoints"); err != nil {
		return err
	}
	for _, cp := range cps {
		if _, err := trx.Exec("INSERT OR REPLACE INTO checkpoints VALUES (?,?)", cp.Uncompressed, cp.Compressed); err != nil {
			return fmt.Errorf("insert checkpoint: %w", err)
		}
	}
	return trx.Commit()
}

// LoadCheckpoints returns all stored seek points ordered by decompressed
// offset. An empty result is not an error; it only means slower first reads.
func (r *Repository) LoadCheckpoints() ([]Checkpoint, error) {
	rows, err := r.db.Query("SELECT uncompressed, compressed FROM checkpoints ORDER BY uncompressed")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []Checkpoint
	for rows.Next() {
		var cp Checkpoint
		if err := rows.Scan(&cp.Uncompressed, &cp.Compressed); err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}
