package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
)

const keepSnapshots = 10

// SaveSnapshotJSON stores a JSON-encoded engine snapshot and prunes all but
// the newest ten.
func (s *Store) SaveSnapshotJSON(data []byte) error {
	if _, err := s.db.Exec(`INSERT INTO trend_snapshots (data) VALUES (?)`, string(data)); err != nil {
		return fmt.Errorf("sqlite insert snapshot: %w", err)
	}
	_, err := s.db.Exec(`DELETE FROM trend_snapshots WHERE id NOT IN (SELECT id FROM trend_snapshots ORDER BY id DESC LIMIT ?)`, keepSnapshots)
	if err != nil {
		log.Printf("[sqlite] prune snapshots warning: %v", err)
	}
	return nil
}

// ReadLatestSnapshotJSON loads the newest snapshot. Returns nil, nil when none exists.
func (s *Store) ReadLatestSnapshotJSON() ([]byte, error) {
	var data string
	err := s.db.Get(&data, `SELECT data FROM trend_snapshots ORDER BY id DESC LIMIT 1`)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlite read snapshot: %w", err)
	}
	return []byte(data), nil
}

// CountSnapshots returns the number of stored snapshots.
func (s *Store) CountSnapshots() (int, error) {
	var n int
	err := s.db.Get(&n, `SELECT COUNT(*) FROM trend_snapshots`)
	return n, err
}
