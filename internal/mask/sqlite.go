package mask

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

const createMasksDDL = `
CREATE TABLE IF NOT EXISTS landsat_masks (
	path     TEXT NOT NULL,
	row      TEXT NOT NULL,
	acq_date TEXT NOT NULL,
	key      TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (path, row, acq_date)
);
`

// SQLIndex reads mask availability from a SQLite inventory.
type SQLIndex struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the inventory at path.
func OpenSQLite(path string) (*SQLIndex, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open mask inventory %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	for _, p := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec %q on %s: %w", p, path, err)
		}
	}
	if _, err := db.Exec(createMasksDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("init mask inventory %s: %w", path, err)
	}
	return &SQLIndex{db: db}, nil
}

// Close releases the database.
func (s *SQLIndex) Close() error {
	return s.db.Close()
}

// Add records a mask. Adding the same scene twice updates its key.
func (s *SQLIndex) Add(ctx context.Context, path, row string, date time.Time, key string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO landsat_masks (path, row, acq_date, key) VALUES (?, ?, ?, ?)
		 ON CONFLICT (path, row, acq_date) DO UPDATE SET key = excluded.key`,
		path, row, date.Format("20060102"), key)
	if err != nil {
		return fmt.Errorf("add mask %s/%s: %w", path, row, err)
	}
	return nil
}

// Exists implements Index.
func (s *SQLIndex) Exists(ctx context.Context, path, row string, date time.Time) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM landsat_masks WHERE path = ? AND row = ? AND acq_date = ?`,
		path, row, date.Format("20060102")).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query mask %s/%s: %w", path, row, err)
	}
	return n > 0, nil
}
