package sqlite

import (
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite archive of TF candles, trend reports and engine snapshots.
// A single connection serializes writers, matching SQLite's one-writer model.
type Store struct {
	db *sqlx.DB
}

// Open opens (or creates) the database in WAL mode and applies the schema.
func Open(dbPath string) (*Store, error) {
	db, err := sqlx.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", dbPath)
	return &Store{db: db}, nil
}

// DB returns the underlying handle for health checks.
func (s *Store) DB() *sqlx.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func createSchema(db *sqlx.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS candles_tf (
			token      TEXT    NOT NULL,
			exchange   TEXT    NOT NULL,
			tf         INTEGER NOT NULL,
			ts         INTEGER NOT NULL,
			open       INTEGER NOT NULL,
			high       INTEGER NOT NULL,
			low        INTEGER NOT NULL,
			close      INTEGER NOT NULL,
			volume     INTEGER,
			count      INTEGER,
			PRIMARY KEY (exchange, token, tf, ts)
		);

		CREATE TABLE IF NOT EXISTS trend_reports (
			id                TEXT    PRIMARY KEY,
			exchange          TEXT    NOT NULL,
			token             TEXT    NOT NULL,
			tf                INTEGER NOT NULL,
			ts                INTEGER NOT NULL,
			points            INTEGER NOT NULL,
			config            TEXT    NOT NULL,
			peaks             TEXT    NOT NULL,
			valleys           TEXT    NOT NULL,
			peak_slope        REAL,
			peak_intercept    REAL,
			valley_slope      REAL,
			valley_intercept  REAL,
			overall_slope     REAL,
			overall_intercept REAL
		);
		CREATE INDEX IF NOT EXISTS idx_trend_reports_series
			ON trend_reports (exchange, token, tf, ts);

		CREATE TABLE IF NOT EXISTS trend_segments (
			report_id          TEXT    NOT NULL REFERENCES trend_reports(id) ON DELETE CASCADE,
			seq                INTEGER NOT NULL,
			start_index        INTEGER NOT NULL,
			end_index          INTEGER NOT NULL,
			slope              REAL    NOT NULL,
			intercept          REAL    NOT NULL,
			adj_r_squared      REAL    NOT NULL,
			rmse               REAL    NOT NULL,
			durbin_watson      REAL    NOT NULL,
			reliable           BOOLEAN NOT NULL DEFAULT 1,
			PRIMARY KEY (report_id, seq)
		);

		CREATE TABLE IF NOT EXISTS trend_snapshots (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			data       TEXT    NOT NULL,
			created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
		);
	`)
	return err
}
