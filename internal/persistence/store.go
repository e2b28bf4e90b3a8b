package persistence

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// Store wraps the raw SQL connection used by every accessor in this
// package, following the teacher's repository-per-table shape but
// collapsed into one struct since every table here belongs to a single
// scan-history domain.
type Store struct {
	db *sql.DB
}

// Open connects to the configured Postgres DSN and verifies it.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("persistence: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("persistence: ping: %w", err)
	}
	return &Store{db: db}, nil
}

// NewStore wraps an already-open *sql.DB, used by tests against a fake or
// already-provisioned connection.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}
