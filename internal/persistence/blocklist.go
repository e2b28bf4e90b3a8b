package persistence

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// UpsertBlocklistEntry idempotently records a marketplace-removal event
// keyed on extension_id.
func (s *Store) UpsertBlocklistEntry(b *BlocklistEntry) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	query := `
		INSERT INTO blocklist (id, extension_id, removal_date, removal_type, removal_type_raw, synced_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (extension_id) DO UPDATE SET
			removal_date = EXCLUDED.removal_date,
			removal_type = EXCLUDED.removal_type,
			removal_type_raw = EXCLUDED.removal_type_raw,
			synced_at = EXCLUDED.synced_at
		RETURNING id`

	return s.db.QueryRow(
		query, b.ID, b.ExtensionID, b.RemovalDate, b.RemovalType, b.RemovalTypeRaw, time.Now(),
	).Scan(&b.ID)
}

// IsBlocklisted reports whether extensionID (matched case-insensitively)
// currently has a blocklist row.
func (s *Store) IsBlocklisted(extensionID string) (bool, error) {
	var id uuid.UUID
	err := s.db.QueryRow(`SELECT id FROM blocklist WHERE lower(extension_id) = lower($1)`, extensionID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
