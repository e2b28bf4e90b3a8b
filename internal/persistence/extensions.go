package persistence

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UpsertPublisher idempotently inserts or updates a publisher keyed on
// publisher_id.
func (s *Store) UpsertPublisher(p *Publisher) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now()

	query := `
		INSERT INTO publishers (id, publisher_id, publisher_name, display_name, domain, is_domain_verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (publisher_id) DO UPDATE SET
			publisher_name = EXCLUDED.publisher_name,
			display_name = EXCLUDED.display_name,
			domain = EXCLUDED.domain,
			is_domain_verified = EXCLUDED.is_domain_verified,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at`

	return s.db.QueryRow(
		query, p.ID, p.PublisherID, p.PublisherName, p.DisplayName, p.Domain, p.IsDomainVerified, now, now,
	).Scan(&p.ID, &p.CreatedAt)
}

// UpsertExtension idempotently inserts or updates an extension row keyed
// on the natural key (extension_id, version). vsix_hash_sha256 is only
// ever written while currently NULL — see DESIGN.md's Open Question
// decision on the hash-overwrite invariant; a later scan with a different
// hash for the same (extension_id, version) leaves the column untouched
// rather than overwriting it with COALESCE.
func (s *Store) UpsertExtension(e *Extension) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	now := time.Now()

	query := `
		INSERT INTO extensions (
			id, extension_id, version, display_name, short_desc, vsix_hash_sha256,
			published_date, last_updated, install_count, average_rating, publisher_id,
			scan_state, latest_state, risk_score, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (extension_id, version) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			short_desc = EXCLUDED.short_desc,
			vsix_hash_sha256 = CASE WHEN extensions.vsix_hash_sha256 IS NULL THEN EXCLUDED.vsix_hash_sha256 ELSE extensions.vsix_hash_sha256 END,
			last_updated = EXCLUDED.last_updated,
			install_count = EXCLUDED.install_count,
			average_rating = EXCLUDED.average_rating,
			scan_state = EXCLUDED.scan_state,
			latest_state = EXCLUDED.latest_state,
			risk_score = EXCLUDED.risk_score,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at`

	return s.db.QueryRow(
		query,
		e.ID, e.ExtensionID, e.Version, e.DisplayName, e.ShortDesc, nullString(e.VSIXHashSHA256),
		e.PublishedDate, e.LastUpdated, e.InstallCount, e.AverageRating, e.PublisherID,
		string(e.ScanState), string(e.LatestState), e.RiskScore, now, now,
	).Scan(&e.ID, &e.CreatedAt)
}

// GetExtension looks up an extension by its natural key, matching
// extension_id case-insensitively per SPEC_FULL §9.1 while the row itself
// preserves the caller's original casing.
func (s *Store) GetExtension(extensionID, version string) (*Extension, error) {
	query := `
		SELECT id, extension_id, version, display_name, short_desc, vsix_hash_sha256,
			published_date, last_updated, install_count, average_rating, publisher_id,
			scan_state, latest_state, risk_score, created_at, updated_at
		FROM extensions
		WHERE lower(extension_id) = lower($1) AND version = $2`

	e := &Extension{}
	var hash, scanState, latestState sql.NullString
	var riskScore sql.NullFloat64

	err := s.db.QueryRow(query, extensionID, version).Scan(
		&e.ID, &e.ExtensionID, &e.Version, &e.DisplayName, &e.ShortDesc, &hash,
		&e.PublishedDate, &e.LastUpdated, &e.InstallCount, &e.AverageRating, &e.PublisherID,
		&scanState, &latestState, &riskScore, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("persistence: get extension %s@%s: %w", extensionID, version, err)
	}

	e.VSIXHashSHA256 = hash.String
	e.ScanState = ScanState(scanState.String)
	e.LatestState = ScanState(latestState.String)
	if riskScore.Valid {
		e.RiskScore = &riskScore.Float64
	}
	return e, nil
}

// GetExtensionByID looks up an extension by its primary key, as used by
// build_report when the caller only has the database id.
func (s *Store) GetExtensionByID(id uuid.UUID) (*Extension, error) {
	query := `
		SELECT id, extension_id, version, display_name, short_desc, vsix_hash_sha256,
			published_date, last_updated, install_count, average_rating, publisher_id,
			scan_state, latest_state, risk_score, created_at, updated_at
		FROM extensions
		WHERE id = $1`

	e := &Extension{}
	var hash, scanState, latestState sql.NullString
	var riskScore sql.NullFloat64

	err := s.db.QueryRow(query, id).Scan(
		&e.ID, &e.ExtensionID, &e.Version, &e.DisplayName, &e.ShortDesc, &hash,
		&e.PublishedDate, &e.LastUpdated, &e.InstallCount, &e.AverageRating, &e.PublisherID,
		&scanState, &latestState, &riskScore, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("persistence: get extension %s: %w", id, err)
	}

	e.VSIXHashSHA256 = hash.String
	e.ScanState = ScanState(scanState.String)
	e.LatestState = ScanState(latestState.String)
	if riskScore.Valid {
		e.RiskScore = &riskScore.Float64
	}
	return e, nil
}

// GetPublisherByID looks up a publisher by its primary key.
func (s *Store) GetPublisherByID(id uuid.UUID) (*Publisher, error) {
	query := `
		SELECT id, publisher_id, publisher_name, display_name, domain, is_domain_verified, created_at, updated_at
		FROM publishers
		WHERE id = $1`

	p := &Publisher{}
	err := s.db.QueryRow(query, id).Scan(
		&p.ID, &p.PublisherID, &p.PublisherName, &p.DisplayName, &p.Domain, &p.IsDomainVerified, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("persistence: get publisher %s: %w", id, err)
	}
	return p, nil
}

// UpdateScanState sets scan_state for an already-upserted extension row,
// sets latest_state too when the new state is terminal (CLEAN or FLAGGED),
// and sets risk_score whenever riskScore is non-nil.
func (s *Store) UpdateScanState(id uuid.UUID, state ScanState, riskScore *float64) error {
	query := `
		UPDATE extensions SET
			scan_state = $2,
			latest_state = CASE WHEN $2 IN ('CLEAN', 'FLAGGED') THEN $2 ELSE latest_state END,
			risk_score = COALESCE($3, risk_score),
			updated_at = $4
		WHERE id = $1`

	_, err := s.db.Exec(query, id, string(state), riskScore, time.Now())
	return err
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
