package persistence

import (
	"time"

	"github.com/google/uuid"

	"github.com/vexguard/triagecore/internal/findings"
)

// InsertIOC records one indicator-of-compromise row against a scan. The
// lookup/enrichment side of the iocs table is out of scope; this is
// insert-and-read-back only.
func (s *Store) InsertIOC(ioc *IOC) error {
	if ioc.ID == uuid.Nil {
		ioc.ID = uuid.New()
	}
	query := `
		INSERT INTO iocs (id, scan_history_id, ioc_type, ioc_value, context, vt_detection, discovered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, discovered_at`

	return s.db.QueryRow(
		query, ioc.ID, ioc.ScanHistoryID, ioc.IOCType, ioc.IOCValue, nullString(ioc.Context), ioc.VTDetection, time.Now(),
	).Scan(&ioc.ID, &ioc.DiscoveredAt)
}

// InsertStaticFindings bulk-inserts one static_findings row per Finding,
// attaching them to a single scan.
func (s *Store) InsertStaticFindings(scanHistoryID uuid.UUID, fs []findings.Finding) error {
	if len(fs) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO static_findings (id, scan_history_id, finding_type, severity, file_path, line_number, description, raw_match, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, f := range fs {
		var line interface{}
		if f.LineNumber > 0 {
			line = f.LineNumber
		}
		if _, err := stmt.Exec(
			uuid.New(), scanHistoryID, f.Category, string(f.Severity),
			nullString(f.FilePath), line, f.Description, nullString(f.MatchedText), now,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}
