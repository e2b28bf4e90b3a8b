package persistence

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/vexguard/triagecore/internal/report"
)

// findingsSummary is the JSON shape persisted into scan_history.findings_json,
// named verbatim in SPEC_FULL.md §4.8: {critical, high, medium, info, verdict}.
type findingsSummary struct {
	Critical int    `json:"critical"`
	High     int    `json:"high"`
	Medium   int    `json:"medium"`
	Info     int    `json:"info"`
	Verdict  string `json:"verdict"`
}

// InsertScanHistory writes one scan_history row from a completed
// ThreatReport. Two calls for the same extension produce two distinct
// rows — persistence invariant 3 in SPEC_FULL §8.
func (s *Store) InsertScanHistory(extensionDBID uuid.UUID, scanType string, rpt report.ThreatReport, rawAIResponse string) (*ScanHistory, error) {
	summary := findingsSummary{
		Critical: len(rpt.Findings.Critical),
		High:     len(rpt.Findings.High),
		Medium:   len(rpt.Findings.Medium),
		Info:     len(rpt.Findings.InfoLow),
		Verdict:  string(rpt.Verdict),
	}
	findingsJSON, err := json.Marshal(summary)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	h := &ScanHistory{
		ID:            uuid.New(),
		ExtensionDBID: extensionDBID,
		ScanType:      scanType,
		StartedAt:     now,
		CompletedAt:   &now,
	}

	query := `
		INSERT INTO scan_history (
			id, extension_db_id, scan_type, started_at, completed_at,
			ai_vibe_score, static_score, behavioral_score, trust_score,
			composite_score, risk_score, findings_json, raw_ai_response
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, started_at`

	err = s.db.QueryRow(
		query,
		h.ID, h.ExtensionDBID, h.ScanType, h.StartedAt, h.CompletedAt,
		rpt.AIVibeScore, rpt.StaticScore, rpt.BehavioralScore, rpt.TrustSignalScore,
		rpt.CompositeRisk, rpt.CompositeRisk, findingsJSON, nullString(rawAIResponse),
	).Scan(&h.ID, &h.StartedAt)
	if err != nil {
		return nil, err
	}

	h.AIVibeScore = &rpt.AIVibeScore
	h.StaticScore = &rpt.StaticScore
	h.BehavioralScore = &rpt.BehavioralScore
	h.TrustScore = &rpt.TrustSignalScore
	h.CompositeScore = &rpt.CompositeRisk
	h.RiskScore = &rpt.CompositeRisk
	h.FindingsJSON = string(findingsJSON)
	h.RawAIResponse = rawAIResponse

	return h, nil
}

// GetScanHistory returns every scan_history row for an extension, most
// recent first.
func (s *Store) GetScanHistory(extensionDBID uuid.UUID) ([]*ScanHistory, error) {
	query := `
		SELECT id, extension_db_id, scan_type, started_at, completed_at,
			ai_vibe_score, static_score, behavioral_score, trust_score,
			composite_score, risk_score, findings_json, raw_ai_response
		FROM scan_history
		WHERE extension_db_id = $1
		ORDER BY started_at DESC`

	rows, err := s.db.Query(query, extensionDBID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ScanHistory
	for rows.Next() {
		h := &ScanHistory{}
		var findingsJSON, rawAI sql.NullString
		if err := rows.Scan(
			&h.ID, &h.ExtensionDBID, &h.ScanType, &h.StartedAt, &h.CompletedAt,
			&h.AIVibeScore, &h.StaticScore, &h.BehavioralScore, &h.TrustScore,
			&h.CompositeScore, &h.RiskScore, &findingsJSON, &rawAI,
		); err != nil {
			return nil, err
		}
		h.FindingsJSON = findingsJSON.String
		h.RawAIResponse = rawAI.String
		out = append(out, h)
	}
	return out, rows.Err()
}
