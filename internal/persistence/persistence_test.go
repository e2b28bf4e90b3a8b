package persistence

import (
	"encoding/json"
	"testing"

	"github.com/vexguard/triagecore/internal/findings"
	"github.com/vexguard/triagecore/internal/report"
)

func TestNullString(t *testing.T) {
	if nullString("") != nil {
		t.Fatal("want nil for empty string")
	}
	if nullString("x") != "x" {
		t.Fatal("want the string back unchanged when non-empty")
	}
}

func TestFindingsSummaryShape(t *testing.T) {
	rpt := report.ThreatReport{
		Verdict: findings.VerdictSuspicious,
		Findings: report.FindingBuckets{
			Critical: []findings.Finding{{Severity: findings.SeverityCritical}},
			High:     []findings.Finding{{Severity: findings.SeverityHigh}, {Severity: findings.SeverityHigh}},
		},
	}
	summary := findingsSummary{
		Critical: len(rpt.Findings.Critical),
		High:     len(rpt.Findings.High),
		Medium:   len(rpt.Findings.Medium),
		Info:     len(rpt.Findings.InfoLow),
		Verdict:  string(rpt.Verdict),
	}

	data, err := json.Marshal(summary)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var round findingsSummary
	if err := json.Unmarshal(data, &round); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if round.Critical != 1 || round.High != 2 || round.Verdict != "SUSPICIOUS" {
		t.Fatalf("unexpected round-trip: %+v", round)
	}
}

func TestScanStateConstants(t *testing.T) {
	states := []ScanState{
		ScanStateQueued, ScanStateDownloading, ScanStateStaticScanning,
		ScanStateStaticScanned, ScanStateHeavyweight, ScanStateClean, ScanStateFlagged,
	}
	seen := map[ScanState]bool{}
	for _, s := range states {
		if seen[s] {
			t.Fatalf("duplicate scan state value %q", s)
		}
		seen[s] = true
	}
}
