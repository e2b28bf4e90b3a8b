package report

import (
	"testing"

	"github.com/vexguard/triagecore/internal/findings"
	"github.com/vexguard/triagecore/internal/triage"
)

func cleanTriageResult() *triage.TriageResult {
	return &triage.TriageResult{
		CompositeRisk: 0.02,
		Verdict:       findings.VerdictClean,
		FindingCounts: map[findings.Severity]int{},
	}
}

// S6: a blocklisted extension must report MALICIOUS regardless of its
// triage composite, with confidence >= 0.8 and composite == 1.0.
func TestBuild_S6_Blocklisted(t *testing.T) {
	tr := cleanTriageResult()
	meta := ExtensionMeta{
		ExtensionID:  "evil.publisher",
		Version:      "1.0.0",
		InstallCount: 500_000,
		Blocklisted:  true,
	}

	rpt := Build(tr, meta, nil, nil)

	if rpt.Verdict != findings.VerdictMalicious {
		t.Fatalf("want MALICIOUS, got %s", rpt.Verdict)
	}
	if rpt.CompositeRisk != 1.0 {
		t.Fatalf("want composite 1.0, got %.3f", rpt.CompositeRisk)
	}
	if rpt.Confidence < 0.8 {
		t.Fatalf("want confidence >= 0.8, got %.3f", rpt.Confidence)
	}
}

func TestBuild_CleanLowRiskStaysClean(t *testing.T) {
	tr := cleanTriageResult()
	meta := ExtensionMeta{
		ExtensionID:   "alice.hello",
		Version:       "1.0.0",
		InstallCount:  2_000_000,
		AverageRating: 4.5,
		Publisher:     Publisher{DomainVerified: true},
	}

	rpt := Build(tr, meta, nil, nil)

	if rpt.Verdict != findings.VerdictClean {
		t.Fatalf("want CLEAN, got %s", rpt.Verdict)
	}
	if rpt.TrustScore >= 0.5 {
		t.Fatalf("want a well-established verified publisher to lower trust risk below 0.5, got %.3f", rpt.TrustScore)
	}
}

func TestBuild_ReputationBonusEscalatesVerdict(t *testing.T) {
	tr := cleanTriageResult()
	tr.CompositeRisk = 0.3
	meta := ExtensionMeta{ExtensionID: "x.y", Version: "1.0.0"}
	rep := &Reputation{DetectionCount: 10, TotalEngines: 70, KnownMalicious: true}

	rpt := Build(tr, meta, rep, nil)

	if rpt.Verdict != findings.VerdictMalicious {
		t.Fatalf("want MALICIOUS from reputation bonus pushing composite over threshold, got %s (%.3f)", rpt.Verdict, rpt.CompositeRisk)
	}
}

func TestBuild_NewUnverifiedPublisherRaisesTrustRisk(t *testing.T) {
	tr := cleanTriageResult()
	meta := ExtensionMeta{
		ExtensionID:  "brandnew.ext",
		Version:      "0.0.1",
		InstallCount: 3,
	}

	rpt := Build(tr, meta, nil, nil)

	if rpt.TrustScore <= 0.5 {
		t.Fatalf("want a brand-new unverified publisher to raise trust risk above 0.5, got %.3f", rpt.TrustScore)
	}
}

func TestBuild_PartitionsFindingsBySeverity(t *testing.T) {
	tr := cleanTriageResult()
	tr.AllFindings = []findings.Finding{
		{Severity: findings.SeverityCritical, Category: "HIDDEN_EXECUTABLE"},
		{Severity: findings.SeverityHigh, Category: "MAGIC_MISMATCH"},
		{Severity: findings.SeverityMedium, Category: "DOUBLE_EXTENSION"},
		{Severity: findings.SeverityInfo, Category: "HIGH_OBFUSCATION"},
	}
	meta := ExtensionMeta{ExtensionID: "a.b", Version: "1.0.0"}

	rpt := Build(tr, meta, nil, nil)

	if len(rpt.Findings.Critical) != 1 || len(rpt.Findings.High) != 1 ||
		len(rpt.Findings.Medium) != 1 || len(rpt.Findings.InfoLow) != 1 {
		t.Fatalf("unexpected bucket sizes: %+v", rpt.Findings)
	}
}
