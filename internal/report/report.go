// Package report implements ReportBuilder: fusing a TriageResult with
// marketplace trust signals and optional external reputation into the
// final ThreatReport, per SPEC_FULL.md §4.8.
package report

import (
	"time"

	"github.com/vexguard/triagecore/internal/findings"
	"github.com/vexguard/triagecore/internal/triage"
)

// Publisher mirrors the subset of the publishers table ReportBuilder needs.
type Publisher struct {
	DomainVerified bool
}

// ExtensionMeta mirrors the subset of the extensions table ReportBuilder
// needs to compute trust signals.
type ExtensionMeta struct {
	ExtensionID  string
	Version      string
	InstallCount int64
	AverageRating float64
	Publisher    Publisher
	Blocklisted  bool
}

// Reputation is the optional external-reputation input (e.g. VirusTotal-
// shaped): a malicious-detection count out of some total engine count.
type Reputation struct {
	DetectionCount int
	TotalEngines   int
	KnownMalicious bool
}

// CrossReference is the optional IOC-campaign-correlation input.
type CrossReference struct {
	CampaignScore float64
}

// FindingBuckets partitions findings by severity for report consumers.
type FindingBuckets struct {
	Critical []findings.Finding
	High     []findings.Finding
	Medium   []findings.Finding
	InfoLow  []findings.Finding
}

// ThreatReport is ReportBuilder's final, persisted-summary output.
type ThreatReport struct {
	ExtensionID string
	Version     string

	TrustScore float64

	AIVibeScore    float64
	StaticScore    float64
	BehavioralScore float64
	TrustSignalScore float64

	CompositeRisk float64
	Verdict       findings.Verdict
	Confidence    float64

	Findings FindingBuckets
	Totals   map[findings.Severity]int

	CrossReference *CrossReference

	GeneratedAt time.Time
}

// trustSignalScore computes the 0 (trusted) .. 1 (untrusted) trust score
// from marketplace metadata, per SPEC_FULL.md §4.8.
func trustSignalScore(meta ExtensionMeta) float64 {
	if meta.Blocklisted {
		return 1.0
	}

	score := 0.5

	switch {
	case meta.InstallCount >= 1_000_000:
		score -= 0.3
	case meta.InstallCount >= 100_000:
		score -= 0.2
	case meta.InstallCount >= 10_000:
		score -= 0.1
	case meta.InstallCount < 10:
		score += 0.25
	case meta.InstallCount < 100:
		score += 0.15
	}

	if meta.Publisher.DomainVerified {
		score -= 0.15
	} else {
		score += 0.10
	}

	if meta.AverageRating >= 4.0 {
		score -= 0.05
	} else if meta.AverageRating > 0 && meta.AverageRating < 2.0 {
		score += 0.10
	}

	return findings.CapRisk(score)
}

// Build fuses a TriageResult with marketplace/reputation/crossref signals
// into the final ThreatReport.
func Build(tr *triage.TriageResult, meta ExtensionMeta, rep *Reputation, xref *CrossReference) ThreatReport {
	if tr == nil {
		tr = &triage.TriageResult{FindingCounts: map[findings.Severity]int{}}
	}
	trust := trustSignalScore(meta)

	var reputationBonus float64
	if rep != nil {
		reputationBonus = minFloat(float64(rep.DetectionCount)/10.0, 0.5)
	}

	var campaignBonus float64
	if xref != nil {
		campaignBonus = xref.CampaignScore * 0.1
	}

	var composite float64
	if meta.Blocklisted {
		composite = 1.0
	} else {
		composite = findings.CapRisk(tr.CompositeRisk + reputationBonus + campaignBonus)
	}

	verdict := finalVerdict(meta, rep, composite, tr.FindingCounts)
	confidence := confidenceScore(meta, rep, tr)

	buckets := partitionFindings(tr.AllFindings)

	rpt := ThreatReport{
		ExtensionID:      meta.ExtensionID,
		Version:          meta.Version,
		TrustScore:       trust,
		AIVibeScore:      aiScore(tr),
		StaticScore:      staticScore(tr),
		BehavioralScore:  behavioralScore(tr),
		TrustSignalScore: trust,
		CompositeRisk:    composite,
		Verdict:          verdict,
		Confidence:       confidence,
		Findings:         buckets,
		Totals:           tr.FindingCounts,
		CrossReference:   xref,
		GeneratedAt:      time.Now(),
	}
	return rpt
}

func aiScore(tr *triage.TriageResult) float64 {
	if tr.AIResult == nil {
		return 0
	}
	return tr.AIResult.RiskScore
}

func staticScore(tr *triage.TriageResult) float64 {
	if tr.RulesResult == nil {
		return 0
	}
	return tr.RulesResult.RiskScore
}

func behavioralScore(tr *triage.TriageResult) float64 {
	if tr.ForensicResult == nil {
		return 0
	}
	return tr.ForensicResult.RiskScore
}

func finalVerdict(meta ExtensionMeta, rep *Reputation, composite float64, counts map[findings.Severity]int) findings.Verdict {
	switch {
	case meta.Blocklisted:
		return findings.VerdictMalicious
	case rep != nil && rep.KnownMalicious && rep.DetectionCount >= 5:
		return findings.VerdictMalicious
	case composite >= 0.7:
		return findings.VerdictMalicious
	case composite >= 0.35:
		return findings.VerdictSuspicious
	case counts[findings.SeverityCritical] > 0:
		return findings.VerdictSuspicious
	default:
		return findings.VerdictClean
	}
}

func confidenceScore(meta ExtensionMeta, rep *Reputation, tr *triage.TriageResult) float64 {
	confidence := 0.5
	if rep != nil {
		confidence += 0.15
	}
	if aiScore(tr) > 0 {
		confidence += 0.10
	}
	if behavioralScore(tr) > 0 {
		// behavioralScore reads ForensicResult; "behavioral data exists"
		// means any forensic signal fired, not a dynamic-analysis result.
		confidence += 0.15
	}
	if meta.Blocklisted {
		confidence += 0.30
	}
	return findings.CapRisk(confidence)
}

func partitionFindings(fs []findings.Finding) FindingBuckets {
	var b FindingBuckets
	for _, f := range fs {
		switch f.Severity {
		case findings.SeverityCritical:
			b.Critical = append(b.Critical, f)
		case findings.SeverityHigh:
			b.High = append(b.High, f)
		case findings.SeverityMedium:
			b.Medium = append(b.Medium, f)
		default:
			b.InfoLow = append(b.InfoLow, f)
		}
	}
	return b
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
