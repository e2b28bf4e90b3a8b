// Package findings defines the shared vocabulary every triage stage reports
// through: severities, findings, and verdicts. It has no dependencies on any
// stage package so that ManifestScanner, ForensicChecker, RuleEngine,
// AIAnalyzer, and the Pipeline can all import it without a cycle.
package findings

// Severity is the fixed five-level scale every stage reports findings on.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
	SeverityInfo     Severity = "INFO"
)

// Weight returns the severity's contribution to a severity-weighted risk
// sum. Every stage (ManifestScanner, ForensicChecker, RuleEngine) uses this
// identical table.
func (s Severity) Weight() float64 {
	switch s {
	case SeverityCritical:
		return 0.4
	case SeverityHigh:
		return 0.15
	case SeverityMedium:
		return 0.05
	case SeverityInfo:
		return 0.01
	default:
		return 0.0
	}
}

// Finding is one stage's observation about the archive under triage.
type Finding struct {
	Severity    Severity `json:"severity"`
	Category    string   `json:"category"`
	Description string   `json:"description"`
	FilePath    string   `json:"file_path,omitempty"`
	LineNumber  int      `json:"line_number,omitempty"`
	MatchedText string   `json:"matched_text,omitempty"`
}

// Verdict is the categorical maliciousness assessment, produced by both the
// Pipeline (triage-stage verdict) and the ReportBuilder (final verdict).
type Verdict string

const (
	VerdictClean      Verdict = "CLEAN"
	VerdictSuspicious Verdict = "SUSPICIOUS"
	VerdictMalicious  Verdict = "MALICIOUS"
	VerdictUnknown    Verdict = "UNKNOWN"
	VerdictError      Verdict = "ERROR"
)

// verdictRank gives the order CLEAN = UNKNOWN < SUSPICIOUS < MALICIOUS
// used when worst-casing across AI chunks/files. UNKNOWN carries the same
// rank as CLEAN for the purpose of taking a maximum, per SPEC_FULL.md §4.6,
// but is never silently collapsed into CLEAN in reporting.
var verdictRank = map[Verdict]int{
	VerdictClean:      0,
	VerdictUnknown:    0,
	VerdictSuspicious: 1,
	VerdictMalicious:  2,
}

// Worse returns whichever of a, b ranks higher in the CLEAN < SUSPICIOUS <
// MALICIOUS order. On a tie it returns b, so between CLEAN and UNKNOWN the
// later-observed verdict is the one kept.
func Worse(a, b Verdict) Verdict {
	if verdictRank[b] >= verdictRank[a] {
		return b
	}
	return a
}

// CapRisk clamps a risk accumulator into [0,1].
func CapRisk(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// SumSeverityWeights applies the shared severity-weighted-sum formula used
// by ManifestScanner, ForensicChecker, and RuleEngine: sum of each finding's
// severity weight, capped at 1.0.
func SumSeverityWeights(fs []Finding) float64 {
	var total float64
	for _, f := range fs {
		total += f.Severity.Weight()
	}
	return CapRisk(total)
}

// CountBySeverity returns how many findings fall into each severity bucket.
func CountBySeverity(fs []Finding) map[Severity]int {
	counts := make(map[Severity]int, 5)
	for _, f := range fs {
		counts[f.Severity]++
	}
	return counts
}
