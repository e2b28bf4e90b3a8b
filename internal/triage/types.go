// Package triage implements the Pipeline: stage sequencing over a single
// archive, composite risk scoring, triage verdict, and escalation.
package triage

import (
	"github.com/vexguard/triagecore/internal/aianalyzer"
	"github.com/vexguard/triagecore/internal/deobfuscate"
	"github.com/vexguard/triagecore/internal/findings"
	"github.com/vexguard/triagecore/internal/forensic"
	"github.com/vexguard/triagecore/internal/manifest"
	"github.com/vexguard/triagecore/internal/rules"
)

// Stage tags one variant of StageOutcome. The set is closed — SPEC_FULL.md
// §9 models this as a tagged variant rather than an open Scanner interface,
// since the Pipeline's composite function needs to see every stage's
// fields at once, not dispatch generically across an unbounded set.
type Stage string

const (
	StageManifest     Stage = "manifest"
	StageForensic     Stage = "forensic"
	StageRules        Stage = "rules"
	StageDeobfuscator Stage = "deobfuscator"
	StageAI           Stage = "ai"
)

// StageOutcome carries one stage's result or, on StageFailure, its
// diagnostic. At most one of the typed payload fields is populated,
// matching whichever Stage this outcome tags.
type StageOutcome struct {
	Stage         Stage
	Risk          float64
	Failed        bool
	FailureReason string

	Manifest     *manifest.Result
	Forensic     *forensic.Result
	Rules        *rules.Result
	Deobfuscator []deobfuscate.Result
	AI           *aianalyzer.Result
}

// TriageResult is the Pipeline's public contract output.
type TriageResult struct {
	ExtensionID string
	Version     string

	Stages []StageOutcome

	ManifestResult *manifest.Result
	ForensicResult *forensic.Result
	RulesResult    *rules.Result
	AIResult       *aianalyzer.Result

	CompositeRisk float64
	Verdict       findings.Verdict

	Escalate          bool
	EscalationReasons []string

	FindingCounts map[findings.Severity]int
	AllFindings   []findings.Finding

	BadArchive bool
}

func (t *TriageResult) addFindings(fs []findings.Finding) {
	t.AllFindings = append(t.AllFindings, fs...)
	for _, f := range fs {
		t.FindingCounts[f.Severity]++
	}
}

func newTriageResult(extensionID, version string) *TriageResult {
	return &TriageResult{
		ExtensionID:   extensionID,
		Version:       version,
		FindingCounts: make(map[findings.Severity]int),
	}
}
