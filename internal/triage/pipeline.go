package triage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/vexguard/triagecore/internal/aianalyzer"
	"github.com/vexguard/triagecore/internal/archivezip"
	"github.com/vexguard/triagecore/internal/deobfuscate"
	"github.com/vexguard/triagecore/internal/findings"
	"github.com/vexguard/triagecore/internal/forensic"
	"github.com/vexguard/triagecore/internal/logger"
	"github.com/vexguard/triagecore/internal/manifest"
	"github.com/vexguard/triagecore/internal/rules"
)

// ErrHeavyweight is returned when the archive exceeds cfg.MaxArchiveBytes
// and the caller has not opted into HEAVYWEIGHT processing. The caller
// (persistence layer) is expected to set scan_state to HEAVYWEIGHT and
// stop, rather than the Pipeline guessing at that transition itself.
var ErrHeavyweight = errors.New("triage: archive exceeds the configured size cap")

// PreAICallback receives the intermediate TriageResult reflecting only the
// stages completed before AIAnalyzer begins.
type PreAICallback func(partial *TriageResult)

// Pipeline orchestrates the fixed stage sequence over one archive.
type Pipeline struct {
	cfg Config
	log *logger.Logger
}

// New builds a Pipeline with the given configuration.
func New(cfg Config) *Pipeline {
	return &Pipeline{cfg: cfg, log: logger.NewLogger("triage")}
}

// Run executes the full stage sequence named in SPEC_FULL.md §4.7:
// ManifestScanner → ForensicChecker → RuleEngine → (Deobfuscator,
// advisory) → AIAnalyzer, computes the composite risk and triage verdict,
// and returns both the TriageResult and any accumulated non-fatal stage
// failures.
func (p *Pipeline) Run(ctx context.Context, archivePath string, preAI PreAICallback) (*TriageResult, *multierror.Error) {
	var merr *multierror.Error
	result := newTriageResult("", "")
	p.log.Info("starting triage", "archive", archivePath)

	if info, err := os.Stat(archivePath); err == nil {
		if info.Size() > p.cfg.MaxArchiveBytes && !p.cfg.HeavyweightOptIn {
			merr = multierror.Append(merr, fmt.Errorf("%w: %d bytes", ErrHeavyweight, info.Size()))
			return nil, merr
		}
	}

	r, err := archivezip.Open(archivePath)
	if err != nil {
		return p.handleOpenFailure(err, merr)
	}
	defer r.Close()

	// --- ManifestScanner ---
	manifestOutcome := p.runManifest(r)
	result.Stages = append(result.Stages, manifestOutcome)
	if manifestOutcome.Failed {
		p.log.Warn("manifest stage failed", "reason", manifestOutcome.FailureReason)
		merr = multierror.Append(merr, fmt.Errorf("manifest stage: %s", manifestOutcome.FailureReason))
	} else {
		result.ManifestResult = manifestOutcome.Manifest
		result.ExtensionID = manifestOutcome.Manifest.ExtensionID
		result.Version = manifestOutcome.Manifest.Version
		result.addFindings(manifestOutcome.Manifest.Findings)
	}

	if p.cfg.shouldStop() {
		return p.finalize(result), merr
	}

	// --- ForensicChecker ---
	forensicOutcome := p.runForensic(r)
	result.Stages = append(result.Stages, forensicOutcome)
	if forensicOutcome.Failed {
		p.log.Warn("forensic stage failed", "reason", forensicOutcome.FailureReason)
		merr = multierror.Append(merr, fmt.Errorf("forensic stage: %s", forensicOutcome.FailureReason))
	} else {
		result.ForensicResult = forensicOutcome.Forensic
		result.addFindings(forensicOutcome.Forensic.Findings)
	}

	if p.cfg.shouldStop() {
		return p.finalize(result), merr
	}

	// --- RuleEngine ---
	rulesOutcome := p.runRules(r)
	result.Stages = append(result.Stages, rulesOutcome)
	if rulesOutcome.Failed {
		p.log.Warn("rules stage failed", "reason", rulesOutcome.FailureReason)
		merr = multierror.Append(merr, fmt.Errorf("rules stage: %s", rulesOutcome.FailureReason))
	} else {
		result.RulesResult = rulesOutcome.Rules
		result.addFindings(rulesOutcome.Rules.Findings)
	}

	// --- Deobfuscator (advisory; runs over .js/.ts entries within
	// RuleEngine's size cap, never contributes to the composite) ---
	deobOutcome := p.runDeobfuscator(r)
	result.Stages = append(result.Stages, deobOutcome)
	if !deobOutcome.Failed {
		for _, d := range deobOutcome.Deobfuscator {
			if d.ObfuscationScore >= 0.6 {
				result.addFindings([]findings.Finding{{
					Severity:    findings.SeverityInfo,
					Category:    "HIGH_OBFUSCATION",
					Description: fmt.Sprintf("obfuscation score %.2f (packers: %s)", d.ObfuscationScore, strings.Join(d.PackersDetected, ",")),
				}})
			}
		}
	}

	// preAICallback is guaranteed to fire strictly after RuleEngine and
	// strictly before AIAnalyzer.
	if preAI != nil {
		partial := p.snapshotPartial(result)
		preAI(partial)
	}

	if p.cfg.shouldStop() {
		return p.finalize(result), merr
	}

	// --- AIAnalyzer ---
	aiOutcome := p.runAI(ctx, r, result.RulesResult, result.ManifestResult)
	result.Stages = append(result.Stages, aiOutcome)
	if aiOutcome.Failed {
		p.log.Warn("ai stage failed", "reason", aiOutcome.FailureReason)
		merr = multierror.Append(merr, fmt.Errorf("ai stage: %s", aiOutcome.FailureReason))
	} else {
		result.AIResult = aiOutcome.AI
		result.addFindings(aiOutcome.AI.Findings)
	}

	final := p.finalize(result)
	p.log.Info("triage complete", "verdict", final.Verdict, "composite_risk", final.CompositeRisk)
	return final, merr
}

// handleOpenFailure distinguishes structural ZipSlip/ZipBomb violations
// from a plain BadArchive, which also records a ManifestScanner stage
// outcome with risk 1.0. In every case no stage runs, since there is no
// reader to run it on; the result is marked BadArchive, so finalize uses a
// manifest risk of 1.0.
func (p *Pipeline) handleOpenFailure(err error, merr *multierror.Error) (*TriageResult, *multierror.Error) {
	p.log.Error("failed to open archive", err)
	result := newTriageResult("", "")
	result.BadArchive = true

	switch {
	case errors.Is(err, archivezip.ErrZipSlip), errors.Is(err, archivezip.ErrZipBomb):
		result.addFindings([]findings.Finding{{
			Severity:    findings.SeverityCritical,
			Category:    "ZIP_SAFETY_VIOLATION",
			Description: err.Error(),
		}})
	case errors.Is(err, archivezip.ErrBadArchive):
		result.addFindings([]findings.Finding{{
			Severity:    findings.SeverityCritical,
			Category:    "BAD_ARCHIVE",
			Description: err.Error(),
		}})
		result.Stages = append(result.Stages, StageOutcome{Stage: StageManifest, Risk: 1.0})
	default:
		result.addFindings([]findings.Finding{{
			Severity:    findings.SeverityCritical,
			Category:    "BAD_ARCHIVE",
			Description: err.Error(),
		}})
	}

	merr = multierror.Append(merr, err)
	return p.finalize(result), merr
}

func (p *Pipeline) snapshotPartial(r *TriageResult) *TriageResult {
	cp := *r
	cp.FindingCounts = make(map[findings.Severity]int, len(r.FindingCounts))
	for k, v := range r.FindingCounts {
		cp.FindingCounts[k] = v
	}
	cp.AllFindings = append([]findings.Finding(nil), r.AllFindings...)
	return &cp
}

// finalize computes the composite risk, triage verdict, and escalation
// reasons once stage execution stops (either because every stage ran or
// because StopCheck fired).
func (p *Pipeline) finalize(result *TriageResult) *TriageResult {
	metaRisk := 0.0
	if result.ManifestResult != nil {
		metaRisk = result.ManifestResult.RiskScore
	} else if result.BadArchive {
		metaRisk = 1.0
	}
	forensicRisk := 0.0
	if result.ForensicResult != nil {
		forensicRisk = result.ForensicResult.RiskScore
	}
	yaraRisk := 0.0
	if result.RulesResult != nil {
		yaraRisk = result.RulesResult.RiskScore
	}
	aiRisk := 0.0
	if result.AIResult != nil {
		// Preserved verbatim per SPEC_FULL.md §9.1: an AI fallback's
		// risk_score=0.5 enters the composite unchanged, no renormalization.
		aiRisk = result.AIResult.RiskScore
	}

	w := p.cfg.Weights
	// meta_risk is weighted twice on purpose: once inside the static pair,
	// once standalone as w.Metadata. Preserved verbatim per SPEC_FULL §9.1.
	composite := aiRisk*w.AI +
		((metaRisk+forensicRisk)/2)*w.Static +
		yaraRisk*w.Yara +
		metaRisk*w.Metadata
	result.CompositeRisk = findings.CapRisk(composite)

	result.Verdict = triageVerdict(result.CompositeRisk, result.FindingCounts)
	result.Escalate, result.EscalationReasons = escalation(result)

	return result
}

func triageVerdict(composite float64, counts map[findings.Severity]int) findings.Verdict {
	switch {
	case composite >= MaliciousThreshold:
		return findings.VerdictMalicious
	case composite >= EscalationThreshold:
		return findings.VerdictSuspicious
	case counts[findings.SeverityCritical] > 0:
		return findings.VerdictSuspicious
	default:
		return findings.VerdictClean
	}
}

func escalation(r *TriageResult) (bool, []string) {
	if r.Verdict != findings.VerdictSuspicious && r.Verdict != findings.VerdictMalicious {
		return false, nil
	}
	var reasons []string
	if r.FindingCounts[findings.SeverityCritical] >= 1 {
		reasons = append(reasons, "at least one CRITICAL finding")
	}
	if r.FindingCounts[findings.SeverityHigh] >= 3 {
		reasons = append(reasons, "three or more HIGH findings")
	}
	if r.CompositeRisk >= EscalationThreshold {
		reasons = append(reasons, fmt.Sprintf("composite risk %.2f at or above escalation threshold", r.CompositeRisk))
	}
	if r.AIResult != nil && (r.AIResult.Verdict == findings.VerdictSuspicious || r.AIResult.Verdict == findings.VerdictMalicious) {
		reasons = append(reasons, "AI verdict "+string(r.AIResult.Verdict))
	}
	return true, reasons
}

// runManifest invokes ManifestScanner behind a recover() boundary, turning
// a panic on hostile input into a StageFailure rather than crashing the scan.
func (p *Pipeline) runManifest(r *archivezip.Reader) (outcome StageOutcome) {
	outcome.Stage = StageManifest
	defer func() {
		if rec := recover(); rec != nil {
			outcome.Failed = true
			outcome.FailureReason = fmt.Sprintf("panic: %v", rec)
		}
	}()

	res, err := manifest.Scan(r)
	if err != nil {
		outcome.Failed = true
		outcome.FailureReason = err.Error()
		return outcome
	}
	outcome.Manifest = res
	outcome.Risk = res.RiskScore
	return outcome
}

func (p *Pipeline) runForensic(r *archivezip.Reader) (outcome StageOutcome) {
	outcome.Stage = StageForensic
	defer func() {
		if rec := recover(); rec != nil {
			outcome.Failed = true
			outcome.FailureReason = fmt.Sprintf("panic: %v", rec)
		}
	}()

	res, err := forensic.Scan(r)
	if err != nil {
		outcome.Failed = true
		outcome.FailureReason = err.Error()
		return outcome
	}
	outcome.Forensic = res
	outcome.Risk = res.RiskScore
	return outcome
}

func (p *Pipeline) runRules(r *archivezip.Reader) (outcome StageOutcome) {
	outcome.Stage = StageRules
	defer func() {
		if rec := recover(); rec != nil {
			outcome.Failed = true
			outcome.FailureReason = fmt.Sprintf("panic: %v", rec)
		}
	}()

	res, err := rules.Scan(r)
	if err != nil {
		outcome.Failed = true
		outcome.FailureReason = err.Error()
		return outcome
	}
	outcome.Rules = res
	outcome.Risk = res.RiskScore
	return outcome
}

func (p *Pipeline) runDeobfuscator(r *archivezip.Reader) (outcome StageOutcome) {
	outcome.Stage = StageDeobfuscator
	defer func() {
		if rec := recover(); rec != nil {
			outcome.Failed = true
			outcome.FailureReason = fmt.Sprintf("panic: %v", rec)
		}
	}()

	for _, e := range r.Entries() {
		if e.IsDir || !strings.HasSuffix(e.Name, ".js") && !strings.HasSuffix(e.Name, ".ts") {
			continue
		}
		if e.Size > rules.MaxSourceReadBytes {
			continue
		}
		data, err := r.Read(e.Name, rules.MaxSourceReadBytes)
		if err != nil {
			continue
		}
		outcome.Deobfuscator = append(outcome.Deobfuscator, deobfuscate.Deobfuscate(string(data)))
	}
	return outcome
}

func (p *Pipeline) runAI(ctx context.Context, r *archivezip.Reader, ruleResult *rules.Result, manifestResult *manifest.Result) (outcome StageOutcome) {
	outcome.Stage = StageAI
	defer func() {
		if rec := recover(); rec != nil {
			outcome.Failed = true
			outcome.FailureReason = fmt.Sprintf("panic: %v", rec)
		}
	}()

	if p.cfg.AI.InferenceURL == "" {
		// No endpoint configured: the AI stage is disabled rather than
		// attempted and failed. This is distinct from AIUnavailable, which
		// covers a configured endpoint that could not be reached.
		return outcome
	}

	client := aianalyzer.NewClient(p.cfg.AI)
	outcome.AI = aianalyzer.Analyze(ctx, r, ruleResult, manifestResult, client, p.cfg.AI)
	outcome.Risk = outcome.AI.RiskScore
	return outcome
}
