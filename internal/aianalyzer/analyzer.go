// Package aianalyzer implements AIAnalyzer: target selection, chunking,
// streamed LLM calls, and worst-case aggregation across chunks and files.
package aianalyzer

import (
	"context"
	"path"
	"sort"
	"strings"

	"github.com/vexguard/triagecore/internal/archivezip"
	"github.com/vexguard/triagecore/internal/findings"
	"github.com/vexguard/triagecore/internal/manifest"
	"github.com/vexguard/triagecore/internal/rules"
)

// FileResult is one target file's worst-case-aggregated chunk results.
type FileResult struct {
	File       string
	RiskScore  float64
	Confidence float64
	Verdict    findings.Verdict
	Findings   []string
	ChunkCount int
}

// Result is AIAnalyzer's contract output: the worst-case aggregation
// across every target file.
type Result struct {
	RiskScore  float64
	Confidence float64
	Verdict    findings.Verdict
	Findings   []findings.Finding
	PerFile    []FileResult
}

const maxTargetFiles = 2

// selectTargets implements SPEC_FULL.md §4.6's target-selection rule: prefer
// the source files with the highest-severity rule hits; otherwise resolve
// the manifest's main/browser entry points (with path variations), taking
// at most two distinct files that exist.
func selectTargets(r *archivezip.Reader, ruleResult *rules.Result, manifestResult *manifest.Result) []string {
	if ruleResult != nil && len(ruleResult.Matches) > 0 {
		return topRuleHitFiles(ruleResult)
	}

	var candidates []string
	if manifestResult != nil {
		root := ""
		if manifestResult.MainEntry != "" || manifestResult.BrowserEntry != "" {
			for _, e := range r.Entries() {
				if strings.HasPrefix(e.Name, "extension/") {
					root = "extension/"
					break
				}
			}
		}
		candidates = append(candidates, entryVariants(root, manifestResult.MainEntry)...)
		candidates = append(candidates, entryVariants(root, manifestResult.BrowserEntry)...)
	}

	existing := map[string]bool{}
	for _, e := range r.Entries() {
		existing[e.Name] = true
	}

	var out []string
	seen := map[string]bool{}
	for _, c := range candidates {
		if seen[c] || !existing[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
		if len(out) >= maxTargetFiles {
			break
		}
	}
	return out
}

func entryVariants(root, declared string) []string {
	if declared == "" {
		return nil
	}
	clean := strings.TrimPrefix(declared, "./")
	full := path.Join(root, clean)
	variants := []string{full}
	if !strings.HasSuffix(full, ".js") {
		variants = append(variants, full+".js", full+"/index.js")
	}
	return variants
}

var severityRank = map[findings.Severity]int{
	findings.SeverityCritical: 4,
	findings.SeverityHigh:     3,
	findings.SeverityMedium:   2,
	findings.SeverityLow:      1,
	findings.SeverityInfo:     0,
}

func topRuleHitFiles(ruleResult *rules.Result) []string {
	type fileScore struct {
		file string
		rank int
	}
	scores := map[string]int{}
	for _, m := range ruleResult.Matches {
		if r := severityRank[m.Severity]; r > scores[m.File] {
			scores[m.File] = r
		}
	}
	ranked := make([]fileScore, 0, len(scores))
	for f, r := range scores {
		ranked = append(ranked, fileScore{f, r})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].rank != ranked[j].rank {
			return ranked[i].rank > ranked[j].rank
		}
		return ranked[i].file < ranked[j].file
	})

	var out []string
	for _, fs := range ranked {
		out = append(out, fs.file)
		if len(out) >= maxTargetFiles {
			break
		}
	}
	return out
}

// Analyze runs AIAnalyzer end to end: selects targets, chunks each, calls
// the client per chunk, and worst-case-aggregates within and across files.
func Analyze(ctx context.Context, r *archivezip.Reader, ruleResult *rules.Result, manifestResult *manifest.Result, client *Client, cfg Config) *Result {
	targets := selectTargets(r, ruleResult, manifestResult)
	if len(targets) == 0 {
		return &Result{
			RiskScore:  0.5,
			Confidence: 0,
			Verdict:    findings.VerdictUnknown,
			Findings: []findings.Finding{{
				Severity:    findings.SeverityInfo,
				Category:    "AI_NO_TARGET",
				Description: "no rule hits and no resolvable entry point; AI stage skipped",
			}},
		}
	}

	maxChars := cfg.MaxChunkTokens * CharsPerToken
	result := &Result{Verdict: findings.VerdictClean}
	multiFile := len(targets) > 1

	for _, file := range targets {
		data, err := r.Read(file, rules.MaxSourceReadBytes)
		if err != nil {
			continue
		}
		fr := analyzeFile(ctx, file, string(data), client, maxChars, cfg.MaxChunksPerFile, multiFile)
		result.PerFile = append(result.PerFile, fr)

		if fr.RiskScore > result.RiskScore {
			result.RiskScore = fr.RiskScore
		}
		result.Verdict = findings.Worse(result.Verdict, fr.Verdict)
		if fr.Confidence > result.Confidence {
			result.Confidence = fr.Confidence
		}
		for _, desc := range fr.Findings {
			result.Findings = append(result.Findings, findings.Finding{
				Severity:    verdictSeverity(fr.Verdict),
				Category:    "AI_FINDING",
				Description: desc,
				FilePath:    file,
			})
		}
	}

	if len(result.PerFile) == 0 {
		return &Result{
			RiskScore:  0.5,
			Confidence: 0,
			Verdict:    findings.VerdictUnknown,
			Findings: []findings.Finding{{
				Severity:    findings.SeverityInfo,
				Category:    "AI_NO_TARGET",
				Description: "selected targets could not be read from the archive",
			}},
		}
	}
	return result
}

func verdictSeverity(v findings.Verdict) findings.Severity {
	switch v {
	case findings.VerdictMalicious:
		return findings.SeverityHigh
	case findings.VerdictSuspicious:
		return findings.SeverityMedium
	default:
		return findings.SeverityInfo
	}
}

func analyzeFile(ctx context.Context, file, source string, client *Client, maxChars, maxChunks int, multiFile bool) FileResult {
	chunks := chunkSource(source, maxChars)
	if len(chunks) > maxChunks {
		chunks = chunks[:maxChunks]
	}

	fr := FileResult{File: file, Verdict: findings.VerdictClean}
	for _, chunk := range chunks {
		content, ok, reason := client.Complete(ctx, chunk)
		var cr ChunkResult
		if !ok {
			cr = fallbackResult(reason)
		} else {
			cr = parseResponse(content)
		}

		if cr.RiskScore > fr.RiskScore {
			fr.RiskScore = cr.RiskScore
		}
		fr.Verdict = findings.Worse(fr.Verdict, cr.Verdict)
		fr.Findings = append(fr.Findings, cr.Findings...)
		fr.ChunkCount++
	}

	if len(chunks) > 1 || multiFile {
		// Chunked/multi-file aggregation carries reduced confidence,
		// matching the original's analyze_source() chunked-path behavior.
		fr.Confidence = 0.7
	} else if fr.ChunkCount > 0 {
		fr.Confidence = 1.0
	}

	return fr
}
