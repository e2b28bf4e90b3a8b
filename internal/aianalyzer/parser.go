package aianalyzer

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/vexguard/triagecore/internal/findings"
)

var fencedCodeBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

type rawVerdict struct {
	RiskScore  *float64 `json:"risk_score"`
	Confidence *float64 `json:"confidence"`
	Verdict    string   `json:"verdict"`
	Findings   []string `json:"findings"`
	Summary    string   `json:"summary"`
}

// ChunkResult is one chunk's parsed (or synthesized) verdict.
type ChunkResult struct {
	RiskScore  float64
	Confidence float64
	Verdict    findings.Verdict
	Findings   []string
	Summary    string
}

// parseResponse tolerates three shapes in order: bare JSON, JSON inside a
// fenced code block, and non-JSON text (synthesized SUSPICIOUS fallback
// carrying the raw content as summary), per SPEC_FULL.md §4.6.
func parseResponse(raw string) ChunkResult {
	trimmed := strings.TrimSpace(raw)

	if rv, ok := tryParseJSON(trimmed); ok {
		return toChunkResult(rv)
	}

	if m := fencedCodeBlockRe.FindStringSubmatch(trimmed); len(m) == 2 {
		if rv, ok := tryParseJSON(m[1]); ok {
			return toChunkResult(rv)
		}
	}

	return ChunkResult{
		RiskScore:  0.5,
		Confidence: 0.3,
		Verdict:    findings.VerdictSuspicious,
		Summary:    trimmed,
	}
}

func tryParseJSON(s string) (rawVerdict, bool) {
	var rv rawVerdict
	if err := json.Unmarshal([]byte(s), &rv); err != nil {
		return rawVerdict{}, false
	}
	if rv.Verdict == "" && rv.RiskScore == nil {
		return rawVerdict{}, false
	}
	return rv, true
}

func toChunkResult(rv rawVerdict) ChunkResult {
	risk := 0.0
	if rv.RiskScore != nil {
		risk = findings.CapRisk(*rv.RiskScore)
	}
	confidence := 0.0
	if rv.Confidence != nil {
		confidence = findings.CapRisk(*rv.Confidence)
	}
	verdict := findings.Verdict(strings.ToUpper(rv.Verdict))
	switch verdict {
	case findings.VerdictClean, findings.VerdictSuspicious, findings.VerdictMalicious, findings.VerdictUnknown:
	default:
		verdict = findings.VerdictUnknown
	}
	return ChunkResult{
		RiskScore:  risk,
		Confidence: confidence,
		Verdict:    verdict,
		Findings:   rv.Findings,
		Summary:    rv.Summary,
	}
}

// fallbackResult is used when the request itself never produced content:
// connection error, timeout with nothing captured, or HTTP error.
func fallbackResult(reason string) ChunkResult {
	return ChunkResult{
		RiskScore:  0.5,
		Confidence: 0,
		Verdict:    findings.VerdictUnknown,
		Summary:    "AI stage unavailable: " + reason,
	}
}
