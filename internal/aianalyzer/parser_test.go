package aianalyzer

import (
	"testing"

	"github.com/vexguard/triagecore/internal/findings"
)

func TestParseResponse_BareJSON(t *testing.T) {
	raw := `{"risk_score": 0.9, "confidence": 0.8, "verdict": "MALICIOUS", "findings": ["eval abuse"], "summary": "bad"}`
	got := parseResponse(raw)
	if got.Verdict != findings.VerdictMalicious {
		t.Fatalf("want MALICIOUS, got %s", got.Verdict)
	}
	if got.RiskScore != 0.9 {
		t.Fatalf("want risk 0.9, got %v", got.RiskScore)
	}
}

func TestParseResponse_FencedCodeBlock(t *testing.T) {
	raw := "Here is my analysis:\n```json\n{\"risk_score\": 0.2, \"confidence\": 0.5, \"verdict\": \"CLEAN\", \"summary\": \"looks fine\"}\n```\n"
	got := parseResponse(raw)
	if got.Verdict != findings.VerdictClean {
		t.Fatalf("want CLEAN, got %s", got.Verdict)
	}
}

func TestParseResponse_NonJSONFallback(t *testing.T) {
	got := parseResponse("I think this extension looks a bit suspicious but I can't be sure.")
	if got.Verdict != findings.VerdictSuspicious {
		t.Fatalf("want SUSPICIOUS fallback, got %s", got.Verdict)
	}
	if got.RiskScore != 0.5 || got.Confidence != 0.3 {
		t.Fatalf("want fallback risk=0.5 confidence=0.3, got risk=%v confidence=%v", got.RiskScore, got.Confidence)
	}
}

func TestFallbackResult(t *testing.T) {
	got := fallbackResult("connection_error: dial tcp: timeout")
	if got.Verdict != findings.VerdictUnknown || got.RiskScore != 0.5 || got.Confidence != 0 {
		t.Fatalf("unexpected fallback shape: %+v", got)
	}
}
