package triage

import "github.com/vexguard/triagecore/internal/aianalyzer"

// Weights holds the composite formula's four configurable weights, named
// scoring.ai_vibe_weight / static_analysis_weight / behavioral_weight /
// trust_signal_weight in SPEC_FULL.md §6.
type Weights struct {
	AI       float64
	Static   float64
	Yara     float64
	Metadata float64
}

// DefaultWeights matches SPEC_FULL.md §4.7's documented defaults.
func DefaultWeights() Weights {
	return Weights{AI: 0.35, Static: 0.25, Yara: 0.25, Metadata: 0.15}
}

const (
	// MaliciousThreshold is the triage-stage MALICIOUS cutoff.
	MaliciousThreshold = 0.8
	// EscalationThreshold is both the SUSPICIOUS cutoff and the escalation
	// composite-threshold reason, per the original pipeline.py's
	// ESCALATION_THRESHOLD.
	EscalationThreshold = 0.4

	// DefaultMaxArchiveBytes is the default non-HEAVYWEIGHT archive cap.
	DefaultMaxArchiveBytes = 20 * 1024 * 1024
)

// Config carries per-scan tuning: composite weights, AI endpoint settings,
// resource caps, and the cooperative cancellation hook.
type Config struct {
	Weights          Weights
	AI               aianalyzer.Config
	MaxArchiveBytes  int64
	HeavyweightOptIn bool
	// StopCheck is consulted between stages; when it returns true, no new
	// stage begins but the in-flight stage still completes.
	StopCheck func() bool
}

// DefaultConfig returns the documented defaults for every tunable.
func DefaultConfig() Config {
	return Config{
		Weights:         DefaultWeights(),
		AI:              aianalyzer.DefaultConfig(),
		MaxArchiveBytes: DefaultMaxArchiveBytes,
	}
}

func (c Config) shouldStop() bool {
	return c.StopCheck != nil && c.StopCheck()
}
