package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// ScoringConfig carries the Pipeline's composite weights.
type ScoringConfig struct {
	AIVibeWeight      float64
	StaticAnalysisWeight float64
	BehavioralWeight  float64
	TrustSignalWeight float64
}

// AIConfig carries the AIAnalyzer endpoint and request-shaping settings.
type AIConfig struct {
	InferenceURL      string
	ChatEndpoint      string
	Model             string
	MaxTokens         int
	Temperature       float64
	ConnectTimeoutSec int
	ReadTimeoutSec    int
	MaxChunkTokens    int
	MaxChunksPerFile  int
	RequestsPerSecond int
}

// StorageConfig carries resource caps.
type StorageConfig struct {
	MaxArchiveBytes      int64
	MaxEntryBytes        int64
	MaxRuleSourceBytes   int64
	MaxManifestSourceBytes int64
}

// MarketplaceConfig carries the out-of-scope external-scraper rate limit;
// this module never calls a marketplace API itself, but the setting is
// still parsed so a wrapping service can hand it to its own scraper.
type MarketplaceConfig struct {
	RequestsPerMinute int
}

// NotifyConfig carries the optional MALICIOUS-verdict mail alert.
type NotifyConfig struct {
	SMTPHost string
	SMTPPort int
	SMTPFrom string
	SMTPTo   string
}

// Config is the full layered configuration for the triage core, loaded by
// Load via a YAML file overlaid with TRIAGE_-prefixed environment
// variables, following the teacher's env-then-file layering shape.
type Config struct {
	Scoring     ScoringConfig
	AI          AIConfig
	Storage     StorageConfig
	Marketplace MarketplaceConfig
	Notify      NotifyConfig
	DatabaseURL string
}

// Load reads configPath (if non-empty) as YAML, then overlays
// TRIAGE_-prefixed environment variables, following GetEnvWithFallback's
// .env-first bootstrap via LoadEnvOnce.
func Load(configPath string) (*Config, error) {
	LoadEnvOnce()

	v := viper.New()
	v.SetEnvPrefix("TRIAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configPath, err)
		}
	}

	cfg := &Config{
		Scoring: ScoringConfig{
			AIVibeWeight:         v.GetFloat64("scoring.ai_vibe_weight"),
			StaticAnalysisWeight: v.GetFloat64("scoring.static_analysis_weight"),
			BehavioralWeight:     v.GetFloat64("scoring.behavioral_weight"),
			TrustSignalWeight:    v.GetFloat64("scoring.trust_signal_weight"),
		},
		AI: AIConfig{
			InferenceURL:      v.GetString("ai.inference_url"),
			ChatEndpoint:      v.GetString("ai.chat_endpoint"),
			Model:             v.GetString("ai.model"),
			MaxTokens:         v.GetInt("ai.max_tokens"),
			Temperature:       v.GetFloat64("ai.temperature"),
			ConnectTimeoutSec: v.GetInt("ai.connect_timeout_sec"),
			ReadTimeoutSec:    v.GetInt("ai.read_timeout_sec"),
			MaxChunkTokens:    v.GetInt("ai.max_chunk_tokens"),
			MaxChunksPerFile:  v.GetInt("ai.max_chunks_per_file"),
			RequestsPerSecond: v.GetInt("ai.requests_per_second"),
		},
		Storage: StorageConfig{
			MaxArchiveBytes:        v.GetInt64("storage.max_archive_bytes"),
			MaxEntryBytes:          v.GetInt64("storage.max_entry_bytes"),
			MaxRuleSourceBytes:     v.GetInt64("storage.max_rule_source_bytes"),
			MaxManifestSourceBytes: v.GetInt64("storage.max_manifest_source_bytes"),
		},
		Marketplace: MarketplaceConfig{
			RequestsPerMinute: v.GetInt("marketplace.requests_per_minute"),
		},
		Notify: NotifyConfig{
			SMTPHost: v.GetString("notify.smtp_host"),
			SMTPPort: v.GetInt("notify.smtp_port"),
			SMTPFrom: v.GetString("notify.smtp_from"),
			SMTPTo:   v.GetString("notify.smtp_to"),
		},
		DatabaseURL: GetEnvWithFallback("DATABASE_URL", v.GetString("database_url")),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("scoring.ai_vibe_weight", 0.35)
	v.SetDefault("scoring.static_analysis_weight", 0.25)
	v.SetDefault("scoring.behavioral_weight", 0.25)
	v.SetDefault("scoring.trust_signal_weight", 0.15)

	v.SetDefault("ai.chat_endpoint", "/v1/chat/completions")
	v.SetDefault("ai.model", "gpt-4o-mini")
	v.SetDefault("ai.max_tokens", 2048)
	v.SetDefault("ai.temperature", 0.1)
	v.SetDefault("ai.connect_timeout_sec", 30)
	v.SetDefault("ai.read_timeout_sec", 240)
	v.SetDefault("ai.max_chunk_tokens", 1500)
	v.SetDefault("ai.max_chunks_per_file", 5)
	v.SetDefault("ai.requests_per_second", 2)

	v.SetDefault("storage.max_archive_bytes", 20*1024*1024)
	v.SetDefault("storage.max_entry_bytes", 500*1024*1024)
	v.SetDefault("storage.max_rule_source_bytes", 5*1024*1024)
	v.SetDefault("storage.max_manifest_source_bytes", 2*1024*1024)

	v.SetDefault("marketplace.requests_per_minute", 60)
}
