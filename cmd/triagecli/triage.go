package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vexguard/triagecore/internal/aianalyzer"
	"github.com/vexguard/triagecore/internal/config"
	"github.com/vexguard/triagecore/internal/triage"
)

func newTriageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "triage <path>",
		Short: "Run the static triage pipeline against a single package archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTriage(args[0])
		},
	}
	return cmd
}

func runTriage(path string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	pipelineCfg := triage.DefaultConfig()
	pipelineCfg.Weights = triage.Weights{
		AI:       cfg.Scoring.AIVibeWeight,
		Static:   cfg.Scoring.StaticAnalysisWeight,
		Yara:     cfg.Scoring.BehavioralWeight,
		Metadata: cfg.Scoring.TrustSignalWeight,
	}
	pipelineCfg.MaxArchiveBytes = cfg.Storage.MaxArchiveBytes
	base := aianalyzer.DefaultConfig()
	base.InferenceURL = cfg.AI.InferenceURL
	base.ChatEndpoint = cfg.AI.ChatEndpoint
	base.Model = cfg.AI.Model
	base.MaxTokens = cfg.AI.MaxTokens
	base.Temperature = cfg.AI.Temperature
	base.ConnectTimeout = time.Duration(cfg.AI.ConnectTimeoutSec) * time.Second
	base.ReadTimeout = time.Duration(cfg.AI.ReadTimeoutSec) * time.Second
	base.MaxChunkTokens = cfg.AI.MaxChunkTokens
	base.MaxChunksPerFile = cfg.AI.MaxChunksPerFile
	base.RequestsPerSecond = float64(cfg.AI.RequestsPerSecond)
	pipelineCfg.AI = base

	log.WithField("path", path).Info("starting triage")

	p := triage.New(pipelineCfg)
	result, merr := p.Run(context.Background(), path, func(partial *triage.TriageResult) {
		log.WithField("findings_so_far", len(partial.AllFindings)).Debug("pre-AI checkpoint")
	})
	if result == nil {
		return fmt.Errorf("triage: %v", merr)
	}
	if merr != nil && merr.Len() > 0 {
		log.WithError(merr).Warn("triage completed with stage failures")
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	fmt.Println(string(out))

	log.WithField("verdict", result.Verdict).Info("triage complete")
	return nil
}
