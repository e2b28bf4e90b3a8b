// Package rules implements RuleEngine: a fixed catalog of named pattern
// rules applied to every JS/TS source file in the archive. It is the
// pure-Go regex analogue of the original's optional YARA backend — see
// DESIGN.md for why no real YARA binding is wired in.
package rules

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/vexguard/triagecore/internal/archivezip"
	"github.com/vexguard/triagecore/internal/findings"
)

// MaxSourceReadBytes is the per-source-file read cap.
const MaxSourceReadBytes = 5 * 1024 * 1024 // 5 MiB

// sourceExtensions is the set of entry suffixes RuleEngine inspects.
var sourceExtensions = []string{".js", ".ts", ".mjs", ".cjs"}

// skipSubstrings marks test-fixture paths out of scope.
var skipSubstrings = []string{"__test__", ".test.", ".spec."}

// Rule is one named catalog entry: a severity, a description, and the set
// of patterns whose match (any one) reports a finding.
type Rule struct {
	Name        string
	Severity    findings.Severity
	Description string
	Patterns    []*regexp.Regexp
}

// Catalog is the fixed 10-rule set named in SPEC_FULL.md §4.4, carried
// verbatim from the original implementation's yara_engine.py BUILTIN_RULES.
var Catalog = []Rule{
	{
		Name:        "obfuscated_eval",
		Severity:    findings.SeverityHigh,
		Description: "dynamic code construction via indirect eval or Function with decoded-string arguments",
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\(\s*0\s*,\s*eval\s*\)\s*\(`),
			regexp.MustCompile(`(?i)window\s*\[\s*['"]eval['"]\s*\]`),
			regexp.MustCompile(`(?i)new\s+Function\s*\(\s*atob\s*\(`),
			regexp.MustCompile(`(?i)new\s+Function\s*\(\s*Buffer\.from\s*\(`),
			regexp.MustCompile(`(?i)eval\s*\(\s*(atob|unescape|decodeURIComponent)\s*\(`),
		},
	},
	{
		Name:        "base64_payload",
		Severity:    findings.SeverityHigh,
		Description: "long base64 literal passed to a decode primitive",
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(atob|Buffer\.from)\s*\(\s*['"][A-Za-z0-9+/]{80,}={0,2}['"]`),
			regexp.MustCompile(`(?i)['"][A-Za-z0-9+/]{120,}={0,2}['"]`),
		},
	},
	{
		Name:        "hardcoded_ip",
		Severity:    findings.SeverityMedium,
		Description: "URL containing a dotted IPv4 literal",
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`https?://\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}`),
		},
	},
	{
		Name:        "suspicious_url",
		Severity:    findings.SeverityMedium,
		Description: "paste-site, tunnel-service, or free-TLD host reference",
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)https?://(pastebin\.com|paste\.ee|hastebin\.com|ix\.io)`),
			regexp.MustCompile(`(?i)https?://[a-z0-9.-]*\.(ngrok\.io|ngrok-free\.app|trycloudflare\.com|loca\.lt|serveo\.net)`),
			regexp.MustCompile(`(?i)https?://[a-z0-9.-]+\.(tk|ml|ga|cf|gq)\b`),
		},
	},
	{
		Name:        "credential_access",
		Severity:    findings.SeverityHigh,
		Description: "file read against a credential path or environment lookup of a credential-named variable",
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)readFileSync\([^)]*\.(ssh|aws|kube|gnupg)[/\\]`),
			regexp.MustCompile(`(?i)readFileSync\([^)]*\.npmrc`),
			regexp.MustCompile(`(?i)readFileSync\([^)]*\.env['"]?\s*\)`),
			regexp.MustCompile(`(?i)readFileSync\([^)]*(id_rsa|id_ed25519|credentials|\.pem)`),
			regexp.MustCompile(`(?i)process\.env\[[^\]]*(TOKEN|SECRET|PASSWORD|API_KEY)[^\]]*\]`),
		},
	},
	{
		Name:        "data_exfiltration",
		Severity:    findings.SeverityHigh,
		Description: "HTTP client call whose argument list syntactically references credentials or the filesystem",
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)fetch\([^)]*readFileSync`),
			regexp.MustCompile(`(?i)axios\.(post|put)\([^)]*readFileSync`),
			regexp.MustCompile(`(?i)\.request\([^)]*(\.ssh|\.aws|homedir)`),
		},
	},
	{
		Name:        "command_execution",
		Severity:    findings.SeverityHigh,
		Description: "shell-spawn import or exec/spawn call with a shell-binary literal",
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)require\(['"]child_process['"]\)`),
			regexp.MustCompile(`(?i)child_process\.(exec|execSync|spawn|spawnSync)\s*\(\s*['"](/bin/sh|/bin/bash|cmd\.exe|powershell)`),
			regexp.MustCompile(`(?i)execSync\(['"].*(curl|wget|certutil)`),
		},
	},
	{
		Name:        "hex_obfuscation",
		Severity:    findings.SeverityMedium,
		Description: "≥10 consecutive hex escapes or ≥5-arg character-code construction",
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(\\x[0-9a-fA-F]{2}){10,}`),
			regexp.MustCompile(`String\.fromCharCode\(\s*\d+\s*(,\s*\d+\s*){4,}\)`),
		},
	},
	{
		Name:        "network_reconnaissance",
		Severity:    findings.SeverityMedium,
		Description: "host/user/network-interface enumeration",
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)os\.(hostname|userInfo|networkInterfaces)\s*\(\s*\)`),
			regexp.MustCompile(`(?i)require\(['"]systeminformation['"]\)`),
		},
	},
	{
		Name:        "dynamic_require",
		Severity:    findings.SeverityMedium,
		Description: "module loader called with a computed, non-literal argument",
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`require\(\s*[a-zA-Z_$][\w$]*\s*\)`),
			regexp.MustCompile(`require\(\s*[a-zA-Z_$][\w$]*\s*\+`),
		},
	},
}

// Match is one RuleFinding: a single pattern hit at a single location.
type Match struct {
	Rule        string
	Severity    findings.Severity
	File        string
	Line        int
	MatchedText string
}

// Result is RuleEngine's contract output.
type Result struct {
	Matches   []Match
	Findings  []findings.Finding
	RiskScore float64
}

func isSourceFile(name string) bool {
	for _, ext := range sourceExtensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

func isSkipped(name string) bool {
	for _, s := range skipSubstrings {
		if strings.Contains(name, s) {
			return true
		}
	}
	return false
}

// Scan applies Catalog to every eligible source entry in the archive.
func Scan(r *archivezip.Reader) (*Result, error) {
	res := &Result{}

	for _, e := range r.Entries() {
		if e.IsDir || !isSourceFile(e.Name) || isSkipped(e.Name) {
			continue
		}
		if e.Size > MaxSourceReadBytes {
			continue
		}
		data, err := r.Read(e.Name, MaxSourceReadBytes)
		if err != nil {
			continue
		}
		scanSource(e.Name, string(data), res)
	}

	res.RiskScore = findings.SumSeverityWeights(res.Findings)
	return res, nil
}

func scanSource(file, source string, res *Result) {
	lines := strings.Split(source, "\n")
	for lineNo, line := range lines {
		for _, rule := range Catalog {
			for _, p := range rule.Patterns {
				m := p.FindString(line)
				if m == "" {
					continue
				}
				res.Matches = append(res.Matches, Match{
					Rule:        rule.Name,
					Severity:    rule.Severity,
					File:        file,
					Line:        lineNo + 1,
					MatchedText: m,
				})
				res.Findings = append(res.Findings, findings.Finding{
					Severity:    rule.Severity,
					Category:    rule.Name,
					Description: fmt.Sprintf("%s: %s", rule.Name, rule.Description),
					FilePath:    file,
					LineNumber:  lineNo + 1,
					MatchedText: m,
				})
				break // one finding per rule per line, matching the spec's "a rule matches if any of its patterns matches"
			}
		}
	}
}
