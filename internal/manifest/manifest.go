// Package manifest implements ManifestScanner: parsing the package manifest,
// extracting capability data, and scanning declared entry points and bundled
// dependency manifests for risky signals.
package manifest

import (
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/vexguard/triagecore/internal/archivezip"
	"github.com/vexguard/triagecore/internal/findings"
)

// MaxSourceReadBytes is the per-source-file read cap for the entry-point
// scan; larger files are skipped here and left to the AI stage's chunker.
const MaxSourceReadBytes = 2 * 1024 * 1024 // 2 MiB

// lifecycleScriptNames is the set of package.json script keys a package
// manager would run during install/uninstall without user action.
var lifecycleScriptNames = map[string]bool{
	"preinstall":     true,
	"install":        true,
	"postinstall":    true,
	"preuninstall":   true,
	"uninstall":      true,
	"postuninstall":  true,
	"prepublish":     true,
	"prepare":        true,
}

// suspiciousDependencyNames is a curated set of npm package names whose
// stated purpose maps onto capability classes an editor extension has no
// legitimate reason to bundle: keylogging, clipboard scraping, and
// keychain/credential-store bindings.
var suspiciousDependencyNames = map[string]bool{
	"keylogger":        true,
	"node-keylogger":   true,
	"global-key-listener": true,
	"clipboardy":       true,
	"clipboard-event":  true,
	"keytar":           true,
	"node-keytar":      true,
	"win-credential-manager": true,
}

// riskyAPIPattern is one named regex applied to declared entry-point source.
type riskyAPIPattern struct {
	id      string
	pattern *regexp.Regexp
}

var riskyAPIPatterns = []riskyAPIPattern{
	{"child_process_import", regexp.MustCompile(`(?i)require\(['"]child_process['"]\)`)},
	{"dynamic_eval", regexp.MustCompile(`(?i)\beval\s*\(`)},
	{"function_constructor", regexp.MustCompile(`(?i)new\s+Function\s*\(`)},
	{"env_credential_lookup", regexp.MustCompile(`(?i)process\.env\.[A-Z0-9_]*(TOKEN|SECRET|KEY|PASSWORD|CREDENTIAL)`)},
	{"homedir_read", regexp.MustCompile(`(?i)os\.homedir\(\)`)},
	{"fetch_call", regexp.MustCompile(`(?i)\bfetch\s*\(`)},
	{"http_request", regexp.MustCompile(`(?i)https?\.request\s*\(`)},
	{"net_socket", regexp.MustCompile(`(?i)require\(['"]net['"]\)`)},
	{"websocket_connect", regexp.MustCompile(`(?i)new\s+WebSocket\s*\(`)},
	{"document_cookie", regexp.MustCompile(`(?i)document\.cookie`)},
	{"xhr_request", regexp.MustCompile(`(?i)new\s+XMLHttpRequest\s*\(`)},
	{"exec_call", regexp.MustCompile(`(?i)child_process\.(exec|execSync|spawn|spawnSync)\s*\(`)},
}

// RiskyAPICall is one hit of riskyAPIPatterns against a source file.
type RiskyAPICall struct {
	File        string `json:"file"`
	Line        int    `json:"line"`
	PatternID   string `json:"pattern_id"`
	MatchedText string `json:"matched_text"`
}

// LifecycleScript is one install-time script found in the root manifest or
// a bundled node_modules dependency.
type LifecycleScript struct {
	Module     string `json:"module"` // "" for the root package
	ScriptName string `json:"script_name"`
	Command    string `json:"command"`
}

// Result is ManifestScanner's contract output (MetadataScanResult).
type Result struct {
	ExtensionID      string
	Version          string
	DisplayName      string
	MainEntry        string
	BrowserEntry     string

	ActivationEvents      []string
	HasWildcardActivation bool

	ContributesCommands    []string
	ContributesKeybindings []string
	ContributesMenus       []string
	HasTerminalProfile     bool

	ExtensionDependencies []string
	NPMDependencies       map[string]string

	LifecycleScriptsFound []LifecycleScript
	RiskyAPICalls         []RiskyAPICall

	WebviewDetected   bool
	WebviewReferences []string

	Findings  []findings.Finding
	RiskScore float64
}

type packageJSON struct {
	Publisher             string            `json:"publisher"`
	Name                  string            `json:"name"`
	Version               string            `json:"version"`
	DisplayName           string            `json:"displayName"`
	Main                  string            `json:"main"`
	Browser               string            `json:"browser"`
	ActivationEvents      []string          `json:"activationEvents"`
	ExtensionDependencies []string          `json:"extensionDependencies"`
	Dependencies          map[string]string `json:"dependencies"`
	DevDependencies       map[string]string `json:"devDependencies"`
	Scripts               map[string]string `json:"scripts"`
	Contributes           struct {
		Commands     json.RawMessage `json:"commands"`
		Keybindings  json.RawMessage `json:"keybindings"`
		Menus        json.RawMessage `json:"menus"`
		Terminal     struct {
			Profiles json.RawMessage `json:"profiles"`
		} `json:"terminal"`
	} `json:"contributes"`
}

// manifestCandidates is the ordered list of paths a manifest may live at.
var manifestCandidates = []string{"extension/package.json", "package.json"}

// Scan runs ManifestScanner over the archive.
func Scan(r *archivezip.Reader) (*Result, error) {
	res := &Result{
		NPMDependencies: map[string]string{},
	}

	pkgData, root, found := findManifest(r)
	if !found {
		res.Findings = append(res.Findings, findings.Finding{
			Severity:    findings.SeverityCritical,
			Category:    "MISSING_MANIFEST",
			Description: "no package.json found at extension/package.json or package.json",
		})
		res.RiskScore = 1.0
		return res, nil
	}

	var pj packageJSON
	if err := json.Unmarshal(pkgData, &pj); err != nil {
		res.Findings = append(res.Findings, findings.Finding{
			Severity:    findings.SeverityCritical,
			Category:    "MISSING_MANIFEST",
			Description: fmt.Sprintf("package.json is not valid JSON: %v", err),
		})
		res.RiskScore = 1.0
		return res, nil
	}

	res.ExtensionID = fmt.Sprintf("%s.%s", pj.Publisher, pj.Name)
	res.Version = pj.Version
	res.DisplayName = pj.DisplayName
	res.MainEntry = pj.Main
	res.BrowserEntry = pj.Browser
	res.ActivationEvents = pj.ActivationEvents
	res.ExtensionDependencies = pj.ExtensionDependencies
	for name, ver := range pj.Dependencies {
		res.NPMDependencies[name] = ver
	}

	res.ContributesCommands = rawArrayNames(pj.Contributes.Commands)
	res.ContributesKeybindings = rawArrayNames(pj.Contributes.Keybindings)
	res.ContributesMenus = rawMenuNames(pj.Contributes.Menus)
	res.HasTerminalProfile = len(pj.Contributes.Terminal.Profiles) > 0 && string(pj.Contributes.Terminal.Profiles) != "null"

	scanActivationEvents(res)
	if res.HasTerminalProfile {
		res.Findings = append(res.Findings, findings.Finding{
			Severity:    findings.SeverityHigh,
			Category:    "TERMINAL_PROFILE_CONTRIBUTION",
			Description: "extension contributes a custom terminal profile",
		})
	}

	for name := range pj.Dependencies {
		if suspiciousDependencyNames[strings.ToLower(name)] {
			res.Findings = append(res.Findings, findings.Finding{
				Severity:    findings.SeverityHigh,
				Category:    "SUSPICIOUS_DEPENDENCY",
				Description: fmt.Sprintf("declares dependency on %s", name),
				MatchedText: name,
			})
		}
	}

	if scripts := pj.Scripts; scripts != nil {
		for name, cmd := range scripts {
			if lifecycleScriptNames[name] {
				res.LifecycleScriptsFound = append(res.LifecycleScriptsFound, LifecycleScript{
					ScriptName: name,
					Command:    cmd,
				})
				res.Findings = append(res.Findings, findings.Finding{
					Severity:    findings.SeverityHigh,
					Category:    "POSTINSTALL_SCRIPT",
					Description: fmt.Sprintf("root manifest declares lifecycle script %q", name),
					MatchedText: cmd,
				})
			}
		}
	}

	scanBundledDependencies(r, root, res)
	scanEntryPoints(r, root, res, pj.Main, pj.Browser)

	riskScore := findings.SumSeverityWeights(res.Findings)
	if res.HasWildcardActivation {
		riskScore = findings.CapRisk(riskScore + 0.1)
	}
	res.RiskScore = riskScore
	return res, nil
}

func scanActivationEvents(res *Result) {
	literalWildcard := false
	hasStartup := false
	for _, ev := range res.ActivationEvents {
		if ev == "*" {
			literalWildcard = true
		}
		if ev == "onStartupFinished" {
			hasStartup = true
		}
	}
	// has_wildcard_activation covers both "*" and onStartupFinished (both
	// mean the extension runs unconditionally on every window), but the two
	// still produce distinct findings by severity.
	res.HasWildcardActivation = literalWildcard || hasStartup
	if literalWildcard {
		res.Findings = append(res.Findings, findings.Finding{
			Severity:    findings.SeverityHigh,
			Category:    "ACTIVATION_WILDCARD",
			Description: "extension activates on '*' (all events)",
		})
	} else if hasStartup {
		res.Findings = append(res.Findings, findings.Finding{
			Severity:    findings.SeverityMedium,
			Category:    "ACTIVATION_STARTUP",
			Description: "extension activates on startup finished",
		})
	}
}

// findManifest locates the manifest under either candidate root, returning
// its raw bytes and the root prefix ("extension/" or "") the rest of the
// scan should search relative to.
func findManifest(r *archivezip.Reader) (data []byte, root string, found bool) {
	for _, candidate := range manifestCandidates {
		for _, e := range r.Entries() {
			if e.IsDir || e.Name != candidate {
				continue
			}
			d, err := r.Read(e.Name, MaxSourceReadBytes)
			if err != nil {
				continue
			}
			root = ""
			if strings.HasPrefix(candidate, "extension/") {
				root = "extension/"
			}
			return d, root, true
		}
	}
	return nil, "", false
}

// scanBundledDependencies walks every <root>/node_modules/*/package.json
// and reports any lifecycle install script it declares.
func scanBundledDependencies(r *archivezip.Reader, root string, res *Result) {
	prefix := root + "node_modules/"
	for _, e := range r.Entries() {
		if e.IsDir || !strings.HasPrefix(e.Name, prefix) || !strings.HasSuffix(e.Name, "/package.json") {
			continue
		}
		rest := strings.TrimPrefix(e.Name, prefix)
		segments := strings.SplitN(rest, "/", 2)
		if len(segments) == 0 {
			continue
		}
		moduleName := segments[0]

		data, err := r.Read(e.Name, MaxSourceReadBytes)
		if err != nil {
			continue
		}
		var dep struct {
			Scripts map[string]string `json:"scripts"`
		}
		if err := json.Unmarshal(data, &dep); err != nil {
			continue
		}
		for name, cmd := range dep.Scripts {
			if !lifecycleScriptNames[name] {
				continue
			}
			res.LifecycleScriptsFound = append(res.LifecycleScriptsFound, LifecycleScript{
				Module:     moduleName,
				ScriptName: name,
				Command:    cmd,
			})
			res.Findings = append(res.Findings, findings.Finding{
				Severity:    findings.SeverityHigh,
				Category:    "POSTINSTALL_SCRIPT",
				Description: fmt.Sprintf("bundled dependency %q declares lifecycle script %q", moduleName, name),
				FilePath:    e.Name,
				MatchedText: cmd,
			})
		}
	}
}

// entryPointCandidates returns main/browser plus common path variations, so
// a declared "./out/ext" resolves even if the manifest omits the extension.
func entryPointCandidates(root, declared string) []string {
	if declared == "" {
		return nil
	}
	clean := strings.TrimPrefix(declared, "./")
	full := path.Join(root, clean)
	variants := []string{full}
	if !strings.HasSuffix(full, ".js") {
		variants = append(variants, full+".js")
	}
	return variants
}

// scanEntryPoints runs riskyAPIPatterns against the manifest's declared
// main/browser entry points (when readable and under the size cap).
func scanEntryPoints(r *archivezip.Reader, root string, res *Result, main, browser string) {
	seen := map[string]bool{}
	candidates := append(entryPointCandidates(root, main), entryPointCandidates(root, browser)...)

	for _, name := range candidates {
		if seen[name] {
			continue
		}
		seen[name] = true

		var entry *archivezip.Entry
		for i, e := range r.Entries() {
			if e.Name == name {
				entry = &r.Entries()[i]
				break
			}
		}
		if entry == nil {
			continue
		}
		if entry.Size > MaxSourceReadBytes {
			res.Findings = append(res.Findings, findings.Finding{
				Severity:    findings.SeverityInfo,
				Category:    "OVERSIZED_SOURCE",
				Description: "entry point exceeds the manifest-stage read cap; deferred to AI chunker",
				FilePath:    name,
			})
			continue
		}

		data, err := r.Read(name, MaxSourceReadBytes)
		if err != nil {
			continue
		}
		scanSourceForRiskyAPIs(name, string(data), res)
		if strings.Contains(string(data), "acquireVsCodeApi") || strings.Contains(string(data), "webview") {
			res.WebviewDetected = true
			res.WebviewReferences = append(res.WebviewReferences, name)
		}
	}
}

func scanSourceForRiskyAPIs(file, source string, res *Result) {
	lines := strings.Split(source, "\n")
	for lineNo, line := range lines {
		for _, p := range riskyAPIPatterns {
			if m := p.pattern.FindString(line); m != "" {
				res.RiskyAPICalls = append(res.RiskyAPICalls, RiskyAPICall{
					File:        file,
					Line:        lineNo + 1,
					PatternID:   p.id,
					MatchedText: m,
				})
			}
		}
	}
}

func rawArrayNames(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var items []map[string]interface{}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	var names []string
	for _, item := range items {
		if cmd, ok := item["command"].(string); ok {
			names = append(names, cmd)
		} else if key, ok := item["key"].(string); ok {
			names = append(names, key)
		}
	}
	return names
}

func rawMenuNames(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var menus map[string]json.RawMessage
	if err := json.Unmarshal(raw, &menus); err != nil {
		return nil
	}
	names := make([]string, 0, len(menus))
	for k := range menus {
		names = append(names, k)
	}
	return names
}
