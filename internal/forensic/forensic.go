// Package forensic implements ForensicChecker: magic-byte vs extension
// mismatch detection, hidden executables, and double extensions.
package forensic

import (
	"bytes"
	"fmt"
	"path"
	"strings"

	"github.com/vexguard/triagecore/internal/archivezip"
	"github.com/vexguard/triagecore/internal/findings"
)

// magicSignature is one (name, byte-prefix) pair. The table below is not
// ordered by length; identifyMagic picks the longest matching prefix, so a
// shorter, more generic prefix never wins over a more specific one (e.g.
// ZIP vs a format that is itself ZIP-based).
type magicSignature struct {
	name  string
	bytes []byte
}

var magicSignatures = []magicSignature{
	{"PNG", []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}},
	{"JPEG", []byte{0xFF, 0xD8, 0xFF}},
	{"GIF", []byte("GIF8")},
	{"RIFF", []byte("RIFF")},
	{"BMP", []byte("BM")},
	{"PE_EXECUTABLE", []byte("MZ")},
	{"ELF_EXECUTABLE", []byte{0x7F, 'E', 'L', 'F'}},
	{"MACHO_32", []byte{0xFE, 0xED, 0xFA, 0xCE}},
	{"MACHO_64", []byte{0xFE, 0xED, 0xFA, 0xCF}},
	{"MACHO_FAT", []byte{0xCA, 0xFE, 0xBA, 0xBE}},
	{"ZIP", []byte("PK\x03\x04")},
	{"GZIP", []byte{0x1F, 0x8B}},
	{"RAR", []byte("Rar!\x1a\x07")},
	{"7Z", []byte{0x37, 0x7A, 0xBC, 0xAF, 0x27, 0x1C}},
	{"PDF", []byte("%PDF")},
	{"SHEBANG", []byte("#!")},
}

// executableSignatures is the subset of magicSignatures considered
// suspicious if found under an extension that does not expect them.
var executableSignatures = map[string]bool{
	"PE_EXECUTABLE":  true,
	"ELF_EXECUTABLE": true,
	"MACHO_32":       true,
	"MACHO_64":       true,
	"MACHO_FAT":      true,
	"SHEBANG":        true,
}

// expectedTypes maps a lowercase extension to the set of magic-signature
// names it is allowed to carry. An extension absent from this map, or
// mapped to an empty set, is skipped by the mismatch check.
var expectedTypes = map[string]map[string]bool{
	".png":  {"PNG": true},
	".jpg":  {"JPEG": true},
	".jpeg": {"JPEG": true},
	".gif":  {"GIF": true},
	".bmp":  {"BMP": true},
	".wav":  {"RIFF": true},
	".zip":  {"ZIP": true},
	".vsix": {"ZIP": true},
	".gz":   {"GZIP": true},
	".rar":  {"RAR": true},
	".7z":   {"7Z": true},
	".pdf":  {"PDF": true},
	".js":   {},
	".ts":   {},
	".mjs":  {},
	".cjs":  {},
	".json": {},
	".md":   {},
	".txt":  {},
	".css":  {},
	".html": {},
	".map":  {},
	".yml":  {},
	".yaml": {},
	".lock": {},
}

// nativeModuleDirs are directory names a legitimate VSIX may carry compiled
// native addons under. They match anywhere in the entry path (so
// "extension/node_modules/" counts), not only as a prefix; executable
// content there is never HIDDEN_EXECUTABLE or UNEXPECTED_BINARY.
var nativeModuleDirs = []string{"node_modules/", "bin/", "native/", "prebuilds/"}

// dangerousExtensions is the final-segment set DOUBLE_EXTENSION checks for.
var dangerousExtensions = map[string]bool{
	".exe": true, ".scr": true, ".bat": true, ".cmd": true,
	".com": true, ".pif": true, ".vbs": true, ".js": true,
	".jar": true, ".msi": true, ".ps1": true,
}

// benignExtensions is the penultimate-segment set DOUBLE_EXTENSION looks for.
var benignExtensions = map[string]bool{
	".pdf": true, ".txt": true, ".doc": true, ".docx": true,
	".jpg": true, ".png": true, ".gif": true, ".xls": true, ".xlsx": true,
}

// MaxReadBytes is how many leading bytes of each entry are passed to
// identifyMagic; only the first 32 bytes are ever needed.
const MaxReadBytes = 64

// Finding is one ForensicChecker observation (re-exported shape, kept local
// so callers don't need to import findings just to read structured fields).
type Finding struct {
	findings.Finding
	EntryName string
}

// Result is ForensicChecker's contract output.
type Result struct {
	Findings  []findings.Finding
	RiskScore float64
}

// identifyMagic returns the longest matching signature name for data, or ""
// if nothing matches.
func identifyMagic(data []byte) string {
	best := ""
	bestLen := 0
	for _, sig := range magicSignatures {
		if len(data) >= len(sig.bytes) && bytes.HasPrefix(data, sig.bytes) {
			if len(sig.bytes) > bestLen {
				best = sig.name
				bestLen = len(sig.bytes)
			}
		}
	}
	return best
}

func isNativeModulePath(name string) bool {
	for _, prefix := range nativeModuleDirs {
		if strings.Contains(name, prefix) {
			return true
		}
	}
	return false
}

// hasDoubleExtension reports whether basename has >= 3 dot segments where
// the last is dangerous and the penultimate is a recognized benign type.
func hasDoubleExtension(name string) bool {
	base := path.Base(name)
	parts := strings.Split(base, ".")
	if len(parts) < 3 {
		return false
	}
	last := "." + strings.ToLower(parts[len(parts)-1])
	penultimate := "." + strings.ToLower(parts[len(parts)-2])
	return dangerousExtensions[last] && benignExtensions[penultimate]
}

// Scan runs ForensicChecker over every non-directory entry in the archive.
func Scan(r *archivezip.Reader) (*Result, error) {
	res := &Result{}

	for _, e := range r.Entries() {
		if e.IsDir {
			continue
		}

		if hasDoubleExtension(e.Name) {
			res.Findings = append(res.Findings, findings.Finding{
				Severity:    findings.SeverityMedium,
				Category:    "DOUBLE_EXTENSION",
				Description: fmt.Sprintf("%s has a suspicious double extension", e.Name),
				FilePath:    e.Name,
			})
		}

		// archivezip.Reader has no prefix read, so the entry is read under
		// its own declared size (already bounded by EntryBombCap on open)
		// and only its first MaxReadBytes bytes are sniffed.
		data, err := r.Read(e.Name, int64(e.Size))
		if err != nil {
			continue
		}
		if len(data) > MaxReadBytes {
			data = data[:MaxReadBytes]
		}

		detected := identifyMagic(data)
		if detected == "" {
			continue
		}

		ext := strings.ToLower(path.Ext(e.Name))
		expected, known := expectedTypes[ext]
		native := isNativeModulePath(e.Name)

		if executableSignatures[detected] {
			if known && len(expected) > 0 && !expected[detected] && !native {
				res.Findings = append(res.Findings, findings.Finding{
					Severity:    findings.SeverityCritical,
					Category:    "HIDDEN_EXECUTABLE",
					Description: fmt.Sprintf("%s declares a non-executable type but contains %s bytes", e.Name, detected),
					FilePath:    e.Name,
					MatchedText: detected,
				})
				continue
			}
			if !native {
				res.Findings = append(res.Findings, findings.Finding{
					Severity:    findings.SeverityHigh,
					Category:    "UNEXPECTED_BINARY",
					Description: fmt.Sprintf("%s contains executable bytes (%s) outside a native-module path", e.Name, detected),
					FilePath:    e.Name,
					MatchedText: detected,
				})
				continue
			}
		}

		if known && len(expected) > 0 && !expected[detected] {
			res.Findings = append(res.Findings, findings.Finding{
				Severity:    findings.SeverityHigh,
				Category:    "MAGIC_MISMATCH",
				Description: fmt.Sprintf("%s has extension %s but content matches %s", e.Name, ext, detected),
				FilePath:    e.Name,
				MatchedText: detected,
			})
		}
	}

	res.RiskScore = findings.SumSeverityWeights(res.Findings)
	return res, nil
}
