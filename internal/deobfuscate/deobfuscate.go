// Package deobfuscate implements the Deobfuscator stage: packer-signature
// detection, an obfuscation-level estimate, and hex/unicode escape
// decoding. It is advisory and never contributes to the composite score.
// The Pipeline runs it after RuleEngine and reports only a HIGH_OBFUSCATION
// INFO finding from its score; the decoded source is not passed to
// RuleEngine or AIAnalyzer.
package deobfuscate

import (
	"regexp"
	"strconv"
	"strings"
)

// packerSignature is one named regex identifying a known bundler/obfuscator
// prologue or variable-naming convention.
type packerSignature struct {
	name    string
	pattern *regexp.Regexp
}

var packerSignatures = []packerSignature{
	{"webpack", regexp.MustCompile(`(?i)__webpack_require__|webpackJsonp`)},
	{"uglifyjs", regexp.MustCompile(`!function\(\)\{["']use strict["'];`)},
	{"javascript_obfuscator", regexp.MustCompile(`_0x[0-9a-f]{4,6}`)},
	{"jsfuck", regexp.MustCompile(`\[\]\[\(!\[\]\+\[\]\)\[[\d+]+\]\]`)},
	{"eval_packer", regexp.MustCompile(`eval\(function\(p,a,c,k,e,[rd]\)`)},
	{"obfuscator_io", regexp.MustCompile(`var _0x[0-9a-f]{4,6}\s*=\s*\[`)},
}

var (
	hexEscapeRe     = regexp.MustCompile(`\\x[0-9a-fA-F]{2}`)
	unicodeEscapeRe = regexp.MustCompile(`\\u[0-9a-fA-F]{4}`)
	obfVarRe        = regexp.MustCompile(`_0x[0-9a-f]{4,6}`)
	charCodeRe      = regexp.MustCompile(`String\.fromCharCode\(`)
)

// Result is Deobfuscator's output for one source string.
type Result struct {
	Source            string   `json:"source"`
	PackersDetected    []string `json:"packers_detected"`
	ObfuscationScore   float64  `json:"obfuscation_score"`
	TransformsApplied  []string `json:"transforms_applied"`
}

// Deobfuscate analyzes and, where thresholds are crossed, decodes the given
// source string.
func Deobfuscate(source string) Result {
	res := Result{Source: source}

	for _, sig := range packerSignatures {
		if sig.pattern.MatchString(source) {
			res.PackersDetected = append(res.PackersDetected, sig.name)
		}
	}

	res.ObfuscationScore = estimateObfuscation(source, res.PackersDetected)

	if hexCount := len(hexEscapeRe.FindAllString(source, -1)); hexCount >= 10 {
		res.Source = decodeHexEscapes(res.Source)
		res.TransformsApplied = append(res.TransformsApplied, "hex_escape_decode")
	}
	if uCount := len(unicodeEscapeRe.FindAllString(source, -1)); uCount >= 10 {
		res.Source = decodeUnicodeEscapes(res.Source)
		res.TransformsApplied = append(res.TransformsApplied, "unicode_escape_decode")
	}

	return res
}

// estimateObfuscation combines six additive, weighted signals into a score
// in [0,1]: hex escape density, long-line proportion, non-alphanumeric
// ratio, obfuscator-identifier density, character-code construction use,
// and a per-detected-packer bonus.
func estimateObfuscation(source string, packers []string) float64 {
	var score float64
	lines := strings.Split(source, "\n")

	if hexCount := len(hexEscapeRe.FindAllString(source, -1)); hexCount > 20 {
		score += 0.2
	}

	if len(lines) < 10 {
		longLines := 0
		for _, l := range lines {
			if len(l) > 500 {
				longLines++
			}
		}
		if longLines > 0 {
			score += 0.2
		}
	}

	if len(source) > 0 {
		alnum := 0
		for _, r := range source {
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
				alnum++
			}
		}
		ratio := float64(alnum) / float64(len(source))
		if ratio < 0.4 {
			score += 0.15
		}
	}

	if obfVars := len(obfVarRe.FindAllString(source, -1)); obfVars > 10 {
		score += 0.15
	}

	if charCodeRe.MatchString(source) {
		score += 0.1
	}

	if len(packers) > 0 {
		score += 0.1 * float64(len(packers))
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}

func decodeHexEscapes(source string) string {
	return hexEscapeRe.ReplaceAllStringFunc(source, func(m string) string {
		n, err := strconv.ParseInt(m[2:], 16, 32)
		if err != nil {
			return m
		}
		return string(rune(n))
	})
}

func decodeUnicodeEscapes(source string) string {
	return unicodeEscapeRe.ReplaceAllStringFunc(source, func(m string) string {
		n, err := strconv.ParseInt(m[2:], 16, 32)
		if err != nil {
			return m
		}
		return string(rune(n))
	})
}
