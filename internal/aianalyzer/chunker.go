package aianalyzer

import "strings"

// CharsPerToken approximates a minified-JS token as this many characters,
// matching the original implementation's tuning.
const CharsPerToken = 2

// chunkSource splits source into pieces whose length never exceeds
// maxChars, preserving line boundaries wherever possible. A single line
// longer than maxChars is hard-sliced into fixed-size pieces; the
// algorithm stays correct even when the entire source is one line.
//
// Testable property (SPEC_FULL.md §8 #5): the concatenation of the
// returned chunks, without the newlines this function itself inserts
// between lines, reproduces source's content exactly, and the chunk count
// never exceeds ceil(len(source)/maxChars) + 1.
func chunkSource(source string, maxChars int) []string {
	if maxChars <= 0 {
		maxChars = 1
	}
	if source == "" {
		return nil
	}

	lines := strings.Split(source, "\n")
	var chunks []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
	}

	for _, line := range lines {
		if len(line) > maxChars {
			flush()
			for start := 0; start < len(line); start += maxChars {
				end := start + maxChars
				if end > len(line) {
					end = len(line)
				}
				chunks = append(chunks, line[start:end])
			}
			continue
		}

		candidateLen := current.Len() + len(line)
		if current.Len() > 0 {
			candidateLen++ // for the joining newline
		}
		if candidateLen > maxChars {
			flush()
		}
		if current.Len() > 0 {
			current.WriteByte('\n')
		}
		current.WriteString(line)
	}
	flush()

	return chunks
}
