package chunker

import (
	"regexp"
	"strings"
)

// sentenceBoundary matches a run of non-terminator characters followed by a
// terminator and trailing whitespace, covering the Latin, CJK, and Arabic
// sentence-ending punctuation the spec names.
var sentenceBoundary = regexp.MustCompile(`[^.!?。！？؟]+[.!?。！？؟]+\s*`)

// maxSplitSegment bounds the whitespace-split fallback for oversized
// sentences: min(200, maxChunkSize/4).
func maxSplitSegment(maxChunkSize int) int {
	n := maxChunkSize / 4
	if n > 200 {
		return 200
	}
	if n <= 0 {
		return 1
	}
	return n
}

// splitSentences breaks text into sentences, preferring punctuation
// boundaries, falling back to newline groups when none are found, and
// force-splitting any sentence longer than maxChunkSize on whitespace.
func splitSentences(text string, maxChunkSize int) []string {
	matches := sentenceBoundary.FindAllString(text, -1)
	if len(matches) == 0 {
		matches = splitByNewlineGroups(text)
	}

	var out []string
	for _, m := range matches {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		if len(m) > maxChunkSize {
			out = append(out, splitBySegment(m, maxSplitSegment(maxChunkSize))...)
			continue
		}
		out = append(out, m)
	}
	return out
}

func splitByNewlineGroups(text string) []string {
	raw := strings.Split(text, "\n")
	var out []string
	for _, line := range raw {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	if len(out) == 0 && strings.TrimSpace(text) != "" {
		out = []string{strings.TrimSpace(text)}
	}
	return out
}

// splitBySegment splits s into whitespace-aligned chunks of at most maxBytes.
func splitBySegment(s string, maxBytes int) []string {
	words := strings.Fields(s)
	if len(words) == 0 {
		return nil
	}
	var out []string
	var cur strings.Builder
	for _, w := range words {
		if cur.Len() > 0 && cur.Len()+1+len(w) > maxBytes {
			out = append(out, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(w)
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}
