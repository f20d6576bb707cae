package chat

import (
	"regexp"
	"strings"
)

// CleanupText applies a best-effort formatting pass to model output:
// collapse runs of whitespace, drop immediately-repeated words and
// clauses, and keep "key: value" pairs on one line. It is a lossy
// heuristic, not an idempotent or fully correct formatter for
// arbitrary text.
func CleanupText(text string) string {
	text = collapseWhitespace(text)
	text = dedupeRepeats(text)
	text = normalizeKeyValues(text)
	return strings.TrimSpace(text)
}

var spaceRun = regexp.MustCompile(`[ \t]+`)

func collapseWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spaceRun.ReplaceAllString(line, " "))
	}
	// Drop runs of blank lines.
	out := lines[:0]
	blank := false
	for _, line := range lines {
		if line == "" {
			if blank {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// dedupeRepeats removes a word or clause that immediately repeats
// itself, a common stutter in streamed model output ("the the",
// "I think. I think.").
func dedupeRepeats(text string) string {
	// Word-level pass, per line so formatting survives.
	lines := strings.Split(text, "\n")
	for li, line := range lines {
		words := strings.Fields(line)
		deduped := words[:0]
		for i, w := range words {
			if i > 0 && strings.EqualFold(w, words[i-1]) {
				continue
			}
			deduped = append(deduped, w)
		}
		lines[li] = strings.Join(deduped, " ")
	}
	joined := strings.Join(lines, "\n")

	// Clause-level pass: split on sentence punctuation, drop adjacent
	// identical clauses.
	clauses := splitClauses(joined)
	if len(clauses) < 2 {
		return joined
	}
	var sb strings.Builder
	var prev string
	for _, c := range clauses {
		key := strings.ToLower(strings.TrimSpace(strings.TrimRight(c, ".!?,;")))
		if key != "" && key == prev {
			continue
		}
		prev = key
		sb.WriteString(c)
	}
	return sb.String()
}

// splitClauses cuts text after sentence punctuation, keeping the
// punctuation with the preceding clause.
func splitClauses(text string) []string {
	var clauses []string
	start := 0
	for i, r := range text {
		switch r {
		case '.', '!', '?', ';':
			clauses = append(clauses, text[start:i+1])
			start = i + 1
		}
	}
	if start < len(text) {
		clauses = append(clauses, text[start:])
	}
	return clauses
}

var keyValueBreak = regexp.MustCompile(`(?m)^([A-Za-z][A-Za-z0-9 _-]{0,40}):\n+`)

// normalizeKeyValues rejoins a "key:" line with the value that got
// streamed onto the next line.
func normalizeKeyValues(text string) string {
	return keyValueBreak.ReplaceAllString(text, "$1: ")
}
