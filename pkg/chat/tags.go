package chat

import (
	"regexp"
	"strconv"
	"time"
)

// LatencyKind identifies which pipeline stage a latency tag measures.
type LatencyKind int

const (
	// LatencySpeechToText is the STTL tag: utterance end to transcript.
	LatencySpeechToText LatencyKind = iota

	// LatencyFirstToken is the FTL tag: request to first model token.
	LatencyFirstToken

	// LatencyFirstSentence is the FSL tag: request to first full sentence.
	LatencyFirstSentence
)

// String returns a short name for logging.
func (k LatencyKind) String() string {
	switch k {
	case LatencySpeechToText:
		return "speech-to-text"
	case LatencyFirstToken:
		return "first-token"
	case LatencyFirstSentence:
		return "first-sentence"
	default:
		return "unknown"
	}
}

// Latency is one extracted annotation.
type Latency struct {
	Kind  LatencyKind
	Value time.Duration
}

// tagPattern matches the three inline latency tags the chat endpoint
// may embed in streamed text, e.g. "<FSL>120</FSL>".
var tagPattern = regexp.MustCompile(`<(STTL|FTL|FSL)>(\d+)</(?:STTL|FTL|FSL)>`)

// StripLatencyTags removes latency annotations from a chunk and returns
// the cleaned text plus the extracted values. Text without tags passes
// through unchanged.
func StripLatencyTags(text string) (string, []Latency) {
	matches := tagPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return text, nil
	}

	latencies := make([]Latency, 0, len(matches))
	for _, m := range matches {
		ms, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		var kind LatencyKind
		switch m[1] {
		case "STTL":
			kind = LatencySpeechToText
		case "FTL":
			kind = LatencyFirstToken
		case "FSL":
			kind = LatencyFirstSentence
		}
		latencies = append(latencies, Latency{Kind: kind, Value: time.Duration(ms) * time.Millisecond})
	}

	return tagPattern.ReplaceAllString(text, ""), latencies
}
