package dispatcher

import (
	"encoding/json"
	"regexp"
	"strings"
)

// commandBlockPattern matches a <command>{...}</command> block anywhere in
// an LLM reply (spec §4.6).
var commandBlockPattern = regexp.MustCompile(`(?s)<command>\s*(\{.*?\})\s*</command>`)

// CommandBlock is one parsed tool-call request embedded in an LLM reply.
type CommandBlock struct {
	Device    string `json:"device"`
	Action    string `json:"action"`
	Value     string `json:"value,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// ParseCommands extracts every well-formed <command> block from text.
// A block that fails to parse as JSON is logged by the caller and
// skipped rather than aborting the whole reply (spec §7, "parse failure
// → log and skip block").
func ParseCommands(text string) (blocks []CommandBlock, malformed int) {
	matches := commandBlockPattern.FindAllStringSubmatch(text, -1)
	for _, m := range matches {
		var cb CommandBlock
		if err := json.Unmarshal([]byte(m[1]), &cb); err != nil {
			malformed++
			continue
		}
		blocks = append(blocks, cb)
	}
	return blocks, malformed
}

var (
	tagStripPattern     = regexp.MustCompile(`(?s)<command>.*?</command>`)
	endOfTurnPattern    = regexp.MustCompile(`<end_of_turn>`)
	markdownStarPattern = regexp.MustCompile(`\*+`)
	spaceRunPattern     = regexp.MustCompile(`  +`)
)

// CleanForSpeech strips <command> blocks, the <end_of_turn> marker, and
// markdown asterisks from a reply, collapsing the runs of spaces the
// removals leave behind, so the TTS Playback Controller speaks plain text,
// while the original tagged reply is what's kept in conversation history
// (spec §4.6).
func CleanForSpeech(text string) string {
	cleaned := tagStripPattern.ReplaceAllString(text, "")
	cleaned = endOfTurnPattern.ReplaceAllString(cleaned, "")
	cleaned = markdownStarPattern.ReplaceAllString(cleaned, "")
	cleaned = stripEmoji(cleaned)
	cleaned = spaceRunPattern.ReplaceAllString(cleaned, " ")
	return strings.TrimSpace(cleaned)
}

// stripEmoji removes characters outside the Basic Multilingual Plane,
// which covers the common emoji ranges, so TTS backends aren't asked to
// read out pictographs.
func stripEmoji(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r > 0xFFFF {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
