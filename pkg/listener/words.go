package listener

import (
	"fmt"
	"strings"
)

// greetingTemplates are the fixed set of wake-phrase templates; "%s" is
// substituted with the configured AI name at startup (spec §3, "Wake
// phrases are formed by substituting the configured AI name into a fixed
// set of greeting templates").
var greetingTemplates = []string{
	"hey %s",
	"hello %s",
	"hi %s",
	"ok %s",
	"okay %s",
}

// DefaultGoodbyeWords, DefaultCancelWords, DefaultIgnoreWords are the
// case-sensitive literal phrase tables loaded at startup (spec §3).
// Projects that load their own phrase lists from configuration can
// replace these; they're exported as sane defaults.
var (
	DefaultGoodbyeWords = []string{"goodbye", "bye", "see you later"}
	DefaultCancelWords  = []string{"stop", "cancel", "never mind", "nevermind"}
	DefaultIgnoreWords  = []string{"thanks", "thank you", "ok", "okay"}
)

// WakeTable holds the wake phrases derived from the AI name, scanned in
// declaration order — the first match wins (spec §4.1, "Tie-breaks").
type WakeTable struct {
	phrases []string
}

// NewWakeTable builds the wake-phrase table for aiName by substituting it
// into greetingTemplates, in declaration order.
func NewWakeTable(aiName string) *WakeTable {
	phrases := make([]string, len(greetingTemplates))
	for i, tmpl := range greetingTemplates {
		phrases[i] = fmt.Sprintf(tmpl, aiName)
	}
	return &WakeTable{phrases: phrases}
}

// Match scans the wake table in declaration order for the first phrase
// contained in transcript, returning the phrase, the trimmed text following
// it, and whether a match was found at all. atEnd is true when
// the phrase is the trailing content of transcript (spec §4.1: "If the
// wake phrase is at the end of the utterance").
func (w *WakeTable) Match(transcript string) (phrase string, remainder string, atEnd bool, found bool) {
	for _, p := range w.phrases {
		idx := strings.Index(transcript, p)
		if idx == -1 {
			continue
		}
		after := strings.TrimSpace(transcript[idx+len(p):])
		return p, after, after == "", true
	}
	return "", "", false, false
}

// exactMatch reports whether transcript equals one of words, after
// trimming surrounding whitespace — the cancel/goodbye/ignore lists are
// exact-match per spec §4.1.
func exactMatch(words []string, transcript string) bool {
	t := strings.TrimSpace(transcript)
	for _, w := range words {
		if t == w {
			return true
		}
	}
	return false
}

// IsGoodbye, IsCancel, IsIgnored test transcript against the configured
// phrase tables.
func IsGoodbye(words []string, transcript string) bool { return exactMatch(words, transcript) }
func IsCancel(words []string, transcript string) bool  { return exactMatch(words, transcript) }
func IsIgnored(words []string, transcript string) bool { return exactMatch(words, transcript) }
