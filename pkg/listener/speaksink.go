package listener

import "sync"

// SpeakSink is the indirection built-in DeviceHandlers speak through. It
// lets the Machine redirect a handler's self-spoken reply (normally
// enqueued on the local TTS Playback Controller) into a captured string
// instead, for the duration of one NetworkProcessing iteration — the
// seam spec §9's "dedicated synthesize_to_bytes path" calls for, without
// requiring every built-in handler to know about the network path.
//
// The control thread is the only writer and the only caller of Speak
// within a given iteration, so the mutex here guards against nothing
// more than documentation drift; it costs little and makes the
// single-owner invariant explicit.
type SpeakSink struct {
	mu     sync.Mutex
	target func(string)
}

// NewSpeakSink builds a sink whose default target is defaultTarget
// (ordinarily ttsctl.Controller.Speak).
func NewSpeakSink(defaultTarget func(string)) *SpeakSink {
	return &SpeakSink{target: defaultTarget}
}

// Speak forwards text to the current target.
func (s *SpeakSink) Speak(text string) {
	s.mu.Lock()
	target := s.target
	s.mu.Unlock()
	if target != nil {
		target(text)
	}
}

// Capture temporarily redirects Speak into an in-memory accumulator,
// returning a restore function that must be called to put the sink back
// (ordinarily via defer immediately after calling Capture).
func (s *SpeakSink) Capture() (restore func(), get func() string) {
	s.mu.Lock()
	previous := s.target
	var captured []string
	s.target = func(text string) { captured = append(captured, text) }
	s.mu.Unlock()

	restore = func() {
		s.mu.Lock()
		s.target = previous
		s.mu.Unlock()
	}
	get = func() string {
		out := ""
		for i, c := range captured {
			if i > 0 {
				out += " "
			}
			out += c
		}
		return out
	}
	return restore, get
}
