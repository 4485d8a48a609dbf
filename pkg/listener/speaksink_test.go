package listener

import "testing"

func TestSpeakSinkForwardsToDefaultTarget(t *testing.T) {
	var got string
	sink := NewSpeakSink(func(text string) { got = text })
	sink.Speak("hello")
	if got != "hello" {
		t.Errorf("expected default target to receive text, got %q", got)
	}
}

func TestSpeakSinkCaptureRedirectsAndRestores(t *testing.T) {
	var defaultCalls []string
	sink := NewSpeakSink(func(text string) { defaultCalls = append(defaultCalls, text) })

	restore, get := sink.Capture()
	sink.Speak("captured one")
	sink.Speak("captured two")
	if got := get(); got != "captured one captured two" {
		t.Errorf("unexpected captured text: %q", got)
	}
	if len(defaultCalls) != 0 {
		t.Errorf("expected the default target to receive nothing during capture, got %v", defaultCalls)
	}

	restore()
	sink.Speak("back to default")
	if len(defaultCalls) != 1 || defaultCalls[0] != "back to default" {
		t.Errorf("expected restore to route back to the default target, got %v", defaultCalls)
	}
}

func TestSpeakSinkCaptureWithNoSpeaksReturnsEmpty(t *testing.T) {
	sink := NewSpeakSink(nil)
	_, get := sink.Capture()
	if get() != "" {
		t.Errorf("expected empty capture, got %q", get())
	}
}
