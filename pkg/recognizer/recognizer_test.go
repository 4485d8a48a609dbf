package recognizer

import (
	"context"
	"testing"

	"github.com/dawn-project/dawn/pkg/orchestrator"
)

type fakeSTT struct {
	transcript string
	err        error
	gotAudio   []byte
}

func (f *fakeSTT) Transcribe(ctx context.Context, audio []byte, lang orchestrator.Language) (string, error) {
	f.gotAudio = audio
	return f.transcript, f.err
}

func (f *fakeSTT) Name() string { return "fake-stt" }

func TestFeedThenFinalTranscribesBufferedAudio(t *testing.T) {
	fake := &fakeSTT{transcript: "turn on the lights"}
	r := New(fake, orchestrator.LanguageEn)

	r.Feed(context.Background(), []byte{1, 2, 3, 4})
	r.Feed(context.Background(), []byte{5, 6, 7, 8})

	text, ok, err := r.Final(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected ok=true for non-empty transcript")
	}
	if text != "turn on the lights" {
		t.Errorf("expected transcript, got %q", text)
	}
	if len(fake.gotAudio) != 8 {
		t.Errorf("expected 8 bytes of buffered audio, got %d", len(fake.gotAudio))
	}
}

func TestFinalTreatsEmptyTranscriptAsNoUpdate(t *testing.T) {
	fake := &fakeSTT{transcript: "   "}
	r := New(fake, orchestrator.LanguageEn)
	r.Feed(context.Background(), []byte{1, 2})

	text, ok, err := r.Final(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Errorf("expected ok=false for whitespace-only transcript")
	}
	if text != "" {
		t.Errorf("expected empty text, got %q", text)
	}
}

func TestFinalWithNoAudioIsNoUpdate(t *testing.T) {
	fake := &fakeSTT{transcript: "should not be called"}
	r := New(fake, orchestrator.LanguageEn)

	text, ok, err := r.Final(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok || text != "" {
		t.Errorf("expected no update when nothing was fed")
	}
}

func TestFinalResetsBufferForNextUtterance(t *testing.T) {
	fake := &fakeSTT{transcript: "first"}
	r := New(fake, orchestrator.LanguageEn)

	r.Feed(context.Background(), []byte{1, 2, 3, 4})
	if _, _, err := r.Final(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fake.transcript = "second"
	r.Feed(context.Background(), []byte{5, 6})
	if _, _, err := r.Final(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(fake.gotAudio) != 2 {
		t.Errorf("expected only the second utterance's audio, got %d bytes: %v", len(fake.gotAudio), fake.gotAudio)
	}
}

func TestResetClearsBufferedAudio(t *testing.T) {
	fake := &fakeSTT{transcript: "x"}
	r := New(fake, orchestrator.LanguageEn)
	r.Feed(context.Background(), []byte{1, 2, 3})
	r.Reset()

	_, ok, err := r.Final(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Errorf("expected no update after reset with nothing re-fed")
	}
}
