package ttsctl

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dawn-project/dawn/pkg/logging"
	"github.com/dawn-project/dawn/pkg/orchestrator"
)

type fakeTTS struct {
	chunks [][]byte
	delay  time.Duration
}

func (f *fakeTTS) Synthesize(ctx context.Context, text string, voice orchestrator.Voice, lang orchestrator.Language) ([]byte, error) {
	var out []byte
	for _, c := range f.chunks {
		out = append(out, c...)
	}
	return out, nil
}

func (f *fakeTTS) StreamSynthesize(ctx context.Context, text string, voice orchestrator.Voice, lang orchestrator.Language, onChunk func([]byte) error) error {
	for _, c := range f.chunks {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if f.delay > 0 {
			time.Sleep(f.delay)
		}
		if err := onChunk(c); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeTTS) Name() string { return "fake-tts" }

type fakePlayback struct {
	mu     sync.Mutex
	writes [][]byte
}

func (p *fakePlayback) WriteFrame(pcm []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writes = append(p.writes, append([]byte(nil), pcm...))
	return nil
}

func (p *fakePlayback) Close() error { return nil }

func (p *fakePlayback) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.writes)
}

func waitForState(t *testing.T, c *Controller, want State, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if c.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for state %s, got %s", want, c.State())
}

func TestSpeakPlaysAllChunks(t *testing.T) {
	tts := &fakeTTS{chunks: [][]byte{{1, 2}, {3, 4}, {5, 6}}}
	pb := &fakePlayback{}
	c := New(tts, pb, orchestrator.VoiceF1, orchestrator.LanguageEn, 16000, &logging.NoOpLogger{})
	defer c.Close()

	c.Speak("hello")
	// Idle is also the state before the consumer picks the text up, so
	// wait for the writes before waiting for the return to Idle.
	deadline := time.Now().Add(time.Second)
	for pb.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	waitForState(t, c, Idle, time.Second)

	if pb.count() != 3 {
		t.Errorf("expected 3 chunks written, got %d", pb.count())
	}
}

func TestDiscardWhileIdleIsNoOp(t *testing.T) {
	tts := &fakeTTS{}
	pb := &fakePlayback{}
	c := New(tts, pb, orchestrator.VoiceF1, orchestrator.LanguageEn, 16000, &logging.NoOpLogger{})
	defer c.Close()

	waitForState(t, c, Idle, time.Second)
	c.Discard()
	c.Discard()

	if c.State() != Idle {
		t.Errorf("expected Idle after repeated discard, got %s", c.State())
	}
}

func TestDiscardStopsPlaybackAndReturnsToIdle(t *testing.T) {
	tts := &fakeTTS{chunks: [][]byte{{1}, {2}, {3}, {4}, {5}}, delay: 20 * time.Millisecond}
	pb := &fakePlayback{}
	c := New(tts, pb, orchestrator.VoiceF1, orchestrator.LanguageEn, 16000, &logging.NoOpLogger{})
	defer c.Close()

	c.Speak("a long utterance")
	waitForState(t, c, Playing, time.Second)

	c.Discard()
	waitForState(t, c, Idle, time.Second)

	written := pb.count()
	if written >= 5 {
		t.Errorf("expected discard to cut playback short, got all %d chunks written", written)
	}
}

func TestSpeakToWAVNeverTouchesPlayback(t *testing.T) {
	tts := &fakeTTS{chunks: [][]byte{{0x10, 0x20}}}
	pb := &fakePlayback{}
	c := New(tts, pb, orchestrator.VoiceF1, orchestrator.LanguageEn, 16000, &logging.NoOpLogger{})
	defer c.Close()

	wav, err := c.SpeakToWAV(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(wav) == 0 {
		t.Errorf("expected a non-empty wav payload")
	}
	if pb.count() != 0 {
		t.Errorf("expected speak_to_wav to never touch the playback device, got %d writes", pb.count())
	}
}
