package audio

import (
	"errors"
	"testing"
	"time"
)

func TestCalculateRMSSilence(t *testing.T) {
	silence := make([]byte, 640)
	if rms := CalculateRMS(silence); rms != 0 {
		t.Errorf("expected 0 RMS for silence, got %f", rms)
	}
}

func TestCalculateRMSFullScale(t *testing.T) {
	chunk := []byte{0xFF, 0x7F, 0xFF, 0x7F} // two max-positive int16 samples
	rms := CalculateRMS(chunk)
	if rms < 0.99 || rms > 1.0 {
		t.Errorf("expected RMS near 1.0 for full-scale samples, got %f", rms)
	}
}

func TestThresholdAddsTalkingOffset(t *testing.T) {
	a := &AmbientEstimator{TalkingOffset: 0.025}
	if got := a.Threshold(0.01); got != 0.035 {
		t.Errorf("expected 0.035, got %f", got)
	}
}

type fakeCapture struct {
	frames [][]byte
	i      int
}

func (f *fakeCapture) ReadFrame(buf []byte) (int, error) {
	if len(f.frames) == 0 {
		return 0, errors.New("fakeCapture: no frames configured")
	}
	n := copy(buf, f.frames[f.i%len(f.frames)])
	f.i++
	return n, nil
}

func (f *fakeCapture) Close() error { return nil }

func TestAmbientEstimateAveragesFrames(t *testing.T) {
	quiet := make([]byte, 4)
	loud := []byte{0xFF, 0x7F, 0xFF, 0x7F}
	cap := &fakeCapture{frames: [][]byte{quiet, loud}}

	a := NewAmbientEstimator()
	buf := make([]byte, 4)

	// The fake cycles quiet/loud frames with no I/O delay, so even a short
	// duration reads many frames; the average converges to roughly half the
	// full-scale RMS regardless of exactly how many frames were read.
	got, err := a.Estimate(cap, buf, 5*time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got <= 0.1 || got >= 0.9 {
		t.Errorf("expected average RMS roughly between quiet and loud, got %f", got)
	}
}

func TestSilenceCounterRequiresConsecutiveFrames(t *testing.T) {
	c := NewSilenceCounter(3)

	if c.Observe(false) {
		t.Errorf("should not confirm after 1 silent frame")
	}
	if c.Observe(false) {
		t.Errorf("should not confirm after 2 silent frames")
	}
	if !c.Observe(false) {
		t.Errorf("should confirm after 3 consecutive silent frames")
	}
}

func TestSilenceCounterResetsOnTalking(t *testing.T) {
	c := NewSilenceCounter(3)
	c.Observe(false)
	c.Observe(false)
	c.Observe(true) // interrupts the run
	if c.Observe(false) {
		t.Errorf("run should have been reset by the talking frame")
	}
}
