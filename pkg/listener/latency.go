package listener

import (
	"sync"
	"time"
)

// LatencyTracker records per-stage timestamps for one utterance cycle
// (WakeWordListen-with-trailing-command or CommandRecording through
// ProcessCommand, or one NetworkProcessing round-trip), mirroring the
// teacher's ManagedStream latency instrumentation (SPEC_FULL.md §12
// supplemented features) without the teacher's separate STT/TTS streaming
// stage boundaries, which engine.Dispatch does not expose individually.
type LatencyTracker struct {
	mu sync.Mutex

	utteranceEnd  time.Time
	dispatchStart time.Time
	dispatchEnd   time.Time
	speakStart    time.Time

	now func() time.Time
}

// NewLatencyTracker builds a tracker using now for timestamps (time.Now by
// default; tests may substitute a deterministic clock).
func NewLatencyTracker(now func() time.Time) *LatencyTracker {
	if now == nil {
		now = time.Now
	}
	return &LatencyTracker{now: now}
}

// LatencyBreakdown holds one cycle's measured timings, in milliseconds.
// A zero field means that stage hasn't completed yet for the current cycle.
type LatencyBreakdown struct {
	DispatchLatency int64 // time spent inside engine.Dispatch
	ResponseLatency int64 // utterance end -> dispatch complete
	BotStartLatency int64 // utterance end -> first spoken word
}

// MarkUtteranceEnd records when the silence counter confirmed the end of
// the user's utterance, starting a new cycle.
func (t *LatencyTracker) MarkUtteranceEnd() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.utteranceEnd = t.now()
	t.dispatchStart = time.Time{}
	t.dispatchEnd = time.Time{}
	t.speakStart = time.Time{}
}

// MarkDispatchStart records the start of engine.Dispatch.
func (t *LatencyTracker) MarkDispatchStart() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dispatchStart = t.now()
}

// MarkDispatchEnd records the completion of engine.Dispatch.
func (t *LatencyTracker) MarkDispatchEnd() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dispatchEnd = t.now()
}

// MarkSpeakStart records the first spoken reply of the cycle.
func (t *LatencyTracker) MarkSpeakStart() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.speakStart.IsZero() {
		t.speakStart = t.now()
	}
}

// GetLatencyBreakdown returns the current cycle's measured timings.
func (t *LatencyTracker) GetLatencyBreakdown() LatencyBreakdown {
	t.mu.Lock()
	defer t.mu.Unlock()

	var bd LatencyBreakdown
	if t.utteranceEnd.IsZero() {
		return bd
	}
	if !t.dispatchStart.IsZero() && !t.dispatchEnd.IsZero() {
		bd.DispatchLatency = t.dispatchEnd.Sub(t.dispatchStart).Milliseconds()
	}
	if !t.dispatchEnd.IsZero() {
		bd.ResponseLatency = t.dispatchEnd.Sub(t.utteranceEnd).Milliseconds()
	}
	if !t.speakStart.IsZero() {
		bd.BotStartLatency = t.speakStart.Sub(t.utteranceEnd).Milliseconds()
	}
	return bd
}
