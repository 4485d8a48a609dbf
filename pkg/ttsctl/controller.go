// Package ttsctl implements the TTS Playback Controller (spec §4.5): a
// single-consumer speech queue guarded by a mutex+condvar state machine
// with Idle/Play/Pause/Discard states, grounded on the teacher's
// ManagedStream.runLLMAndTTS streaming-chunk pattern and its
// mutex-guarded isSpeaking bookkeeping.
package ttsctl

import (
	"context"
	"errors"
	"sync"

	"github.com/dawn-project/dawn/pkg/audio"
	"github.com/dawn-project/dawn/pkg/logging"
	"github.com/dawn-project/dawn/pkg/orchestrator"
)

// State is one of the controller's four states.
type State int

const (
	Idle State = iota
	Playing
	Paused
	Discarding
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	case Discarding:
		return "discarding"
	default:
		return "unknown"
	}
}

// Controller owns the single-consumer playback queue. speak(text) never
// blocks the caller; speak_to_wav bypasses the queue and the playback
// device entirely (spec §9 open question resolution).
type Controller struct {
	mu     sync.Mutex
	cond   *sync.Cond
	state  State
	queue  []string
	cancel context.CancelFunc
	closed bool

	tts        orchestrator.TTSProvider
	playback   audio.PlaybackStream
	voice      orchestrator.Voice
	lang       orchestrator.Language
	sampleRate int
	logger     logging.Logger
}

// New starts the controller's consumer goroutine.
func New(tts orchestrator.TTSProvider, playback audio.PlaybackStream, voice orchestrator.Voice, lang orchestrator.Language, sampleRate int, logger logging.Logger) *Controller {
	if logger == nil {
		logger = &logging.NoOpLogger{}
	}
	c := &Controller{
		tts:        tts,
		playback:   playback,
		voice:      voice,
		lang:       lang,
		sampleRate: sampleRate,
		logger:     logger,
	}
	c.cond = sync.NewCond(&c.mu)
	go c.run()
	return c
}

// State returns the controller's current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsPaused reports whether playback is currently paused.
func (c *Controller) IsPaused() bool {
	return c.State() == Paused
}

// Speak enqueues text for playback without blocking the caller.
func (c *Controller) Speak(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.queue = append(c.queue, text)
	c.cond.Signal()
}

// Pause suspends an in-flight playback; queued-but-not-yet-playing text
// stays queued. A no-op outside the Playing state.
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Playing {
		c.state = Paused
		c.cond.Broadcast()
	}
}

// Resume continues a paused playback. A no-op outside the Paused state.
func (c *Controller) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Paused {
		c.state = Playing
		c.cond.Broadcast()
	}
}

// Discard drops the queue and aborts any in-flight synthesis, then
// transitions back to Idle once the consumer notices (the one-shot
// Discard→Idle reset invariant, spec §8). Calling Discard while already
// Idle with an empty queue is an idempotent no-op.
func (c *Controller) Discard() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Idle && len(c.queue) == 0 {
		return
	}
	c.queue = nil
	if c.cancel != nil {
		c.cancel()
	}
	c.state = Discarding
	c.cond.Broadcast()
}

// Close stops the consumer goroutine after any in-flight utterance is
// aborted.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	if c.cancel != nil {
		c.cancel()
	}
	c.cond.Broadcast()
	c.mu.Unlock()
}

func (c *Controller) run() {
	for {
		c.mu.Lock()
		for len(c.queue) == 0 && !c.closed {
			c.state = Idle
			c.cond.Wait()
		}
		if c.closed {
			c.mu.Unlock()
			return
		}

		text := c.queue[0]
		c.queue = c.queue[1:]
		ctx, cancel := context.WithCancel(context.Background())
		c.cancel = cancel
		c.state = Playing
		c.mu.Unlock()

		err := c.tts.StreamSynthesize(ctx, text, c.voice, c.lang, func(chunk []byte) error {
			return c.writeChunk(ctx, chunk)
		})
		cancel()

		if err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Warn("tts playback failed", "error", err)
		}

		c.mu.Lock()
		c.cancel = nil
		if c.state == Discarding {
			c.state = Idle
		}
		c.mu.Unlock()
	}
}

// writeChunk blocks while paused, returns context.Canceled immediately on
// discard/close, and otherwise writes the chunk to the playback device.
func (c *Controller) writeChunk(ctx context.Context, chunk []byte) error {
	c.mu.Lock()
	for c.state == Paused && !c.closed {
		c.cond.Wait()
	}
	state := c.state
	closed := c.closed
	c.mu.Unlock()

	if closed || state == Discarding {
		return context.Canceled
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return c.playback.WriteFrame(chunk)
}

// SpeakToWAV synthesizes text synchronously and returns a RIFF/WAVE
// container, never touching the playback queue or device (spec §9).
func (c *Controller) SpeakToWAV(ctx context.Context, text string) ([]byte, error) {
	type wavSynthesizer interface {
		SynthesizeToWAV(ctx context.Context, text string, voice orchestrator.Voice, lang orchestrator.Language, sampleRate int) ([]byte, error)
	}
	if ws, ok := c.tts.(wavSynthesizer); ok {
		return ws.SynthesizeToWAV(ctx, text, c.voice, c.lang, c.sampleRate)
	}

	pcm, err := c.tts.Synthesize(ctx, text, c.voice, c.lang)
	if err != nil {
		return nil, err
	}
	return audio.NewWavBuffer(pcm, c.sampleRate), nil
}
