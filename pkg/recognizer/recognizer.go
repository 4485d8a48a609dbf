// Package recognizer wraps a batch STTProvider behind the feed/partial/
// final/reset façade the Listening State Machine expects (spec §4.4).
// None of the shipped STT backends actually implement
// orchestrator.StreamingSTTProvider, so Recognizer buffers fed PCM and
// transcribes the whole utterance on Final; when a real streaming backend
// is wired in, it takes over partial/final instead of the buffer.
package recognizer

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/dawn-project/dawn/pkg/orchestrator"
)

// Recognizer is the façade CommandRecording feeds frames into. It is not
// safe for concurrent use from more than one goroutine at a time — the
// listening state machine owns it exclusively during a recording.
type Recognizer struct {
	mu       sync.Mutex
	batch    orchestrator.STTProvider
	stream   orchestrator.StreamingSTTProvider
	lang     orchestrator.Language
	buf      bytes.Buffer
	sttChan  chan<- []byte
	partial  string
	streamed bool
}

// New wraps provider. If provider also implements StreamingSTTProvider,
// Feed forwards chunks to the stream instead of buffering them.
func New(provider orchestrator.STTProvider, lang orchestrator.Language) *Recognizer {
	r := &Recognizer{batch: provider, lang: lang}
	if sp, ok := provider.(orchestrator.StreamingSTTProvider); ok {
		r.stream = sp
	}
	return r
}

// Feed appends one frame of PCM to the in-flight utterance.
func (r *Recognizer) Feed(ctx context.Context, chunk []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stream != nil {
		if r.sttChan == nil {
			ch, err := r.stream.StreamTranscribe(ctx, r.lang, func(transcript string, isFinal bool) error {
				r.mu.Lock()
				r.partial = transcript
				r.streamed = isFinal
				r.mu.Unlock()
				return nil
			})
			if err != nil {
				return fmt.Errorf("recognizer: start stream: %w", err)
			}
			r.sttChan = ch
		}
		r.sttChan <- append([]byte(nil), chunk...)
		return nil
	}

	r.buf.Write(chunk)
	return nil
}

// Partial returns the best partial transcript observed so far. Callers
// must treat an empty string as "no update" rather than a transcription
// failure (spec §4.4 error mode).
func (r *Recognizer) Partial() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.partial
}

// Final flushes the buffered utterance (or the streaming provider's last
// transcript) and returns the recognized text. ok is false when the
// provider returned an empty/whitespace-only transcript, which Final
// treats as "no update" rather than an error — the caller should skip the
// transition rather than fail the recording.
func (r *Recognizer) Final(ctx context.Context) (text string, ok bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stream != nil {
		text = strings.TrimSpace(r.partial)
		return text, text != "", nil
	}

	pcm := r.buf.Bytes()
	if len(pcm) == 0 {
		return "", false, nil
	}

	// Final implicitly resets (spec §4.4): whether transcription succeeds
	// or fails, the buffer must not carry this utterance's audio into the
	// next one.
	defer r.buf.Reset()

	transcript, err := r.batch.Transcribe(ctx, pcm, r.lang)
	if err != nil {
		return "", false, fmt.Errorf("recognizer: transcribe: %w", err)
	}

	text = strings.TrimSpace(transcript)
	return text, text != "", nil
}

// Reset discards any buffered audio and partial state, readying the
// recognizer for the next utterance.
func (r *Recognizer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf.Reset()
	r.partial = ""
	r.streamed = false
	if r.sttChan != nil {
		close(r.sttChan)
		r.sttChan = nil
	}
}

// Name passes through the wrapped provider's name for logging.
func (r *Recognizer) Name() string {
	return r.batch.Name()
}
