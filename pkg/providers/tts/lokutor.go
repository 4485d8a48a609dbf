package tts

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/dawn-project/dawn/pkg/audio"
	"github.com/dawn-project/dawn/pkg/orchestrator"
)

// LokutorTTS streams synthesized speech over a persistent websocket
// connection to Lokutor, DAWN's default TTS backend (spec §4.5). The
// connection is lazily dialed and reused across calls, and torn down on
// any read/write error so the next call redials.
type LokutorTTS struct {
	apiKey string
	host   string
	scheme string
	mu     sync.Mutex
	conn   *websocket.Conn
}

// NewLokutorTTS builds a client for the given API key against Lokutor's
// production websocket endpoint.
func NewLokutorTTS(apiKey string) *LokutorTTS {
	return &LokutorTTS{
		apiKey: apiKey,
		host:   "api.lokutor.com",
		scheme: "wss",
	}
}

func (t *LokutorTTS) getConn(ctx context.Context) (*websocket.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != nil {
		return t.conn, nil
	}

	scheme := t.scheme
	if scheme == "" {
		scheme = "wss"
	}
	u := url.URL{Scheme: scheme, Host: t.host, Path: "/ws", RawQuery: "api_key=" + t.apiKey}
	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("lokutor: connect: %w", err)
	}

	t.conn = conn
	return conn, nil
}

// Synthesize renders text to raw PCM by buffering the full streamed
// response; callers that can consume audio incrementally should use
// StreamSynthesize instead.
func (t *LokutorTTS) Synthesize(ctx context.Context, text string, voice orchestrator.Voice, lang orchestrator.Language) ([]byte, error) {
	var pcm []byte
	err := t.StreamSynthesize(ctx, text, voice, lang, func(chunk []byte) error {
		pcm = append(pcm, chunk...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pcm, nil
}

// StreamSynthesize sends a synthesis request and invokes onChunk for each
// binary frame received until the server signals end-of-stream.
func (t *LokutorTTS) StreamSynthesize(ctx context.Context, text string, voice orchestrator.Voice, lang orchestrator.Language, onChunk func([]byte) error) error {
	conn, err := t.getConn(ctx)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	req := map[string]interface{}{
		"text":    text,
		"voice":   string(voice),
		"lang":    string(lang),
		"speed":   1.05,
		"steps":   5,
		"version": "versa-1.0",
	}

	if err := wsjson.Write(ctx, conn, req); err != nil {
		t.conn = nil
		conn.Close(websocket.StatusAbnormalClosure, "failed to write json")
		return fmt.Errorf("lokutor: send synthesis request: %w", err)
	}

	for {
		messageType, payload, err := conn.Read(ctx)
		if err != nil {
			t.conn = nil
			conn.Close(websocket.StatusAbnormalClosure, "failed to read")
			return fmt.Errorf("lokutor: read stream: %w", err)
		}

		switch messageType {
		case websocket.MessageBinary:
			if err := onChunk(payload); err != nil {
				return err
			}
		case websocket.MessageText:
			msg := string(payload)
			if msg == "EOS" {
				return nil
			}
			if len(msg) >= 4 && msg[:4] == "ERR:" {
				return fmt.Errorf("lokutor: server error: %s", msg)
			}
		}
	}
}

// SynthesizeToWAV renders text to a RIFF/WAVE container without ever
// touching a playback device, backing the speak_to_wav path (spec §4.5,
// §9 open question) that the TTS Playback Controller keeps separate from
// the live-speaking queue.
func (t *LokutorTTS) SynthesizeToWAV(ctx context.Context, text string, voice orchestrator.Voice, lang orchestrator.Language, sampleRate int) ([]byte, error) {
	pcm, err := t.Synthesize(ctx, text, voice, lang)
	if err != nil {
		return nil, err
	}
	return audio.NewWavBuffer(pcm, sampleRate), nil
}

func (t *LokutorTTS) Name() string {
	return "lokutor"
}

func (t *LokutorTTS) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		err := t.conn.Close(websocket.StatusNormalClosure, "")
		t.conn = nil
		return err
	}
	return nil
}
