package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/dawn-project/dawn/pkg/audio"
	"github.com/dawn-project/dawn/pkg/orchestrator"
)

// OpenAISTT talks to OpenAI's audio transcriptions endpoint, one of the
// batch STT backends selectable via the runtime config's STTProvider
// (spec §4.4: "Final" transcribes a whole buffered utterance in one call).
type OpenAISTT struct {
	apiKey     string
	url        string
	model      string
	sampleRate int
}

// NewOpenAISTT builds a client for the given API key and model, defaulting
// to whisper-1 when model is empty.
func NewOpenAISTT(apiKey string, model string) *OpenAISTT {
	if model == "" {
		model = "whisper-1"
	}
	return &OpenAISTT{
		apiKey:     apiKey,
		url:        "https://api.openai.com/v1/audio/transcriptions",
		model:      model,
		sampleRate: 44100,
	}
}

// SetSampleRate overrides the PCM sample rate assumed when wrapping audio
// into a WAV container before upload; DAWN's capture pipeline runs at
// audio.SampleRate, not OpenAI's default.
func (s *OpenAISTT) SetSampleRate(rate int) {
	s.sampleRate = rate
}

// Name identifies this provider for logging and error wrapping in
// cmd/dawnd's provider-selection path.
func (s *OpenAISTT) Name() string {
	return "openai_stt"
}

// Transcribe uploads a whole utterance's PCM, wrapped as a WAV file, and
// returns the recognized text.
func (s *OpenAISTT) Transcribe(ctx context.Context, audioPCM []byte, lang orchestrator.Language) (string, error) {
	wavData := audio.NewWavBuffer(audioPCM, s.sampleRate)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if err := writer.WriteField("model", s.model); err != nil {
		return "", fmt.Errorf("openai-stt: write model field: %w", err)
	}

	if lang != "" {
		if err := writer.WriteField("language", string(lang)); err != nil {
			return "", fmt.Errorf("openai-stt: write language field: %w", err)
		}
	}

	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("openai-stt: create form file: %w", err)
	}
	if _, err := part.Write(wavData); err != nil {
		return "", fmt.Errorf("openai-stt: write audio payload: %w", err)
	}
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, "POST", s.url, body)
	if err != nil {
		return "", fmt.Errorf("openai-stt: build request: %w", err)
	}

	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("openai-stt: transcription request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("openai-stt: transcription request failed (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("openai-stt: decode response: %w", err)
	}

	return result.Text, nil
}
