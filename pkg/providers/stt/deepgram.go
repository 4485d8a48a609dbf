package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/dawn-project/dawn/pkg/audio"
	"github.com/dawn-project/dawn/pkg/orchestrator"
)

// DeepgramSTT talks to Deepgram's prerecorded listen endpoint, one of the
// batch STT backends selectable via the runtime config's STTProvider
// (spec §4.4: "Final" transcribes a whole buffered utterance in one call).
type DeepgramSTT struct {
	apiKey     string
	url        string
	sampleRate int
}

// NewDeepgramSTT builds a client for the given API key, assuming DAWN's
// default capture sample rate.
func NewDeepgramSTT(apiKey string) *DeepgramSTT {
	return &DeepgramSTT{
		apiKey:     apiKey,
		url:        "https://api.deepgram.com/v1/listen",
		sampleRate: audio.SampleRate,
	}
}

// SetSampleRate overrides the PCM sample rate advertised in the
// Content-Type header.
func (s *DeepgramSTT) SetSampleRate(rate int) {
	s.sampleRate = rate
}

// Name identifies this provider for logging and error wrapping in
// cmd/dawnd's provider-selection path.
func (s *DeepgramSTT) Name() string {
	return "deepgram-stt"
}

// Transcribe uploads a whole utterance's raw PCM and returns the
// recognized text.
func (s *DeepgramSTT) Transcribe(ctx context.Context, audioPCM []byte, lang orchestrator.Language) (string, error) {
	u, err := url.Parse(s.url)
	if err != nil {
		return "", fmt.Errorf("deepgram-stt: parse endpoint: %w", err)
	}

	params := u.Query()
	params.Set("model", "nova-2")
	params.Set("smart_format", "true")
	if lang != "" {
		params.Set("language", string(lang))
	}
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, "POST", u.String(), bytes.NewReader(audioPCM))
	if err != nil {
		return "", fmt.Errorf("deepgram-stt: build request: %w", err)
	}

	req.Header.Set("Authorization", "Token "+s.apiKey)
	req.Header.Set("Content-Type", fmt.Sprintf("audio/l16; rate=%d; channels=1", s.sampleRate))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("deepgram-stt: listen request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("deepgram-stt: listen request failed (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Results struct {
			Channels []struct {
				Alternatives []struct {
					Transcript string `json:"transcript"`
				} `json:"alternatives"`
			} `json:"channels"`
		} `json:"results"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("deepgram-stt: decode response: %w", err)
	}

	if len(result.Results.Channels) == 0 || len(result.Results.Channels[0].Alternatives) == 0 {
		return "", nil
	}

	return result.Results.Channels[0].Alternatives[0].Transcript, nil
}
