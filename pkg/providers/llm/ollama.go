package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"github.com/dawn-project/dawn/pkg/orchestrator"
)

// OllamaLLM talks to a local Ollama server via the official Ollama Go
// client, letting DAWN run its LLM Dispatcher (spec §4.6, "-m local")
// entirely offline.
type OllamaLLM struct {
	client *api.Client
	model  string
}

// NewOllamaLLM builds a client against an Ollama server at baseURL (e.g.
// http://localhost:11434) using model. An invalid baseURL falls back to
// the default Ollama client (reads OLLAMA_HOST from the environment).
func NewOllamaLLM(baseURL string, model string) *OllamaLLM {
	if model == "" {
		model = "llama3.2"
	}

	client, err := api.ClientFromEnvironment()
	if baseURL != "" {
		if parsed, perr := url.Parse(strings.TrimSuffix(baseURL, "/")); perr == nil {
			client = api.NewClient(parsed, http.DefaultClient)
			err = nil
		}
	}
	if err != nil || client == nil {
		client = api.NewClient(&url.URL{Scheme: "http", Host: "localhost:11434"}, http.DefaultClient)
	}

	return &OllamaLLM{client: client, model: model}
}

// Complete sends the conversation so far to Ollama's /api/chat endpoint
// and returns the assistant's reply.
func (l *OllamaLLM) Complete(ctx context.Context, messages []orchestrator.Message) (string, error) {
	apiMessages := make([]api.Message, 0, len(messages))
	for _, m := range messages {
		apiMessages = append(apiMessages, api.Message{Role: m.Role, Content: m.Content})
	}

	stream := false
	var response api.ChatResponse
	err := l.client.Chat(ctx, &api.ChatRequest{
		Model:    l.model,
		Messages: apiMessages,
		Stream:   &stream,
		Options: map[string]any{
			"temperature": 0.7,
			"num_predict": 256,
		},
	}, func(resp api.ChatResponse) error {
		response = resp
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama: chat request: %w", err)
	}

	return strings.TrimSpace(response.Message.Content), nil
}

func (l *OllamaLLM) Name() string {
	return "ollama-llm"
}
