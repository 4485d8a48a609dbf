package listener

import (
	"context"

	"github.com/dawn-project/dawn/pkg/config"
	"github.com/dawn-project/dawn/pkg/router"
)

// LLMDispatcher is the subset of dispatcher.Dispatcher the command engine
// needs.
type LLMDispatcher interface {
	Handle(ctx context.Context, userText string) (string, error)
}

// CommandEngine implements the "Dispatch policy by mode" of spec §4.6:
// DirectOnly tries the action table and otherwise consults the
// ignore-word list before falling through to the LLM; DirectFirst tries
// the action table and falls through unconditionally; LLMOnly skips
// direct matching entirely.
type CommandEngine struct {
	mode        config.DispatchMode
	router      *router.Router
	llm         LLMDispatcher
	ignoreWords []string
}

// NewCommandEngine builds a CommandEngine.
func NewCommandEngine(mode config.DispatchMode, r *router.Router, llm LLMDispatcher, ignoreWords []string) *CommandEngine {
	return &CommandEngine{mode: mode, router: r, llm: llm, ignoreWords: ignoreWords}
}

// Dispatch runs transcript through the configured policy. reply is
// non-empty only when the LLM path produced text to speak; a direct
// match that hit a self-speaking built-in handler (spec §4.6, "handler
// itself has already spoken") returns an empty reply — callers that need
// that handler's spoken text captured (the network-audio path) should
// wrap the call in a SpeakSink.Capture.
func (e *CommandEngine) Dispatch(ctx context.Context, transcript string) (reply string, err error) {
	if e.mode == config.DispatchLLMOnly {
		return e.llm.Handle(ctx, transcript)
	}

	handled, _, _, err := e.router.Dispatch(ctx, transcript)
	if err != nil {
		return "", err
	}
	if handled {
		return "", nil
	}

	if e.mode == config.DispatchDirectOnly && IsIgnored(e.ignoreWords, transcript) {
		return "", nil
	}

	return e.llm.Handle(ctx, transcript)
}
