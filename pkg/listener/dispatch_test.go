package listener

import (
	"context"
	"testing"

	"github.com/dawn-project/dawn/pkg/config"
	"github.com/dawn-project/dawn/pkg/router"
)

// noopHandler satisfies router.DeviceHandler without touching MQTT, letting
// tests exercise a direct-matched rule without wiring a live bus.
func noopHandler() router.DeviceHandler {
	return router.DeviceHandlerFunc(func(ctx context.Context, rule config.ActionRule, args []string) (string, error) {
		return "", nil
	})
}

type fakeLLMDispatcher struct {
	called bool
	text   string
	reply  string
	err    error
}

func (f *fakeLLMDispatcher) Handle(ctx context.Context, userText string) (string, error) {
	f.called = true
	f.text = userText
	return f.reply, f.err
}

func TestCommandEngineDirectFirstUsesRouterOnMatch(t *testing.T) {
	rules := []config.ActionRule{{Wildcard: "turn on the *", DeviceTag: "lamp", Topic: "lights"}}
	r := router.New(rules, nil)
	r.RegisterHandler("lamp", noopHandler())
	llm := &fakeLLMDispatcher{reply: "should not be used"}
	e := NewCommandEngine(config.DispatchDirectFirst, r, llm, nil)

	reply, err := e.Dispatch(context.Background(), "turn on the lamp")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "" {
		t.Errorf("expected empty reply for a direct-matched in-process handler, got %q", reply)
	}
	if llm.called {
		t.Error("expected the LLM not to be consulted on a direct match")
	}
}

func TestCommandEngineDirectFirstFallsThroughToLLM(t *testing.T) {
	r := router.New(nil, nil)
	llm := &fakeLLMDispatcher{reply: "here's your answer"}
	e := NewCommandEngine(config.DispatchDirectFirst, r, llm, nil)

	reply, err := e.Dispatch(context.Background(), "what's the capital of France")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "here's your answer" {
		t.Errorf("expected the LLM's reply, got %q", reply)
	}
	if !llm.called {
		t.Error("expected the LLM to be consulted")
	}
}

func TestCommandEngineDirectOnlyDropsIgnoredWords(t *testing.T) {
	r := router.New(nil, nil)
	llm := &fakeLLMDispatcher{reply: "should not be used"}
	e := NewCommandEngine(config.DispatchDirectOnly, r, llm, []string{"thanks"})

	reply, err := e.Dispatch(context.Background(), "thanks")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "" {
		t.Errorf("expected a silently dropped ignore-word utterance, got %q", reply)
	}
	if llm.called {
		t.Error("expected the LLM not to be consulted for an ignore-listed utterance")
	}
}

func TestCommandEngineDirectOnlyFallsThroughWhenNotIgnored(t *testing.T) {
	r := router.New(nil, nil)
	llm := &fakeLLMDispatcher{reply: "fallback reply"}
	e := NewCommandEngine(config.DispatchDirectOnly, r, llm, []string{"thanks"})

	reply, err := e.Dispatch(context.Background(), "tell me a joke")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "fallback reply" {
		t.Errorf("expected fallback to the LLM, got %q", reply)
	}
}

func TestCommandEngineLLMOnlySkipsRouterEntirely(t *testing.T) {
	rules := []config.ActionRule{{Wildcard: "turn on the *", DeviceTag: "lamp", Topic: "lights"}}
	r := router.New(rules, nil)
	r.RegisterHandler("lamp", noopHandler())
	llm := &fakeLLMDispatcher{reply: "always the LLM"}
	e := NewCommandEngine(config.DispatchLLMOnly, r, llm, nil)

	reply, err := e.Dispatch(context.Background(), "turn on the lamp")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "always the LLM" {
		t.Errorf("expected the LLM reply even though a direct rule would have matched, got %q", reply)
	}
	if !llm.called {
		t.Error("expected the LLM to be called")
	}
}
