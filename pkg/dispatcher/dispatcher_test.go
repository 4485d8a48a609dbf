package dispatcher

import (
	"context"
	"testing"
	"time"

	"github.com/dawn-project/dawn/pkg/config"
	"github.com/dawn-project/dawn/pkg/orchestrator"
	"github.com/dawn-project/dawn/pkg/router"
)

type fakeLLM struct {
	replies []string
	i       int
}

func (f *fakeLLM) Complete(ctx context.Context, messages []orchestrator.Message) (string, error) {
	r := f.replies[f.i]
	if f.i < len(f.replies)-1 {
		f.i++
	}
	return r, nil
}

func (f *fakeLLM) Name() string { return "fake-llm" }

func TestHandleReturnsCleanedReplyWithNoCommands(t *testing.T) {
	llm := &fakeLLM{replies: []string{"Hello there! <end_of_turn>"}}
	session := orchestrator.NewConversationSession("test")
	r := router.New(nil, nil)
	d := New(llm, session, r, nil, 4, time.Second, nil)

	reply, err := d.Handle(context.Background(), "hi")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "Hello there!" {
		t.Errorf("expected cleaned reply, got %q", reply)
	}

	ctx := session.GetContextCopy()
	if len(ctx) != 2 || ctx[0].Role != "user" || ctx[1].Role != "assistant" {
		t.Errorf("expected user/assistant alternation, got %+v", ctx)
	}
}

func TestHandleRunsToolCallLoopAndAppendsResult(t *testing.T) {
	llm := &fakeLLM{replies: []string{
		`Turning it on. <command>{"device":"lamp","action":"power","value":"on","request_id":"fixed-1"}</command>`,
		"All done.",
	}}
	session := orchestrator.NewConversationSession("test")
	rules := []config.ActionRule{{Wildcard: "lamp power *", DeviceTag: "lamp"}}
	rtr := router.New(rules, nil)

	d := New(llm, session, rtr, nil, 4, time.Second, nil)
	rtr.RegisterHandler("lamp", router.DeviceHandlerFunc(func(ctx context.Context, rule config.ActionRule, args []string) (string, error) {
		return "lamp is on", nil
	}))

	reply, err := d.Handle(context.Background(), "turn on the lamp")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "All done." {
		t.Errorf("expected final reply after tool loop, got %q", reply)
	}

	ctx := session.GetContextCopy()
	// user, assistant(tagged), user(tool result), assistant(final)
	if len(ctx) != 4 {
		t.Fatalf("expected 4 history entries, got %d: %+v", len(ctx), ctx)
	}
	if ctx[2].Role != "user" || ctx[2].Content != "[Tool Result: lamp is on]" {
		t.Errorf("expected synthesized tool result message, got %+v", ctx[2])
	}
}

func TestHandleConcatenatesMultipleCommandResultsIntoOneUserTurn(t *testing.T) {
	llm := &fakeLLM{replies: []string{
		`<command>{"device":"lamp","action":"power","value":"on","request_id":"r1"}</command>` +
			`<command>{"device":"fan","action":"power","value":"on","request_id":"r2"}</command>`,
		"Both done.",
	}}
	session := orchestrator.NewConversationSession("test")
	rules := []config.ActionRule{
		{Wildcard: "lamp power *", DeviceTag: "lamp"},
		{Wildcard: "fan power *", DeviceTag: "fan"},
	}
	rtr := router.New(rules, nil)
	rtr.RegisterHandler("lamp", router.DeviceHandlerFunc(func(ctx context.Context, rule config.ActionRule, args []string) (string, error) {
		return "lamp is on", nil
	}))
	rtr.RegisterHandler("fan", router.DeviceHandlerFunc(func(ctx context.Context, rule config.ActionRule, args []string) (string, error) {
		return "fan is on", nil
	}))

	d := New(llm, session, rtr, nil, 4, time.Second, nil)

	reply, err := d.Handle(context.Background(), "turn everything on")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "Both done." {
		t.Errorf("expected final reply after tool loop, got %q", reply)
	}

	ctx := session.GetContextCopy()
	// user, assistant(tagged), user(concatenated results), assistant(final):
	// strictly alternating roles per spec §8, not one user turn per command.
	if len(ctx) != 4 {
		t.Fatalf("expected 4 history entries, got %d: %+v", len(ctx), ctx)
	}
	if ctx[2].Role != "user" {
		t.Errorf("expected a single user turn for both results, got role %q", ctx[2].Role)
	}
	want := "[Tool Result: lamp is on] [Tool Result: fan is on]"
	if ctx[2].Content != want {
		t.Errorf("expected concatenated tool results %q, got %q", want, ctx[2].Content)
	}
}

func TestHandleToolCallTimeoutSynthesizesFallback(t *testing.T) {
	llm := &fakeLLM{replies: []string{
		`<command>{"device":"fan","action":"power","request_id":"never-resolved"}</command>`,
		"Okay.",
	}}
	session := orchestrator.NewConversationSession("test")
	rtr := router.New(nil, nil) // no matching rule, no handler: never resolved

	d := New(llm, session, rtr, nil, 4, 20*time.Millisecond, nil)

	reply, err := d.Handle(context.Background(), "turn on the fan")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "Okay." {
		t.Errorf("expected dispatcher to recover via fallback, got %q", reply)
	}

	ctx := session.GetContextCopy()
	if ctx[2].Content != "[Tool Result: fan power completed successfully]" {
		t.Errorf("expected synthetic success fallback, got %+v", ctx[2])
	}
}

func TestHandleBoundsIterationCount(t *testing.T) {
	// Every reply contains a fresh command block, so without a bound this
	// would loop forever.
	alwaysCommand := `<command>{"device":"x","action":"y","request_id":"r"}</command>`
	llm := &fakeLLM{replies: []string{alwaysCommand}}
	session := orchestrator.NewConversationSession("test")
	rtr := router.New(nil, nil)

	d := New(llm, session, rtr, nil, 3, 10*time.Millisecond, nil)

	reply, err := d.Handle(context.Background(), "loop forever")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply == "" {
		t.Errorf("expected a fallback reply once the iteration cap is hit")
	}
}
