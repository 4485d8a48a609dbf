// Package dispatcher implements the LLM Dispatcher (spec §4.6): it grows
// the conversation history, asks the LLM for a reply, parses any
// <command> tool-call blocks out of that reply, round-trips each one
// over MQTT via the Command Router, and recurses (bounded) until the LLM
// produces a reply with no further tool calls.
package dispatcher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dawn-project/dawn/pkg/logging"
	"github.com/dawn-project/dawn/pkg/mqttbus"
	"github.com/dawn-project/dawn/pkg/orchestrator"
	"github.com/dawn-project/dawn/pkg/router"
)

// Dispatcher owns one conversation session and its in-flight tool calls.
type Dispatcher struct {
	llm     orchestrator.LLMProvider
	session *orchestrator.ConversationSession
	router  *router.Router
	bus     *mqttbus.Bus
	pending *PendingRegistry
	logger  logging.Logger

	maxIterations int
	toolTimeout   time.Duration
}

// New builds a Dispatcher. maxIterations bounds the recursive tool-call
// loop (spec §4.6, "bounded"); toolTimeout bounds how long a single tool
// call waits for its MQTT reply before the dispatcher synthesizes a
// fallback result.
func New(llm orchestrator.LLMProvider, session *orchestrator.ConversationSession, r *router.Router, bus *mqttbus.Bus, maxIterations int, toolTimeout time.Duration, logger logging.Logger) *Dispatcher {
	if logger == nil {
		logger = &logging.NoOpLogger{}
	}
	return &Dispatcher{
		llm:           llm,
		session:       session,
		router:        r,
		bus:           bus,
		pending:       NewPendingRegistry(),
		logger:        logger,
		maxIterations: maxIterations,
		toolTimeout:   toolTimeout,
	}
}

// ResolveToolResult feeds an inbound MQTT reply carrying a request_id
// back to whichever Handle call is waiting on it.
func (d *Dispatcher) ResolveToolResult(msg mqttbus.InboundMessage) {
	if msg.RequestID == "" {
		return
	}
	d.pending.Resolve(ToolResult{RequestID: msg.RequestID, Value: msg.Value})
}

// Handle appends userText to the conversation, runs the bounded
// LLM/tool-call loop, and returns the text to speak. On an LLM HTTP
// failure, a spoken fallback is returned and no assistant turn is
// appended to history; the user turn added before the call stays.
func (d *Dispatcher) Handle(ctx context.Context, userText string) (string, error) {
	d.session.AddMessage("user", userText)

	for i := 0; i < d.maxIterations; i++ {
		reply, err := d.llm.Complete(ctx, d.session.GetContextCopy())
		if err != nil {
			return "Sorry, I couldn't reach the language model just now.", fmt.Errorf("dispatcher: llm complete: %w", err)
		}

		d.session.AddMessage("assistant", reply)

		commands, malformed := ParseCommands(reply)
		if malformed > 0 {
			d.logger.Warn("dispatcher: skipping malformed command block(s)", "count", malformed)
		}
		if len(commands) == 0 {
			return CleanForSpeech(reply), nil
		}

		results := make([]string, 0, len(commands))
		for _, cmd := range commands {
			results = append(results, d.runCommand(ctx, cmd))
		}
		// One synthetic user turn per LLM reply, not one per command (spec
		// §4.6: "re-invokes the LLM with the concatenated results as a
		// synthetic user turn"; §8: history alternates strictly user/assistant).
		d.session.AddMessage("user", strings.Join(results, " "))
	}

	d.logger.Warn("dispatcher: max LLM iterations reached", "max", d.maxIterations)
	return "I've run out of steps trying to finish that.", nil
}

// runCommand dispatches one parsed command through the Command Router
// and waits (bounded) for its result, synthesizing a fallback on timeout
// (spec §7, "tool-result timeout → synthetic [Tool Result: ... completed
// successfully]"). Every command is published as its own MQTT message on
// the daemon's own topic with a unique request_id (spec §4.6 steps 3-4;
// testable property "exactly one MQTT publish is issued with a unique
// request_id" per parsed <command> block), regardless of whether it is
// ultimately serviced by an in-process DeviceHandler or round-trips to an
// external device over the action table's topic.
func (d *Dispatcher) runCommand(ctx context.Context, cmd CommandBlock) string {
	requestID := cmd.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}

	ch := d.pending.Register(requestID)

	if d.bus != nil {
		payload := map[string]interface{}{
			"device":     cmd.Device,
			"action":     cmd.Action,
			"value":      cmd.Value,
			"request_id": requestID,
		}
		if err := d.bus.Publish(d.bus.OwnTopic(), payload); err != nil {
			d.logger.Warn("dispatcher: failed to publish tool call", "request_id", requestID, "error", err)
		}
	}

	transcriptLike := cmd.Device + " " + cmd.Action
	if cmd.Value != "" {
		transcriptLike += " " + cmd.Value
	}

	handled, result, awaitsReply, err := d.router.Dispatch(ctx, transcriptLike)
	switch {
	case !handled:
		d.logger.Warn("dispatcher: no router match for command", "device", cmd.Device, "action", cmd.Action)
	case err != nil:
		d.pending.Resolve(ToolResult{RequestID: requestID, Err: err})
	case !awaitsReply:
		// An in-process DeviceHandler already produced the final result;
		// resolve immediately instead of waiting out the full timeout for
		// a round-trip that was never going to arrive.
		d.pending.Resolve(ToolResult{RequestID: requestID, Value: result})
	}

	waitCtx, cancel := context.WithTimeout(ctx, d.toolTimeout)
	defer cancel()

	toolResult, ok := d.pending.Wait(waitCtx, requestID, ch)
	if !ok {
		return fmt.Sprintf("[Tool Result: %s %s completed successfully]", cmd.Device, cmd.Action)
	}
	if toolResult.Err != nil {
		return fmt.Sprintf("[Tool Result: %s %s failed: %v]", cmd.Device, cmd.Action, toolResult.Err)
	}
	return fmt.Sprintf("[Tool Result: %s]", toolResult.Value)
}
