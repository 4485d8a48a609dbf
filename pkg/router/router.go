// Package router implements the Command Router (spec §4.6): direct
// wildcard matching against the action table, in declaration order, with
// dispatch handed off either to an in-process DeviceHandler (by device
// tag) or to an MQTT topic publish. ExtractSuffix/ExtractFormat replace
// the sscanf-style parsing the spec's §9 redesign flag calls out.
package router

import (
	"context"
	"fmt"
	"strings"

	"github.com/dawn-project/dawn/pkg/config"
	"github.com/dawn-project/dawn/pkg/mqttbus"
)

// DeviceHandler services one device tag in-process instead of going out
// over MQTT — e.g. "date"/"time" need no external device. It returns the
// tool-call result synchronously so the Dispatcher
// can resolve the pending request immediately rather than waiting on an
// MQTT round-trip that will never arrive (spec §4.6).
type DeviceHandler interface {
	Handle(ctx context.Context, rule config.ActionRule, args []string) (string, error)
}

// DeviceHandlerFunc adapts a function to DeviceHandler.
type DeviceHandlerFunc func(ctx context.Context, rule config.ActionRule, args []string) (string, error)

func (f DeviceHandlerFunc) Handle(ctx context.Context, rule config.ActionRule, args []string) (string, error) {
	return f(ctx, rule, args)
}

// Router matches transcripts against the action table and dispatches the
// match to a registered DeviceHandler or, absent one, to the rule's MQTT
// topic.
type Router struct {
	rules    []config.ActionRule
	handlers map[string]DeviceHandler
	bus      *mqttbus.Bus
}

// New builds a router over the given action table rows, in declaration
// order (spec §4.6: "rules are tried in the order they appear").
func New(rules []config.ActionRule, bus *mqttbus.Bus) *Router {
	return &Router{
		rules:    rules,
		handlers: make(map[string]DeviceHandler),
		bus:      bus,
	}
}

// RegisterHandler installs an in-process handler for the given device
// tag, overriding the default MQTT-publish dispatch for matches on that
// tag.
func (r *Router) RegisterHandler(deviceTag string, h DeviceHandler) {
	r.handlers[deviceTag] = h
}

// Match returns the first action-table row whose wildcard matches
// transcript, plus the extracted argument parts, trying rules in
// declaration order.
func (r *Router) Match(transcript string) (config.ActionRule, []string, bool) {
	for _, rule := range r.rules {
		arg, matched := ExtractSuffix(rule.Wildcard, transcript)
		if !matched {
			continue
		}

		if rule.Format == "" {
			if arg == "" {
				return rule, nil, true
			}
			return rule, []string{arg}, true
		}

		parts, ok := ExtractFormat(rule.Format, arg)
		if !ok {
			continue
		}
		return rule, parts, true
	}
	return config.ActionRule{}, nil, false
}

// Dispatch matches transcript and, on a hit, either invokes the registered
// DeviceHandler for the rule's device tag — returning its result
// synchronously, awaitsReply=false — or publishes to the rule's MQTT
// topic, in which case the actual result arrives later via a correlated
// reply and awaitsReply is true. handled reports whether a rule matched at
// all.
func (r *Router) Dispatch(ctx context.Context, transcript string) (handled bool, result string, awaitsReply bool, err error) {
	rule, args, ok := r.Match(transcript)
	if !ok {
		return false, "", false, nil
	}

	if h, ok := r.handlers[rule.DeviceTag]; ok {
		result, err = h.Handle(ctx, rule, args)
		return true, result, false, err
	}

	if rule.Topic == "" {
		return true, "", false, fmt.Errorf("router: rule %q has no handler and no topic", rule.Wildcard)
	}

	payload := map[string]interface{}{
		"device": rule.DeviceTag,
		"action": rule.Name,
	}
	if len(args) > 0 {
		payload["value"] = strings.Join(args, " ")
	}
	if err := r.bus.Publish(r.bus.ActionTopic(rule.Topic), payload); err != nil {
		return true, "", false, err
	}
	return true, "", true, nil
}

// ExtractSuffix matches transcript against a wildcard pattern containing
// at most one "*" and returns the text the wildcard captured, trimmed of
// surrounding whitespace. A pattern with no "*" must match transcript
// exactly.
func ExtractSuffix(pattern, transcript string) (string, bool) {
	idx := strings.Index(pattern, "*")
	if idx == -1 {
		return "", pattern == transcript
	}

	prefix := pattern[:idx]
	suffix := pattern[idx+1:]

	if !strings.HasPrefix(transcript, prefix) {
		return "", false
	}
	rest := transcript[len(prefix):]

	if suffix == "" {
		return strings.TrimSpace(rest), true
	}
	if !strings.HasSuffix(rest, suffix) {
		return "", false
	}
	arg := rest[:len(rest)-len(suffix)]
	return strings.TrimSpace(arg), true
}

// ExtractFormat splits arg into the fields named by format's "%s"
// placeholders, using the literal text between placeholders as
// delimiters — a direct alternative to fmt.Sscanf for
// the simple space/word-delimited formats the action table uses.
func ExtractFormat(format, arg string) ([]string, bool) {
	if !strings.Contains(format, "%s") {
		return nil, format == arg
	}

	var parts []string
	rest := arg
	remaining := format

	for {
		idx := strings.Index(remaining, "%s")
		if idx == -1 {
			if remaining != "" && rest != remaining {
				return nil, false
			}
			return parts, true
		}

		prefix := remaining[:idx]
		if prefix != "" {
			if !strings.HasPrefix(rest, prefix) {
				return nil, false
			}
			rest = rest[len(prefix):]
		}
		remaining = remaining[idx+2:]

		nextIdx := strings.Index(remaining, "%s")
		var delimiter string
		if nextIdx == -1 {
			delimiter = remaining
		} else {
			delimiter = remaining[:nextIdx]
		}

		if delimiter == "" {
			if nextIdx == -1 {
				parts = append(parts, rest)
				return parts, true
			}
			// No literal delimiter between two placeholders: fall back to
			// splitting on the next whitespace run.
			fields := strings.SplitN(rest, " ", 2)
			parts = append(parts, fields[0])
			if len(fields) > 1 {
				rest = fields[1]
			} else {
				rest = ""
			}
			continue
		}

		pos := strings.Index(rest, delimiter)
		if pos == -1 {
			return nil, false
		}
		parts = append(parts, rest[:pos])
		rest = rest[pos:]
	}
}
