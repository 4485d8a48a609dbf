package router

import (
	"context"
	"time"

	"github.com/dawn-project/dawn/pkg/config"
)

// SpeakFunc is satisfied by ttsctl.Controller.Speak, kept as a narrow
// function type here so this package doesn't need to import ttsctl.
type SpeakFunc func(text string)

// NewDateTimeHandler answers "date"/"time" device-tag matches in-process
// by speaking the current date or time, without involving MQTT or any
// external device.
func NewDateTimeHandler(speak SpeakFunc, now func() time.Time) DeviceHandler {
	if now == nil {
		now = time.Now
	}
	return DeviceHandlerFunc(func(ctx context.Context, rule config.ActionRule, args []string) (string, error) {
		var value string
		switch rule.DeviceTag {
		case "date":
			value = now().Format("Monday, January 2")
		case "time":
			value = now().Format("3:04 PM")
		}
		speak(value)
		return value, nil
	})
}

// NewShutdownHandler answers "shutdown" matches by invoking quit, which
// the caller wires to the daemon's quit-flag / SIGINT handling path
// (spec §7, shutdown-signal policy).
func NewShutdownHandler(quit func()) DeviceHandler {
	return DeviceHandlerFunc(func(ctx context.Context, rule config.ActionRule, args []string) (string, error) {
		quit()
		return "shutting down", nil
	})
}

// NewTextToSpeechHandler answers "text_to_speech" matches by speaking the
// extracted argument directly, bypassing MQTT entirely.
func NewTextToSpeechHandler(speak SpeakFunc) DeviceHandler {
	return DeviceHandlerFunc(func(ctx context.Context, rule config.ActionRule, args []string) (string, error) {
		if len(args) == 0 {
			return "", nil
		}
		speak(args[0])
		return args[0], nil
	})
}
