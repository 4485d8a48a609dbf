// Package config loads DAWN's two configuration surfaces: the fixed-path
// JSON action table (spec §3, §6) and the TOML runtime knobs file (spec
// §6), the latter overridable through DAWN_-prefixed environment
// variables.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dawn-project/dawn/pkg/audio"
)

// ActionRule is one row of the action table: a wildcard pattern matched
// against incoming command text, an optional printf-style format for
// extracting a trailing argument, the MQTT topic to publish to, and the
// device-tag naming which DeviceHandler services the match (spec §4.6).
type ActionRule struct {
	Wildcard  string `json:"wildcard"`
	Format    string `json:"format,omitempty"`
	Topic     string `json:"topic"`
	DeviceTag string `json:"device_tag"`
	Name      string `json:"name,omitempty"`
}

// DeviceEntry pairs a logical device name used throughout the daemon with
// the underlying device id the audio backend resolves at open time.
type DeviceEntry struct {
	LogicalName string `json:"logical_name"`
	DeviceID    string `json:"device_id"`
}

// ActionConfig is the full JSON action/device/name configuration loaded
// once at startup and never mutated afterward (spec §5, "Action table:
// init-once").
type ActionConfig struct {
	AIName          string        `json:"ai_name"`
	Actions         []ActionRule  `json:"actions"`
	CaptureDevices  []DeviceEntry `json:"capture_devices"`
	PlaybackDevices []DeviceEntry `json:"playback_devices"`
}

// LoadActionConfig reads and validates the action table from path.
func LoadActionConfig(path string) (*ActionConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read action config: %w", err)
	}

	var cfg ActionConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse action config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate enforces the invariants spec §3 places on the action/device
// collections: a non-empty AI name, and unique logical names within each
// device collection.
func (c *ActionConfig) Validate() error {
	if c.AIName == "" {
		return fmt.Errorf("config: ai_name must not be empty")
	}

	if err := checkUniqueNames("capture_devices", c.CaptureDevices); err != nil {
		return err
	}
	if err := checkUniqueNames("playback_devices", c.PlaybackDevices); err != nil {
		return err
	}

	for i, a := range c.Actions {
		if a.Wildcard == "" {
			return fmt.Errorf("config: actions[%d]: wildcard must not be empty", i)
		}
		if a.Topic == "" && a.DeviceTag == "" {
			return fmt.Errorf("config: actions[%d] (%s): must set topic or device_tag", i, a.Wildcard)
		}
	}

	return nil
}

func checkUniqueNames(collection string, entries []DeviceEntry) error {
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.LogicalName == "" {
			return fmt.Errorf("config: %s: logical_name must not be empty", collection)
		}
		if seen[e.LogicalName] {
			return fmt.Errorf("config: %s: duplicate logical_name %q", collection, e.LogicalName)
		}
		seen[e.LogicalName] = true
	}
	return nil
}

// CaptureDeviceEntries converts the JSON-level capture rows into
// pkg/audio's DeviceEntry type.
func (c *ActionConfig) CaptureDeviceEntries() []audio.DeviceEntry {
	return toAudioEntries(c.CaptureDevices)
}

// PlaybackDeviceEntries converts the JSON-level playback rows into
// pkg/audio's DeviceEntry type.
func (c *ActionConfig) PlaybackDeviceEntries() []audio.DeviceEntry {
	return toAudioEntries(c.PlaybackDevices)
}

func toAudioEntries(entries []DeviceEntry) []audio.DeviceEntry {
	out := make([]audio.DeviceEntry, len(entries))
	for i, e := range entries {
		out[i] = audio.DeviceEntry{LogicalName: e.LogicalName, DeviceID: e.DeviceID}
	}
	return out
}
