package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "actions.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadActionConfig(t *testing.T) {
	path := writeTempConfig(t, `{
		"ai_name": "Dawn",
		"actions": [
			{"wildcard": "turn on the *", "format": "%s", "topic": "dawn/device/%s/power", "device_tag": "audio_playback_device"}
		],
		"capture_devices": [{"logical_name": "default_mic", "device_id": "hw:1,0"}],
		"playback_devices": [{"logical_name": "default_speaker", "device_id": "hw:0,0"}]
	}`)

	cfg, err := LoadActionConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.AIName != "Dawn" {
		t.Errorf("expected AIName Dawn, got %q", cfg.AIName)
	}
	if len(cfg.Actions) != 1 {
		t.Fatalf("expected 1 action, got %d", len(cfg.Actions))
	}
	if len(cfg.CaptureDeviceEntries()) != 1 || cfg.CaptureDeviceEntries()[0].LogicalName != "default_mic" {
		t.Errorf("unexpected capture devices: %+v", cfg.CaptureDeviceEntries())
	}
}

func TestLoadActionConfigRejectsMissingAIName(t *testing.T) {
	path := writeTempConfig(t, `{"actions": []}`)
	if _, err := LoadActionConfig(path); err == nil {
		t.Errorf("expected error for missing ai_name")
	}
}

func TestLoadActionConfigRejectsDuplicateDeviceNames(t *testing.T) {
	path := writeTempConfig(t, `{
		"ai_name": "Dawn",
		"capture_devices": [
			{"logical_name": "mic", "device_id": "a"},
			{"logical_name": "mic", "device_id": "b"}
		]
	}`)
	if _, err := LoadActionConfig(path); err == nil {
		t.Errorf("expected error for duplicate logical_name")
	}
}

func TestLoadActionConfigRejectsActionWithNoTarget(t *testing.T) {
	path := writeTempConfig(t, `{
		"ai_name": "Dawn",
		"actions": [{"wildcard": "do the thing"}]
	}`)
	if _, err := LoadActionConfig(path); err == nil {
		t.Errorf("expected error for action with neither topic nor device_tag")
	}
}
