package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempTOML(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "runtime.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp toml: %v", err)
	}
	return path
}

func TestLoadRuntimeConfigDefaults(t *testing.T) {
	path := writeTempTOML(t, "")

	rc, err := LoadRuntimeConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rc.TalkingOffset != 0.025 {
		t.Errorf("expected default talking_offset 0.025, got %f", rc.TalkingOffset)
	}
	if rc.AmbientStartup != 6*time.Second {
		t.Errorf("expected default ambient_startup 6s, got %v", rc.AmbientStartup)
	}
	if rc.DispatchMode != DispatchDirectFirst {
		t.Errorf("expected default dispatch mode direct_first, got %s", rc.DispatchMode)
	}
}

func TestLoadRuntimeConfigOverridesFromFile(t *testing.T) {
	path := writeTempTOML(t, `
talking_offset = 0.05
dispatch_mode = "llm_only"

[llm]
mode = "local"
ollama_model = "llama3.2"
`)

	rc, err := LoadRuntimeConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rc.TalkingOffset != 0.05 {
		t.Errorf("expected overridden talking_offset 0.05, got %f", rc.TalkingOffset)
	}
	if rc.DispatchMode != DispatchLLMOnly {
		t.Errorf("expected dispatch mode llm_only, got %s", rc.DispatchMode)
	}
	if rc.LLMMode != "local" {
		t.Errorf("expected llm mode local, got %s", rc.LLMMode)
	}
}

func TestLoadRuntimeConfigRejectsInvalidDispatchMode(t *testing.T) {
	path := writeTempTOML(t, `dispatch_mode = "bogus"`)
	if _, err := LoadRuntimeConfig(path); err == nil {
		t.Errorf("expected error for invalid dispatch_mode")
	}
}

func TestLoadRuntimeConfigEnvOverride(t *testing.T) {
	path := writeTempTOML(t, "")
	t.Setenv("DAWN_LLM_MODE", "local")

	rc, err := LoadRuntimeConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rc.LLMMode != "local" {
		t.Errorf("expected env override to set llm mode local, got %s", rc.LLMMode)
	}
}
