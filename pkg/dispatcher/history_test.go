package dispatcher

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dawn-project/dawn/pkg/orchestrator"
)

func TestSaveHistoryWritesTimestampedFilename(t *testing.T) {
	dir := t.TempDir()
	session := orchestrator.NewConversationSession("test")
	session.AddMessage("user", "hello")
	session.AddMessage("assistant", "hi there")

	now := time.Date(2026, 7, 30, 14, 5, 9, 0, time.UTC)
	path, err := SaveHistory(session, dir, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := filepath.Join(dir, "chat_history_20260730_140509.json")
	if path != want {
		t.Errorf("expected path %q, got %q", want, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("could not read written file: %v", err)
	}

	var messages []orchestrator.Message
	if err := json.Unmarshal(data, &messages); err != nil {
		t.Fatalf("could not unmarshal history: %v", err)
	}
	if len(messages) != 2 || messages[0].Content != "hello" || messages[1].Content != "hi there" {
		t.Errorf("unexpected round-tripped messages: %+v", messages)
	}
}

func TestSaveHistoryEmptySessionWritesEmptyArray(t *testing.T) {
	dir := t.TempDir()
	session := orchestrator.NewConversationSession("test")

	path, err := SaveHistory(session, dir, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("could not read written file: %v", err)
	}

	var messages []orchestrator.Message
	if err := json.Unmarshal(data, &messages); err != nil {
		t.Fatalf("could not unmarshal history: %v", err)
	}
	if len(messages) != 0 {
		t.Errorf("expected empty history, got %+v", messages)
	}
}
