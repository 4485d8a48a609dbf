package dispatcher

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dawn-project/dawn/pkg/orchestrator"
)

// SaveHistory persists session's message log to
// chat_history_YYYYMMDD_HHMMSS.json under dir, the shutdown-time
// conversation dump (spec §7, shutdown-signal policy; "persist"). now is
// passed in rather than read internally so shutdown sequencing stays
// deterministic and testable.
func SaveHistory(session *orchestrator.ConversationSession, dir string, now time.Time) (string, error) {
	messages := session.GetContextCopy()

	data, err := json.MarshalIndent(messages, "", "  ")
	if err != nil {
		return "", fmt.Errorf("dispatcher: marshal history: %w", err)
	}

	filename := fmt.Sprintf("chat_history_%s.json", now.Format("20060102_150405"))
	path := filepath.Join(dir, filename)

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("dispatcher: write history: %w", err)
	}

	return path, nil
}
