package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/petasbytes/toolchat/internal/metrics"
	"github.com/petasbytes/toolchat/transcript"
)

// Message is a minimal persisted view of a chat turn.
type Message struct {
	Role  string         `json:"role"`
	Text  string         `json:"text,omitempty"`
	Usage *metrics.Usage `json:"usage,omitempty"`
}

func LoadConversation(path string) ([]Message, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var msgs []Message
	if err := json.Unmarshal(b, &msgs); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return msgs, nil
}

// SaveConversation writes msgs through a temp file so a crash never leaves a
// truncated conversation behind.
func SaveConversation(path string, msgs []Message) error {
	b, err := json.MarshalIndent(msgs, "", " ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Transcript rebuilds a text-only transcript from msgs. Messages with an
// unknown role or no text are skipped.
func Transcript(msgs []Message) *transcript.Transcript {
	tr := transcript.New()
	for _, m := range msgs {
		if m.Text == "" {
			continue
		}
		switch transcript.Role(m.Role) {
		case transcript.RoleUser:
			tr.Append(transcript.UserText(m.Text))
		case transcript.RoleAssistant:
			tr.Append(transcript.AssistantText(m.Text))
		}
	}
	return tr
}

// TotalUsage sums the usage recorded on msgs.
func TotalUsage(msgs []Message) metrics.Usage {
	var total metrics.Usage
	for _, m := range msgs {
		if m.Usage != nil {
			total.Add(*m.Usage)
		}
	}
	return total
}
