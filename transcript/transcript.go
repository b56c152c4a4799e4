package transcript

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Role tags the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

var (
	ErrEmpty        = errors.New("transcript is empty")
	ErrNotUserFinal = errors.New("transcript must end with a user turn")
)

// TextBlock is plain text authored by either side.
type TextBlock struct {
	Text string `json:"text"`
}

// ToolUseBlock is a model request to run one tool.
type ToolUseBlock struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResultBlock answers the ToolUseBlock with the same id.
type ToolResultBlock struct {
	ToolUseID string `json:"tool_use_id"`
	Content   string `json:"content"`
	IsError   bool   `json:"is_error,omitempty"`
}

// Block is a tagged union; exactly one field is non-nil.
type Block struct {
	Text       *TextBlock       `json:"text,omitempty"`
	ToolUse    *ToolUseBlock    `json:"tool_use,omitempty"`
	ToolResult *ToolResultBlock `json:"tool_result,omitempty"`
}

func Text(s string) Block { return Block{Text: &TextBlock{Text: s}} }

func ToolUse(id, name string, input json.RawMessage) Block {
	return Block{ToolUse: &ToolUseBlock{ID: id, Name: name, Input: input}}
}

func ToolResult(toolUseID, content string, isError bool) Block {
	return Block{ToolResult: &ToolResultBlock{ToolUseID: toolUseID, Content: content, IsError: isError}}
}

// variants reports how many concrete variants are set.
func (b Block) variants() int {
	n := 0
	if b.Text != nil {
		n++
	}
	if b.ToolUse != nil {
		n++
	}
	if b.ToolResult != nil {
		n++
	}
	return n
}

// Turn is one role-tagged entry in a transcript.
type Turn struct {
	Role    Role    `json:"role"`
	Content []Block `json:"content"`
}

// UserText returns a user turn holding a single text block.
func UserText(s string) Turn {
	return Turn{Role: RoleUser, Content: []Block{Text(s)}}
}

// AssistantText returns an assistant turn holding a single text block.
func AssistantText(s string) Turn {
	return Turn{Role: RoleAssistant, Content: []Block{Text(s)}}
}

// ToolUses returns the tool_use blocks of t in order.
func (t Turn) ToolUses() []ToolUseBlock {
	var out []ToolUseBlock
	for _, b := range t.Content {
		if b.ToolUse != nil {
			out = append(out, *b.ToolUse)
		}
	}
	return out
}

// JoinedText concatenates every text block of t in order, with no separator.
func (t Turn) JoinedText() string {
	var sb strings.Builder
	for _, b := range t.Content {
		if b.Text != nil {
			sb.WriteString(b.Text.Text)
		}
	}
	return sb.String()
}

// Transcript is an ordered, append-only list of turns.
type Transcript struct {
	turns []Turn
}

// New returns a transcript seeded with turns. The slice is copied.
func New(turns ...Turn) *Transcript {
	t := &Transcript{turns: make([]Turn, 0, len(turns))}
	t.turns = append(t.turns, turns...)
	return t
}

// Append adds turns at the end.
func (t *Transcript) Append(turns ...Turn) {
	t.turns = append(t.turns, turns...)
}

// Len returns the number of turns.
func (t *Transcript) Len() int {
	if t == nil {
		return 0
	}
	return len(t.turns)
}

// Turns returns a copy of the turns, oldest first.
func (t *Transcript) Turns() []Turn {
	if t == nil {
		return nil
	}
	out := make([]Turn, len(t.turns))
	copy(out, t.turns)
	return out
}

// Last returns the newest turn.
func (t *Transcript) Last() (Turn, bool) {
	if t.Len() == 0 {
		return Turn{}, false
	}
	return t.turns[len(t.turns)-1], true
}

// Validate checks that t can start an orchestrated call.
func (t *Transcript) Validate() error {
	last, ok := t.Last()
	if !ok {
		return ErrEmpty
	}
	if last.Role != RoleUser {
		return ErrNotUserFinal
	}
	for i, turn := range t.turns {
		if turn.Role != RoleUser && turn.Role != RoleAssistant {
			return fmt.Errorf("turn %d: unknown role %q", i, turn.Role)
		}
		for j, b := range turn.Content {
			if b.variants() != 1 {
				return fmt.Errorf("turn %d block %d: want exactly one variant, got %d", i, j, b.variants())
			}
		}
	}
	return nil
}
