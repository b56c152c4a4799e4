package transcript

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
)

func decodeMessage(t *testing.T, raw string) *anthropic.Message {
	t.Helper()
	var msg anthropic.Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatalf("decode message: %v", err)
	}
	return &msg
}

func TestFromMessage_PreservesOrder(t *testing.T) {
	msg := decodeMessage(t, `{
		"id": "msg_1", "type": "message", "role": "assistant", "model": "m",
		"stop_reason": "tool_use",
		"content": [
			{"type": "text", "text": "Checking."},
			{"type": "tool_use", "id": "tu_1", "name": "lookup", "input": {"x": 1}},
			{"type": "tool_use", "id": "tu_2", "name": "noargs", "input": {}}
		],
		"usage": {"input_tokens": 5, "output_tokens": 3}
	}`)

	turn, err := FromMessage(msg)
	if err != nil {
		t.Fatalf("FromMessage: %v", err)
	}
	if turn.Role != RoleAssistant || len(turn.Content) != 3 {
		t.Fatalf("unexpected turn: %+v", turn)
	}
	if turn.Content[0].Text == nil || turn.Content[0].Text.Text != "Checking." {
		t.Fatalf("first block: %+v", turn.Content[0])
	}
	uses := turn.ToolUses()
	if uses[0].ID != "tu_1" || uses[0].Name != "lookup" {
		t.Fatalf("tool use: %+v", uses[0])
	}
	var in map[string]int
	if err := json.Unmarshal(uses[0].Input, &in); err != nil || in["x"] != 1 {
		t.Fatalf("input not carried: %s (%v)", uses[0].Input, err)
	}
	if string(uses[1].Input) != "{}" {
		t.Fatalf("empty input = %s", uses[1].Input)
	}
}

func TestFromMessage_Nil(t *testing.T) {
	if turn, err := FromMessage(nil); err != nil || turn.Role != RoleAssistant || len(turn.Content) != 0 {
		t.Fatalf("unexpected turn: %+v (%v)", turn, err)
	}
}

func TestFromMessage_RejectsUnsupportedBlocks(t *testing.T) {
	msg := decodeMessage(t, `{
		"id": "msg_2", "type": "message", "role": "assistant", "model": "m",
		"stop_reason": "end_turn",
		"content": [
			{"type": "thinking", "thinking": "hmm", "signature": "sig"},
			{"type": "text", "text": "Answer."}
		],
		"usage": {"input_tokens": 1, "output_tokens": 1}
	}`)
	turn, err := FromMessage(msg)
	if !errors.Is(err, ErrUnsupportedBlock) {
		t.Fatalf("want ErrUnsupportedBlock, got %v", err)
	}
	if !strings.Contains(err.Error(), "thinking") {
		t.Fatalf("error should name the block type: %v", err)
	}
	if len(turn.Content) != 0 {
		t.Fatalf("no partial turn on error: %+v", turn)
	}
}

func TestToParam(t *testing.T) {
	user := Turn{Role: RoleUser, Content: []Block{ToolResult("tu_1", "Error: nope", true), Text("more")}}
	p := user.ToParam()
	if p.Role != anthropic.MessageParamRoleUser || len(p.Content) != 2 {
		t.Fatalf("unexpected param: %+v", p)
	}
	tr := p.Content[0].OfToolResult
	if tr == nil || tr.ToolUseID != "tu_1" || !tr.IsError.Value {
		t.Fatalf("tool result not translated: %+v", p.Content[0])
	}

	asst := Turn{Role: RoleAssistant, Content: []Block{ToolUse("tu_1", "lookup", nil)}}
	ap := asst.ToParam()
	if ap.Role != anthropic.MessageParamRoleAssistant {
		t.Fatalf("role = %s", ap.Role)
	}
	tu := ap.Content[0].OfToolUse
	if tu == nil || tu.Name != "lookup" {
		t.Fatalf("tool use not translated: %+v", ap.Content[0])
	}
	if raw, ok := tu.Input.(json.RawMessage); !ok || string(raw) != "{}" {
		t.Fatalf("nil input should become {}: %#v", tu.Input)
	}

	params := ToParams([]Turn{UserText("a"), AssistantText("b")})
	if len(params) != 2 || params[1].Role != anthropic.MessageParamRoleAssistant {
		t.Fatalf("ToParams = %+v", params)
	}
}
