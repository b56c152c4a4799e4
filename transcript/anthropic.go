package transcript

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
)

// emptyInput stands in for a tool_use whose input the endpoint left out.
var emptyInput = json.RawMessage(`{}`)

// ErrUnsupportedBlock is returned for response blocks the transcript cannot
// carry, such as thinking or server tool blocks.
var ErrUnsupportedBlock = errors.New("unsupported content block")

// FromMessage converts an endpoint response into an assistant turn, keeping
// text and tool_use blocks in their original order. Any other block kind is
// an error rather than being dropped, so a turn is never rewritten.
func FromMessage(msg *anthropic.Message) (Turn, error) {
	turn := Turn{Role: RoleAssistant}
	if msg == nil {
		return turn, nil
	}
	for _, block := range msg.Content {
		switch v := block.AsAny().(type) {
		case anthropic.TextBlock:
			turn.Content = append(turn.Content, Text(v.Text))
		case anthropic.ToolUseBlock:
			input := json.RawMessage(v.JSON.Input.Raw())
			if len(input) == 0 {
				input = emptyInput
			}
			turn.Content = append(turn.Content, ToolUse(v.ID, v.Name, input))
		default:
			return Turn{}, fmt.Errorf("%w: %q", ErrUnsupportedBlock, block.Type)
		}
	}
	return turn, nil
}

// ToParam converts a turn into the endpoint request shape.
func (t Turn) ToParam() anthropic.MessageParam {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(t.Content))
	for _, b := range t.Content {
		switch {
		case b.Text != nil:
			blocks = append(blocks, anthropic.NewTextBlock(b.Text.Text))
		case b.ToolUse != nil:
			input := b.ToolUse.Input
			if len(input) == 0 {
				input = emptyInput
			}
			blocks = append(blocks, anthropic.ContentBlockParamUnion{OfToolUse: &anthropic.ToolUseBlockParam{
				ID:    b.ToolUse.ID,
				Name:  b.ToolUse.Name,
				Input: input,
			}})
		case b.ToolResult != nil:
			blocks = append(blocks, anthropic.NewToolResultBlock(b.ToolResult.ToolUseID, b.ToolResult.Content, b.ToolResult.IsError))
		}
	}
	if t.Role == RoleAssistant {
		return anthropic.NewAssistantMessage(blocks...)
	}
	return anthropic.NewUserMessage(blocks...)
}

// ToParams converts turns in order.
func ToParams(turns []Turn) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(turns))
	for _, t := range turns {
		out = append(out, t.ToParam())
	}
	return out
}
