package windowing_test

import (
	"encoding/json"

	"github.com/petasbytes/toolchat/internal/windowing"
	"github.com/petasbytes/toolchat/transcript"
)

func T(text string) transcript.Block { return transcript.Text(text) }

// TU is a tool_use with no name or input, so it costs only the overhead.
func TU(id string) transcript.Block { return transcript.ToolUse(id, "", nil) }

func TUArgs(id, name, input string) transcript.Block {
	return transcript.ToolUse(id, name, json.RawMessage(input))
}

func TR(id string, isErr bool) transcript.Block { return transcript.ToolResult(id, "", isErr) }

func TRString(id, s string) transcript.Block { return transcript.ToolResult(id, s, false) }

func Asst(blocks ...transcript.Block) transcript.Turn {
	return transcript.Turn{Role: transcript.RoleAssistant, Content: blocks}
}

func User(blocks ...transcript.Block) transcript.Turn {
	return transcript.Turn{Role: transcript.RoleUser, Content: blocks}
}

func groupsEqual(got, want []windowing.Group) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
