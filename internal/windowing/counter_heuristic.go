package windowing

import (
	"unicode/utf8"

	"github.com/petasbytes/toolchat/transcript"
)

// TokenCounter estimates input-token cost for turns or groups.
type TokenCounter interface {
	CountTurn(t transcript.Turn) int
	CountGroup(g Group, all []transcript.Turn) int
}

// HeuristicCounter is the default deterministic estimator.
// Rules:
// - text blocks: rune count of the text
// - tool_result blocks: rune count of the content
// - tool_use blocks: rune count of the name plus the raw input
// Every block adds a small fixed overhead.
type HeuristicCounter struct{}

// Fixed per-block overhead; changing this requires updating the guard test.
const blockOverhead = 4

func (HeuristicCounter) CountTurn(t transcript.Turn) int {
	total := 0
	for _, b := range t.Content {
		total += countBlock(b)
	}
	return total
}

func (h HeuristicCounter) CountGroup(g Group, all []transcript.Turn) int {
	total := 0
	for i := g.Start; i < g.End && i < len(all); i++ {
		total += h.CountTurn(all[i])
	}
	return total
}

func countBlock(b transcript.Block) int {
	switch {
	case b.Text != nil:
		return utf8.RuneCountInString(b.Text.Text) + blockOverhead
	case b.ToolResult != nil:
		return utf8.RuneCountInString(b.ToolResult.Content) + blockOverhead
	case b.ToolUse != nil:
		return utf8.RuneCountInString(b.ToolUse.Name) + utf8.RuneCount(b.ToolUse.Input) + blockOverhead
	}
	return blockOverhead
}
