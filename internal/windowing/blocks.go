package windowing

import (
	"log/slog"

	"github.com/petasbytes/toolchat/transcript"
)

// GroupKind denotes the atomic unit type when preparing a send window.
type GroupKind int

const (
	GroupSingleton GroupKind = iota
	GroupPair
)

// Group describes a contiguous span of turns [Start, End) in the original slice.
type Group struct {
	Kind  GroupKind
	Start int // inclusive
	End   int // exclusive
}

// GroupTurns groups turns into atomic units that preserve tool-use pairs.
// Invariants:
// - A pair is exactly two adjacent turns: assistant(tool_use+...) then user(tool_result...).
// - In the user turn, all tool_result blocks come first; text (if any) comes after.
// - Every tool_use id in the assistant turn appears in the leading tool_result
// segment of the following user turn, and no extra ids do.
// - tool_result blocks with is_error=true group the same as successful ones.
func GroupTurns(turns []transcript.Turn) []Group {
	groups := make([]Group, 0, len(turns))
	for i := 0; i < len(turns); {
		t := turns[i]
		if t.Role == transcript.RoleAssistant {
			useIDs := collectToolUseIDs(t)
			if len(useIDs) > 0 {
				if i+1 < len(turns) && turns[i+1].Role == transcript.RoleUser {
					valid, resultIDs := leadingToolResultIDs(turns[i+1])
					if valid && sameIDs(resultIDs, useIDs) {
						groups = append(groups, Group{Kind: GroupPair, Start: i, End: i + 2})
						i += 2
						continue
					}
					reason := "id_mismatch"
					if !valid {
						reason = "ordering_invalid"
					}
					slog.Debug("windowing: exclude pair", "reason", reason, "idx", i)
				} else {
					slog.Debug("windowing: exclude pair", "reason", "not_followed_by_user", "idx", i)
				}
			}
		}
		groups = append(groups, Group{Kind: GroupSingleton, Start: i, End: i + 1})
		i++
	}
	return groups
}

func collectToolUseIDs(t transcript.Turn) map[string]struct{} {
	ids := make(map[string]struct{})
	for _, tu := range t.ToolUses() {
		if tu.ID != "" {
			ids[tu.ID] = struct{}{}
		}
	}
	return ids
}

// leadingToolResultIDs returns the ids of the leading tool_result segment of a
// user turn. valid is false when a tool_result follows any other block.
func leadingToolResultIDs(t transcript.Turn) (valid bool, ids map[string]struct{}) {
	ids = make(map[string]struct{})
	seenOther := false
	for _, b := range t.Content {
		if b.ToolResult != nil {
			if seenOther {
				return false, ids
			}
			if b.ToolResult.ToolUseID != "" {
				ids[b.ToolResult.ToolUseID] = struct{}{}
			}
			continue
		}
		seenOther = true
	}
	return true, ids
}

func sameIDs(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for id := range a {
		if _, ok := b[id]; !ok {
			return false
		}
	}
	return true
}
