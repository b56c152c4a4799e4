package windowing

import (
	"log/slog"

	"github.com/petasbytes/toolchat/transcript"
)

// Stats summarizes the result of window preparation.
//
// Fields:
// - Total: estimated tokens for included groups only.
// - Budget: the input token budget used.
// - IncludedGroups: number of groups included.
// - SkippedGroups: total groups minus IncludedGroups.
// - OverBudgetNewest: true when the newest single group alone exceeds Budget,
// or when no user-led span fits.
type Stats struct {
	Total            int
	Budget           int
	IncludedGroups   int
	SkippedGroups    int
	OverBudgetNewest bool
}

// PrepareSendWindow returns a suffix of turns (oldest→newest) that fits within
// budget using the TokenCounter, without splitting groups.
//
// Rules:
// - Include whole groups scanning newest→oldest while total ≤ budget.
// - Drop included groups from the front until the window opens with a user turn.
// - If the newest group alone exceeds budget, return an empty window and set OverBudgetNewest.
// - If budget ≤ 0, return an empty window (OverBudgetNewest set when any groups exist).
func PrepareSendWindow(turns []transcript.Turn, budget int, c TokenCounter) ([]transcript.Turn, Stats) {
	if len(turns) == 0 {
		return nil, Stats{Budget: budget}
	}

	groups := GroupTurns(turns)
	overBudget := Stats{Budget: budget, SkippedGroups: len(groups), OverBudgetNewest: true}

	if budget <= 0 {
		return nil, overBudget
	}

	costs := make([]int, len(groups))
	for i, g := range groups {
		costs[i] = c.CountGroup(g, turns)
	}

	total := 0
	startIdx := len(groups)
	for gi := len(groups) - 1; gi >= 0; gi-- {
		if startIdx == len(groups) && costs[gi] > budget {
			slog.Debug("windowing: newest group over budget", "budget", budget, "cost", costs[gi])
			return nil, overBudget
		}
		if total+costs[gi] > budget {
			break
		}
		total += costs[gi]
		startIdx = gi
	}

	// The endpoint rejects a conversation that opens with the assistant.
	for startIdx < len(groups) && turns[groups[startIdx].Start].Role != transcript.RoleUser {
		total -= costs[startIdx]
		startIdx++
	}
	if startIdx == len(groups) {
		slog.Debug("windowing: no user-led span within budget", "budget", budget)
		return nil, overBudget
	}

	included := len(groups) - startIdx
	return turns[groups[startIdx].Start:], Stats{
		Total:          total,
		Budget:         budget,
		IncludedGroups: included,
		SkippedGroups:  len(groups) - included,
	}
}
