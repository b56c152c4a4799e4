// Package metrics accumulates token usage and records OpenTelemetry instruments
// for orchestrated calls.
package metrics

import "github.com/anthropics/anthropic-sdk-go"

// Usage is the token accounting for one orchestrated call.
// Fields only grow; a fresh zero value starts every call.
type Usage struct {
	InputTokens      int64 `json:"input_tokens"`
	OutputTokens     int64 `json:"output_tokens"`
	CacheWriteTokens int64 `json:"cache_creation_input_tokens"`
	CacheReadTokens  int64 `json:"cache_read_input_tokens"`
}

// FromAnthropic reads the four counters of a response. Absent fields decode
// as zero; negative values are clamped to zero.
func FromAnthropic(u anthropic.Usage) Usage {
	return Usage{
		InputTokens:      nonNeg(u.InputTokens),
		OutputTokens:     nonNeg(u.OutputTokens),
		CacheWriteTokens: nonNeg(u.CacheCreationInputTokens),
		CacheReadTokens:  nonNeg(u.CacheReadInputTokens),
	}
}

// Add folds one round into u.
func (u *Usage) Add(round Usage) {
	u.InputTokens += nonNeg(round.InputTokens)
	u.OutputTokens += nonNeg(round.OutputTokens)
	u.CacheWriteTokens += nonNeg(round.CacheWriteTokens)
	u.CacheReadTokens += nonNeg(round.CacheReadTokens)
}

// Total is input plus output tokens.
func (u Usage) Total() int64 { return u.InputTokens + u.OutputTokens }

func (u Usage) IsZero() bool { return u == Usage{} }

func nonNeg(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
