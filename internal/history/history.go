// Package history keeps the append-only record of tool invocations.
//
// The record is informational: nothing in the orchestration loop reads it back
// to make decisions.
package history

import (
	"context"
	"encoding/json"
	"time"
	"unicode/utf8"
)

// MaxResultRunes bounds the result text kept per entry.
const MaxResultRunes = 500

// Entry is one tool invocation, successful or not.
type Entry struct {
	Time      time.Time       `json:"timestamp"`
	SessionID string          `json:"session_id,omitempty"`
	Tool      string          `json:"tool"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Result    string          `json:"result"`
	Failed    bool            `json:"failed,omitempty"`
}

// Recorder receives entries as they are appended. Implementations must be
// safe for use by concurrent sessions.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// Truncate clamps s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

// Log is a per-session append-only list of entries. It is owned by a single
// call's goroutine and is not safe for concurrent use.
type Log struct {
	entries []Entry
}

// Append truncates e.Result and adds e to the end.
func (l *Log) Append(e Entry) Entry {
	e.Result = Truncate(e.Result, MaxResultRunes)
	l.entries = append(l.entries, e)
	return e
}

// Entries returns a copy of the log, oldest first.
func (l *Log) Entries() []Entry {
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *Log) Len() int { return len(l.entries) }
