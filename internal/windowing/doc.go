// Package windowing trims a transcript to an estimated input-token budget
// before it is sent, keeping every tool_use turn next to the turn carrying its
// results.
package windowing
