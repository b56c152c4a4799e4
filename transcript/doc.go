// Package transcript defines the caller-owned conversation model.
//
// Invariants:
//   - A Transcript only grows by appending; turns are never reordered or rewritten.
//   - Every Block carries exactly one concrete variant.
//   - A user turn produced by tool execution holds one tool_result per tool_use of the
//     preceding assistant turn, in the same order.
package transcript
