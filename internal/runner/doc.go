// Package runner drives one tool-augmented completion per call: it opens a
// tool session, exchanges messages with the Anthropic Messages API and runs
// every requested tool until the model produces a final answer.
//
// Invariants:
//   - a response with N tool_use blocks is followed by exactly one user turn
//     with N tool_result blocks, same ids, same order.
//   - tools run sequentially in block order; failures become is_error results
//     and the loop continues.
//   - the session is closed on every exit path.
//
// Flow:
//
//	user(text) -> assistant(tool_use) -> user(tool_result) -> ... -> assistant(text)
//
// Failures are classified into a Kind; Chat renders them as display text.
package runner
