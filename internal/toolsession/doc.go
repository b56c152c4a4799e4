// Package toolsession manages the lifecycle of one MCP tool-server connection
// per orchestrated call: spawn, handshake, tool discovery, bounded tool
// invocation and teardown.
//
// Invariants:
//   - Open never returns a half-open session; on failure the transport is closed.
//   - Invoke never returns an error; failures become "Error: ..." result text so
//     the model can react to them.
//   - Close is idempotent and safe to defer on every exit path.
package toolsession
