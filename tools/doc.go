// Package tools describes the callable tools a session exposes to the model.
//
// Includes:
//   - Descriptor: name, description, JSON input schema as the Messages API expects it.
//   - Schema translation from a tool-server's raw JSON Schema (1:1, order preserving).
//   - Union: descriptor list -> []anthropic.ToolUnionParam for the request.
package tools
