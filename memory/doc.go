// Package memory provides minimal conversation persistence for the CLI.
//
// Persistence model:
//   - Only text messages are stored (role + text), plus the usage of each
//     assistant reply. Tool rounds are transient.
//   - The orchestrator never touches this; the CLI loads it into a
//     transcript before each call and saves after.
package memory
