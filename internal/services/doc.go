// Package services defines shared utilities consumed by backends and the CLI.
//
// Key responsibilities:
//   - Context helpers that stamp library record IDs, backend kinds, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper so failures reported by
//     backends can be classified (missing source, broken tool, timeout) and
//     turned into operator hints.
package services
