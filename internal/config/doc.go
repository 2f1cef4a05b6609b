// Package config loads, normalizes, and validates tunes configuration.
//
// It reads TOML from the user config path (or tunes.toml in the working
// directory), applies defaults, expands ~ in paths, pulls the streaming token
// from TUNES_STREAMING_TOKEN when the file leaves it empty, and rejects values
// that would make the library unusable. CreateSample writes an annotated
// starting point for new installations.
package config
