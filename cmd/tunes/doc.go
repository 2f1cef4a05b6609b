// Package main hosts the tunes CLI entrypoint and command graph.
//
// Every library command opens the cache database, registers the configured
// backends and holds the library lock for as long as it runs. Commands that
// only read records take the lock shared so several can run side by side;
// everything that may persist fetched attributes takes it exclusively.
//
// Keep this package thin: behavior belongs in internal/library and the
// backends, commands only translate arguments and render results.
package main
