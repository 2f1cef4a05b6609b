// Package library composes live backend entities with persisted cache
// records.
//
// Every cache record is served by one Branch held in the Library arena and
// addressed by record id. A Branch reads through its record and its primary
// backend, forwards demand for attributes the record does not hold to the
// primary, and persists each fresher Valid value the primary produces.
// Indexed records have no backend of their own; they are the source of truth
// and are edited through Branch.Write.
//
// Backends embed Remote to get a store and request mapper wired to their
// fetch groups, and register an Expander per token kind so records can
// re-create them after a restart.
package library
