// Package cachedb persists library cache records in SQLite.
//
// A record is the durable half of a library entity: its identity (a UUID),
// the backend token it was created from, the content mask of categories it
// fully caches, secondary backend tokens, and one row per Valid attribute with
// the version it was fetched at. Loading a snapshot yields Valid entries only.
//
// Writes go through Store.Update, which runs a callback inside a transaction
// that is committed or rolled back as a unit and retried while SQLite reports
// the database busy. The callback must use only the Tx it is given.
package cachedb
