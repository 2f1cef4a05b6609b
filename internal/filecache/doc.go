// Package filecache is the explicit cache service handed to backends.
//
// A Cache maps string keys to JSON values and persists them atomically to a
// single file. It has no expiry: callers fold whatever freshness they need
// into the key, such as a file path plus its modification time.
package filecache
