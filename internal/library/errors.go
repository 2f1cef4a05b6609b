package library

import "errors"

var (
	// ErrNoBackend is returned when an operation needs a live backend and the
	// entity has none.
	ErrNoBackend = errors.New("no live backend")
	// ErrUnimportable is returned when content cannot be imported into the
	// target playlist.
	ErrUnimportable = errors.New("content cannot be imported")
	// ErrUnsupported is returned for token kinds or operations a backend does
	// not provide.
	ErrUnsupported = errors.New("operation not supported")
	// ErrUndeletable is returned when the backing object cannot be deleted.
	ErrUndeletable = errors.New("entity cannot be deleted")
	// ErrNotFound is returned when a reference resolves to nothing.
	ErrNotFound = errors.New("entity not found")
	// ErrEmptyImport is returned when an import names no content.
	ErrEmptyImport = errors.New("nothing to import")
)
