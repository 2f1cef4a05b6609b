package cachedb

import (
	"errors"
	"time"

	"tunes/internal/attributes"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// Kind distinguishes track records from playlist records.
type Kind string

const (
	KindTrack    Kind = "track"
	KindPlaylist Kind = "playlist"
)

// TokenRef identifies a backend object that can be re-created on demand.
type TokenRef struct {
	Kind string
	ID   string
}

// IsZero reports whether the reference names no backend.
func (t TokenRef) IsZero() bool { return t.Kind == "" }

// Record is one persisted cache record.
type Record struct {
	ID          string
	Kind        Kind
	Token       TokenRef
	Indexed     bool
	ContentType string
	CacheMask   attributes.ContentMask
	Secondaries []TokenRef
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
