package attributes

import (
	"errors"
	"fmt"
)

var (
	// ErrSubscriptionClosed is returned by Next once a subscription is closed.
	ErrSubscriptionClosed = errors.New("subscription closed")
	// ErrMapperClosed is returned when a closed mapper is asked to do work.
	ErrMapperClosed = errors.New("request mapper closed")
	// ErrInvalidRelation reports a malformed key to group relation.
	ErrInvalidRelation = errors.New("invalid request relation")
)

// FetchError records a failed request group fetch in the state of its keys.
type FetchError struct {
	Group Group
	Err   error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("fetch %s failed", e.Group)
	}
	return fmt.Sprintf("fetch %s: %v", e.Group, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
