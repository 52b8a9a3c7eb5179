package master

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound reports that the master holds no document for an identity.
	ErrNotFound = errors.New("master: not found")
	// ErrInvalidArgument reports a malformed request (zero ids, bad paging).
	ErrInvalidArgument = errors.New("master: invalid argument")
)

// NotFound wraps ErrNotFound with the identity that was looked up.
func NotFound(id fmt.Stringer) error {
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}

// IsNotFound is shorthand for errors.Is(err, ErrNotFound).
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
