package lockedfile

import (
	"errors"
	"fmt"
)

// Errors.
var (
	// ErrLockTimeout is returned when the inter-process lock could not be
	// acquired within the retry budget.
	ErrLockTimeout = errors.New("lock acquisition timed out")

	// ErrLockCompromised is returned when a held inter-process lock turns out
	// to have been reclaimed by another process mid-hold.
	ErrLockCompromised = errors.New("lock compromised")
)

// ParseError reports a state file whose content is not valid JSON for the
// requested type. The offending path is carried so callers can surface it.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
