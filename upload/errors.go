package upload

import (
	"errors"
	"fmt"
)

var (
	// ErrSourceUnreadable means the local file could not be opened or read.
	ErrSourceUnreadable = errors.New("source unreadable")
	// ErrTransportFailure means the request for a chunk failed.
	ErrTransportFailure = errors.New("transport failure")
	// ErrProtocolViolation means the server answered with a missing or different resource id.
	ErrProtocolViolation = errors.New("protocol violation")
)

// Error describes why an upload stopped.
// errors.Is matches Kind, errors.As reaches the underlying cause.
type Error struct {
	Kind error
	// Chunk is the 1-based index of the chunk being processed, 0 before the first one.
	Chunk int
	Err   error
}

func newError(kind error, chunk int, err error) *Error {
	return &Error{Kind: kind, Chunk: chunk, Err: err}
}

func (e *Error) Error() string {
	if e.Chunk == 0 {
		return fmt.Sprintf("%s: %s", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: chunk %d: %s", e.Kind, e.Chunk, e.Err)
}

// Is ...
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

// Unwrap ...
func (e *Error) Unwrap() error {
	return e.Err
}
