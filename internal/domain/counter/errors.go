package counter

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidState indicates a nil document was handed to persistence.
	ErrInvalidState = errors.New("invalid room state")
	// ErrParseFailure indicates a stored document could not be read or decoded.
	// Stores recover from it locally and never return it from Load.
	ErrParseFailure = errors.New("room document unreadable")
	// ErrRateLimited indicates the room is inside its cooldown window.
	ErrRateLimited = errors.New("rate limited")
	// ErrNotFound indicates the log entry doesn't exist.
	ErrNotFound = errors.New("log entry not found")
	// ErrInvalidDocument indicates an imported payload is not valid JSON.
	ErrInvalidDocument = errors.New("invalid room document")
	// ErrInvalidInput indicates invalid operation input.
	ErrInvalidInput = errors.New("invalid input")
)

// RateLimitedError carries the wait before the room accepts an increment.
type RateLimitedError struct {
	RemainingSeconds int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited: retry in %d seconds", e.RemainingSeconds)
}

func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}
