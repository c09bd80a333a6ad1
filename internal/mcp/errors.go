package mcp

import (
	"errors"
	"fmt"

	"github.com/rpggio/tallyroom/internal/domain/counter"
)

// ToolError is returned from tool handlers and reported to the client as a
// tool result with IsError set.
type ToolError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// MapError maps counter errors to tool errors. Unknown errors pass through.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	var limited *counter.RateLimitedError
	switch {
	case errors.As(err, &limited):
		return &ToolError{
			Code:    "RATE_LIMITED",
			Message: fmt.Sprintf("room is cooling down, retry in %d seconds", limited.RemainingSeconds),
		}
	case errors.Is(err, counter.ErrNotFound):
		return &ToolError{Code: "ENTRY_NOT_FOUND", Message: err.Error()}
	case errors.Is(err, counter.ErrInvalidInput):
		return &ToolError{Code: "INVALID_INPUT", Message: err.Error()}
	default:
		return err
	}
}
