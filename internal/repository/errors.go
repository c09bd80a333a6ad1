package repository

import "github.com/rpggio/tallyroom/internal/domain/counter"

// ErrInvalidInput is returned when input validation fails. It is the
// counter sentinel so callers mapping service errors match it too.
var ErrInvalidInput = counter.ErrInvalidInput
