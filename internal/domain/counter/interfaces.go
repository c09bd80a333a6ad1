package counter

import (
	"context"

	"github.com/rpggio/tallyroom/internal/domain/activity"
)

// Repository loads and persists room documents.
type Repository interface {
	Load(ctx context.Context, roomKey string) (*RoomState, error)
	Persist(ctx context.Context, roomKey string, state *RoomState) error
}

// Journal records room events.
type Journal interface {
	LogActivity(ctx context.Context, roomKey string, entry *activity.ActivityEntry) error
}

// Mirror copies persisted documents somewhere off the host.
type Mirror interface {
	Mirror(ctx context.Context, roomKey string, state *RoomState) error
}

// Observer receives operation outcomes.
type Observer interface {
	ObserveIncrement(outcome string)
	ObserveDelete(outcome string)
	ObserveImport(outcome string)
}

// Outcome labels reported to an Observer.
const (
	OutcomeOK          = "ok"
	OutcomeRateLimited = "rate_limited"
	OutcomeNotFound    = "not_found"
	OutcomeInvalid     = "invalid"
	OutcomeError       = "error"
)
