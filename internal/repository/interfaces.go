package repository

import (
	"context"

	"github.com/rpggio/tallyroom/internal/domain/activity"
	"github.com/rpggio/tallyroom/internal/domain/counter"
)

// RoomRepository manages room document persistence
type RoomRepository interface {
	Load(ctx context.Context, roomKey string) (*counter.RoomState, error)
	Persist(ctx context.Context, roomKey string, state *counter.RoomState) error
}

// RecoverableRoomRepository can fall back to a room's last known good document
type RecoverableRoomRepository interface {
	RoomRepository
	Recover(ctx context.Context, roomKey string) (*counter.RoomState, bool)
}

// ActivityRepository manages activity journal persistence
type ActivityRepository interface {
	Log(ctx context.Context, roomKey string, entry *activity.ActivityEntry) error
	List(ctx context.Context, roomKey string, opts activity.ListActivityOptions) ([]activity.ActivityEntry, error)
}
