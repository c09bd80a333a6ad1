package mocks

import (
	"context"

	"github.com/rpggio/tallyroom/internal/domain/activity"
	"github.com/rpggio/tallyroom/internal/domain/counter"
	"github.com/stretchr/testify/mock"
)

// RoomRepository is a mock for repository.RoomRepository.
type RoomRepository struct {
	mock.Mock
}

func (m *RoomRepository) Load(ctx context.Context, roomKey string) (*counter.RoomState, error) {
	args := m.Called(ctx, roomKey)
	if state, ok := args.Get(0).(*counter.RoomState); ok {
		return state, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *RoomRepository) Persist(ctx context.Context, roomKey string, state *counter.RoomState) error {
	args := m.Called(ctx, roomKey, state)
	return args.Error(0)
}

// ActivityRepository is a mock for repository.ActivityRepository.
type ActivityRepository struct {
	mock.Mock
}

func (m *ActivityRepository) Log(ctx context.Context, roomKey string, entry *activity.ActivityEntry) error {
	args := m.Called(ctx, roomKey, entry)
	return args.Error(0)
}

func (m *ActivityRepository) List(ctx context.Context, roomKey string, opts activity.ListActivityOptions) ([]activity.ActivityEntry, error) {
	args := m.Called(ctx, roomKey, opts)
	if list, ok := args.Get(0).([]activity.ActivityEntry); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

// Journal is a mock for counter.Journal.
type Journal struct {
	mock.Mock
}

func (m *Journal) LogActivity(ctx context.Context, roomKey string, entry *activity.ActivityEntry) error {
	args := m.Called(ctx, roomKey, entry)
	return args.Error(0)
}

// Mirror is a mock for counter.Mirror.
type Mirror struct {
	mock.Mock
}

func (m *Mirror) Mirror(ctx context.Context, roomKey string, state *counter.RoomState) error {
	args := m.Called(ctx, roomKey, state)
	return args.Error(0)
}
