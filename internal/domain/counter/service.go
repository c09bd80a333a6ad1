package counter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rpggio/tallyroom/internal/domain/activity"
)

// Service owns every mutation of room documents.
type Service struct {
	repo     Repository
	journal  Journal
	mirror   Mirror
	observer Observer
	logger   *slog.Logger
	now      func() time.Time
	locks    *roomLocks
}

// NewService creates a new counter service.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		logger: slog.New(slog.DiscardHandler),
		now:    time.Now,
		locks:  newRoomLocks(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the current document for a room, creating it on first access.
func (s *Service) Get(ctx context.Context, roomKey string) (*RoomState, error) {
	if strings.TrimSpace(roomKey) == "" {
		return nil, ErrInvalidInput
	}
	unlock := s.locks.lock(roomKey)
	defer unlock()

	state, err := s.repo.Load(ctx, roomKey)
	if err != nil {
		return nil, fmt.Errorf("loading room: %w", err)
	}
	return state, nil
}

// Export returns the room document as persisted.
func (s *Service) Export(ctx context.Context, roomKey string) (*RoomState, error) {
	return s.Get(ctx, roomKey)
}

// ButtonState derives whether the room currently accepts an increment.
func (s *Service) ButtonState(ctx context.Context, roomKey string) (ButtonState, error) {
	state, err := s.Get(ctx, roomKey)
	if err != nil {
		return ButtonState{}, err
	}
	elapsed := s.now().UnixMilli() - state.LastIncrementTime
	enabled := elapsed >= RateLimitWindow.Milliseconds()
	bs := ButtonState{
		Enabled:           enabled,
		LastIncrementTime: state.LastIncrementTime,
	}
	if !enabled {
		bs.RemainingSeconds = remainingSeconds(elapsed)
	}
	return bs, nil
}

// Increment adds one to the room count and records the actor in the log.
// Inside the cooldown window it returns a *RateLimitedError and leaves the
// document untouched.
func (s *Service) Increment(ctx context.Context, roomKey, actor string) (*RoomState, error) {
	if strings.TrimSpace(roomKey) == "" {
		return nil, ErrInvalidInput
	}
	actor = strings.TrimSpace(actor)
	if actor == "" {
		actor = DefaultActor
	}

	unlock := s.locks.lock(roomKey)
	defer unlock()

	state, err := s.repo.Load(ctx, roomKey)
	if err != nil {
		s.observeIncrement(OutcomeError)
		return nil, fmt.Errorf("loading room: %w", err)
	}

	now := s.now()
	nowMillis := now.UnixMilli()
	elapsed := nowMillis - state.LastIncrementTime
	if elapsed < RateLimitWindow.Milliseconds() {
		limited := &RateLimitedError{RemainingSeconds: remainingSeconds(elapsed)}
		s.observeIncrement(OutcomeRateLimited)
		s.record(ctx, roomKey, activity.TypeRateLimited, actor, limited.Error(), map[string]any{
			"remaining_seconds": limited.RemainingSeconds,
		})
		return nil, limited
	}

	next := state.clone()
	next.Count++
	next.LastIncrementTime = nowMillis
	entry := LogEntry{
		ID:        strconv.FormatInt(nowMillis, 10),
		Timestamp: now.Format(TimestampLayout),
		Count:     next.Count,
		Username:  actor,
	}
	next.Log = append([]LogEntry{entry}, next.Log...)
	if len(next.Log) > MaxLogEntries {
		next.Log = next.Log[:MaxLogEntries]
	}

	if err := s.repo.Persist(ctx, roomKey, next); err != nil {
		s.observeIncrement(OutcomeError)
		return nil, fmt.Errorf("persisting increment: %w", err)
	}

	s.observeIncrement(OutcomeOK)
	s.afterPersist(ctx, roomKey, next)
	s.record(ctx, roomKey, activity.TypeIncrement, actor, fmt.Sprintf("count is now %d", next.Count), map[string]any{
		"entry_id": entry.ID,
		"count":    next.Count,
	})
	return next, nil
}

// DeleteEntry removes a log entry and re-derives count and the last
// increment time from what remains.
func (s *Service) DeleteEntry(ctx context.Context, roomKey, entryID string) (*RoomState, error) {
	if strings.TrimSpace(roomKey) == "" {
		return nil, ErrInvalidInput
	}
	unlock := s.locks.lock(roomKey)
	defer unlock()

	state, err := s.repo.Load(ctx, roomKey)
	if err != nil {
		s.observeDelete(OutcomeError)
		return nil, fmt.Errorf("loading room: %w", err)
	}

	idx := -1
	for i, entry := range state.Log {
		if entry.ID == entryID {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.observeDelete(OutcomeNotFound)
		return nil, ErrNotFound
	}

	next := state.clone()
	removed := next.Log[idx]
	next.Log = append(next.Log[:idx], next.Log[idx+1:]...)
	next.Count = len(next.Log)
	next.LastIncrementTime = newestEntryTime(next.Log)

	if err := s.repo.Persist(ctx, roomKey, next); err != nil {
		s.observeDelete(OutcomeError)
		return nil, fmt.Errorf("persisting delete: %w", err)
	}

	s.observeDelete(OutcomeOK)
	s.afterPersist(ctx, roomKey, next)
	s.record(ctx, roomKey, activity.TypeEntryDeleted, removed.Username, "deleted entry "+removed.ID, map[string]any{
		"entry_id": removed.ID,
		"count":    next.Count,
	})
	return next, nil
}

// Import replaces the room document with an uploaded one, coerced with the
// same rules Load applies to stored documents. The log is then re-ordered
// and capped, and count and lastIncrementTime are derived from it; the
// uploaded values for those two fields are ignored.
func (s *Service) Import(ctx context.Context, roomKey string, raw []byte) (*RoomState, error) {
	if strings.TrimSpace(roomKey) == "" {
		return nil, ErrInvalidInput
	}
	doc, err := DecodeDocument(raw)
	if err != nil {
		s.observeImport(OutcomeInvalid)
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	next := Normalize(roomKey, doc)
	next.AccessCode = roomKey
	next.rederive()

	unlock := s.locks.lock(roomKey)
	defer unlock()

	if err := s.repo.Persist(ctx, roomKey, next); err != nil {
		s.observeImport(OutcomeError)
		return nil, fmt.Errorf("persisting import: %w", err)
	}

	s.observeImport(OutcomeOK)
	s.afterPersist(ctx, roomKey, next)
	s.record(ctx, roomKey, activity.TypeImport, "", fmt.Sprintf("imported %d log entries", len(next.Log)), map[string]any{
		"count": next.Count,
	})
	return next, nil
}

// Subscribe registers a push subscription for the room. A subscription with
// the same endpoint replaces the earlier one; only the newest
// MaxPushSubscriptions are kept.
func (s *Service) Subscribe(ctx context.Context, roomKey string, sub PushSubscription) (*RoomState, error) {
	if strings.TrimSpace(roomKey) == "" || strings.TrimSpace(sub.Endpoint) == "" {
		return nil, ErrInvalidInput
	}
	unlock := s.locks.lock(roomKey)
	defer unlock()

	state, err := s.repo.Load(ctx, roomKey)
	if err != nil {
		return nil, fmt.Errorf("loading room: %w", err)
	}

	sub.ID = uuid.NewString()
	sub.CreatedAt = s.now().UnixMilli()

	next := state.clone()
	kept := make([]PushSubscription, 0, len(next.PushSubscriptions)+1)
	kept = append(kept, sub)
	for _, existing := range next.PushSubscriptions {
		if existing.Endpoint != sub.Endpoint {
			kept = append(kept, existing)
		}
	}
	if len(kept) > MaxPushSubscriptions {
		kept = kept[:MaxPushSubscriptions]
	}
	next.PushSubscriptions = kept

	if err := s.repo.Persist(ctx, roomKey, next); err != nil {
		return nil, fmt.Errorf("persisting subscription: %w", err)
	}

	s.afterPersist(ctx, roomKey, next)
	s.record(ctx, roomKey, activity.TypeSubscribe, "", "registered push subscription", map[string]any{
		"subscription_id": sub.ID,
	})
	return next, nil
}

func (s *Service) afterPersist(ctx context.Context, roomKey string, state *RoomState) {
	if s.mirror == nil {
		return
	}
	if err := s.mirror.Mirror(ctx, roomKey, state); err != nil {
		s.logger.Warn("mirroring room document failed", "room", roomKey, "error", err)
	}
}

func (s *Service) record(ctx context.Context, roomKey string, typ activity.ActivityType, actor, summary string, details map[string]any) {
	if s.journal == nil {
		return
	}
	entry := &activity.ActivityEntry{
		ActivityType: typ,
		Actor:        actor,
		Summary:      summary,
		CreatedAt:    s.now(),
	}
	if details != nil {
		if data, err := json.Marshal(details); err == nil {
			entry.Details = string(data)
		}
	}
	if err := s.journal.LogActivity(ctx, roomKey, entry); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("recording room activity failed", "room", roomKey, "type", typ, "error", err)
	}
}

func (s *Service) observeIncrement(outcome string) {
	if s.observer != nil {
		s.observer.ObserveIncrement(outcome)
	}
}

func (s *Service) observeDelete(outcome string) {
	if s.observer != nil {
		s.observer.ObserveDelete(outcome)
	}
}

func (s *Service) observeImport(outcome string) {
	if s.observer != nil {
		s.observer.ObserveImport(outcome)
	}
}
