package counter_test

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rpggio/tallyroom/internal/domain/activity"
	"github.com/rpggio/tallyroom/internal/domain/counter"
	"github.com/rpggio/tallyroom/internal/repository/mocks"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// memoryRepo keeps copies of room documents in memory.
type memoryRepo struct {
	mu     sync.Mutex
	rooms  map[string]*counter.RoomState
	writes int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{rooms: make(map[string]*counter.RoomState)}
}

func (r *memoryRepo) Load(_ context.Context, roomKey string) (*counter.RoomState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.rooms[roomKey]
	if !ok {
		state = counter.NewRoomState(roomKey)
		r.rooms[roomKey] = state
	}
	return copyState(state), nil
}

func (r *memoryRepo) Persist(_ context.Context, roomKey string, state *counter.RoomState) error {
	if state == nil {
		return counter.ErrInvalidState
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms[roomKey] = copyState(state)
	r.writes++
	return nil
}

func copyState(s *counter.RoomState) *counter.RoomState {
	out := *s
	out.Log = append([]counter.LogEntry{}, s.Log...)
	out.PushSubscriptions = append([]counter.PushSubscription{}, s.PushSubscriptions...)
	return &out
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.UnixMilli(1_700_000_000_000).UTC()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestService(repo counter.Repository, clock *fakeClock, opts ...counter.Option) *counter.Service {
	opts = append([]counter.Option{counter.WithClock(clock.Now)}, opts...)
	return counter.NewService(repo, opts...)
}

func TestIncrement_SpacedCallsCountAndLog(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	svc := newTestService(newMemoryRepo(), clock)

	var state *counter.RoomState
	var err error
	for i := 1; i <= 25; i++ {
		state, err = svc.Increment(ctx, "room1", fmt.Sprintf("user%d", i))
		require.NoError(t, err)
		require.Equal(t, i, state.Count)
		require.Len(t, state.Log, min(i, counter.MaxLogEntries))
		require.Equal(t, clock.Now().UnixMilli(), state.LastIncrementTime)
		require.Equal(t, strconv.FormatInt(clock.Now().UnixMilli(), 10), state.Log[0].ID)
		require.Equal(t, i, state.Log[0].Count)
		clock.Advance(counter.RateLimitWindow)
	}

	// Newest first, oldest dropped.
	require.Equal(t, "user25", state.Log[0].Username)
	require.Equal(t, "user6", state.Log[counter.MaxLogEntries-1].Username)
	for i := 1; i < len(state.Log); i++ {
		prev, _ := state.Log[i-1].EntryID()
		cur, _ := state.Log[i].EntryID()
		require.Greater(t, prev, cur)
	}
}

func TestIncrement_TwentyFirstDropsOldest(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	svc := newTestService(newMemoryRepo(), clock)

	var first string
	for i := 0; i < counter.MaxLogEntries; i++ {
		state, err := svc.Increment(ctx, "room1", "")
		require.NoError(t, err)
		if i == 0 {
			first = state.Log[0].ID
		}
		clock.Advance(counter.RateLimitWindow)
	}

	state, err := svc.Increment(ctx, "room1", "")
	require.NoError(t, err)
	require.Len(t, state.Log, counter.MaxLogEntries)
	for _, entry := range state.Log {
		require.NotEqual(t, first, entry.ID)
	}
}

func TestIncrement_DefaultsActor(t *testing.T) {
	svc := newTestService(newMemoryRepo(), newFakeClock())
	state, err := svc.Increment(context.Background(), "room1", "   ")
	require.NoError(t, err)
	require.Equal(t, counter.DefaultActor, state.Log[0].Username)
	require.Equal(t, "2023-11-14 22:13:20", state.Log[0].Timestamp)
}

func TestIncrement_RateLimited(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	repo := newMemoryRepo()
	svc := newTestService(repo, clock)

	before, err := svc.Increment(ctx, "room1", "alice")
	require.NoError(t, err)

	cases := []struct {
		elapsed time.Duration
		want    int
	}{
		{0, 20},
		{1 * time.Millisecond, 20},
		{999 * time.Millisecond, 20},
		{1000 * time.Millisecond, 19},
		{12_500 * time.Millisecond, 8},
		{19_999 * time.Millisecond, 1},
	}
	start := clock.Now()
	for _, tc := range cases {
		clock.now = start.Add(tc.elapsed)
		_, err := svc.Increment(ctx, "room1", "bob")
		require.ErrorIs(t, err, counter.ErrRateLimited)
		var limited *counter.RateLimitedError
		require.True(t, errors.As(err, &limited))
		require.Equal(t, tc.want, limited.RemainingSeconds, "elapsed %s", tc.elapsed)
	}

	after, err := svc.Get(ctx, "room1")
	require.NoError(t, err)
	require.Equal(t, before, after)
	require.Equal(t, 1, repo.writes)
}

func TestIncrement_RateLimitIsPerRoom(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newMemoryRepo(), newFakeClock())

	_, err := svc.Increment(ctx, "room1", "alice")
	require.NoError(t, err)
	_, err = svc.Increment(ctx, "room2", "alice")
	require.NoError(t, err)
	_, err = svc.Increment(ctx, "room1", "someone-else")
	require.ErrorIs(t, err, counter.ErrRateLimited)
}

func TestIncrement_ConcurrentCallsInOneWindow(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	svc := newTestService(repo, newFakeClock())

	const callers = 16
	var wg sync.WaitGroup
	results := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Increment(ctx, "room1", "racer")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorIs(t, err, counter.ErrRateLimited)
	}
	require.Equal(t, 1, succeeded)

	state, err := svc.Get(ctx, "room1")
	require.NoError(t, err)
	require.Equal(t, 1, state.Count)
	require.Len(t, state.Log, 1)
}

func TestIncrement_PersistFailureIsReturned(t *testing.T) {
	ctx := context.Background()
	repo := &mocks.RoomRepository{}
	boom := errors.New("disk full")
	repo.On("Load", ctx, "room1").Return(counter.NewRoomState("room1"), nil)
	repo.On("Persist", ctx, "room1", mock.Anything).Return(boom)

	mirror := &mocks.Mirror{}
	svc := newTestService(repo, newFakeClock(), counter.WithMirror(mirror))
	_, err := svc.Increment(ctx, "room1", "alice")
	require.ErrorIs(t, err, boom)
	mirror.AssertNotCalled(t, "Mirror", mock.Anything, mock.Anything, mock.Anything)
}

func TestDeleteEntry_NotFoundLeavesState(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	repo := newMemoryRepo()
	svc := newTestService(repo, clock)

	before, err := svc.Increment(ctx, "room1", "alice")
	require.NoError(t, err)

	_, err = svc.DeleteEntry(ctx, "room1", "12345")
	require.ErrorIs(t, err, counter.ErrNotFound)

	after, err := svc.Get(ctx, "room1")
	require.NoError(t, err)
	require.Equal(t, before, after)
	require.Equal(t, 1, repo.writes)
}

func TestDeleteEntry_NewestRecomputesLastIncrement(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	svc := newTestService(newMemoryRepo(), clock)

	var ids []string
	for i := 0; i < 3; i++ {
		state, err := svc.Increment(ctx, "room1", "")
		require.NoError(t, err)
		ids = append(ids, state.Log[0].ID)
		clock.Advance(counter.RateLimitWindow)
	}

	state, err := svc.DeleteEntry(ctx, "room1", ids[2])
	require.NoError(t, err)
	require.Equal(t, 2, state.Count)
	require.Len(t, state.Log, 2)
	secondNewest, err := strconv.ParseInt(ids[1], 10, 64)
	require.NoError(t, err)
	require.Equal(t, secondNewest, state.LastIncrementTime)
}

func TestDeleteEntry_UsesLargestIDNotPosition(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	repo.rooms["room1"] = &counter.RoomState{
		AccessCode: "room1",
		Count:      3,
		Log: []counter.LogEntry{
			{ID: "100"},
			{ID: "300"},
			{ID: "200"},
		},
		LastIncrementTime: 300,
	}
	svc := newTestService(repo, newFakeClock())

	state, err := svc.DeleteEntry(ctx, "room1", "100")
	require.NoError(t, err)
	require.Equal(t, int64(300), state.LastIncrementTime)
	require.Equal(t, 2, state.Count)

	state, err = svc.DeleteEntry(ctx, "room1", "300")
	require.NoError(t, err)
	require.Equal(t, int64(200), state.LastIncrementTime)

	state, err = svc.DeleteEntry(ctx, "room1", "200")
	require.NoError(t, err)
	require.Equal(t, int64(0), state.LastIncrementTime)
	require.Equal(t, 0, state.Count)
	require.Empty(t, state.Log)
}

func TestDeleteEntry_ReopensButton(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newMemoryRepo(), newFakeClock())

	state, err := svc.Increment(ctx, "room1", "alice")
	require.NoError(t, err)

	bs, err := svc.ButtonState(ctx, "room1")
	require.NoError(t, err)
	require.False(t, bs.Enabled)

	_, err = svc.DeleteEntry(ctx, "room1", state.Log[0].ID)
	require.NoError(t, err)

	bs, err = svc.ButtonState(ctx, "room1")
	require.NoError(t, err)
	require.True(t, bs.Enabled)
	require.Equal(t, 0, bs.RemainingSeconds)
}

func TestButtonState(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	svc := newTestService(newMemoryRepo(), clock)

	bs, err := svc.ButtonState(ctx, "room1")
	require.NoError(t, err)
	require.Equal(t, counter.ButtonState{Enabled: true}, bs)

	_, err = svc.Increment(ctx, "room1", "alice")
	require.NoError(t, err)
	last := clock.Now().UnixMilli()

	clock.Advance(5500 * time.Millisecond)
	bs, err = svc.ButtonState(ctx, "room1")
	require.NoError(t, err)
	require.Equal(t, counter.ButtonState{Enabled: false, RemainingSeconds: 15, LastIncrementTime: last}, bs)

	clock.Advance(14500 * time.Millisecond)
	bs, err = svc.ButtonState(ctx, "room1")
	require.NoError(t, err)
	require.Equal(t, counter.ButtonState{Enabled: true, LastIncrementTime: last}, bs)
}

func TestImport_CoercesAndPersists(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	svc := newTestService(repo, newFakeClock())

	state, err := svc.Import(ctx, "room1", []byte(`{"accessCode":"other","count":"5","log":null,"lastIncrementTime":42}`))
	require.NoError(t, err)
	require.Equal(t, "room1", state.AccessCode)
	require.Equal(t, 0, state.Count)
	require.Empty(t, state.Log)
	require.Equal(t, int64(0), state.LastIncrementTime, "derived from the empty log, not taken from the upload")

	stored, err := svc.Export(ctx, "room1")
	require.NoError(t, err)
	require.Equal(t, state, stored)
}

func TestImport_EnforcesInvariants(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	svc := newTestService(newMemoryRepo(), clock)

	// 30 entries, oldest first, with a count and cooldown that disagree with the log.
	var entries []string
	for id := 1001; id <= 1030; id++ {
		entries = append(entries, fmt.Sprintf(`{"id":"%d","count":%d}`, id, id-1000))
	}
	doc := fmt.Sprintf(`{"count":3,"lastIncrementTime":%d,"log":[%s,{"id":"legacy"}]}`,
		clock.Now().UnixMilli()+time.Hour.Milliseconds(), strings.Join(entries, ","))

	state, err := svc.Import(ctx, "room1", []byte(doc))
	require.NoError(t, err)
	require.Len(t, state.Log, counter.MaxLogEntries)
	require.Equal(t, len(state.Log), state.Count)
	require.Equal(t, "1030", state.Log[0].ID)
	require.Equal(t, "1011", state.Log[len(state.Log)-1].ID)
	for i := 1; i < len(state.Log); i++ {
		prev, _ := state.Log[i-1].EntryID()
		cur, _ := state.Log[i].EntryID()
		require.Greater(t, prev, cur)
	}
	require.Equal(t, int64(1030), state.LastIncrementTime)

	// The uploaded cooldown doesn't lock the room.
	bs, err := svc.ButtonState(ctx, "room1")
	require.NoError(t, err)
	require.True(t, bs.Enabled)
	_, err = svc.Increment(ctx, "room1", "alice")
	require.NoError(t, err)
}

func TestImport_KeepsNonNumericIDsAfterNumeric(t *testing.T) {
	svc := newTestService(newMemoryRepo(), newFakeClock())

	state, err := svc.Import(context.Background(), "room1",
		[]byte(`{"log":[{"id":"legacy"},{"id":"5"},{"id":"9"}]}`))
	require.NoError(t, err)
	ids := make([]string, 0, len(state.Log))
	for _, e := range state.Log {
		ids = append(ids, e.ID)
	}
	require.Equal(t, []string{"9", "5", "legacy"}, ids)
	require.Equal(t, 3, state.Count)
	require.Equal(t, int64(9), state.LastIncrementTime)
}

func TestImport_MalformedJSON(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, newFakeClock())
	_, err := svc.Import(context.Background(), "room1", []byte(`{"count":`))
	require.ErrorIs(t, err, counter.ErrInvalidDocument)
	require.Equal(t, 0, repo.writes)
}

func TestSubscribe_DedupesAndBounds(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	svc := newTestService(newMemoryRepo(), clock)

	for i := 0; i < counter.MaxPushSubscriptions+5; i++ {
		_, err := svc.Subscribe(ctx, "room1", counter.PushSubscription{Endpoint: fmt.Sprintf("https://push.example/%d", i)})
		require.NoError(t, err)
	}
	state, err := svc.Subscribe(ctx, "room1", counter.PushSubscription{Endpoint: "https://push.example/10"})
	require.NoError(t, err)
	require.Len(t, state.PushSubscriptions, counter.MaxPushSubscriptions)
	require.Equal(t, "https://push.example/10", state.PushSubscriptions[0].Endpoint)
	require.NotEmpty(t, state.PushSubscriptions[0].ID)

	seen := map[string]bool{}
	for _, sub := range state.PushSubscriptions {
		require.False(t, seen[sub.Endpoint], "duplicate endpoint %s", sub.Endpoint)
		seen[sub.Endpoint] = true
	}

	_, err = svc.Subscribe(ctx, "room1", counter.PushSubscription{})
	require.ErrorIs(t, err, counter.ErrInvalidInput)
}

func TestService_RecordsActivityAndMirrors(t *testing.T) {
	ctx := context.Background()
	journal := &mocks.Journal{}
	mirror := &mocks.Mirror{}
	journal.On("LogActivity", ctx, "room1", mock.MatchedBy(func(e *activity.ActivityEntry) bool {
		return e.ActivityType == activity.TypeIncrement && e.Actor == "alice" && e.Details != ""
	})).Return(nil).Once()
	journal.On("LogActivity", ctx, "room1", mock.MatchedBy(func(e *activity.ActivityEntry) bool {
		return e.ActivityType == activity.TypeRateLimited
	})).Return(errors.New("journal offline")).Once()
	mirror.On("Mirror", ctx, "room1", mock.Anything).Return(nil).Once()

	svc := newTestService(newMemoryRepo(), newFakeClock(), counter.WithJournal(journal), counter.WithMirror(mirror))

	_, err := svc.Increment(ctx, "room1", "alice")
	require.NoError(t, err)
	_, err = svc.Increment(ctx, "room1", "alice")
	require.ErrorIs(t, err, counter.ErrRateLimited)

	journal.AssertExpectations(t)
	mirror.AssertExpectations(t)
}

type outcomeRecorder struct {
	increments, deletes, imports []string
}

func (o *outcomeRecorder) ObserveIncrement(outcome string) { o.increments = append(o.increments, outcome) }
func (o *outcomeRecorder) ObserveDelete(outcome string)    { o.deletes = append(o.deletes, outcome) }
func (o *outcomeRecorder) ObserveImport(outcome string)    { o.imports = append(o.imports, outcome) }

func TestService_ReportsOutcomes(t *testing.T) {
	ctx := context.Background()
	observer := &outcomeRecorder{}
	svc := newTestService(newMemoryRepo(), newFakeClock(), counter.WithObserver(observer))

	_, _ = svc.Increment(ctx, "room1", "")
	_, _ = svc.Increment(ctx, "room1", "")
	_, _ = svc.DeleteEntry(ctx, "room1", "missing")
	_, _ = svc.Import(ctx, "room1", []byte(`nope`))

	require.Equal(t, []string{counter.OutcomeOK, counter.OutcomeRateLimited}, observer.increments)
	require.Equal(t, []string{counter.OutcomeNotFound}, observer.deletes)
	require.Equal(t, []string{counter.OutcomeInvalid}, observer.imports)
}

func TestService_RejectsEmptyRoomKey(t *testing.T) {
	svc := newTestService(newMemoryRepo(), newFakeClock())
	_, err := svc.Get(context.Background(), "")
	require.ErrorIs(t, err, counter.ErrInvalidInput)
	_, err = svc.Increment(context.Background(), " ", "")
	require.ErrorIs(t, err, counter.ErrInvalidInput)
}
