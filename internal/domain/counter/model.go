package counter

import (
	"cmp"
	"slices"
	"strconv"
	"time"
)

const (
	// RateLimitWindow is the cooldown after an increment during which the
	// whole room rejects further increments.
	RateLimitWindow = 20 * time.Second
	// MaxLogEntries bounds the activity log kept in a room document.
	MaxLogEntries = 20
	// MaxPushSubscriptions bounds the stored push subscriptions.
	MaxPushSubscriptions = 50
	// DefaultActor labels increments made without a username.
	DefaultActor = "Anonymous"
	// TimestampLayout formats LogEntry.Timestamp.
	TimestampLayout = "2006-01-02 15:04:05"
)

// RoomState is the persisted document for one room.
type RoomState struct {
	AccessCode        string             `json:"accessCode"`
	Count             int                `json:"count"`
	Log               []LogEntry         `json:"log"`
	LastIncrementTime int64              `json:"lastIncrementTime"`
	PushSubscriptions []PushSubscription `json:"pushSubscriptions"`
}

// LogEntry records one increment. ID is the creation time in epoch millis
// and doubles as the recency sort key.
type LogEntry struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Count     int    `json:"count"`
	Username  string `json:"username,omitempty"`
}

// PushSubscription is an opaque client subscription record, identified by
// its endpoint.
type PushSubscription struct {
	ID        string            `json:"id"`
	Endpoint  string            `json:"endpoint"`
	Keys      map[string]string `json:"keys,omitempty"`
	CreatedAt int64             `json:"createdAt"`
}

// ButtonState is the derived view of whether a room accepts an increment.
type ButtonState struct {
	Enabled           bool  `json:"isEnabled"`
	RemainingSeconds  int   `json:"remainingTime"`
	LastIncrementTime int64 `json:"lastIncrementTime"`
}

// NewRoomState returns the fresh document for a room.
func NewRoomState(roomKey string) *RoomState {
	return &RoomState{
		AccessCode:        roomKey,
		Log:               []LogEntry{},
		PushSubscriptions: []PushSubscription{},
	}
}

// EntryID returns the numeric creation time encoded in the entry id.
func (e LogEntry) EntryID() (int64, bool) {
	id, err := strconv.ParseInt(e.ID, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// newestEntryTime returns the largest numeric id in the log, or 0.
// Array position is not trusted; ids are compared by value.
func newestEntryTime(log []LogEntry) int64 {
	var newest int64
	for _, entry := range log {
		if id, ok := entry.EntryID(); ok && id > newest {
			newest = id
		}
	}
	return newest
}

// remainingSeconds returns ceil((window - elapsed) / 1s) for an elapsed
// time in millis that is still inside the window.
func remainingSeconds(elapsedMillis int64) int {
	remaining := RateLimitWindow.Milliseconds() - elapsedMillis
	if remaining <= 0 {
		return 0
	}
	return int((remaining + 999) / 1000)
}

// rederive restores the log invariants on a document taken from outside:
// entries ordered newest first by numeric id (non-numeric ids last, in their
// original order), at most MaxLogEntries kept, and count and
// lastIncrementTime derived from what remains.
func (s *RoomState) rederive() {
	slices.SortStableFunc(s.Log, func(a, b LogEntry) int {
		ai, aok := a.EntryID()
		bi, bok := b.EntryID()
		switch {
		case aok && bok:
			return cmp.Compare(bi, ai)
		case aok:
			return -1
		case bok:
			return 1
		default:
			return 0
		}
	})
	if len(s.Log) > MaxLogEntries {
		s.Log = s.Log[:MaxLogEntries]
	}
	s.Count = len(s.Log)
	s.LastIncrementTime = newestEntryTime(s.Log)
}

func (s *RoomState) clone() *RoomState {
	if s == nil {
		return nil
	}
	out := *s
	out.Log = append([]LogEntry{}, s.Log...)
	out.PushSubscriptions = append([]PushSubscription{}, s.PushSubscriptions...)
	return &out
}
