package activity

import "time"

// ActivityType represents the type of room event
type ActivityType string

const (
	TypeIncrement    ActivityType = "increment"
	TypeEntryDeleted ActivityType = "entry_deleted"
	TypeImport       ActivityType = "import"
	TypeSubscribe    ActivityType = "subscribe"
	TypeRateLimited  ActivityType = "rate_limited"
)

// ActivityEntry represents an event in a room's journal
type ActivityEntry struct {
	ID           int64        `json:"id"`
	RoomKey      string       `json:"room"`
	ActivityType ActivityType `json:"type"`
	Actor        string       `json:"actor,omitempty"`
	Summary      string       `json:"summary"`
	Details      string       `json:"details,omitempty"` // JSON string
	CreatedAt    time.Time    `json:"created_at"`
}
