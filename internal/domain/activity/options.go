package activity

// DefaultListLimit caps listings that don't set a limit.
const DefaultListLimit = 50

// ListActivityOptions provides filtering options for listing activity.
type ListActivityOptions struct {
	ActivityType *ActivityType
	Limit        int
	Offset       int
}
