package repository

// Store is the durable key-value storage backing session material and
// last-known-good snapshots. Get returns nil, nil for a missing key.
type Store interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Remove(key string) error
}

// Store keys
const (
	KeyUserToken       = "user_token"
	KeyUsername        = "username"
	KeyPassword        = "password"
	KeyCachedGrades    = "cached_grades"
	keyTimetablePrefix = "cached_timetable:"
)

// TimetableKey returns the snapshot key of a semester's timetable
func TimetableKey(semester string) string {
	return keyTimetablePrefix + semester
}
