// Package platform holds the row shapes shared by the store, the assistant
// and the HTTP layer.
package platform

import (
	"strconv"
	"time"
)

// Record is one backend row keyed by column alias (ID, Title, LocationCity, ...).
type Record map[string]any

// Clone returns a shallow copy.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// ID returns the numeric identifier under ID or id.
func (r Record) ID() (int64, bool) {
	for _, key := range []string{"ID", "id"} {
		if v, ok := r[key]; ok {
			if n, ok := AsInt64(v); ok && n != 0 {
				return n, true
			}
		}
	}
	return 0, false
}

// String returns the value under key when it is a string.
func (r Record) String(key string) string {
	s, _ := r[key].(string)
	return s
}

// AsInt64 converts the numeric kinds pgx and JSON decoding produce.
func AsInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	case float32:
		return int64(n), true
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

// IDs collects the identifiers of records that carry one.
func IDs(records []Record) map[int64]struct{} {
	out := make(map[int64]struct{}, len(records))
	for _, r := range records {
		if id, ok := r.ID(); ok {
			out[id] = struct{}{}
		}
	}
	return out
}

// EventFilter is the literal event query used by listings and as the
// semantic search fallback.
type EventFilter struct {
	Keyword  string
	Location string
	From     *time.Time
	To       *time.Time
	Limit    int
}

// EmbeddingQuery narrows the candidates ranked against a query vector.
type EmbeddingQuery struct {
	Location  string
	From      *time.Time
	To        *time.Time
	Limit     int
	Threshold float64
}

// Stats is the impact summary of one user.
type Stats struct {
	TotalHours      float64 `json:"total_hours"`
	CompletedEvents int     `json:"completed_events"`
	UpcomingEvents  int     `json:"upcoming_events"`
	BadgesCount     int     `json:"badges_count"`
}

// LeaderboardEntry is one ranked row.
type LeaderboardEntry struct {
	Rank      int     `json:"rank"`
	UserID    int64   `json:"user_id"`
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Hours     float64 `json:"hours"`
	Completed int     `json:"completed_events"`
	Badges    int     `json:"badges"`
	Score     float64 `json:"score"`
}

// User is the account row used for authentication.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// EmbeddingJob is the text of one event waiting for an embedding.
type EmbeddingJob struct {
	EventID int64
	Text    string
}
