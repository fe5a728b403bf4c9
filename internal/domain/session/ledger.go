package session

import "time"

// ProjectTimeTotal is the cross-session aggregate for one project.
type ProjectTimeTotal struct {
	ProjectID   string        `json:"projectId"`
	ProjectName string        `json:"projectName,omitempty"`
	ActiveTime  time.Duration `json:"activeTime"`
	LastUsed    time.Time     `json:"lastUsed"`

	// Provisional is the live session's open-segment contribution already
	// included in ActiveTime, surfaced so callers can tell persisted from
	// in-flight time.
	Provisional time.Duration `json:"provisional,omitempty"`
}

// DailyProjectTime is one day's accrual for a single project.
type DailyProjectTime struct {
	Date       string        `json:"date"` // YYYY-MM-DD, UTC
	ActiveTime time.Duration `json:"activeTime"`
}

// TeamMemberTime is one member's accrual on a project.
type TeamMemberTime struct {
	UserID     string        `json:"userId"`
	Name       string        `json:"name,omitempty"`
	ActiveTime time.Duration `json:"activeTime"`
	LastUsed   time.Time     `json:"lastUsed,omitempty"`
}

// DayKey formats t as the UTC day bucket used by daily breakdowns.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
