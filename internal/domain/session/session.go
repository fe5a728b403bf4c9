// Package session defines the session entity, the per-project time ledger
// and the gap detection that turns heartbeats into engaged time.
package session

import (
	"time"
)

// Session is one continuous span of user presence. It is the unit of
// mutation: every heartbeat, project switch and end call rewrites exactly
// one Session, serialized upstream by a per-session lock.
type Session struct {
	SessionID    string     `json:"sessionId"`
	UserID       string     `json:"userId"`
	StartTime    time.Time  `json:"startTime"`
	EndTime      *time.Time `json:"endTime,omitempty"`
	Duration     int64      `json:"duration"` // whole seconds, rounded up at end
	LastActivity time.Time  `json:"lastActivity"`
	IsActive     bool       `json:"isActive"`
	IsVisible    bool       `json:"isVisible"`
	CurrentPage  string     `json:"currentPage,omitempty"`

	CurrentProjectID        string    `json:"currentProjectId,omitempty"`
	CurrentProjectStartTime time.Time `json:"currentProjectStartTime,omitempty"`

	// ProjectTimeBreakdown is ordered by first touch of each project.
	ProjectTimeBreakdown []*ProjectTimeEntry `json:"projectTimeBreakdown"`
}

// ProjectTimeEntry records accrued time for one project within one session.
type ProjectTimeEntry struct {
	ProjectID string `json:"projectId"`

	// TimeSpent is raw wall-clock accrual kept for backward compatibility.
	// ActiveTime is the gap-excluded accrual and the authoritative figure.
	TimeSpent  time.Duration `json:"timeSpent"`
	ActiveTime time.Duration `json:"activeTime"`

	LastSwitchTime time.Time `json:"lastSwitchTime"`

	// HeartbeatTimestamps collected while this project was current,
	// ascending. Bounded by the store, not here.
	HeartbeatTimestamps []time.Time `json:"heartbeatTimestamps"`
}

// New creates an active session starting now with an empty ledger.
func New(sessionID, userID string, now time.Time) *Session {
	return &Session{
		SessionID:            sessionID,
		UserID:               userID,
		StartTime:            now,
		LastActivity:         now,
		IsActive:             true,
		IsVisible:            true,
		ProjectTimeBreakdown: make([]*ProjectTimeEntry, 0, 4),
	}
}

// Entry returns the ledger entry for projectID, or nil.
func (s *Session) Entry(projectID string) *ProjectTimeEntry {
	for _, e := range s.ProjectTimeBreakdown {
		if e.ProjectID == projectID {
			return e
		}
	}
	return nil
}

// EnsureEntry returns the ledger entry for projectID, appending a fresh one
// when the project is new to this session.
func (s *Session) EnsureEntry(projectID string) *ProjectTimeEntry {
	if e := s.Entry(projectID); e != nil {
		return e
	}
	e := &ProjectTimeEntry{
		ProjectID:           projectID,
		HeartbeatTimestamps: make([]time.Time, 0, 16),
	}
	s.ProjectTimeBreakdown = append(s.ProjectTimeBreakdown, e)
	return e
}

// AppendHeartbeat inserts ts into the entry keeping the sequence
// non-decreasing. Exact duplicates are dropped so network retries cannot
// double-count.
func (e *ProjectTimeEntry) AppendHeartbeat(ts time.Time) bool {
	n := len(e.HeartbeatTimestamps)
	if n == 0 || !ts.Before(e.HeartbeatTimestamps[n-1]) {
		if n > 0 && ts.Equal(e.HeartbeatTimestamps[n-1]) {
			return false
		}
		e.HeartbeatTimestamps = append(e.HeartbeatTimestamps, ts)
		return true
	}

	// Out-of-order arrival: insert at the right position unless already seen.
	idx := 0
	for idx < n && e.HeartbeatTimestamps[idx].Before(ts) {
		idx++
	}
	if idx < n && e.HeartbeatTimestamps[idx].Equal(ts) {
		return false
	}
	e.HeartbeatTimestamps = append(e.HeartbeatTimestamps, time.Time{})
	copy(e.HeartbeatTimestamps[idx+1:], e.HeartbeatTimestamps[idx:])
	e.HeartbeatTimestamps[idx] = ts
	return true
}

// TrimHeartbeats drops the oldest timestamps beyond max. Finalized segments
// no longer need their heartbeats, so this only bounds memory for very long
// open segments.
func (e *ProjectTimeEntry) TrimHeartbeats(max int) {
	if max > 0 && len(e.HeartbeatTimestamps) > max {
		excess := len(e.HeartbeatTimestamps) - max
		e.HeartbeatTimestamps = append(e.HeartbeatTimestamps[:0], e.HeartbeatTimestamps[excess:]...)
	}
}

// EffectiveActiveTime is ActiveTime, falling back to the legacy TimeSpent
// figure for entries recorded before gap exclusion existed.
func (e *ProjectTimeEntry) EffectiveActiveTime() time.Duration {
	if e.ActiveTime > 0 {
		return e.ActiveTime
	}
	return e.TimeSpent
}

// FinalizeCurrent closes the open accrual segment of the current project:
// gap-detected engaged time over [CurrentProjectStartTime, now] is added to
// the entry's ActiveTime, raw wall clock to TimeSpent, and the segment
// restarts at now. A session with no current project is a no-op.
func (s *Session) FinalizeCurrent(now time.Time, idleThreshold time.Duration) {
	if s.CurrentProjectID == "" || s.CurrentProjectStartTime.IsZero() {
		return
	}
	if !now.After(s.CurrentProjectStartTime) {
		return
	}

	entry := s.EnsureEntry(s.CurrentProjectID)
	entry.ActiveTime += ActiveTime(s.CurrentProjectStartTime, now, entry.HeartbeatTimestamps, idleThreshold)
	entry.TimeSpent += now.Sub(s.CurrentProjectStartTime)
	entry.LastSwitchTime = now

	// Consumed heartbeats must not feed the next segment.
	entry.HeartbeatTimestamps = entry.HeartbeatTimestamps[:0]
	s.CurrentProjectStartTime = now
}

// SwitchTo finalizes the outgoing project and makes newProjectID current.
// Switching to the project that is already current just closes and reopens
// the segment, losing nothing and counting nothing twice.
func (s *Session) SwitchTo(newProjectID string, now time.Time, idleThreshold time.Duration) {
	s.FinalizeCurrent(now, idleThreshold)
	s.EnsureEntry(newProjectID)
	s.CurrentProjectID = newProjectID
	s.CurrentProjectStartTime = now
	s.LastActivity = now
}

// End finalizes any in-progress accrual and closes the session. A second
// call is a no-op.
func (s *Session) End(now time.Time, idleThreshold time.Duration) bool {
	if !s.IsActive {
		return false
	}
	s.FinalizeCurrent(now, idleThreshold)
	end := now
	s.EndTime = &end
	// Rounded up, not truncated: active time keeps sub-second resolution and
	// must never exceed the reported duration.
	s.Duration = int64((now.Sub(s.StartTime) + time.Second - 1) / time.Second)
	s.IsActive = false
	s.CurrentProjectID = ""
	s.CurrentProjectStartTime = time.Time{}
	return true
}

// TotalActiveTime sums finalized active time across the ledger.
func (s *Session) TotalActiveTime() time.Duration {
	var total time.Duration
	for _, e := range s.ProjectTimeBreakdown {
		total += e.EffectiveActiveTime()
	}
	return total
}

// ProvisionalDelta computes the not-yet-finalized engaged time of the open
// segment, with end pinned to now. It is never persisted; aggregation reads
// add it on top of finalized entries.
func (s *Session) ProvisionalDelta(projectID string, now time.Time, idleThreshold time.Duration) time.Duration {
	if !s.IsActive || s.CurrentProjectID == "" || s.CurrentProjectID != projectID {
		return 0
	}
	entry := s.Entry(s.CurrentProjectID)
	if entry == nil || !now.After(s.CurrentProjectStartTime) {
		return 0
	}
	return ActiveTime(s.CurrentProjectStartTime, now, entry.HeartbeatTimestamps, idleThreshold)
}

// Clone returns a deep copy, safe to hand outside the store's lock.
func (s *Session) Clone() *Session {
	out := *s
	if s.EndTime != nil {
		end := *s.EndTime
		out.EndTime = &end
	}
	out.ProjectTimeBreakdown = make([]*ProjectTimeEntry, len(s.ProjectTimeBreakdown))
	for i, e := range s.ProjectTimeBreakdown {
		ec := *e
		ec.HeartbeatTimestamps = append([]time.Time(nil), e.HeartbeatTimestamps...)
		out.ProjectTimeBreakdown[i] = &ec
	}
	return &out
}
