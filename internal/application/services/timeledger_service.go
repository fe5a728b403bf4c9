package services

import (
	"fmt"
	"sort"
	"time"

	"github.com/PlanPulseHQ/planpulse-go/internal/domain/session"
	"github.com/PlanPulseHQ/planpulse-go/internal/infrastructure/caching/stores"
	"github.com/PlanPulseHQ/planpulse-go/internal/infrastructure/observability/logging"
	"github.com/PlanPulseHQ/planpulse-go/internal/infrastructure/tenant"
	"github.com/PlanPulseHQ/planpulse-go/pkg/config"
)

// TimeLedgerService aggregates per-project active time across sessions.
// Reads combine finalized ledger entries from storage with the live
// session's provisional open segment, so totals move in real time without
// ever persisting provisional figures.
type TimeLedgerService struct {
	store  *stores.SessionsStore
	logger *logging.ChanneledLogger
}

// NewTimeLedgerService creates the aggregation service.
func NewTimeLedgerService(store *stores.SessionsStore, logger *logging.ChanneledLogger) *TimeLedgerService {
	return &TimeLedgerService{store: store, logger: logger}
}

// GetProjectTimes returns the user's per-project totals since the given
// time, most recently used first.
func (t *TimeLedgerService) GetProjectTimes(tenantCtx *tenant.Context, userID string, since time.Time) ([]*session.ProjectTimeTotal, error) {
	start := time.Now()

	sessions, err := tenantCtx.Repos.Sessions.FindByUserSince(userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load sessions for user %s: %w", userID, err)
	}
	sessions = t.overlayLive(tenantCtx.TenantID, userID, sessions)

	now := time.Now().UTC()
	totals := make(map[string]*session.ProjectTimeTotal)
	for _, sess := range sessions {
		accumulateSession(totals, sess, now)
	}

	out := make([]*session.ProjectTimeTotal, 0, len(totals))
	for _, total := range totals {
		if tenantCtx.Repos.Projects != nil {
			if project, err := tenantCtx.Repos.Projects.FindProject(total.ProjectID); err == nil && project != nil {
				total.ProjectName = project.Name
			}
		}
		out = append(out, total)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastUsed.After(out[j].LastUsed)
	})

	t.logger.Ledger().Debug("Project times aggregated",
		"tenantId", tenantCtx.TenantID,
		"userId", userID,
		"sessions", len(sessions),
		"projects", len(out),
		"duration", time.Since(start).String())
	return out, nil
}

// GetProjectTime returns one project's total for the user since the given
// time. Unknown projects report zero rather than erroring.
func (t *TimeLedgerService) GetProjectTime(tenantCtx *tenant.Context, userID, projectID string, since time.Time) (*session.ProjectTimeTotal, error) {
	totals, err := t.GetProjectTimes(tenantCtx, userID, since)
	if err != nil {
		return nil, err
	}
	for _, total := range totals {
		if total.ProjectID == projectID {
			return total, nil
		}
	}
	return &session.ProjectTimeTotal{ProjectID: projectID}, nil
}

// GetProjectDailyBreakdown buckets the user's accrual on one project into
// UTC days covering the last `days` days, zero-filled so charts render a
// continuous range.
func (t *TimeLedgerService) GetProjectDailyBreakdown(tenantCtx *tenant.Context, userID, projectID string, days int) ([]*session.DailyProjectTime, error) {
	if days <= 0 {
		days = 30
	}

	now := time.Now().UTC()
	since := now.AddDate(0, 0, -(days - 1)).Truncate(24 * time.Hour)

	sessions, err := tenantCtx.Repos.Sessions.FindByUserSince(userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load sessions for user %s: %w", userID, err)
	}
	sessions = t.overlayLive(tenantCtx.TenantID, userID, sessions)

	buckets := make(map[string]time.Duration)
	for _, sess := range sessions {
		for _, entry := range sess.ProjectTimeBreakdown {
			if entry.ProjectID != projectID {
				continue
			}
			// Finalized entries land on the day the segment closed; an
			// entry never finalized falls back to the session's start day.
			day := entry.LastSwitchTime
			if day.IsZero() {
				day = sess.StartTime
			}
			buckets[session.DayKey(day)] += entry.EffectiveActiveTime()
		}
		buckets[session.DayKey(now)] += sess.ProvisionalDelta(projectID, now, config.HeartbeatIdleThreshold)
	}

	out := make([]*session.DailyProjectTime, 0, days)
	for d := 0; d < days; d++ {
		day := since.AddDate(0, 0, d)
		key := session.DayKey(day)
		out = append(out, &session.DailyProjectTime{Date: key, ActiveTime: buckets[key]})
	}
	return out, nil
}

// GetTeamTime returns per-member totals for one project since the given
// time, covering every member of the project's team.
func (t *TimeLedgerService) GetTeamTime(tenantCtx *tenant.Context, projectID string, since time.Time) ([]*session.TeamMemberTime, error) {
	members, err := tenantCtx.Repos.Teams.FindMembers(projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load team for project %s: %w", projectID, err)
	}
	if len(members) == 0 {
		return []*session.TeamMemberTime{}, nil
	}

	userIDs := make([]string, 0, len(members))
	names := make(map[string]string, len(members))
	for _, m := range members {
		userIDs = append(userIDs, m.UserID)
		names[m.UserID] = m.Name
	}

	sessions, err := tenantCtx.Repos.Sessions.FindByUsersSince(userIDs, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load team sessions: %w", err)
	}

	// Swap in the cache copy of each member's live session so in-flight
	// segments are counted once, from the freshest state.
	byUser := make(map[string][]*session.Session)
	for _, sess := range sessions {
		byUser[sess.UserID] = append(byUser[sess.UserID], sess)
	}
	for _, uid := range userIDs {
		byUser[uid] = t.overlayLive(tenantCtx.TenantID, uid, byUser[uid])
	}

	now := time.Now().UTC()
	out := make([]*session.TeamMemberTime, 0, len(members))
	for _, m := range members {
		member := &session.TeamMemberTime{UserID: m.UserID, Name: names[m.UserID]}
		for _, sess := range byUser[m.UserID] {
			for _, entry := range sess.ProjectTimeBreakdown {
				if entry.ProjectID != projectID {
					continue
				}
				member.ActiveTime += entry.EffectiveActiveTime()
				if entry.LastSwitchTime.After(member.LastUsed) {
					member.LastUsed = entry.LastSwitchTime
				}
			}
			if delta := sess.ProvisionalDelta(projectID, now, config.HeartbeatIdleThreshold); delta > 0 {
				member.ActiveTime += delta
				member.LastUsed = now
			}
		}
		out = append(out, member)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ActiveTime > out[j].ActiveTime
	})
	return out, nil
}

// overlayLive replaces the stored copy of the user's live session with the
// cache copy, which carries writes the database may not have seen yet. The
// cache hands back a deep copy, so the snapshot stays internally consistent
// while heartbeats and switches keep landing on the live record.
func (t *TimeLedgerService) overlayLive(tenantID, userID string, sessions []*session.Session) []*session.Session {
	live, found := t.store.GetActiveSessionForUser(tenantID, userID)
	if !found {
		return sessions
	}
	for i, sess := range sessions {
		if sess.SessionID == live.SessionID {
			sessions[i] = live
			return sessions
		}
	}
	return append(sessions, live)
}

// accumulateSession folds one session's ledger into the running totals,
// including the live open segment's provisional delta.
func accumulateSession(totals map[string]*session.ProjectTimeTotal, sess *session.Session, now time.Time) {
	for _, entry := range sess.ProjectTimeBreakdown {
		total, exists := totals[entry.ProjectID]
		if !exists {
			total = &session.ProjectTimeTotal{ProjectID: entry.ProjectID}
			totals[entry.ProjectID] = total
		}
		total.ActiveTime += entry.EffectiveActiveTime()
		if entry.LastSwitchTime.After(total.LastUsed) {
			total.LastUsed = entry.LastSwitchTime
		}
	}

	if sess.IsActive && sess.CurrentProjectID != "" {
		if delta := sess.ProvisionalDelta(sess.CurrentProjectID, now, config.HeartbeatIdleThreshold); delta > 0 {
			total, exists := totals[sess.CurrentProjectID]
			if !exists {
				total = &session.ProjectTimeTotal{ProjectID: sess.CurrentProjectID}
				totals[sess.CurrentProjectID] = total
			}
			total.ActiveTime += delta
			total.Provisional += delta
			total.LastUsed = now
		}
	}
}
