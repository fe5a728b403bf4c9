package services

import (
	"sync"
	"testing"
	"time"

	"github.com/PlanPulseHQ/planpulse-go/internal/domain/repositories"
	"github.com/PlanPulseHQ/planpulse-go/internal/domain/session"
	"github.com/stretchr/testify/require"
)

// endedSession builds a closed session with one finalized ledger entry.
func endedSession(id, userID, projectID string, start time.Time, active time.Duration) *session.Session {
	s := session.New(id, userID, start)
	entry := s.EnsureEntry(projectID)
	entry.ActiveTime = active
	entry.TimeSpent = active
	entry.LastSwitchTime = start.Add(active)
	end := start.Add(active)
	s.EndTime = &end
	s.Duration = int64(active / time.Second)
	s.IsActive = false
	s.LastActivity = end
	return s
}

func TestGetProjectTimesAggregatesAcrossSessions(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now().UTC()

	require.NoError(t, env.sessions.Store(endedSession("sess_a", "u1", "proj-alpha", now.Add(-48*time.Hour), time.Hour)))
	require.NoError(t, env.sessions.Store(endedSession("sess_b", "u1", "proj-alpha", now.Add(-24*time.Hour), 30*time.Minute)))
	require.NoError(t, env.sessions.Store(endedSession("sess_c", "u1", "proj-beta", now.Add(-2*time.Hour), 10*time.Minute)))

	totals, err := env.ledgerSv.GetProjectTimes(env.ctx, "u1", now.Add(-30*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, totals, 2)

	byID := map[string]*session.ProjectTimeTotal{}
	for _, total := range totals {
		byID[total.ProjectID] = total
	}
	require.Equal(t, 90*time.Minute, byID["proj-alpha"].ActiveTime)
	require.Equal(t, "Alpha", byID["proj-alpha"].ProjectName)
	require.Equal(t, 10*time.Minute, byID["proj-beta"].ActiveTime)

	// Most recently used first.
	require.Equal(t, "proj-beta", totals[0].ProjectID)
}

func TestGetProjectTimesIncludesProvisionalOnce(t *testing.T) {
	env := newTestEnv(t)

	result := env.sessionSv.StartOrResumeSession(env.ctx, "u1")
	require.True(t, env.sessionSv.SwitchProject(env.ctx, "u1", result.SessionID, "proj-alpha").Success)

	// Pretend the segment opened four minutes ago with steady heartbeats.
	sess, _ := env.store.GetSession("default", result.SessionID)
	entry := sess.Entry("proj-alpha")
	sess.CurrentProjectStartTime = time.Now().UTC().Add(-4 * time.Minute)
	for m := 1; m <= 3; m++ {
		entry.AppendHeartbeat(sess.CurrentProjectStartTime.Add(time.Duration(m) * time.Minute))
	}
	env.store.SetSession("default", sess)

	totals, err := env.ledgerSv.GetProjectTimes(env.ctx, "u1", time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, totals, 1)

	total := totals[0]
	require.Equal(t, "proj-alpha", total.ProjectID)
	require.Positive(t, total.Provisional)
	// The provisional delta is included exactly once: finalized time is
	// zero, so the total equals the provisional figure.
	require.Equal(t, total.Provisional, total.ActiveTime)
	require.GreaterOrEqual(t, total.ActiveTime, 3*time.Minute)
}

func TestGetProjectTimeUnknownProjectIsZero(t *testing.T) {
	env := newTestEnv(t)

	total, err := env.ledgerSv.GetProjectTime(env.ctx, "u1", "proj-ghost", time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	require.Equal(t, "proj-ghost", total.ProjectID)
	require.Zero(t, total.ActiveTime)
}

func TestDailyBreakdownIsContinuous(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now().UTC()

	require.NoError(t, env.sessions.Store(endedSession("sess_a", "u1", "proj-alpha", now.Add(-72*time.Hour), time.Hour)))

	daily, err := env.ledgerSv.GetProjectDailyBreakdown(env.ctx, "u1", "proj-alpha", 7)
	require.NoError(t, err)
	require.Len(t, daily, 7, "every day renders, zero-filled")

	var total time.Duration
	for i, day := range daily {
		require.NotEmpty(t, day.Date)
		if i > 0 {
			require.Greater(t, day.Date, daily[i-1].Date)
		}
		total += day.ActiveTime
	}
	require.Equal(t, time.Hour, total)
}

func TestGetTeamTimeCoversMembers(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now().UTC()

	env.teams.teams["proj-alpha"] = []repositories.TeamMember{
		{UserID: "u1", Name: "Ada"},
		{UserID: "u2", Name: "Grace"},
		{UserID: "u3", Name: "Edsger"},
	}

	require.NoError(t, env.sessions.Store(endedSession("sess_a", "u1", "proj-alpha", now.Add(-5*time.Hour), 2*time.Hour)))
	require.NoError(t, env.sessions.Store(endedSession("sess_b", "u2", "proj-alpha", now.Add(-3*time.Hour), time.Hour)))
	// u2 also worked on another project; it must not leak in.
	require.NoError(t, env.sessions.Store(endedSession("sess_c", "u2", "proj-beta", now.Add(-2*time.Hour), 4*time.Hour)))

	members, err := env.ledgerSv.GetTeamTime(env.ctx, "proj-alpha", now.Add(-30*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, members, 3)

	require.Equal(t, "u1", members[0].UserID)
	require.Equal(t, 2*time.Hour, members[0].ActiveTime)
	require.Equal(t, "u2", members[1].UserID)
	require.Equal(t, time.Hour, members[1].ActiveTime)
	require.Equal(t, "u3", members[2].UserID)
	require.Zero(t, members[2].ActiveTime, "members with no sessions still appear")
}

func TestAggregationReadsSafelyAlongsideHeartbeats(t *testing.T) {
	env := newTestEnv(t)
	start := time.Now().UTC()

	result := env.sessionSv.StartOrResumeSession(env.ctx, "u1")
	require.True(t, env.sessionSv.SwitchProject(env.ctx, "u1", result.SessionID, "proj-alpha").Success)

	// Heartbeats mutate the live session while aggregation snapshots it.
	var wg sync.WaitGroup
	errs := make(chan error, 200)
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			errs <- env.sessionSv.RecordHeartbeat(env.ctx, HeartbeatInput{
				SessionID:        result.SessionID,
				CurrentProjectID: "proj-alpha",
				IsVisible:        true,
			})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			_, err := env.ledgerSv.GetProjectTimes(env.ctx, "u1", start.Add(-time.Hour))
			errs <- err
		}
	}()
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	// The open segment is counted once: its accrual can never exceed the
	// wall clock that has actually passed.
	totals, err := env.ledgerSv.GetProjectTimes(env.ctx, "u1", start.Add(-time.Hour))
	require.NoError(t, err)
	elapsed := time.Since(start)
	for _, total := range totals {
		require.LessOrEqual(t, total.ActiveTime, elapsed+time.Second)
	}
}

func TestGetTeamTimeEmptyTeam(t *testing.T) {
	env := newTestEnv(t)
	members, err := env.ledgerSv.GetTeamTime(env.ctx, "proj-alpha", time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	require.Empty(t, members)
}
