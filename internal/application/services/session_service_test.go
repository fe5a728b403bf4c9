package services

import (
	"sync"
	"testing"
	"time"

	"github.com/PlanPulseHQ/planpulse-go/internal/domain/analytics"
	"github.com/stretchr/testify/require"
)

func TestStartCreatesAndPersistsSession(t *testing.T) {
	env := newTestEnv(t)

	result := env.sessionSv.StartOrResumeSession(env.ctx, "u1")
	require.NotEmpty(t, result.SessionID)
	require.False(t, result.Resumed)
	require.True(t, result.Persisted)

	stored, err := env.sessions.FindByID(result.SessionID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.True(t, stored.IsActive)

	cached, found := env.store.GetSession("default", result.SessionID)
	require.True(t, found)
	require.Equal(t, "u1", cached.UserID)
}

func TestStartResumesRecentSession(t *testing.T) {
	env := newTestEnv(t)

	first := env.sessionSv.StartOrResumeSession(env.ctx, "u1")
	second := env.sessionSv.StartOrResumeSession(env.ctx, "u1")

	require.True(t, second.Resumed)
	require.Equal(t, first.SessionID, second.SessionID)
}

func TestStartAfterResumptionWindowCreatesNewSession(t *testing.T) {
	env := newTestEnv(t)

	first := env.sessionSv.StartOrResumeSession(env.ctx, "u1")

	// Age the live session past the resumption window.
	stale, found := env.store.GetSession("default", first.SessionID)
	require.True(t, found)
	stale.LastActivity = time.Now().UTC().Add(-2 * time.Hour)
	env.store.SetSession("default", stale)

	second := env.sessionSv.StartOrResumeSession(env.ctx, "u1")
	require.False(t, second.Resumed)
	require.NotEqual(t, first.SessionID, second.SessionID)

	// The stale session was closed, not abandoned.
	old, err := env.sessions.FindByID(first.SessionID)
	require.NoError(t, err)
	require.False(t, old.IsActive)
	require.NotNil(t, old.EndTime)
}

func TestStartSurvivesStorageFailure(t *testing.T) {
	env := newTestEnv(t)
	env.sessions.failStore = true
	env.sessions.failUpdate = true

	result := env.sessionSv.StartOrResumeSession(env.ctx, "u1")
	require.NotEmpty(t, result.SessionID, "client must get a session ID despite storage failure")
	require.False(t, result.Persisted)

	// The phantom session still works from cache.
	err := env.sessionSv.RecordHeartbeat(env.ctx, HeartbeatInput{
		SessionID:        result.SessionID,
		IsVisible:        true,
		CurrentProjectID: "proj-alpha",
	})
	require.NoError(t, err)
}

func TestHeartbeatUpdatesActivityAndCollectsBeats(t *testing.T) {
	env := newTestEnv(t)
	result := env.sessionSv.StartOrResumeSession(env.ctx, "u1")

	ts := time.Now().UTC()
	err := env.sessionSv.RecordHeartbeat(env.ctx, HeartbeatInput{
		SessionID:        result.SessionID,
		Timestamp:        ts,
		IsVisible:        true,
		CurrentProjectID: "proj-alpha",
		CurrentPage:      "/plans/alpha",
	})
	require.NoError(t, err)

	sess, found := env.store.GetSession("default", result.SessionID)
	require.True(t, found)
	require.Equal(t, "proj-alpha", sess.CurrentProjectID)
	require.Equal(t, "/plans/alpha", sess.CurrentPage)
	require.Len(t, sess.Entry("proj-alpha").HeartbeatTimestamps, 1)
	require.False(t, sess.LastActivity.Before(ts))
}

func TestHeartbeatDoesNotRecordAnalyticsEvents(t *testing.T) {
	env := newTestEnv(t)
	result := env.sessionSv.StartOrResumeSession(env.ctx, "u1")

	// Wait for the start event to land so the baseline is stable.
	require.Eventually(t, func() bool {
		return env.events.countType(analytics.EventSessionStart) == 1
	}, time.Second, 5*time.Millisecond)
	before := env.events.countAll()

	for i := 0; i < 5; i++ {
		err := env.sessionSv.RecordHeartbeat(env.ctx, HeartbeatInput{
			SessionID:        result.SessionID,
			CurrentProjectID: "proj-alpha",
		})
		require.NoError(t, err)
	}
	env.drainRecorder(t)

	require.Equal(t, before, env.events.countAll(), "heartbeats must never create analytics rows")
}

func TestHeartbeatForUnknownSessionFails(t *testing.T) {
	env := newTestEnv(t)
	err := env.sessionSv.RecordHeartbeat(env.ctx, HeartbeatInput{SessionID: "sess_missing"})
	require.Error(t, err)
}

func TestHeartbeatWithNewProjectSwitchesImplicitly(t *testing.T) {
	env := newTestEnv(t)
	result := env.sessionSv.StartOrResumeSession(env.ctx, "u1")

	require.NoError(t, env.sessionSv.RecordHeartbeat(env.ctx, HeartbeatInput{
		SessionID: result.SessionID, CurrentProjectID: "proj-alpha",
	}))
	require.NoError(t, env.sessionSv.RecordHeartbeat(env.ctx, HeartbeatInput{
		SessionID: result.SessionID, CurrentProjectID: "proj-beta",
	}))

	sess, _ := env.store.GetSession("default", result.SessionID)
	require.Equal(t, "proj-beta", sess.CurrentProjectID)
	require.NotNil(t, sess.Entry("proj-alpha"))
}

func TestSwitchProjectRejectsUnknownProject(t *testing.T) {
	env := newTestEnv(t)
	result := env.sessionSv.StartOrResumeSession(env.ctx, "u1")

	switched := env.sessionSv.SwitchProject(env.ctx, "u1", result.SessionID, "proj-nope")
	require.False(t, switched.Success)
	require.Equal(t, "project not found", switched.Error)
}

func TestSwitchProjectRejectsWrongUser(t *testing.T) {
	env := newTestEnv(t)
	result := env.sessionSv.StartOrResumeSession(env.ctx, "u1")

	switched := env.sessionSv.SwitchProject(env.ctx, "u2", result.SessionID, "proj-alpha")
	require.False(t, switched.Success)
}

func TestConcurrentSwitchesSerializePerSession(t *testing.T) {
	env := newTestEnv(t)
	result := env.sessionSv.StartOrResumeSession(env.ctx, "u1")

	require.True(t, env.sessionSv.SwitchProject(env.ctx, "u1", result.SessionID, "proj-alpha").Success)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		target := "proj-alpha"
		if i%2 == 1 {
			target = "proj-beta"
		}
		wg.Add(1)
		go func(projectID string) {
			defer wg.Done()
			env.sessionSv.SwitchProject(env.ctx, "u1", result.SessionID, projectID)
		}(target)
	}
	wg.Wait()

	sess, found := env.store.GetSession("default", result.SessionID)
	require.True(t, found)

	// Serialized switches leave a consistent ledger: exactly one entry per
	// project and the current project owned by the last writer.
	require.Len(t, sess.ProjectTimeBreakdown, 2)
	require.Contains(t, []string{"proj-alpha", "proj-beta"}, sess.CurrentProjectID)
	require.False(t, sess.CurrentProjectStartTime.IsZero())
}

func TestResumeSerializesWithHeartbeats(t *testing.T) {
	env := newTestEnv(t)
	result := env.sessionSv.StartOrResumeSession(env.ctx, "u1")

	// Resume takes the session lock before touching the record, so it cannot
	// interleave with a heartbeat's read-modify-write.
	var wg sync.WaitGroup
	errs := make(chan error, 25)
	starts := make(chan *StartResult, 25)
	for i := 0; i < 25; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			starts <- env.sessionSv.StartOrResumeSession(env.ctx, "u1")
		}()
		go func() {
			defer wg.Done()
			errs <- env.sessionSv.RecordHeartbeat(env.ctx, HeartbeatInput{
				SessionID:        result.SessionID,
				CurrentProjectID: "proj-alpha",
				IsVisible:        true,
			})
		}()
	}
	wg.Wait()
	close(errs)
	close(starts)

	for err := range errs {
		require.NoError(t, err)
	}
	for started := range starts {
		require.True(t, started.Resumed)
		require.Equal(t, result.SessionID, started.SessionID)
	}

	sess, found := env.store.GetSession("default", result.SessionID)
	require.True(t, found)
	require.True(t, sess.IsActive)
	require.Equal(t, "proj-alpha", sess.CurrentProjectID)
}

func TestEndSessionFinalizesAndIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	result := env.sessionSv.StartOrResumeSession(env.ctx, "u1")
	require.True(t, env.sessionSv.SwitchProject(env.ctx, "u1", result.SessionID, "proj-alpha").Success)

	ended, err := env.sessionSv.EndSession(env.ctx, result.SessionID, "u1")
	require.NoError(t, err)
	require.True(t, ended)

	again, err := env.sessionSv.EndSession(env.ctx, result.SessionID, "u1")
	require.NoError(t, err)
	require.False(t, again, "second end must be a no-op")

	missing, err := env.sessionSv.EndSession(env.ctx, "sess_missing", "u1")
	require.NoError(t, err)
	require.False(t, missing)
}

func TestEndSessionEmitsSessionEndEvent(t *testing.T) {
	env := newTestEnv(t)
	result := env.sessionSv.StartOrResumeSession(env.ctx, "u1")

	_, err := env.sessionSv.EndSession(env.ctx, result.SessionID, "u1")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return env.events.countType(analytics.EventSessionEnd) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestSweepClosesStaleSessions(t *testing.T) {
	env := newTestEnv(t)
	result := env.sessionSv.StartOrResumeSession(env.ctx, "u1")

	sess, _ := env.store.GetSession("default", result.SessionID)
	sess.LastActivity = time.Now().UTC().Add(-3 * time.Hour)
	env.store.SetSession("default", sess)
	require.NoError(t, env.sessions.Update(sess))

	closed := env.sessionSv.SweepStaleSessions(env.ctx)
	require.Equal(t, 1, closed)

	swept, _ := env.store.GetSession("default", result.SessionID)
	require.False(t, swept.IsActive)

	require.Zero(t, env.sessionSv.SweepStaleSessions(env.ctx))
}
