package stores

import (
	"testing"
	"time"

	"github.com/PlanPulseHQ/planpulse-go/internal/domain/session"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func seedSession(t *testing.T, store *SessionsStore, id, userID string) *session.Session {
	t.Helper()
	s := session.New(id, userID, base)
	s.SwitchTo("proj-alpha", base, 5*time.Minute)
	s.Entry("proj-alpha").AppendHeartbeat(base.Add(time.Minute))
	store.SetSession("default", s)
	return s
}

func TestGetSessionReturnsIsolatedCopy(t *testing.T) {
	store := NewSessionsStore(nil)
	store.InitializeTenant("default")
	seedSession(t, store, "sess_1", "u1")

	first, found := store.GetSession("default", "sess_1")
	require.True(t, found)

	// Mutating the returned record must not touch the cached one.
	first.LastActivity = base.Add(time.Hour)
	first.Entry("proj-alpha").AppendHeartbeat(base.Add(2 * time.Minute))
	first.Entry("proj-alpha").ActiveTime = time.Hour

	second, found := store.GetSession("default", "sess_1")
	require.True(t, found)
	require.Equal(t, base, second.LastActivity)
	require.Len(t, second.Entry("proj-alpha").HeartbeatTimestamps, 1)
	require.Zero(t, second.Entry("proj-alpha").ActiveTime)

	// Publishing via SetSession is how changes land.
	store.SetSession("default", first)
	third, _ := store.GetSession("default", "sess_1")
	require.Equal(t, base.Add(time.Hour), third.LastActivity)
	require.Len(t, third.Entry("proj-alpha").HeartbeatTimestamps, 2)
}

func TestGetActiveSessionForUserReturnsIsolatedCopy(t *testing.T) {
	store := NewSessionsStore(nil)
	store.InitializeTenant("default")
	seedSession(t, store, "sess_1", "u1")

	live, found := store.GetActiveSessionForUser("default", "u1")
	require.True(t, found)
	require.Equal(t, "sess_1", live.SessionID)

	live.IsActive = false

	again, found := store.GetActiveSessionForUser("default", "u1")
	require.True(t, found, "the cached record stays active")
	require.True(t, again.IsActive)
}

func TestSetSessionMaintainsUserIndex(t *testing.T) {
	store := NewSessionsStore(nil)
	store.InitializeTenant("default")
	seedSession(t, store, "sess_1", "u1")

	ended, _ := store.GetSession("default", "sess_1")
	ended.End(base.Add(time.Hour), 5*time.Minute)
	store.SetSession("default", ended)

	_, found := store.GetActiveSessionForUser("default", "u1")
	require.False(t, found, "ended sessions leave the active index")

	kept, found := store.GetSession("default", "sess_1")
	require.True(t, found)
	require.False(t, kept.IsActive)
}
