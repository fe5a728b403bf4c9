package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const idle = 5 * time.Minute

func TestAppendHeartbeatKeepsOrderAndDropsDuplicates(t *testing.T) {
	e := &ProjectTimeEntry{ProjectID: "p1"}

	require.True(t, e.AppendHeartbeat(base.Add(2*time.Minute)))
	require.True(t, e.AppendHeartbeat(base.Add(4*time.Minute)))
	require.True(t, e.AppendHeartbeat(base.Add(1*time.Minute))) // late arrival
	require.False(t, e.AppendHeartbeat(base.Add(2*time.Minute)))
	require.False(t, e.AppendHeartbeat(base.Add(4*time.Minute)))

	require.Len(t, e.HeartbeatTimestamps, 3)
	for i := 1; i < len(e.HeartbeatTimestamps); i++ {
		require.True(t, e.HeartbeatTimestamps[i].After(e.HeartbeatTimestamps[i-1]))
	}
}

func TestTrimHeartbeatsDropsOldest(t *testing.T) {
	e := &ProjectTimeEntry{ProjectID: "p1"}
	for m := 0; m < 10; m++ {
		e.AppendHeartbeat(base.Add(time.Duration(m) * time.Minute))
	}
	e.TrimHeartbeats(4)

	require.Len(t, e.HeartbeatTimestamps, 4)
	require.Equal(t, base.Add(6*time.Minute), e.HeartbeatTimestamps[0])
}

func TestSwitchToFinalizesOutgoingProject(t *testing.T) {
	s := New("sess_1", "u1", base)
	s.SwitchTo("alpha", base, idle)

	entry := s.Entry("alpha")
	for m := 1; m <= 10; m++ {
		entry.AppendHeartbeat(base.Add(time.Duration(m) * time.Minute))
	}

	s.SwitchTo("beta", base.Add(10*time.Minute), idle)

	alpha := s.Entry("alpha")
	require.Equal(t, 10*time.Minute, alpha.ActiveTime)
	require.Equal(t, 10*time.Minute, alpha.TimeSpent)
	require.Empty(t, alpha.HeartbeatTimestamps, "finalize must consume heartbeats")
	require.Equal(t, "beta", s.CurrentProjectID)
	require.Equal(t, base.Add(10*time.Minute), s.CurrentProjectStartTime)
}

func TestSwitchToSameProjectCountsNothingTwice(t *testing.T) {
	s := New("sess_1", "u1", base)
	s.SwitchTo("alpha", base, idle)

	entry := s.Entry("alpha")
	entry.AppendHeartbeat(base.Add(1 * time.Minute))
	entry.AppendHeartbeat(base.Add(2 * time.Minute))

	s.SwitchTo("alpha", base.Add(3*time.Minute), idle)
	s.SwitchTo("alpha", base.Add(3*time.Minute), idle)

	require.Equal(t, 3*time.Minute, s.Entry("alpha").ActiveTime)
	require.Len(t, s.ProjectTimeBreakdown, 1)
}

func TestEndIsIdempotent(t *testing.T) {
	s := New("sess_1", "u1", base)
	s.SwitchTo("alpha", base, idle)
	s.Entry("alpha").AppendHeartbeat(base.Add(time.Minute))

	require.True(t, s.End(base.Add(2*time.Minute), idle))
	firstActive := s.Entry("alpha").ActiveTime
	firstDuration := s.Duration

	require.False(t, s.End(base.Add(30*time.Minute), idle))
	require.Equal(t, firstActive, s.Entry("alpha").ActiveTime)
	require.Equal(t, firstDuration, s.Duration)
	require.False(t, s.IsActive)
	require.Empty(t, s.CurrentProjectID)
}

func TestEndSetsWholeSecondDuration(t *testing.T) {
	s := New("sess_1", "u1", base)
	s.End(base.Add(90*time.Second+500*time.Millisecond), idle)
	require.Equal(t, int64(91), s.Duration, "fractional seconds round up")

	exact := New("sess_2", "u1", base)
	exact.End(base.Add(90*time.Second), idle)
	require.Equal(t, int64(90), exact.Duration)
}

func TestDurationNeverUndercutsActiveTime(t *testing.T) {
	// A fully engaged session ending mid-second: truncation would report a
	// duration one second short of the accrued active time.
	s := New("sess_1", "u1", base)
	s.SwitchTo("alpha", base, idle)

	entry := s.Entry("alpha")
	for sec := 30; sec <= 90; sec += 30 {
		entry.AppendHeartbeat(base.Add(time.Duration(sec) * time.Second))
	}
	s.End(base.Add(90*time.Second+500*time.Millisecond), idle)

	require.Equal(t, 90*time.Second+500*time.Millisecond, s.TotalActiveTime())
	require.GreaterOrEqual(t, time.Duration(s.Duration)*time.Second, s.TotalActiveTime())
}

func TestProvisionalDeltaOnlyForCurrentProject(t *testing.T) {
	s := New("sess_1", "u1", base)
	s.SwitchTo("alpha", base, idle)
	s.Entry("alpha").AppendHeartbeat(base.Add(time.Minute))

	now := base.Add(2 * time.Minute)
	require.Equal(t, 2*time.Minute, s.ProvisionalDelta("alpha", now, idle))
	require.Zero(t, s.ProvisionalDelta("beta", now, idle))

	s.End(now, idle)
	require.Zero(t, s.ProvisionalDelta("alpha", base.Add(3*time.Minute), idle))
}

func TestSessionDurationCoversActiveTime(t *testing.T) {
	// Idle gaps shrink active time but never session duration.
	s := New("sess_1", "u1", base)
	s.SwitchTo("alpha", base, idle)

	entry := s.Entry("alpha")
	entry.AppendHeartbeat(base.Add(1 * time.Minute))
	entry.AppendHeartbeat(base.Add(30 * time.Minute)) // long idle gap before this

	s.End(base.Add(31*time.Minute), idle)

	require.Equal(t, int64(31*60), s.Duration)
	require.Less(t, s.TotalActiveTime(), 31*time.Minute)
	require.LessOrEqual(t, s.TotalActiveTime(), time.Duration(s.Duration)*time.Second)
}

func TestEffectiveActiveTimeFallsBackToTimeSpent(t *testing.T) {
	e := &ProjectTimeEntry{ProjectID: "p1", TimeSpent: 7 * time.Minute}
	require.Equal(t, 7*time.Minute, e.EffectiveActiveTime())

	e.ActiveTime = 3 * time.Minute
	require.Equal(t, 3*time.Minute, e.EffectiveActiveTime())
}

func TestCloneIsDeep(t *testing.T) {
	s := New("sess_1", "u1", base)
	s.SwitchTo("alpha", base, idle)
	s.Entry("alpha").AppendHeartbeat(base.Add(time.Minute))

	c := s.Clone()
	c.Entry("alpha").AppendHeartbeat(base.Add(2 * time.Minute))
	c.SwitchTo("beta", base.Add(3*time.Minute), idle)

	require.Len(t, s.Entry("alpha").HeartbeatTimestamps, 1)
	require.Equal(t, "alpha", s.CurrentProjectID)
}
