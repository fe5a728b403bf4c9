package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func hb(minutes ...int) []time.Time {
	out := make([]time.Time, 0, len(minutes))
	for _, m := range minutes {
		out = append(out, base.Add(time.Duration(m)*time.Minute))
	}
	return out
}

func TestActiveTimeContinuousPings(t *testing.T) {
	// Pings every minute over an hour: the whole span is engaged.
	beats := make([]time.Time, 0, 60)
	for m := 1; m < 60; m++ {
		beats = append(beats, base.Add(time.Duration(m)*time.Minute))
	}
	got := ActiveTime(base, base.Add(time.Hour), beats, 5*time.Minute)
	require.Equal(t, time.Hour, got)
}

func TestActiveTimeExcludesLongGap(t *testing.T) {
	// Pings at 1..4, silence until 34, pings 34..37, end at 40.
	beats := hb(1, 2, 3, 4, 34, 35, 36, 37)
	got := ActiveTime(base, base.Add(40*time.Minute), beats, 5*time.Minute)

	// Engaged: [0,4] leading run, [34,37] trailing run plus [37,40] tail.
	require.Equal(t, 10*time.Minute, got)
}

func TestActiveTimeEmptyHeartbeats(t *testing.T) {
	got := ActiveTime(base, base.Add(time.Hour), nil, 5*time.Minute)
	require.Zero(t, got)
}

func TestActiveTimeGapExactlyAtThreshold(t *testing.T) {
	// A gap of exactly the threshold still counts as engaged.
	beats := hb(5)
	got := ActiveTime(base, base.Add(5*time.Minute), beats, 5*time.Minute)
	require.Equal(t, 5*time.Minute, got)
}

func TestActiveTimeIgnoresOutOfRangeBeats(t *testing.T) {
	beats := []time.Time{
		base.Add(-10 * time.Minute),
		base.Add(2 * time.Minute),
		base.Add(90 * time.Minute),
	}
	got := ActiveTime(base, base.Add(4*time.Minute), beats, 5*time.Minute)
	require.Equal(t, 4*time.Minute, got)
}

func TestActiveTimeDuplicatesAndDisorderAreIdempotent(t *testing.T) {
	ordered := hb(1, 2, 3, 8, 9)
	scrambled := hb(9, 2, 1, 8, 3, 2, 9, 1)

	end := base.Add(12 * time.Minute)
	require.Equal(t,
		ActiveTime(base, end, ordered, 5*time.Minute),
		ActiveTime(base, end, scrambled, 5*time.Minute))
}

func TestActiveTimeNeverExceedsSpan(t *testing.T) {
	beats := hb(0, 1, 1, 2, 2, 3)
	span := 3 * time.Minute
	got := ActiveTime(base, base.Add(span), beats, 5*time.Minute)
	require.LessOrEqual(t, got, span)
}

func TestActiveTimeDegenerateInputs(t *testing.T) {
	require.Zero(t, ActiveTime(base, base, hb(1), 5*time.Minute))
	require.Zero(t, ActiveTime(base.Add(time.Minute), base, hb(1), 5*time.Minute))
	require.Zero(t, ActiveTime(base, base.Add(time.Hour), hb(1), 0))
}
