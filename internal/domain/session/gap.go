package session

import (
	"sort"
	"time"
)

// ActiveTime computes the engaged portion of [start, end] from a set of
// heartbeat timestamps. The interval is partitioned at each heartbeat and at
// its own endpoints; a sub-interval counts as engaged only when it is no
// longer than idleThreshold. Longer sub-intervals mean the client stopped
// pinging and are excluded as idle.
//
// Heartbeats outside [start, end] are ignored, duplicates and out-of-order
// arrivals are normalized before partitioning, so replaying a heartbeat never
// changes the result. An empty heartbeat set yields zero: with no presence
// signal the whole interval is treated as idle.
//
// The result never exceeds end.Sub(start).
func ActiveTime(start, end time.Time, heartbeats []time.Time, idleThreshold time.Duration) time.Duration {
	if !end.After(start) || idleThreshold <= 0 {
		return 0
	}

	points := normalizeHeartbeats(start, end, heartbeats)
	if len(points) == 0 {
		return 0
	}

	var active time.Duration

	prev := start
	for _, hb := range points {
		if gap := hb.Sub(prev); gap <= idleThreshold {
			active += gap
		}
		prev = hb
	}
	if gap := end.Sub(prev); gap <= idleThreshold {
		active += gap
	}

	if span := end.Sub(start); active > span {
		active = span
	}
	return active
}

// normalizeHeartbeats clamps to [start, end], sorts ascending and drops
// duplicates.
func normalizeHeartbeats(start, end time.Time, heartbeats []time.Time) []time.Time {
	points := make([]time.Time, 0, len(heartbeats))
	for _, hb := range heartbeats {
		if hb.Before(start) || hb.After(end) {
			continue
		}
		points = append(points, hb)
	}

	sort.Slice(points, func(i, j int) bool { return points[i].Before(points[j]) })

	deduped := points[:0]
	for i, hb := range points {
		if i > 0 && hb.Equal(points[i-1]) {
			continue
		}
		deduped = append(deduped, hb)
	}
	return deduped
}
