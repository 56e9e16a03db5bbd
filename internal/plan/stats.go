package plan

import (
	"sync/atomic"
	"time"
)

// Stats accumulates execution statistics of one plan.
//
// Thread-safety: all methods are safe for concurrent use. Updates use
// atomic arithmetic only.
type Stats struct {
	count       atomic.Int64
	rows        atomic.Int64
	totalMicros atomic.Int64
	minMicros   atomic.Int64 // 0 = unset; stored as micros+1
	maxMicros   atomic.Int64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Count       int64 `json:"count"`
	Rows        int64 `json:"rows"`
	TotalMicros int64 `json:"total_micros"`
	MinMicros   int64 `json:"min_micros"`
	MaxMicros   int64 `json:"max_micros"`
	MeanMicros  int64 `json:"mean_micros"`
}

// Record adds one execution.
func (s *Stats) Record(rows int, elapsed time.Duration) {
	micros := elapsed.Microseconds()
	s.count.Add(1)
	s.rows.Add(int64(rows))
	s.totalMicros.Add(micros)

	for {
		cur := s.minMicros.Load()
		if cur != 0 && cur-1 <= micros {
			break
		}
		if s.minMicros.CompareAndSwap(cur, micros+1) {
			break
		}
	}
	for {
		cur := s.maxMicros.Load()
		if cur >= micros {
			break
		}
		if s.maxMicros.CompareAndSwap(cur, micros) {
			break
		}
	}
}

// Snapshot returns the current values.
func (s *Stats) Snapshot() StatsSnapshot {
	snap := StatsSnapshot{
		Count:       s.count.Load(),
		Rows:        s.rows.Load(),
		TotalMicros: s.totalMicros.Load(),
		MaxMicros:   s.maxMicros.Load(),
	}
	if m := s.minMicros.Load(); m > 0 {
		snap.MinMicros = m - 1
	}
	if snap.Count > 0 {
		snap.MeanMicros = snap.TotalMicros / snap.Count
	}
	return snap
}
