package engine

import (
	"sync/atomic"
	"time"
)

// Clock supplies wall time for statement timing.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Sequence numbers the statements an engine issues, across executions.
// The number appears in logs and traces so statements of interleaved
// executions can be ordered.
//
// Thread-safety: safe for concurrent use (atomic operations).
type Sequence struct {
	n atomic.Int64
}

// Next returns the next statement number, starting at 1.
func (s *Sequence) Next() int64 {
	return s.n.Add(1)
}

// Current returns the last number handed out.
func (s *Sequence) Current() int64 {
	return s.n.Load()
}
