package decrypt

import (
	"sync/atomic"
	"time"
)

// Stats accumulates run-wide counters. Each record increments exactly one of
// processed, skipped or errored. Safe for concurrent use.
type Stats struct {
	processed atomic.Int64
	skipped   atomic.Int64
	errored   atomic.Int64
	bytes     atomic.Int64
	completed atomic.Int64
	startedAt time.Time
}

// NewStats creates zeroed counters for a run that started at startedAt.
func NewStats(startedAt time.Time) *Stats {
	return &Stats{startedAt: startedAt}
}

// AddProcessed counts a successfully materialized record of the given declared
// size and returns the number of completed records.
func (s *Stats) AddProcessed(size int64) int64 {
	s.processed.Add(1)
	if size > 0 {
		s.bytes.Add(size)
	}
	return s.completed.Add(1)
}

// AddSkipped counts a skipped record and returns the number of completed records.
func (s *Stats) AddSkipped() int64 {
	s.skipped.Add(1)
	return s.completed.Add(1)
}

// AddErrored counts a failed record and returns the number of completed records.
func (s *Stats) AddErrored() int64 {
	s.errored.Add(1)
	return s.completed.Add(1)
}

// Snapshot is a point-in-time read of the counters.
type Snapshot struct {
	Processed int64
	Skipped   int64
	Errored   int64
	Bytes     int64
	Elapsed   time.Duration
}

// Completed returns the number of records that reached a terminal disposition.
func (s Snapshot) Completed() int64 {
	return s.Processed + s.Skipped + s.Errored
}

// Snapshot reads the counters, with elapsed time measured up to now.
func (s *Stats) Snapshot(now time.Time) Snapshot {
	return Snapshot{
		Processed: s.processed.Load(),
		Skipped:   s.skipped.Load(),
		Errored:   s.errored.Load(),
		Bytes:     s.bytes.Load(),
		Elapsed:   now.Sub(s.startedAt),
	}
}
