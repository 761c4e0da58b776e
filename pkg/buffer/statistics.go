package buffer

import (
	"sync/atomic"
	"time"
)

// Statistics tracks buffer activity. All methods are safe for concurrent use.
type Statistics struct {
	writes    atomic.Int64
	reads     atomic.Int64
	peeks     atomic.Int64
	overflows atomic.Int64
	drops     atomic.Int64

	currentSize atomic.Int64
	maxSize     atomic.Int64

	startTime time.Time
}

// NewStatistics creates a new statistics tracker.
func NewStatistics() *Statistics {
	return &Statistics{startTime: time.Now()}
}

// Write records one item written.
func (s *Statistics) Write() { s.writes.Add(1) }

// Read records one item read.
func (s *Statistics) Read() { s.reads.Add(1) }

// ReadN records n items read by a batch read.
func (s *Statistics) ReadN(n int64) { s.reads.Add(n) }

// Peek records a peek.
func (s *Statistics) Peek() { s.peeks.Add(1) }

// Overflow records a write that found the buffer full.
func (s *Statistics) Overflow() { s.overflows.Add(1) }

// Drop records an item dropped by the overflow policy.
func (s *Statistics) Drop() { s.drops.Add(1) }

// UpdateSize stores the current size and raises the high-water mark.
func (s *Statistics) UpdateSize(size int64) {
	s.currentSize.Store(size)
	for {
		hw := s.maxSize.Load()
		if size <= hw || s.maxSize.CompareAndSwap(hw, size) {
			return
		}
	}
}

func (s *Statistics) Writes() int64      { return s.writes.Load() }
func (s *Statistics) Reads() int64       { return s.reads.Load() }
func (s *Statistics) Peeks() int64       { return s.peeks.Load() }
func (s *Statistics) Overflows() int64   { return s.overflows.Load() }
func (s *Statistics) Drops() int64       { return s.drops.Load() }
func (s *Statistics) CurrentSize() int64 { return s.currentSize.Load() }
func (s *Statistics) MaxSize() int64     { return s.maxSize.Load() }

// Throughput returns items written per second since the tracker was created.
func (s *Statistics) Throughput() float64 {
	elapsed := time.Since(s.startTime).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(s.Writes()) / elapsed
}

// DropRate returns the fraction of attempted writes that were dropped.
func (s *Statistics) DropRate() float64 {
	writes, drops := s.Writes(), s.Drops()
	if writes+drops == 0 {
		return 0
	}
	return float64(drops) / float64(writes+drops)
}

// Summary returns the counters keyed by name, for logging and JSON output.
func (s *Statistics) Summary() map[string]any {
	return map[string]any{
		"writes":       s.Writes(),
		"reads":        s.Reads(),
		"peeks":        s.Peeks(),
		"overflows":    s.Overflows(),
		"drops":        s.Drops(),
		"current_size": s.CurrentSize(),
		"max_size":     s.MaxSize(),
		"drop_rate":    s.DropRate(),
		"uptime":       time.Since(s.startTime).String(),
	}
}
