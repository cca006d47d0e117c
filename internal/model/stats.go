package model

import "sync/atomic"

// ScanStats is a set of independent counters updated by concurrent scan
// workers. Each counter is atomic on its own; a Snapshot is not a
// consistent cross-counter view, only monotonically non-decreasing per
// counter.
type ScanStats struct {
	entries     atomic.Uint64
	directories atomic.Uint64
	files       atomic.Uint64
	errors      atomic.Uint64
	size        atomic.Uint64
	blocks      atomic.Uint64
}

// NewScanStats returns zeroed counters.
func NewScanStats() *ScanStats {
	return &ScanStats{}
}

// AddEntry records one countable entry with its metrics.
func (s *ScanStats) AddEntry(size, blocks int64) {
	s.entries.Add(1)
	if size > 0 {
		s.size.Add(uint64(size))
	}
	if blocks > 0 {
		s.blocks.Add(uint64(blocks))
	}
}

// AddDirectory records one directory.
func (s *ScanStats) AddDirectory() { s.directories.Add(1) }

// AddFile records one non-directory entry.
func (s *ScanStats) AddFile() { s.files.Add(1) }

// AddError records one contained per-object failure.
func (s *ScanStats) AddError() { s.errors.Add(1) }

// Errors returns the current error count.
func (s *ScanStats) Errors() uint64 { return s.errors.Load() }

// StatsSnapshot is a point-in-time read of the counters.
type StatsSnapshot struct {
	TotalEntries uint64
	Directories  uint64
	Files        uint64
	Errors       uint64
	TotalSize    uint64
	TotalBlocks  uint64
}

// Snapshot reads all counters. Safe to call at any time from any
// goroutine.
func (s *ScanStats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		TotalEntries: s.entries.Load(),
		Directories:  s.directories.Load(),
		Files:        s.files.Load(),
		Errors:       s.errors.Load(),
		TotalSize:    s.size.Load(),
		TotalBlocks:  s.blocks.Load(),
	}
}
