package kv

import (
	"sync"

	"github.com/0xlemi/structdb/pkg/merkle"
)

// WriteStats tracks statistics about PutObject calls, adapted from the
// content-addressed storage layer's write-tracking wrapper to verify
// structural sharing (spec.md §3.2, H2) actually happens in practice.
type WriteStats struct {
	TotalWrites        int
	ActualWrites       int // new object, not deduplicated
	DeduplicatedWrites int // hash already present, write skipped
	WrittenHashes      []merkle.Hash
	AllHashes          []merkle.Hash
}

// StatsStore wraps a Store to track PutObject dedup behavior, useful in
// tests and demos that want to assert structural sharing took effect.
type StatsStore struct {
	Store
	mu    sync.Mutex
	stats WriteStats
}

// NewStatsStore wraps inner with write-tracking instrumentation.
func NewStatsStore(inner Store) *StatsStore {
	return &StatsStore{Store: inner}
}

func (s *StatsStore) PutObject(hash merkle.Hash, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existedBefore := s.Store.ExistsObject(hash)
	if err := s.Store.PutObject(hash, data); err != nil {
		return err
	}

	s.stats.TotalWrites++
	s.stats.AllHashes = append(s.stats.AllHashes, hash)
	if existedBefore {
		s.stats.DeduplicatedWrites++
	} else {
		s.stats.ActualWrites++
		s.stats.WrittenHashes = append(s.stats.WrittenHashes, hash)
	}
	return nil
}

// Stats returns a copy of the current write statistics.
func (s *StatsStore) Stats() WriteStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := WriteStats{
		TotalWrites:        s.stats.TotalWrites,
		ActualWrites:       s.stats.ActualWrites,
		DeduplicatedWrites: s.stats.DeduplicatedWrites,
		WrittenHashes:      append([]merkle.Hash(nil), s.stats.WrittenHashes...),
		AllHashes:          append([]merkle.Hash(nil), s.stats.AllHashes...),
	}
	return out
}

// ResetStats clears all tracked statistics.
func (s *StatsStore) ResetStats() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = WriteStats{}
}

// CountUniqueHashes returns the number of distinct hashes in hashes.
func CountUniqueHashes(hashes []merkle.Hash) int {
	seen := make(map[merkle.Hash]bool, len(hashes))
	for _, h := range hashes {
		seen[h] = true
	}
	return len(seen)
}
