package results

import (
	"sync"

	"github.com/dreamware/crcsearch/internal/wire"
)

// StoreStats contains statistics about the store
type StoreStats struct {
	Matches int         `json:"matches"` // Number of matches recorded
	Bytes   int         `json:"bytes"`   // Total candidate bytes
	Sources map[int]int `json:"sources"` // Matches per reporting rank
}

// Store is the coordinator's append-only, ordered record of matches.
// Entries are never removed or reordered.
// Uses sync.RWMutex so the status endpoint can read while the search appends.
type Store struct {
	mu      sync.RWMutex
	matches []wire.Match
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{}
}

// Append records m. The store takes ownership of m.Candidate.
func (s *Store) Append(m wire.Match) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matches = append(s.matches, m)
}

// Len returns the number of matches recorded so far.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.matches)
}

// Matches returns a copy of the matches in insertion order.
func (s *Store) Matches() []wire.Match {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyLocked()
}

// Stats returns store statistics
func (s *Store) Stats() StoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.statsLocked()
}

// snapshot returns the matches and their statistics as of one instant.
func (s *Store) snapshot() ([]wire.Match, StoreStats) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyLocked(), s.statsLocked()
}

func (s *Store) copyLocked() []wire.Match {
	out := make([]wire.Match, len(s.matches))
	for i, m := range s.matches {
		m.Candidate = append([]byte(nil), m.Candidate...)
		out[i] = m
	}
	return out
}

func (s *Store) statsLocked() StoreStats {
	stats := StoreStats{Matches: len(s.matches), Sources: make(map[int]int)}
	for _, m := range s.matches {
		stats.Bytes += len(m.Candidate)
		stats.Sources[m.Source]++
	}
	return stats
}
