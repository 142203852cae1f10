// Package partition assigns candidate lengths to the ranks of a process group.
//
// Every rank receives an infinite, strictly increasing sequence of lengths.
// Taken together the sequences of ranks [0, size) cover every non-negative
// length exactly once, so no two ranks ever enumerate the same length.
package partition

import (
	"fmt"
	"iter"
)

// Strategy selects how lengths are dealt out to ranks.
type Strategy string

const (
	// RoundRobin deals length n to rank n mod size.
	RoundRobin Strategy = "round-robin"
	// Snake deals each block of size lengths forward on even blocks and
	// backward on odd blocks, so the rank holding the shortest length of
	// one block holds the longest length of the next.
	Snake Strategy = "snake"
)

// ParseStrategy maps a configuration value to a Strategy.
// An empty string selects RoundRobin.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "", RoundRobin:
		return RoundRobin, nil
	case Snake:
		return Snake, nil
	default:
		return "", fmt.Errorf("unknown partition strategy %q", s)
	}
}

// Validate checks that rank lies in [0, size) and size is positive.
func Validate(rank, size int) error {
	if size < 1 {
		return fmt.Errorf("group size must be positive, got %d", size)
	}
	if rank < 0 || rank >= size {
		return fmt.Errorf("rank %d outside [0, %d)", rank, size)
	}
	return nil
}

// Lengths returns the lazy, infinite sequence of lengths assigned to rank.
// The caller stops iterating when it is done; the sequence never ends on its own.
//
// Parameters:
//   - strategy: RoundRobin or Snake
//   - rank: this process's rank, in [0, size)
//   - size: number of processes in the group
//
// Example:
//
//	for length := range partition.Lengths(partition.RoundRobin, 1, 4) {
//	    // 1, 5, 9, 13, ...
//	}
func Lengths(strategy Strategy, rank, size int) iter.Seq[int] {
	return func(yield func(int) bool) {
		for block := 0; ; block++ {
			if !yield(At(strategy, rank, size, block)) {
				return
			}
		}
	}
}

// At returns the length assigned to rank in the given block.
// Block b covers lengths [b*size, (b+1)*size).
func At(strategy Strategy, rank, size, block int) int {
	base := block * size
	if strategy == Snake && block%2 == 1 {
		return base + size - 1 - rank
	}
	return base + rank
}

// Owner returns the rank that is assigned length under strategy.
// It is the inverse of At.
func Owner(strategy Strategy, size, length int) int {
	block, offset := length/size, length%size
	if strategy == Snake && block%2 == 1 {
		return size - 1 - offset
	}
	return offset
}
