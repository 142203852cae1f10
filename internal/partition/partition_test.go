package partition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func take(seq func(func(int) bool), n int) []int {
	out := make([]int, 0, n)
	for v := range seq {
		out = append(out, v)
		if len(out) == n {
			break
		}
	}
	return out
}

func TestRoundRobinSequence(t *testing.T) {
	assert.Equal(t, []int{0, 4, 8, 12}, take(Lengths(RoundRobin, 0, 4), 4))
	assert.Equal(t, []int{3, 7, 11, 15}, take(Lengths(RoundRobin, 3, 4), 4))
	assert.Equal(t, []int{0, 1, 2, 3, 4}, take(Lengths(RoundRobin, 0, 1), 5))
}

// Rank r gets r, 2P-1-r, 2P+r, 4P-1-r, ...
func TestSnakeSequence(t *testing.T) {
	assert.Equal(t, []int{0, 7, 8, 15}, take(Lengths(Snake, 0, 4), 4))
	assert.Equal(t, []int{1, 6, 9, 14}, take(Lengths(Snake, 1, 4), 4))
	assert.Equal(t, []int{3, 4, 11, 12}, take(Lengths(Snake, 3, 4), 4))
}

// TestSnakeMatchesAlternatingIncrement checks the closed form against the
// step-by-step increment that flips between two expressions every block.
func TestSnakeMatchesAlternatingIncrement(t *testing.T) {
	for size := 1; size <= 9; size++ {
		for rank := 0; rank < size; rank++ {
			length, flip := rank, false
			want := make([]int, 0, 12)
			for i := 0; i < 12; i++ {
				want = append(want, length)
				if flip {
					length += size - (size - rank) + (size - (length % size))
				} else {
					length += size - rank + (size - (length % size)) - 1
				}
				flip = !flip
			}
			assert.Equal(t, want, take(Lengths(Snake, rank, size), 12), "rank %d size %d", rank, size)
		}
	}
}

func TestCoverageIsCompleteAndDisjoint(t *testing.T) {
	const limit = 200
	for _, strategy := range []Strategy{RoundRobin, Snake} {
		for size := 1; size <= 12; size++ {
			owners := make(map[int]int)
			for rank := 0; rank < size; rank++ {
				prev := -1
				for length := range Lengths(strategy, rank, size) {
					if length >= limit {
						break
					}
					require.Greater(t, length, prev, "%s: sequence must increase", strategy)
					prev = length
					if other, dup := owners[length]; dup {
						t.Fatalf("%s size %d: length %d assigned to ranks %d and %d", strategy, size, length, other, rank)
					}
					owners[length] = rank
					assert.Equal(t, rank, Owner(strategy, size, length))
				}
			}
			for length := 0; length < limit; length++ {
				_, ok := owners[length]
				assert.True(t, ok, "%s size %d: length %d not covered", strategy, size, length)
			}
		}
	}
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		in      string
		want    Strategy
		wantErr bool
	}{
		{"", RoundRobin, false},
		{"round-robin", RoundRobin, false},
		{"snake", Snake, false},
		{"zigzag", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseStrategy(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(0, 1))
	assert.NoError(t, Validate(3, 4))
	assert.Error(t, Validate(4, 4))
	assert.Error(t, Validate(-1, 4))
	assert.Error(t, Validate(0, 0))
}
