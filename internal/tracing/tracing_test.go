package tracing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewWithoutServerIsNop(t *testing.T) {
	r := New(Config{Identity: "coordinator"})
	assert.Equal(t, Nop(), r)
	assert.NotPanics(t, func() {
		r.RecordAction(SearchStarted{Rank: 0, Size: 1, Target: 0xC8A106E5})
		r.RecordAction(MatchFound{Rank: 0, Candidate: "Hello, world!"})
	})
}
