// Package tracing records the search protocol's actions on a DistributedClocks
// tracing server, when one is configured. Without a server every recorder
// call is a no-op.
package tracing

import (
	dctracing "github.com/DistributedClocks/tracing"
	log "github.com/sirupsen/logrus"
)

// Config selects the tracing server. An empty ServerAddress disables tracing.
type Config struct {
	ServerAddress string
	Identity      string
	Secret        []byte
}

// Recorder records protocol actions.
type Recorder interface {
	RecordAction(action interface{})
}

type nopRecorder struct{}

func (nopRecorder) RecordAction(interface{}) {}

// Nop returns a recorder that records nothing.
func Nop() Recorder { return nopRecorder{} }

// New connects to the tracing server in cfg, or returns Nop when none is set.
func New(cfg Config) Recorder {
	if cfg.ServerAddress == "" {
		return Nop()
	}
	log.Infof("tracing to %s as %s", cfg.ServerAddress, cfg.Identity)
	return dctracing.NewTracer(dctracing.TracerConfig{
		ServerAddress:  cfg.ServerAddress,
		TracerIdentity: cfg.Identity,
		Secret:         cfg.Secret,
	})
}

// SearchStarted is recorded by every rank once the broadcast is received.
type SearchStarted struct {
	Rank        int
	Size        int
	Target      uint32
	AlphabetLen int
	Partition   string
}

// LengthStarted is recorded when a rank begins a new candidate length.
type LengthStarted struct {
	Rank   int
	Length int
}

// MatchFound is recorded by the rank whose candidate matched.
type MatchFound struct {
	Rank      int
	Checksum  uint32
	Candidate string
	ElapsedNs int64
}

// MatchRecorded is recorded by the coordinator when a match enters the store.
type MatchRecorded struct {
	Source    int
	Checksum  uint32
	Candidate string
}

// SearchStopped is recorded when a rank leaves its search loop.
type SearchStopped struct {
	Rank    int
	Cause   string
	Matches int
}
