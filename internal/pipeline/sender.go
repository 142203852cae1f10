package pipeline

import (
	"context"

	"github.com/pkg/errors"

	"github.com/dreamware/crcsearch/internal/group"
	"github.com/dreamware/crcsearch/internal/wire"
)

// SendState is the state of a worker's outbound transfer.
type SendState int

const (
	SendIdle SendState = iota
	SendInFlight
)

func (s SendState) String() string {
	if s == SendInFlight {
		return "in-flight"
	}
	return "idle"
}

// Sender reports a worker's matches to the root, one transfer at a time.
//
// It owns at most one encoded buffer. The buffer stays alive until the
// transport reports the transfer complete and is then released exactly once.
type Sender struct {
	comm group.Comm
	req  group.Request
	buf  []byte
	sent int
}

// NewSender returns an idle sender on comm.
func NewSender(comm group.Comm) *Sender {
	return &Sender{comm: comm}
}

// Submit starts sending m. If the previous transfer is still in flight Submit
// waits for it first, so a burst of matches is paced by the transport.
func (s *Sender) Submit(ctx context.Context, m wire.Match) error {
	if s.req != nil {
		err := s.req.Wait(ctx)
		s.release()
		if err != nil {
			return errors.Wrap(err, "previous match transfer")
		}
	}
	buf := wire.EncodeMatch(m)
	req, err := s.comm.Isend(buf)
	if err != nil {
		return errors.Wrap(err, "start match transfer")
	}
	s.buf, s.req = buf, req
	s.sent++
	return nil
}

// Poll releases the buffer of a transfer that has completed. It never blocks.
func (s *Sender) Poll() error {
	if s.req == nil {
		return nil
	}
	done, err := s.req.Test()
	if !done {
		return nil
	}
	s.release()
	return errors.Wrap(err, "match transfer")
}

// Discard drops an in-flight transfer without waiting for it. It reports
// whether there was one.
func (s *Sender) Discard() bool {
	inFlight := s.req != nil
	s.release()
	return inFlight
}

func (s *Sender) release() {
	s.req = nil
	s.buf = nil
}

// State returns the sender's current state.
func (s *Sender) State() SendState {
	if s.req != nil {
		return SendInFlight
	}
	return SendIdle
}

// Sent returns how many transfers were started.
func (s *Sender) Sent() int { return s.sent }
