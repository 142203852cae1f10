package pipeline

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/dreamware/crcsearch/internal/group"
	"github.com/dreamware/crcsearch/internal/wire"
)

// RecvState is the state of the root's inbound transfer.
type RecvState int

const (
	RecvIdle RecvState = iota
	RecvProbing
	RecvReceiving
	RecvReady
)

func (s RecvState) String() string {
	switch s {
	case RecvProbing:
		return "probing"
	case RecvReceiving:
		return "receiving"
	case RecvReady:
		return "ready"
	default:
		return "idle"
	}
}

// Sink takes ownership of a decoded match.
type Sink func(wire.Match)

// Receiver pulls match reports off the group on the root, one at a time.
// Messages beyond the one being received wait in the transport.
type Receiver struct {
	comm  group.Comm
	sink  Sink
	state RecvState
	st    group.Status
	buf   []byte
	req   group.Request

	received int
	dropped  int
}

// NewReceiver returns an idle receiver that hands matches to sink.
func NewReceiver(comm group.Comm, sink Sink) *Receiver {
	return &Receiver{comm: comm, sink: sink}
}

// Poll advances the receiver by one step of each phase: finish a pending
// receive, deliver a received match, and look for the next message. It
// never blocks.
func (r *Receiver) Poll() error {
	if r.state == RecvReceiving {
		if err := r.test(); err != nil {
			return err
		}
	}
	if r.state == RecvReady {
		r.deliver()
	}
	if r.state == RecvIdle {
		return r.probe()
	}
	return nil
}

func (r *Receiver) test() error {
	done, err := r.req.Test()
	if !done {
		return nil
	}
	if err != nil {
		r.reset()
		return errors.Wrapf(err, "receive from rank %d", r.st.Source)
	}
	r.state = RecvReady
	return nil
}

func (r *Receiver) deliver() {
	m, err := wire.DecodeMatch(r.buf)
	if err != nil {
		// probe already filtered short messages
		log.Warnf("dropping undecodable report from rank %d: %v", r.st.Source, err)
		r.dropped++
	} else {
		m.Source = r.st.Source
		r.received++
		r.sink(m)
	}
	r.reset()
}

func (r *Receiver) probe() error {
	r.state = RecvProbing
	st, ok, err := r.comm.Iprobe()
	if err != nil {
		r.reset()
		return errors.Wrap(err, "probe result channel")
	}
	if !ok {
		r.reset()
		return nil
	}
	buf := make([]byte, st.Count)
	req, err := r.comm.Irecv(st, buf)
	if err != nil {
		r.reset()
		return errors.Wrapf(err, "start receive from rank %d", st.Source)
	}
	if st.Count <= wire.HeaderSize {
		// nothing after the header: take it off the queue and forget it
		r.dropped++
		r.reset()
		return nil
	}
	r.st, r.buf, r.req = st, buf, req
	r.state = RecvReceiving
	return nil
}

// Drain completes a transfer that is already receiving or ready so that a
// match that reached this process is not lost at shutdown. It does not look
// for new messages.
func (r *Receiver) Drain(ctx context.Context) error {
	if r.state == RecvReceiving {
		err := r.req.Wait(ctx)
		if err != nil {
			r.reset()
			return errors.Wrapf(err, "receive from rank %d", r.st.Source)
		}
		r.state = RecvReady
	}
	if r.state == RecvReady {
		r.deliver()
	}
	return nil
}

func (r *Receiver) reset() {
	r.state = RecvIdle
	r.st = group.Status{}
	r.buf = nil
	r.req = nil
}

// State returns the receiver's current state.
func (r *Receiver) State() RecvState { return r.state }

// Received returns how many matches were handed to the sink.
func (r *Receiver) Received() int { return r.received }

// Dropped returns how many messages were discarded as too short.
func (r *Receiver) Dropped() int { return r.dropped }
