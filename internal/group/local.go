package group

import (
	"context"
)

type localShared struct {
	size    int
	bcast   []chan []byte
	reduce  chan uint64
	mailbox *Mailbox
	abort   *abortSignal
}

// Local is a process group whose ranks are goroutines of one process.
// A group of size 1 is what a single-process run uses.
type Local struct {
	rank int
	s    *localShared
}

var _ Comm = (*Local)(nil)

// NewLocal returns the handles of every rank of a new in-process group.
// Handle i has rank i.
func NewLocal(size int) []*Local {
	s := &localShared{
		size:    size,
		bcast:   make([]chan []byte, size),
		reduce:  make(chan uint64, size),
		mailbox: NewMailbox(),
		abort:   newAbortSignal(),
	}
	ranks := make([]*Local, size)
	for i := range ranks {
		s.bcast[i] = make(chan []byte, 1)
		ranks[i] = &Local{rank: i, s: s}
	}
	return ranks
}

func (l *Local) Rank() int { return l.rank }
func (l *Local) Size() int { return l.s.size }

func (l *Local) Bcast(ctx context.Context, payload []byte) ([]byte, error) {
	if l.rank == Root {
		for r := 1; r < l.s.size; r++ {
			l.s.bcast[r] <- append([]byte(nil), payload...)
		}
		return payload, nil
	}
	select {
	case p := <-l.s.bcast[l.rank]:
		return p, nil
	case <-l.s.abort.ch:
		return nil, ErrAborted
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *Local) ReduceSum(ctx context.Context, v uint64) (uint64, error) {
	if l.rank != Root {
		l.s.reduce <- v
		return 0, nil
	}
	sum := v
	for r := 1; r < l.s.size; r++ {
		select {
		case x := <-l.s.reduce:
			sum += x
		case <-l.s.abort.ch:
			return 0, ErrAborted
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return sum, nil
}

func (l *Local) Isend(msg []byte) (Request, error) {
	if l.rank == Root {
		return nil, ErrRoot
	}
	l.s.mailbox.Deliver(l.rank, append([]byte(nil), msg...))
	return completed{}, nil
}

func (l *Local) Iprobe() (Status, bool, error) {
	if l.rank != Root {
		return Status{}, false, ErrNotRoot
	}
	st, ok := l.s.mailbox.Probe()
	return st, ok, nil
}

func (l *Local) Irecv(st Status, buf []byte) (Request, error) {
	if l.rank != Root {
		return nil, ErrNotRoot
	}
	return completed{err: l.s.mailbox.Take(st, buf)}, nil
}

func (l *Local) Abort(_ context.Context) error {
	l.s.abort.fire()
	return nil
}

func (l *Local) Aborted() <-chan struct{} { return l.s.abort.ch }

func (l *Local) Close() error { return nil }
