package group

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// Root is the rank of the coordinator.
const Root = 0

var (
	// ErrAborted is returned by blocking operations once any rank aborted the group.
	ErrAborted = errors.New("process group aborted")
	// ErrNotRoot is returned when a root-only operation is called on a worker.
	ErrNotRoot = errors.New("operation is only valid on the root rank")
	// ErrRoot is returned when a worker-only operation is called on the root.
	ErrRoot = errors.New("operation is not valid on the root rank")
)

// Status describes a message waiting on the result channel.
type Status struct {
	Source int // rank that sent the message
	Count  int // message size in bytes
}

// Request is an outstanding non-blocking transfer.
type Request interface {
	// Test reports whether the transfer has completed, without blocking.
	// Once it reports true the error of the transfer is returned with it.
	Test() (bool, error)
	// Wait blocks until the transfer completes or ctx is done.
	Wait(ctx context.Context) error
}

// Comm is one process's handle on the process group.
//
// The collective operations (Bcast, ReduceSum) must be called by every rank.
// The result channel is one-way: workers Isend to the root, the root
// Iprobe/Irecv's from any worker. Messages the root has not yet received
// are queued by the implementation, not by the caller.
type Comm interface {
	Rank() int
	Size() int

	// Bcast publishes payload from the root to every rank and returns it.
	// Workers pass nil and block until the root's payload arrives.
	Bcast(ctx context.Context, payload []byte) ([]byte, error)

	// ReduceSum adds v from every rank. The total is only meaningful on the
	// root; workers get 0.
	ReduceSum(ctx context.Context, v uint64) (uint64, error)

	// Isend starts sending msg to the root. The caller must not modify msg
	// until the returned request completes.
	Isend(msg []byte) (Request, error)

	// Iprobe reports, without blocking, the next message waiting for the root.
	Iprobe() (Status, bool, error)

	// Irecv starts receiving the message described by st into buf, which
	// must be at least st.Count bytes.
	Irecv(st Status, buf []byte) (Request, error)

	// Abort tells every reachable rank to stop. It is best effort.
	Abort(ctx context.Context) error

	// Aborted is closed once this process learns the group was aborted.
	Aborted() <-chan struct{}

	Close() error
}

// completed is a Request that finished when it was created.
type completed struct{ err error }

func (c completed) Test() (bool, error)          { return true, c.err }
func (c completed) Wait(_ context.Context) error { return c.err }

// pending is a Request finished by a background goroutine.
type pending struct {
	done chan struct{}
	err  error
}

func newPending(run func() error) *pending {
	p := &pending{done: make(chan struct{})}
	go func() {
		p.err = run()
		close(p.done)
	}()
	return p
}

func (p *pending) Test() (bool, error) {
	select {
	case <-p.done:
		return true, p.err
	default:
		return false, nil
	}
}

func (p *pending) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// abortSignal is closed at most once.
type abortSignal struct {
	once sync.Once
	ch   chan struct{}
}

func newAbortSignal() *abortSignal { return &abortSignal{ch: make(chan struct{})} }

func (a *abortSignal) fire() { a.once.Do(func() { close(a.ch) }) }

func (a *abortSignal) fired() bool {
	select {
	case <-a.ch:
		return true
	default:
		return false
	}
}
