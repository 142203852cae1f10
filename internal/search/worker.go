package search

import (
	"context"
	"iter"

	"github.com/pkg/errors"

	"github.com/dreamware/crcsearch/internal/enumerate"
	"github.com/dreamware/crcsearch/internal/group"
	"github.com/dreamware/crcsearch/internal/pipeline"
	"github.com/dreamware/crcsearch/internal/wire"
)

// Worker is any rank but 0. It learns the target from the broadcast and
// reports its matches to the coordinator.
type Worker struct {
	engine
	sender *pipeline.Sender
}

// NewWorker prepares a worker's search. opts.Comm must not be the root rank.
func NewWorker(opts Options) (*Worker, error) {
	if opts.Comm.Rank() == group.Root {
		return nil, errors.Wrap(group.ErrRoot, "worker on the root rank")
	}
	w := &Worker{engine: newEngine(opts, "worker")}
	w.sender = pipeline.NewSender(w.Comm)
	w.hit = func(ctx context.Context, m wire.Match) error {
		if err := w.sender.Submit(ctx, m); err != nil {
			return err
		}
		w.Metrics.ReportSent()
		return nil
	}
	w.step = w.sender.Poll
	return w, nil
}

// Bootstrap receives the search parameters, contributes this machine's CPU
// count and starts the clock.
func (w *Worker) Bootstrap(ctx context.Context) error {
	payload, err := w.Comm.Bcast(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "receive search parameters")
	}
	params, err := wire.DecodeParams(payload)
	if err != nil {
		return err
	}
	alphabet := enumerate.Alphabet(params.Alphabet)
	if err := alphabet.Validate(); err != nil {
		return errors.Wrap(err, "broadcast alphabet")
	}
	if _, err := w.Comm.ReduceSum(ctx, uint64(LogicalCPUs())); err != nil {
		return errors.Wrap(err, "sum logical CPUs")
	}
	w.begin(params.Target, alphabet, 0)
	return nil
}

// Run searches this rank's lengths until the stopper fires.
func (w *Worker) Run(ctx context.Context) error {
	if !w.ready {
		if err := w.Bootstrap(ctx); err != nil {
			return err
		}
	}
	return w.run(ctx)
}

// Search checks the given candidates instead of this rank's lengths.
func (w *Worker) Search(ctx context.Context, candidates iter.Seq[[]byte]) error {
	if !w.ready {
		if err := w.Bootstrap(ctx); err != nil {
			return err
		}
	}
	return w.search(ctx, candidates)
}

// Shutdown drops a report that is still in flight. Workers persist nothing.
func (w *Worker) Shutdown() {
	if w.sender.Discard() {
		w.log.Infof("discarded a report still in flight")
	}
	w.stopped("interrupt", w.found)
	w.log.Infof("%d matches found, %d reported", w.found, w.sender.Sent())
}

// Target returns the broadcast target, valid after Bootstrap.
func (w *Worker) Target() uint32 { return w.target }

// Alphabet returns the broadcast alphabet, valid after Bootstrap.
func (w *Worker) Alphabet() enumerate.Alphabet { return w.alphabet }
