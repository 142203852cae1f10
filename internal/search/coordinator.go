package search

import (
	"context"
	"iter"

	"github.com/pkg/errors"

	"github.com/dreamware/crcsearch/internal/enumerate"
	"github.com/dreamware/crcsearch/internal/group"
	"github.com/dreamware/crcsearch/internal/pipeline"
	"github.com/dreamware/crcsearch/internal/results"
	"github.com/dreamware/crcsearch/internal/tracing"
	"github.com/dreamware/crcsearch/internal/wire"
)

// Coordinator is rank 0: it owns the target, searches its own lengths and
// collects every rank's matches into a results.Store.
type Coordinator struct {
	engine
	store   *results.Store
	recv    *pipeline.Receiver
	dropped int
}

// NewCoordinator prepares the root's search for target over alphabet.
// opts.Comm must be the root rank.
func NewCoordinator(opts Options, target uint32, alphabet enumerate.Alphabet, store *results.Store) (*Coordinator, error) {
	if opts.Comm.Rank() != group.Root {
		return nil, errors.Wrapf(group.ErrNotRoot, "coordinator on rank %d", opts.Comm.Rank())
	}
	if err := alphabet.Validate(); err != nil {
		return nil, err
	}
	c := &Coordinator{engine: newEngine(opts, "coordinator"), store: store}
	c.target, c.alphabet = target, alphabet
	c.recv = pipeline.NewReceiver(c.Comm, c.record)
	c.hit = func(_ context.Context, m wire.Match) error {
		c.record(m)
		return nil
	}
	c.step = c.poll
	return c, nil
}

// Bootstrap broadcasts the search parameters, collects the group's CPU count
// and starts the clock.
func (c *Coordinator) Bootstrap(ctx context.Context) error {
	payload := wire.EncodeParams(wire.Params{Target: c.target, Alphabet: c.alphabet})
	if _, err := c.Comm.Bcast(ctx, payload); err != nil {
		return errors.Wrap(err, "broadcast search parameters")
	}
	cpus, err := c.Comm.ReduceSum(ctx, uint64(LogicalCPUs()))
	if err != nil {
		return errors.Wrap(err, "sum logical CPUs")
	}
	c.begin(c.target, c.alphabet, cpus)
	return nil
}

// Run searches this rank's lengths until the stopper fires, bootstrapping
// first if that has not happened yet.
func (c *Coordinator) Run(ctx context.Context) error {
	if !c.ready {
		if err := c.Bootstrap(ctx); err != nil {
			return err
		}
	}
	return c.run(ctx)
}

// Search checks the given candidates instead of this rank's lengths. It is
// how a bounded or resumed search is run.
func (c *Coordinator) Search(ctx context.Context, candidates iter.Seq[[]byte]) error {
	if !c.ready {
		if err := c.Bootstrap(ctx); err != nil {
			return err
		}
	}
	return c.search(ctx, candidates)
}

func (c *Coordinator) poll() error {
	err := c.recv.Poll()
	if d := c.recv.Dropped(); d != c.dropped {
		c.Metrics.ReportsDropped(d - c.dropped)
		c.dropped = d
	}
	return err
}

func (c *Coordinator) record(m wire.Match) {
	c.store.Append(m)
	c.Metrics.MatchCollected(m.Source)
	c.Tracer.RecordAction(tracing.MatchRecorded{Source: m.Source, Checksum: m.Checksum, Candidate: string(m.Candidate)})
	if m.Source != group.Root {
		c.log.Infof("rank %d found %q after %v", m.Source, m.Candidate, m.Elapsed)
	}
}

// Shutdown finishes a receive already under way and writes the store to path.
// It does not look for further reports.
func (c *Coordinator) Shutdown(ctx context.Context, path string) error {
	if err := c.recv.Drain(ctx); err != nil {
		c.log.Warnf("report in flight at shutdown lost: %v", err)
	}
	c.stopped("interrupt", c.store.Len())
	if err := c.store.Dump(path); err != nil {
		return errors.Wrap(err, "write results")
	}
	stats := c.store.Stats()
	c.log.WithField("sources", stats.Sources).Infof("%d matches written to %s", stats.Matches, path)
	return nil
}

// Store returns the coordinator's result store.
func (c *Coordinator) Store() *results.Store { return c.store }
