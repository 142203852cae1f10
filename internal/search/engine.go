package search

import (
	"bytes"
	"context"
	"iter"
	"runtime"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v4/cpu"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/dreamware/crcsearch/internal/checksum"
	"github.com/dreamware/crcsearch/internal/enumerate"
	"github.com/dreamware/crcsearch/internal/group"
	"github.com/dreamware/crcsearch/internal/metrics"
	"github.com/dreamware/crcsearch/internal/partition"
	"github.com/dreamware/crcsearch/internal/tracing"
	"github.com/dreamware/crcsearch/internal/wire"
)

// ErrStopped is returned by Run and Search once the Stopper fired.
var ErrStopped = errors.New("search stopped")

// flushEvery is how many candidates are counted locally before the metrics
// and the progress log are updated.
const flushEvery = 1 << 16

// Options are the collaborators of either role. Only Comm is required.
type Options struct {
	Comm     group.Comm
	Oracle   *checksum.Oracle
	Strategy partition.Strategy
	Stopper  *Stopper
	Clock    clockwork.Clock
	Metrics  *metrics.Metrics
	Tracer   tracing.Recorder

	// ProgressInterval is the minimum time between progress log lines.
	// Zero means 30 seconds.
	ProgressInterval time.Duration
}

func (o *Options) defaults(role string) {
	if o.Oracle == nil {
		o.Oracle = checksum.NewDetected()
	}
	if o.Strategy == "" {
		o.Strategy = partition.RoundRobin
	}
	if o.Stopper == nil {
		o.Stopper = NewStopper()
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Metrics == nil {
		o.Metrics = metrics.New(role, o.Comm.Rank())
	}
	if o.Tracer == nil {
		o.Tracer = tracing.Nop()
	}
	if o.ProgressInterval == 0 {
		o.ProgressInterval = 30 * time.Second
	}
}

// LogicalCPUs returns this machine's logical CPU count.
func LogicalCPUs() int {
	n, err := cpu.Counts(true)
	if err != nil || n < 1 {
		return runtime.NumCPU()
	}
	return n
}

// engine is the search loop shared by both roles. hit is called for every
// match found by this process, step once per candidate.
type engine struct {
	Options
	log *log.Entry

	target   uint32
	alphabet enumerate.Alphabet
	ready    bool
	start    time.Time

	length   int
	checked  uint64
	pending  int
	found    int
	progress rate.Sometimes

	hit  func(ctx context.Context, m wire.Match) error
	step func() error
}

func newEngine(opts Options, role string) engine {
	opts.defaults(role)
	return engine{
		Options:  opts,
		log:      log.WithFields(log.Fields{"role": role, "rank": opts.Comm.Rank()}),
		progress: rate.Sometimes{Interval: opts.ProgressInterval},
	}
}

// begin records the agreed parameters and starts this process's clock.
func (e *engine) begin(target uint32, alphabet enumerate.Alphabet, groupCPUs uint64) {
	e.target, e.alphabet = target, alphabet
	e.ready = true
	e.start = e.Clock.Now()
	e.Tracer.RecordAction(tracing.SearchStarted{
		Rank:        e.Comm.Rank(),
		Size:        e.Comm.Size(),
		Target:      target,
		AlphabetLen: len(alphabet),
		Partition:   string(e.Strategy),
	})
	if e.Comm.Rank() == group.Root {
		e.Metrics.SetGroupCPUs(groupCPUs)
		e.log.Infof("searching for 0x%08x over %d symbols with %d processes (%d logical CPUs, %s partition, %s checksum)",
			target, len(alphabet), e.Comm.Size(), groupCPUs, e.Strategy, e.Oracle.Variant())
	} else {
		e.log.Debugf("searching for 0x%08x over %d symbols", target, len(alphabet))
	}
}

func (e *engine) run(ctx context.Context) error {
	for length := range partition.Lengths(e.Strategy, e.Comm.Rank(), e.Comm.Size()) {
		e.length = length
		e.Metrics.SetLength(length)
		e.Tracer.RecordAction(tracing.LengthStarted{Rank: e.Comm.Rank(), Length: length})
		e.log.Debugf("length %d: %s candidates", length, enumerate.Count(e.alphabet, length))
		if err := e.search(ctx, enumerate.All(e.alphabet, length)); err != nil {
			return err
		}
		e.Metrics.LengthDone()
	}
	return nil
}

func (e *engine) search(ctx context.Context, candidates iter.Seq[[]byte]) error {
	defer e.flush()
	stop, done := e.Stopper.Done(), ctx.Done()
	for cand := range candidates {
		select {
		case <-stop:
			return ErrStopped
		case <-done:
			return ctx.Err()
		default:
		}
		if sum := e.Oracle.Calc(cand, 0); sum == e.target {
			m := wire.Match{
				Checksum:  sum,
				Candidate: bytes.Clone(cand),
				Elapsed:   e.Clock.Since(e.start),
				Source:    e.Comm.Rank(),
			}
			e.found++
			e.Metrics.MatchFound()
			e.Tracer.RecordAction(tracing.MatchFound{
				Rank:      m.Source,
				Checksum:  m.Checksum,
				Candidate: string(m.Candidate),
				ElapsedNs: m.Elapsed.Nanoseconds(),
			})
			e.log.Infof("found %q after %v", m.Candidate, m.Elapsed)
			if err := e.hit(ctx, m); err != nil {
				return err
			}
		}
		if err := e.step(); err != nil {
			return err
		}
		if e.pending++; e.pending == flushEvery {
			e.flush()
			e.progress.Do(e.logProgress)
		}
	}
	return nil
}

func (e *engine) flush() {
	e.checked += uint64(e.pending)
	e.Metrics.AddCandidates(e.pending)
	e.pending = 0
}

func (e *engine) logProgress() {
	elapsed := e.Clock.Since(e.start)
	e.log.Infof("length %d, %d candidates checked in %v (%.0f/s), %d found",
		e.length, e.checked, elapsed.Round(time.Second), float64(e.checked)/elapsed.Seconds(), e.found)
}

func (e *engine) stopped(cause string, matches int) {
	e.Tracer.RecordAction(tracing.SearchStopped{Rank: e.Comm.Rank(), Cause: cause, Matches: matches})
}

// Checked returns the number of candidates checked so far.
func (e *engine) Checked() uint64 { return e.checked + uint64(e.pending) }

// Found returns the number of matches this process found itself.
func (e *engine) Found() int { return e.found }
