package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"syscall"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dreamware/crcsearch/internal/config"
	"github.com/dreamware/crcsearch/internal/group"
	"github.com/dreamware/crcsearch/internal/metrics"
	"github.com/dreamware/crcsearch/internal/results"
	"github.com/dreamware/crcsearch/internal/search"
	"github.com/dreamware/crcsearch/internal/tracing"
)

func main() {
	a := &app{stopper: search.NewStopper()}
	a.stopper.Notify(os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	if err := newCommand(a).Execute(); err != nil {
		os.Exit(1)
	}
	os.Exit(a.code)
}

type app struct {
	stopper *search.Stopper
	code    int
}

func newCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "coordinator <hash> [alphabet] [alphabet-length]",
		Short: "Search for a string whose CRC-32C equals hash",
		Long: `Runs rank 0 of a CRC-32C preimage search. The coordinator broadcasts the
target to every worker, searches its own share of candidate lengths and
collects every match. Interrupt it (SIGINT) to write the matches found so far
to RESULTS_FILE.

hash is the target checksum in hexadecimal. alphabet lists the bytes
candidates are built from (default: every printable ASCII character, space
included; set ALPHABET=graphic to leave space out).
alphabet-length keeps only that many leading bytes of the alphabet.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.code = a.run(cmd.Context(), cmd, args)
			return nil
		},
	}
}

func (a *app) run(ctx context.Context, cmd *cobra.Command, args []string) int {
	if ctx == nil {
		ctx = context.Background()
	}
	defer a.stopper.Close()
	out := cmd.OutOrStdout()

	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), err)
		return 1
	}
	cfg.ConfigureLogging()
	if cfg.Rank != group.Root {
		log.Errorf("the coordinator is rank %d, CRC_RANK is %d", group.Root, cfg.Rank)
		return 1
	}

	comm, err := cfg.OpenGroup()
	if err != nil {
		log.Errorf("join process group: %v", err)
		return 1
	}
	defer comm.Close()

	params, err := config.ParseArgs(args, cfg.DefaultAlphabet())
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		_ = cmd.Usage()
		abort(comm)
		return 1
	}

	a.stopper.Watch(comm.Aborted(), group.ErrAborted)

	oracle, err := cfg.Oracle()
	if err != nil {
		log.Error(err)
		abort(comm)
		return 1
	}
	m := metrics.New("coordinator", group.Root)
	store := results.NewStore()
	if root, ok := comm.(*group.HTTPRoot); ok {
		root.Handle("/metrics", m.Handler())
		root.Handle("/results", store.Handler())
		root.OnPeerLost(m.PeerLost)
	}
	if cfg.MetricsAddr != "" {
		go func() {
			if err := m.Serve(ctx, cfg.MetricsAddr); err != nil {
				log.Warn(err)
			}
		}()
	}

	coord, err := search.NewCoordinator(search.Options{
		Comm:     comm,
		Oracle:   oracle,
		Strategy: cfg.Strategy(),
		Stopper:  a.stopper,
		Metrics:  m,
		Tracer:   tracing.New(cfg.Tracing("coordinator")),
	}, params.Target, params.Alphabet, store)
	if err != nil {
		log.Error(err)
		abort(comm)
		return 1
	}

	err = bootstrap(ctx, a.stopper, cfg.BootstrapTimeout, coord.Bootstrap)
	if err == nil {
		err = coord.Run(ctx)
	}
	return a.finish(ctx, out, comm, coord, cfg.ResultsFile, err)
}

// finish turns the reason the search ended into an exit code.
func (a *app) finish(ctx context.Context, out io.Writer, comm group.Comm, coord *search.Coordinator, path string, err error) int {
	if !a.stopper.Stopped() {
		log.Errorf("search failed: %v", err)
		abort(comm)
		return 1
	}
	switch {
	case a.stopper.Interrupted():
		if err := coord.Shutdown(ctx, path); err != nil {
			log.Error(err)
			return 1
		}
		fmt.Fprintf(out, "%d matches found, written to %s\n", coord.Store().Len(), path)
		return 0
	case a.stopper.Signal() != nil:
		fmt.Fprintln(out, a.stopper.SignalMessage())
		abort(comm)
		return 1
	default:
		log.Errorf("stopping: %v", a.stopper.Cause())
		return 1
	}
}

// bootstrap runs fn under the bootstrap timeout, giving up early if the
// stopper fires while the group is still forming.
func bootstrap(ctx context.Context, stopper *search.Stopper, timeout time.Duration, fn func(context.Context) error) error {
	bctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	go func() {
		select {
		case <-stopper.Done():
			cancel()
		case <-bctx.Done():
		}
	}()
	err := fn(bctx)
	if err != nil && stopper.Stopped() {
		return errors.Wrap(search.ErrStopped, err.Error())
	}
	return err
}

// abort stops the rest of the group, best effort.
func abort(comm group.Comm) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := comm.Abort(ctx); err != nil {
		log.Warnf("abort process group: %v", err)
	}
}
