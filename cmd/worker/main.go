package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"syscall"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dreamware/crcsearch/internal/config"
	"github.com/dreamware/crcsearch/internal/group"
	"github.com/dreamware/crcsearch/internal/metrics"
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
		Use:   "worker",
		Short: "Join a CRC-32C preimage search as a worker",
		Long: `Runs one worker rank (CRC_RANK >= 1) of a CRC-32C preimage search. The
worker waits for the coordinator's broadcast, searches its share of candidate
lengths and reports every match to the coordinator. Workers write no files.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a.code = a.run(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr())
			return nil
		},
	}
}

func (a *app) run(ctx context.Context, out, errOut io.Writer) int {
	if ctx == nil {
		ctx = context.Background()
	}
	defer a.stopper.Close()

	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	cfg.ConfigureLogging()
	if cfg.Rank == group.Root {
		log.Errorf("rank %d is the coordinator, set CRC_RANK to a worker rank", group.Root)
		return 1
	}

	comm, err := cfg.OpenGroup()
	if err != nil {
		log.Errorf("join process group: %v", err)
		return 1
	}
	defer comm.Close()
	a.stopper.Watch(comm.Aborted(), group.ErrAborted)

	oracle, err := cfg.Oracle()
	if err != nil {
		log.Error(err)
		abort(comm)
		return 1
	}
	m := metrics.New("worker", cfg.Rank)
	if cfg.MetricsAddr != "" {
		go func() {
			if err := m.Serve(ctx, cfg.MetricsAddr); err != nil {
				log.Warn(err)
			}
		}()
	}

	w, err := search.NewWorker(search.Options{
		Comm:     comm,
		Oracle:   oracle,
		Strategy: cfg.Strategy(),
		Stopper:  a.stopper,
		Metrics:  m,
		Tracer:   tracing.New(cfg.Tracing("worker-" + strconv.Itoa(cfg.Rank))),
	})
	if err != nil {
		log.Error(err)
		return 1
	}

	err = bootstrap(ctx, a.stopper, cfg.BootstrapTimeout, w.Bootstrap)
	if err == nil {
		err = w.Run(ctx)
	}
	return a.finish(out, comm, w, err)
}

func (a *app) finish(out io.Writer, comm group.Comm, w *search.Worker, err error) int {
	if !a.stopper.Stopped() {
		log.Errorf("search failed: %v", err)
		abort(comm)
		return 1
	}
	switch {
	case a.stopper.Interrupted():
		w.Shutdown()
		fmt.Fprintf(out, "%d matches found\n", w.Found())
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

func abort(comm group.Comm) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := comm.Abort(ctx); err != nil {
		log.Warnf("abort process group: %v", err)
	}
}
