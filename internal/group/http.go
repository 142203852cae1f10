package group

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"

	"github.com/dreamware/crcsearch/internal/cluster"
)

// maxMessageSize bounds request bodies accepted by the group endpoints.
const maxMessageSize = 1 << 20

// HTTPConfig configures either side of an HTTP process group.
type HTTPConfig struct {
	Rank int
	Size int

	// Listen is the local listen address, e.g. ":8080". ":0" picks a free port.
	Listen string

	// CoordinatorAddr is the coordinator's base URL (workers only).
	CoordinatorAddr string

	// PublicAddr is the base URL the coordinator uses to reach this worker.
	// Empty means http://<listener address>.
	PublicAddr string

	// HealthInterval is how often the coordinator checks workers after the
	// broadcast. Zero disables the checks.
	HealthInterval time.Duration

	// RegisterAttempts and RetryDelay bound a worker's registration retries.
	RegisterAttempts uint
	RetryDelay       time.Duration

	// SendTimeout bounds one result transfer.
	SendTimeout time.Duration
}

func (c *HTTPConfig) defaults() {
	if c.RegisterAttempts == 0 {
		c.RegisterAttempts = 10
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = 400 * time.Millisecond
	}
	if c.SendTimeout == 0 {
		c.SendTimeout = 5 * time.Second
	}
}

func listen(addr string) (net.Listener, *http.ServeMux, *http.Server, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, nil, errors.Wrapf(err, "listen on %s", addr)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(l); err != nil && err != http.ErrServerClosed {
			log.Errorf("serve %s: %v", l.Addr(), err)
		}
	}()
	return l, mux, srv, nil
}

func shutdown(srv *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

// HTTPRoot is the coordinator's end of an HTTP process group.
//
// Workers register with it, receive the broadcast on their own /bcast
// endpoint, and post their match reports to /result, where they wait in a
// mailbox until the search loop receives them.
type HTTPRoot struct {
	cfg      HTTPConfig
	listener net.Listener
	mux      *http.ServeMux
	srv      *http.Server
	mailbox  *Mailbox
	abort    *abortSignal
	monitor  *PeerMonitor
	peerLost func(rank int)

	mu      sync.RWMutex
	workers []cluster.WorkerInfo
	joined  chan struct{}
	reduce  chan cluster.ReduceRequest
}

var _ Comm = (*HTTPRoot)(nil)

// NewHTTPRoot starts the coordinator's HTTP API on cfg.Listen.
func NewHTTPRoot(cfg HTTPConfig) (*HTTPRoot, error) {
	cfg.defaults()
	l, mux, srv, err := listen(cfg.Listen)
	if err != nil {
		return nil, err
	}
	r := &HTTPRoot{
		cfg:      cfg,
		listener: l,
		mux:      mux,
		srv:      srv,
		mailbox:  NewMailbox(),
		abort:    newAbortSignal(),
		joined:   make(chan struct{}, 1),
		reduce:   make(chan cluster.ReduceRequest, cfg.Size),
	}
	mux.HandleFunc("/register", r.handleRegister)
	mux.HandleFunc("/result", r.handleResult)
	mux.HandleFunc("/reduce", r.handleReduce)
	mux.HandleFunc("/abort", r.handleAbort)
	log.Infof("coordinator listening on %s", l.Addr())
	return r, nil
}

// OnPeerLost sets a function called with the rank of every worker that stops
// answering health checks. It must be called before Bcast.
func (r *HTTPRoot) OnPeerLost(fn func(rank int)) { r.peerLost = fn }

// Handle registers an extra endpoint on the coordinator's API.
func (r *HTTPRoot) Handle(pattern string, h http.Handler) { r.mux.Handle(pattern, h) }

// Addr returns the address the API listens on.
func (r *HTTPRoot) Addr() string { return r.listener.Addr().String() }

// Workers returns the registered workers in registration order.
func (r *HTTPRoot) Workers() []cluster.WorkerInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]cluster.WorkerInfo(nil), r.workers...)
}

func (r *HTTPRoot) handleRegister(w http.ResponseWriter, req *http.Request) {
	var body cluster.RegisterRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if body.Worker.Rank <= Root || body.Worker.Rank >= r.cfg.Size || body.Worker.Addr == "" {
		http.Error(w, "bad rank/addr", http.StatusBadRequest)
		return
	}
	r.mu.Lock()
	idx := slices.IndexFunc(r.workers, func(n cluster.WorkerInfo) bool { return n.Rank == body.Worker.Rank })
	if idx >= 0 {
		r.workers[idx] = body.Worker
	} else {
		r.workers = append(r.workers, body.Worker)
	}
	count := len(r.workers)
	r.mu.Unlock()

	log.Infof("rank %d registered from %s (%d/%d)", body.Worker.Rank, body.Worker.Addr, count, r.cfg.Size-1)
	select {
	case r.joined <- struct{}{}:
	default:
	}
	w.WriteHeader(http.StatusNoContent)
}

func sourceRank(req *http.Request) (int, error) {
	return strconv.Atoi(req.Header.Get(cluster.SourceRankHeader))
}

func (r *HTTPRoot) handleResult(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	source, err := sourceRank(req)
	if err != nil {
		http.Error(w, "missing source rank", http.StatusBadRequest)
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, req.Body, maxMessageSize))
	if err != nil {
		http.Error(w, "read error", http.StatusBadRequest)
		return
	}
	r.mailbox.Deliver(source, data)
	w.WriteHeader(http.StatusNoContent)
}

func (r *HTTPRoot) handleReduce(w http.ResponseWriter, req *http.Request) {
	var body cluster.ReduceRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	select {
	case r.reduce <- body:
		w.WriteHeader(http.StatusNoContent)
	case <-req.Context().Done():
	}
}

func (r *HTTPRoot) handleAbort(w http.ResponseWriter, req *http.Request) {
	source, _ := sourceRank(req)
	log.Warnf("rank %d aborted the group", source)
	r.abort.fire()
	go r.abortWorkers(context.Background())
	w.WriteHeader(http.StatusNoContent)
}

func (r *HTTPRoot) Rank() int { return Root }
func (r *HTTPRoot) Size() int { return r.cfg.Size }

// Bcast waits until every worker rank has registered, then pushes payload to
// each of them.
func (r *HTTPRoot) Bcast(ctx context.Context, payload []byte) ([]byte, error) {
	for {
		r.mu.RLock()
		n := len(r.workers)
		r.mu.RUnlock()
		if n == r.cfg.Size-1 {
			break
		}
		select {
		case <-r.joined:
		case <-r.abort.ch:
			return nil, ErrAborted
		case <-ctx.Done():
			return nil, errors.Wrapf(ctx.Err(), "waiting for workers (%d/%d registered)", n, r.cfg.Size-1)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range r.Workers() {
		w := w
		g.Go(func() error {
			return errors.Wrapf(cluster.PostBytes(gctx, w.Addr+"/bcast", Root, payload), "broadcast to rank %d", w.Rank)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if r.cfg.HealthInterval > 0 && r.cfg.Size > 1 {
		m := NewPeerMonitor(r.cfg.HealthInterval)
		if r.peerLost != nil {
			m.SetOnUnhealthy(r.peerLost)
		}
		m.Start(context.Background(), r.Workers)
		r.mu.Lock()
		r.monitor = m
		r.mu.Unlock()
	}
	return payload, nil
}

func (r *HTTPRoot) ReduceSum(ctx context.Context, v uint64) (uint64, error) {
	sum := v
	for i := 1; i < r.cfg.Size; i++ {
		select {
		case x := <-r.reduce:
			sum += x.Value
		case <-r.abort.ch:
			return 0, ErrAborted
		case <-ctx.Done():
			return 0, errors.Wrap(ctx.Err(), "waiting for reduction")
		}
	}
	return sum, nil
}

func (r *HTTPRoot) Isend(_ []byte) (Request, error) { return nil, ErrRoot }

func (r *HTTPRoot) Iprobe() (Status, bool, error) {
	st, ok := r.mailbox.Probe()
	return st, ok, nil
}

func (r *HTTPRoot) Irecv(st Status, buf []byte) (Request, error) {
	return completed{err: r.mailbox.Take(st, buf)}, nil
}

// Abort tells every registered worker to stop.
func (r *HTTPRoot) Abort(ctx context.Context) error {
	r.abort.fire()
	return r.abortWorkers(ctx)
}

func (r *HTTPRoot) abortWorkers(ctx context.Context) error {
	var g errgroup.Group
	for _, w := range r.Workers() {
		w := w
		g.Go(func() error {
			return errors.Wrapf(cluster.PostBytes(ctx, w.Addr+"/abort", Root, nil), "abort rank %d", w.Rank)
		})
	}
	return g.Wait()
}

func (r *HTTPRoot) Aborted() <-chan struct{} { return r.abort.ch }

func (r *HTTPRoot) Close() error {
	r.mu.RLock()
	m := r.monitor
	r.mu.RUnlock()
	if m != nil {
		m.Stop()
	}
	return shutdown(r.srv)
}

// HTTPWorker is a worker's end of an HTTP process group.
type HTTPWorker struct {
	cfg      HTTPConfig
	listener net.Listener
	srv      *http.Server
	bcast    chan []byte
	abort    *abortSignal
}

var _ Comm = (*HTTPWorker)(nil)

// NewHTTPWorker starts the worker's HTTP API on cfg.Listen. Registration with
// the coordinator happens in Bcast.
func NewHTTPWorker(cfg HTTPConfig) (*HTTPWorker, error) {
	cfg.defaults()
	l, mux, srv, err := listen(cfg.Listen)
	if err != nil {
		return nil, err
	}
	if cfg.PublicAddr == "" {
		cfg.PublicAddr = "http://" + l.Addr().String()
	}
	w := &HTTPWorker{
		cfg:      cfg,
		listener: l,
		srv:      srv,
		bcast:    make(chan []byte, 1),
		abort:    newAbortSignal(),
	}
	mux.HandleFunc("/bcast", w.handleBcast)
	mux.HandleFunc("/abort", func(rw http.ResponseWriter, _ *http.Request) {
		w.abort.fire()
		rw.WriteHeader(http.StatusNoContent)
	})
	log.Infof("worker %d listening on %s (public %s)", cfg.Rank, l.Addr(), cfg.PublicAddr)
	return w, nil
}

func (w *HTTPWorker) handleBcast(rw http.ResponseWriter, req *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(rw, req.Body, maxMessageSize))
	if err != nil {
		http.Error(rw, "read error", http.StatusBadRequest)
		return
	}
	select {
	case w.bcast <- data:
	default:
		// a repeated broadcast carries the same parameters
	}
	rw.WriteHeader(http.StatusNoContent)
}

func (w *HTTPWorker) Rank() int { return w.cfg.Rank }
func (w *HTTPWorker) Size() int { return w.cfg.Size }

// Bcast registers with the coordinator, retrying while it starts up, and
// waits for the coordinator's payload.
func (w *HTTPWorker) Bcast(ctx context.Context, _ []byte) ([]byte, error) {
	body := cluster.RegisterRequest{Worker: cluster.WorkerInfo{Rank: w.cfg.Rank, Addr: w.cfg.PublicAddr}}
	err := retry.Do(
		func() error {
			if w.abort.fired() {
				return retry.Unrecoverable(ErrAborted)
			}
			return cluster.PostJSON(ctx, w.cfg.CoordinatorAddr+"/register", body, nil)
		},
		retry.Context(ctx),
		retry.Attempts(w.cfg.RegisterAttempts),
		retry.Delay(w.cfg.RetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Infof("register retry %d: %v", n+1, err)
		}),
	)
	if err != nil {
		if w.abort.fired() {
			return nil, ErrAborted
		}
		return nil, errors.Wrapf(err, "register with coordinator @ %s", w.cfg.CoordinatorAddr)
	}
	log.Infof("registered with coordinator @ %s", w.cfg.CoordinatorAddr)

	select {
	case p := <-w.bcast:
		return p, nil
	case <-w.abort.ch:
		return nil, ErrAborted
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "waiting for broadcast")
	}
}

func (w *HTTPWorker) ReduceSum(ctx context.Context, v uint64) (uint64, error) {
	err := cluster.PostJSON(ctx, w.cfg.CoordinatorAddr+"/reduce", cluster.ReduceRequest{Rank: w.cfg.Rank, Value: v}, nil)
	return 0, errors.Wrap(err, "reduce")
}

// Isend posts msg to the coordinator on a background goroutine.
func (w *HTTPWorker) Isend(msg []byte) (Request, error) {
	url := w.cfg.CoordinatorAddr + "/result"
	return newPending(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), w.cfg.SendTimeout)
		defer cancel()
		return errors.Wrap(cluster.PostBytes(ctx, url, w.cfg.Rank, msg), "send result")
	}), nil
}

func (w *HTTPWorker) Iprobe() (Status, bool, error)          { return Status{}, false, ErrNotRoot }
func (w *HTTPWorker) Irecv(Status, []byte) (Request, error) { return nil, ErrNotRoot }

// Abort stops this worker and asks the coordinator to stop the rest.
func (w *HTTPWorker) Abort(ctx context.Context) error {
	w.abort.fire()
	return errors.Wrap(cluster.PostBytes(ctx, w.cfg.CoordinatorAddr+"/abort", w.cfg.Rank, nil), "abort")
}

func (w *HTTPWorker) Aborted() <-chan struct{} { return w.abort.ch }

func (w *HTTPWorker) Close() error { return shutdown(w.srv) }
