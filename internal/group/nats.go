package group

import (
	"context"
	"encoding/binary"
	"strconv"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/dreamware/crcsearch/internal/cluster"
)

// NATSConfig configures a process group that meets on a NATS server.
type NATSConfig struct {
	URL   string
	Rank  int
	Size  int
	RunID string // subject prefix; separates concurrent runs on one server

	// JoinTimeout bounds one join request; JoinAttempts and RetryDelay bound
	// how long a worker waits for the coordinator to appear.
	JoinTimeout  time.Duration
	JoinAttempts uint
	RetryDelay   time.Duration

	// SendTimeout bounds the flush that completes one result transfer.
	SendTimeout time.Duration
}

func (c *NATSConfig) defaults() {
	if c.RunID == "" {
		c.RunID = "crcsearch"
	}
	if c.JoinTimeout == 0 {
		c.JoinTimeout = 5 * time.Second
	}
	if c.JoinAttempts == 0 {
		c.JoinAttempts = 60
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = 500 * time.Millisecond
	}
	if c.SendTimeout == 0 {
		c.SendTimeout = 5 * time.Second
	}
}

// NATS is a process group whose ranks exchange messages through a NATS server.
//
// Subjects, all under the run ID:
//   - join:   request/reply; a worker sends its rank and the reply is the broadcast
//   - result: worker match reports, source rank in a header
//   - reduce: one 8-byte little-endian value per worker
//   - abort:  any rank stops the group
type NATS struct {
	cfg     NATSConfig
	nc      *nats.Conn
	subs    []*nats.Subscription
	mailbox *Mailbox
	abort   *abortSignal

	mu      sync.Mutex
	joins   map[int]*nats.Msg
	joined  chan struct{}
	payload []byte
	reduce  chan uint64
}

var _ Comm = (*NATS)(nil)

// NewNATS connects to the server and, on the root, subscribes to the
// subjects workers publish on.
func NewNATS(cfg NATSConfig) (*NATS, error) {
	cfg.defaults()
	nc, err := nats.Connect(cfg.URL, nats.Name("crcsearch-"+strconv.Itoa(cfg.Rank)))
	if err != nil {
		return nil, errors.Wrapf(err, "connect to %s", cfg.URL)
	}
	n := &NATS{
		cfg:     cfg,
		nc:      nc,
		mailbox: NewMailbox(),
		abort:   newAbortSignal(),
		joins:   make(map[int]*nats.Msg),
		joined:  make(chan struct{}, 1),
		reduce:  make(chan uint64, cfg.Size),
	}
	handlers := map[string]nats.MsgHandler{
		"abort": func(*nats.Msg) { n.abort.fire() },
	}
	if cfg.Rank == Root {
		handlers["join"] = n.handleJoin
		handlers["result"] = n.handleResult
		handlers["reduce"] = func(m *nats.Msg) {
			if len(m.Data) == 8 {
				n.reduce <- binary.LittleEndian.Uint64(m.Data)
			}
		}
	}
	for name, h := range handlers {
		sub, err := nc.Subscribe(n.subject(name), h)
		if err != nil {
			nc.Close()
			return nil, errors.Wrapf(err, "subscribe %s", n.subject(name))
		}
		n.subs = append(n.subs, sub)
	}
	if err := nc.Flush(); err != nil {
		nc.Close()
		return nil, errors.Wrap(err, "flush subscriptions")
	}
	log.Infof("rank %d connected to %s", cfg.Rank, nc.ConnectedUrl())
	return n, nil
}

func (n *NATS) subject(name string) string { return n.cfg.RunID + "." + name }

func (n *NATS) handleJoin(m *nats.Msg) {
	rank, err := strconv.Atoi(string(m.Data))
	if err != nil || rank <= Root || rank >= n.cfg.Size {
		log.Warnf("ignoring join from %q", m.Data)
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.payload != nil {
		// joined after the broadcast went out, e.g. after a timed out request
		if err := m.Respond(n.payload); err != nil {
			log.Warnf("late join reply to rank %d: %v", rank, err)
		}
		return
	}
	n.joins[rank] = m
	log.Infof("rank %d joined (%d/%d)", rank, len(n.joins), n.cfg.Size-1)
	select {
	case n.joined <- struct{}{}:
	default:
	}
}

func (n *NATS) handleResult(m *nats.Msg) {
	source, err := strconv.Atoi(m.Header.Get(cluster.SourceRankHeader))
	if err != nil {
		log.Warnf("dropping result without source rank")
		return
	}
	n.mailbox.Deliver(source, m.Data)
}

func (n *NATS) Rank() int { return n.cfg.Rank }
func (n *NATS) Size() int { return n.cfg.Size }

func (n *NATS) Bcast(ctx context.Context, payload []byte) ([]byte, error) {
	if n.cfg.Rank == Root {
		return n.rootBcast(ctx, payload)
	}
	var out []byte
	err := retry.Do(
		func() error {
			if n.abort.fired() {
				return retry.Unrecoverable(ErrAborted)
			}
			reply, err := n.nc.Request(n.subject("join"), []byte(strconv.Itoa(n.cfg.Rank)), n.cfg.JoinTimeout)
			if err != nil {
				return err
			}
			out = reply.Data
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(n.cfg.JoinAttempts),
		retry.Delay(n.cfg.RetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(i uint, err error) {
			log.Debugf("join retry %d: %v", i+1, err)
		}),
	)
	if err != nil {
		if n.abort.fired() {
			return nil, ErrAborted
		}
		return nil, errors.Wrap(err, "join group")
	}
	return out, nil
}

func (n *NATS) rootBcast(ctx context.Context, payload []byte) ([]byte, error) {
	for {
		n.mu.Lock()
		count := len(n.joins)
		n.mu.Unlock()
		if count == n.cfg.Size-1 {
			break
		}
		select {
		case <-n.joined:
		case <-n.abort.ch:
			return nil, ErrAborted
		case <-ctx.Done():
			return nil, errors.Wrapf(ctx.Err(), "waiting for workers (%d/%d joined)", count, n.cfg.Size-1)
		}
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.payload = payload
	for rank, m := range n.joins {
		if err := m.Respond(payload); err != nil {
			return nil, errors.Wrapf(err, "broadcast to rank %d", rank)
		}
	}
	n.joins = nil
	return payload, errors.Wrap(n.nc.Flush(), "flush broadcast")
}

func (n *NATS) ReduceSum(ctx context.Context, v uint64) (uint64, error) {
	if n.cfg.Rank != Root {
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, v)
		if err := n.nc.Publish(n.subject("reduce"), buf); err != nil {
			return 0, errors.Wrap(err, "reduce")
		}
		return 0, errors.Wrap(n.nc.FlushTimeout(n.cfg.SendTimeout), "reduce")
	}
	sum := v
	for i := 1; i < n.cfg.Size; i++ {
		select {
		case x := <-n.reduce:
			sum += x
		case <-n.abort.ch:
			return 0, ErrAborted
		case <-ctx.Done():
			return 0, errors.Wrap(ctx.Err(), "waiting for reduction")
		}
	}
	return sum, nil
}

// Isend publishes msg and completes once the server has acknowledged it.
func (n *NATS) Isend(msg []byte) (Request, error) {
	if n.cfg.Rank == Root {
		return nil, ErrRoot
	}
	m := nats.NewMsg(n.subject("result"))
	m.Data = msg
	m.Header.Set(cluster.SourceRankHeader, strconv.Itoa(n.cfg.Rank))
	if err := n.nc.PublishMsg(m); err != nil {
		return nil, errors.Wrap(err, "send result")
	}
	return newPending(func() error {
		return errors.Wrap(n.nc.FlushTimeout(n.cfg.SendTimeout), "send result")
	}), nil
}

func (n *NATS) Iprobe() (Status, bool, error) {
	if n.cfg.Rank != Root {
		return Status{}, false, ErrNotRoot
	}
	st, ok := n.mailbox.Probe()
	return st, ok, nil
}

func (n *NATS) Irecv(st Status, buf []byte) (Request, error) {
	if n.cfg.Rank != Root {
		return nil, ErrNotRoot
	}
	return completed{err: n.mailbox.Take(st, buf)}, nil
}

func (n *NATS) Abort(ctx context.Context) error {
	n.abort.fire()
	if err := n.nc.Publish(n.subject("abort"), []byte(strconv.Itoa(n.cfg.Rank))); err != nil {
		return errors.Wrap(err, "abort")
	}
	return errors.Wrap(n.nc.FlushTimeout(n.cfg.SendTimeout), "abort")
}

func (n *NATS) Aborted() <-chan struct{} { return n.abort.ch }

func (n *NATS) Close() error {
	for _, sub := range n.subs {
		_ = sub.Unsubscribe()
	}
	n.nc.Close()
	return nil
}
