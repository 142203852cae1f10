package group

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func runNATSServer(t *testing.T) string {
	t.Helper()
	ns, err := server.NewServer(&server.Options{Host: "127.0.0.1", Port: -1, NoLog: true, NoSigs: true})
	require.NoError(t, err)
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("nats server did not start")
	}
	t.Cleanup(ns.Shutdown)
	return ns.ClientURL()
}

func startNATSGroup(t *testing.T, url, run string, size int) []*NATS {
	t.Helper()
	ranks := make([]*NATS, size)
	for r := range ranks {
		n, err := NewNATS(NATSConfig{URL: url, Rank: r, Size: size, RunID: run, RetryDelay: 20 * time.Millisecond})
		require.NoError(t, err)
		t.Cleanup(func() { _ = n.Close() })
		ranks[r] = n
	}
	return ranks
}

func TestNATSGroup(t *testing.T) {
	ranks := startNATSGroup(t, runNATSServer(t), "test-run", 3)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for _, n := range ranks[1:] {
		n := n
		g.Go(func() error {
			p, err := n.Bcast(gctx, nil)
			if err != nil {
				return err
			}
			if string(p) != "params" {
				return assert.AnError
			}
			if _, err := n.ReduceSum(gctx, uint64(10*n.Rank())); err != nil {
				return err
			}
			req, err := n.Isend([]byte("hit from " + string(rune('0'+n.Rank()))))
			if err != nil {
				return err
			}
			return req.Wait(gctx)
		})
	}

	p, err := ranks[0].Bcast(ctx, []byte("params"))
	require.NoError(t, err)
	assert.Equal(t, "params", string(p))
	sum, err := ranks[0].ReduceSum(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(31), sum)
	require.NoError(t, g.Wait())

	got := map[int]string{}
	require.Eventually(t, func() bool {
		st, ok, err := ranks[0].Iprobe()
		if err != nil || !ok {
			return false
		}
		buf := make([]byte, st.Count)
		req, err := ranks[0].Irecv(st, buf)
		if err != nil || req.Wait(ctx) != nil {
			return false
		}
		got[st.Source] = string(buf)
		return len(got) == 2
	}, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, map[int]string{1: "hit from 1", 2: "hit from 2"}, got)

	_, err = ranks[1].Irecv(Status{}, nil)
	assert.ErrorIs(t, err, ErrNotRoot)
	_, err = ranks[0].Isend(nil)
	assert.ErrorIs(t, err, ErrRoot)
}

func TestNATSLateJoinGetsBroadcast(t *testing.T) {
	url := runNATSServer(t)
	ranks := startNATSGroup(t, url, "late", 2)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	errs := make(chan error, 1)
	go func() {
		_, err := ranks[1].Bcast(ctx, nil)
		errs <- err
	}()
	_, err := ranks[0].Bcast(ctx, []byte("params"))
	require.NoError(t, err)
	require.NoError(t, <-errs)

	// a second join for the same rank, e.g. a retried request, is answered
	// from the stored payload
	again, err := ranks[1].Bcast(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "params", string(again))
}

func TestNATSAbort(t *testing.T) {
	ranks := startNATSGroup(t, runNATSServer(t), "abort", 3)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	errs := make(chan error, 1)
	go func() {
		_, err := ranks[0].Bcast(ctx, []byte("params"))
		errs <- err
	}()

	require.NoError(t, ranks[2].Abort(ctx))
	for _, n := range ranks {
		select {
		case <-n.Aborted():
		case <-time.After(5 * time.Second):
			t.Fatalf("rank %d never saw the abort", n.Rank())
		}
	}
	assert.ErrorIs(t, <-errs, ErrAborted)
}

func TestNATSRunsAreIsolated(t *testing.T) {
	url := runNATSServer(t)
	a := startNATSGroup(t, url, "run-a", 2)
	b := startNATSGroup(t, url, "run-b", 2)

	require.NoError(t, a[1].Abort(context.Background()))
	select {
	case <-a[0].Aborted():
	case <-time.After(5 * time.Second):
		t.Fatal("abort not delivered within its run")
	}
	select {
	case <-b[0].Aborted():
		t.Fatal("abort leaked into another run")
	case <-time.After(100 * time.Millisecond):
	}
}
