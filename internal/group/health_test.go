package group

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/crcsearch/internal/cluster"
)

func TestNewPeerMonitor(t *testing.T) {
	monitor := NewPeerMonitor(5 * time.Second)
	defer monitor.Stop()

	assert.Equal(t, 5*time.Second, monitor.interval)
	assert.Equal(t, 3, monitor.maxFailures)
	assert.Empty(t, monitor.peers)
	assert.Nil(t, monitor.Peer(1))
	assert.False(t, monitor.IsHealthy(1))
}

// TestPeerMonitorFailureAndRecovery drives one worker through healthy,
// unhealthy and back.
func TestPeerMonitorFailureAndRecovery(t *testing.T) {
	monitor := NewPeerMonitor(20 * time.Millisecond)
	defer monitor.Stop()

	var failing atomic.Bool
	monitor.SetCheckFunction(func(addr string) error {
		if failing.Load() {
			return errors.New("connection refused")
		}
		return nil
	})

	var mu sync.Mutex
	var lost []int
	monitor.SetOnUnhealthy(func(rank int) {
		mu.Lock()
		lost = append(lost, rank)
		mu.Unlock()
	})

	peers := func() []cluster.WorkerInfo {
		return []cluster.WorkerInfo{{Rank: 1, Addr: "http://127.0.0.1:1"}}
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	monitor.Start(ctx, peers)

	require.Eventually(t, func() bool { return monitor.IsHealthy(1) }, time.Second, 5*time.Millisecond)

	failing.Store(true)
	require.Eventually(t, func() bool {
		p := monitor.Peer(1)
		return p != nil && p.Status == "unhealthy"
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(lost) == 1
	}, time.Second, 5*time.Millisecond)

	failing.Store(false)
	require.Eventually(t, func() bool { return monitor.IsHealthy(1) }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, monitor.Peer(1).ConsecutiveFails)

	mu.Lock()
	assert.Equal(t, []int{1}, lost, "callback fires once per transition")
	mu.Unlock()
}

func TestPeerMonitorStopWaitsForFirstRound(t *testing.T) {
	monitor := NewPeerMonitor(time.Hour)
	var checks atomic.Int32
	monitor.SetCheckFunction(func(string) error {
		time.Sleep(20 * time.Millisecond)
		checks.Add(1)
		return nil
	})
	monitor.Start(context.Background(), func() []cluster.WorkerInfo {
		return []cluster.WorkerInfo{{Rank: 1, Addr: "http://127.0.0.1:1"}}
	})
	monitor.Stop()
	assert.Equal(t, int32(1), checks.Load())
	assert.True(t, monitor.IsHealthy(1))
}

func TestPeerMonitorDefaultCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	monitor := NewPeerMonitor(time.Hour)
	assert.NoError(t, monitor.defaultHealthCheck(srv.URL))
	assert.NoError(t, monitor.defaultHealthCheck(srv.URL+"/"))
	assert.NoError(t, monitor.defaultHealthCheck(srv.Listener.Addr().String()))

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()
	assert.Error(t, monitor.defaultHealthCheck(down.URL))
}
