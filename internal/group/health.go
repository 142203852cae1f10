package group

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dreamware/crcsearch/internal/cluster"
)

// PeerHealth tracks the liveness of one worker as seen by the coordinator.
type PeerHealth struct {
	LastCheck        time.Time // Timestamp of the last health check attempt
	LastHealthy      time.Time // Timestamp of the last successful health check
	Rank             int       // Rank of the worker
	Status           string    // "healthy", "unhealthy" or "unknown"
	ConsecutiveFails int       // Number of consecutive failed health checks
}

// PeerMonitor periodically checks the /health endpoint of every worker.
//
// A worker that stops answering is only reported: the search has no way to
// hand its lengths to another rank, so the coordinator logs the loss and
// carries on with the ranks that remain.
// Thread-safe: All methods are safe for concurrent access.
type PeerMonitor struct {
	peers       map[int]*PeerHealth     // Current health per rank
	httpClient  *http.Client            // HTTP client for health checks
	checkFunc   func(addr string) error // Function to perform health check
	onUnhealthy func(rank int)          // Callback when a worker becomes unhealthy
	ctx         context.Context
	cancel      context.CancelFunc
	interval    time.Duration
	mu          sync.RWMutex
	wg          sync.WaitGroup
	maxFailures int
}

// NewPeerMonitor creates a monitor that checks each worker every interval and
// marks it unhealthy after 3 consecutive failures.
//
// Example:
//
//	monitor := NewPeerMonitor(10 * time.Second)
//	monitor.Start(ctx, func() []cluster.WorkerInfo { return root.Workers() })
//	defer monitor.Stop()
func NewPeerMonitor(interval time.Duration) *PeerMonitor {
	ctx, cancel := context.WithCancel(context.Background())
	return &PeerMonitor{
		interval:    interval,
		maxFailures: 3,
		peers:       make(map[int]*PeerHealth),
		httpClient:  &http.Client{Timeout: 2 * time.Second},
		ctx:         ctx,
		cancel:      cancel,
	}
}

// SetOnUnhealthy sets the callback invoked when a worker becomes unhealthy.
// It must be called before Start.
func (h *PeerMonitor) SetOnUnhealthy(callback func(rank int)) {
	h.onUnhealthy = callback
}

// SetCheckFunction overrides the HTTP health check, for tests.
func (h *PeerMonitor) SetCheckFunction(checkFunc func(addr string) error) {
	h.checkFunc = checkFunc
}

// Start launches the monitoring goroutine. It checks every worker returned by
// peers once immediately and then every interval, until ctx is canceled or
// Stop is called.
func (h *PeerMonitor) Start(ctx context.Context, peers func() []cluster.WorkerInfo) {
	if h.checkFunc == nil {
		h.checkFunc = h.defaultHealthCheck
	}
	h.wg.Add(1)
	go h.run(ctx, peers)
}

func (h *PeerMonitor) run(ctx context.Context, peers func() []cluster.WorkerInfo) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	log.Debugf("Peer monitor started with interval %v", h.interval)
	h.checkAll(peers())

	for {
		select {
		case <-ticker.C:
			h.checkAll(peers())
		case <-ctx.Done():
			return
		case <-h.ctx.Done():
			return
		}
	}
}

// Stop cancels the monitoring goroutine and waits for it to return.
func (h *PeerMonitor) Stop() {
	h.cancel()
	h.wg.Wait()
}

func (h *PeerMonitor) checkAll(peers []cluster.WorkerInfo) {
	for _, p := range peers {
		h.check(p)
	}
}

func (h *PeerMonitor) check(peer cluster.WorkerInfo) {
	h.mu.Lock()
	health, exists := h.peers[peer.Rank]
	if !exists {
		health = &PeerHealth{Rank: peer.Rank, Status: "unknown", LastCheck: time.Now(), LastHealthy: time.Now()}
		h.peers[peer.Rank] = health
	}
	h.mu.Unlock()

	err := h.checkFunc(peer.Addr)

	h.mu.Lock()
	defer h.mu.Unlock()
	health.LastCheck = time.Now()

	if err != nil {
		health.ConsecutiveFails++
		log.Debugf("Health check failed for rank %d (attempt %d/%d): %v", peer.Rank, health.ConsecutiveFails, h.maxFailures, err)
		if health.ConsecutiveFails >= h.maxFailures && health.Status != "unhealthy" {
			health.Status = "unhealthy"
			log.Warnf("Rank %d unreachable after %d health checks; its lengths will not be searched", peer.Rank, health.ConsecutiveFails)
			if h.onUnhealthy != nil {
				go h.onUnhealthy(peer.Rank)
			}
		}
		return
	}
	if health.Status == "unhealthy" {
		log.Infof("Rank %d is reachable again", peer.Rank)
	}
	health.Status = "healthy"
	health.ConsecutiveFails = 0
	health.LastHealthy = time.Now()
}

func (h *PeerMonitor) defaultHealthCheck(addr string) error {
	url := addr
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		url = fmt.Sprintf("http://%s", addr)
	}
	url = strings.TrimRight(url, "/") + "/health"

	resp, err := h.httpClient.Get(url)
	if err != nil {
		return fmt.Errorf("health check request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

// Peer returns a copy of the health record for rank, or nil if unknown.
func (h *PeerMonitor) Peer(rank int) *PeerHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()
	health, ok := h.peers[rank]
	if !ok {
		return nil
	}
	c := *health
	return &c
}

// IsHealthy reports whether rank answered its most recent health checks.
func (h *PeerMonitor) IsHealthy(rank int) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	health, ok := h.peers[rank]
	return ok && health.Status == "healthy"
}
