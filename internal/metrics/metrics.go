// Package metrics exposes the search's progress as Prometheus metrics.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

const MetricPrefix = "crcsearch_"

// Metrics holds one process's search metrics in its own registry.
type Metrics struct {
	registry *prometheus.Registry

	candidates prometheus.Counter
	length     prometheus.Gauge
	lengths    prometheus.Counter
	found      prometheus.Counter
	collected  *prometheus.CounterVec
	sent       prometheus.Counter
	dropped    prometheus.Counter
	groupCPUs  prometheus.Gauge
	peersLost  *prometheus.CounterVec
}

// New creates the metrics of one rank. role is "coordinator" or "worker".
func New(role string, rank int) *Metrics {
	labels := prometheus.Labels{"role": role, "rank": strconv.Itoa(rank)}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		candidates: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        MetricPrefix + "candidates_total",
			Help:        "Number of candidates checked",
			ConstLabels: labels,
		}),
		length: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        MetricPrefix + "current_length",
			Help:        "Candidate length currently being searched",
			ConstLabels: labels,
		}),
		lengths: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        MetricPrefix + "lengths_completed_total",
			Help:        "Number of candidate lengths searched to the end",
			ConstLabels: labels,
		}),
		found: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        MetricPrefix + "matches_found_total",
			Help:        "Number of matches this rank found itself",
			ConstLabels: labels,
		}),
		collected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        MetricPrefix + "matches_collected_total",
			Help:        "Number of matches recorded by the coordinator, by finding rank",
			ConstLabels: labels,
		}, []string{"source"}),
		sent: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        MetricPrefix + "reports_sent_total",
			Help:        "Number of match reports a worker started sending",
			ConstLabels: labels,
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        MetricPrefix + "reports_dropped_total",
			Help:        "Number of inbound reports discarded as too short",
			ConstLabels: labels,
		}),
		groupCPUs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        MetricPrefix + "group_cpus",
			Help:        "Logical CPUs summed over every rank of the group",
			ConstLabels: labels,
		}),
		peersLost: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        MetricPrefix + "peers_lost_total",
			Help:        "Number of times a worker stopped answering health checks, by worker rank",
			ConstLabels: labels,
		}, []string{"peer"}),
	}
	m.registry.MustRegister(m.candidates, m.length, m.lengths, m.found, m.collected, m.sent, m.dropped, m.groupCPUs, m.peersLost)
	return m
}

func (m *Metrics) AddCandidates(n int)     { m.candidates.Add(float64(n)) }
func (m *Metrics) SetLength(l int)         { m.length.Set(float64(l)) }
func (m *Metrics) LengthDone()             { m.lengths.Inc() }
func (m *Metrics) MatchFound()             { m.found.Inc() }
func (m *Metrics) MatchCollected(rank int) { m.collected.WithLabelValues(strconv.Itoa(rank)).Inc() }
func (m *Metrics) ReportSent()             { m.sent.Inc() }
func (m *Metrics) ReportsDropped(n int)    { m.dropped.Add(float64(n)) }
func (m *Metrics) SetGroupCPUs(n uint64)   { m.groupCPUs.Set(float64(n)) }
func (m *Metrics) PeerLost(rank int)       { m.peersLost.WithLabelValues(strconv.Itoa(rank)).Inc() }

// Registry returns the registry the metrics are registered in.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the metrics in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve serves /metrics on addr until ctx is canceled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Infof("serving metrics on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Wrapf(err, "serve metrics on %s", addr)
	}
	return nil
}
