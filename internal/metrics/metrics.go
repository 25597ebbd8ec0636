package metrics

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "cloudflare_aaaa_sync"

type Metrics struct {
	registry         *prometheus.Registry
	syncRuns         *prometheus.CounterVec // total syncs
	syncDuration     prometheus.Histogram   // time to sync
	dnsOperations    *prometheus.CounterVec // dns operations
	dnsRequests      *prometheus.CounterVec // dns provider requests
	resolverRequests *prometheus.CounterVec // public address lookups
	stateRequests    *prometheus.CounterVec // badgerdb requests
	matchingRecords  prometheus.Gauge       // records matching hostname/type
	lastSuccess      prometheus.Gauge       // unix time of last successful sync
}

func (m *Metrics) IncSyncRun(success bool) {
	status := boolToResult(success)
	m.syncRuns.WithLabelValues(status).Inc()
	if success {
		m.lastSuccess.SetToCurrentTime()
	}
}

func (m *Metrics) SetSyncDuration(duration time.Duration) {
	m.syncDuration.Observe(duration.Seconds())
}

func (m *Metrics) IncDNSOperation(operation, recordType string) {
	if !isValidOperation(operation) || recordType == "" {
		return
	}
	m.dnsOperations.WithLabelValues(operation, recordType).Inc()
}

func (m *Metrics) IncDNSRequest(operation string, success bool) {
	if !isValidOperation(operation) {
		return
	}
	status := boolToResult(success)
	m.dnsRequests.WithLabelValues(operation, status).Inc()
}

func (m *Metrics) IncResolverRequest(success bool, code int) {
	status := boolToResult(success)
	scode := strconv.Itoa(code)
	m.resolverRequests.WithLabelValues(status, scode).Inc()
}

func (m *Metrics) IncStateRequest(operation string, success bool) {
	if !isValidOperation(operation) {
		return
	}
	status := boolToResult(success)
	m.stateRequests.WithLabelValues(operation, status).Inc()
}

func (m *Metrics) SetMatchingRecords(count int) {
	m.matchingRecords.Set(float64(count))
}

// Push sends every registered metric to a Prometheus Pushgateway,
// replacing the previous group for job.
func (m *Metrics) Push(ctx context.Context, url, job string) error {
	err := push.New(url, job).
		Gatherer(m.registry).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}

// WriteTextfile writes every registered metric in the text exposition
// format, for the node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile %s: %w", path, err)
	}
	return nil
}

func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

func boolToResult(b bool) string {
	if b {
		return "success"
	}
	return "failure"
}

func isValidOperation(op string) bool {
	switch op {
	case "create", "read", "update", "delete", "skip":
		return true
	}
	return false
}

func New(register bool) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		syncRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_runs_total",
			Help:      "Total number of synchronization runs",
		}, []string{"status"}),

		syncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_duration_seconds",
			Help:      "Duration of synchronization runs in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		dnsOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dns_operations_total",
			Help:      "Total DNS operations planned by the reconciler",
		}, []string{"operation", "type"}),

		dnsRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dns_requests_total",
			Help:      "Total DNS provider requests",
		}, []string{"operation", "status"}),

		resolverRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolver_requests_total",
			Help:      "Total public address lookups",
		}, []string{"status", "code"}),

		stateRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_requests_total",
			Help:      "Total run history store requests",
		}, []string{"operation", "status"}),

		matchingRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "matching_records",
			Help:      "Records matching the configured hostname and type before reconciliation",
		}),

		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful synchronization run",
		}),
	}

	if register {
		registry.MustRegister(
			m.syncRuns,
			m.syncDuration,
			m.dnsOperations,
			m.dnsRequests,
			m.resolverRequests,
			m.stateRequests,
			m.matchingRecords,
			m.lastSuccess,
		)
	}
	return m
}
