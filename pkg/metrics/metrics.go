// Package metrics exposes the Prometheus registry used by dg-queue and pushes
// a run's metrics to a Pushgateway. Collectors are declared with promauto in
// the packages that update them (gateway, batch, monitor, ledger).
package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Registry is the default Prometheus registry used by dg-queue.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the source of metrics pushed at the end of a run.
var Gatherer prometheus.Gatherer = prometheus.DefaultGatherer

// DefaultJob is the Pushgateway job label.
const DefaultJob = "dg_queue"

// Push sends every gathered metric to the Pushgateway at url, replacing the
// metrics previously pushed under the same job and grouping labels.
func Push(ctx context.Context, url, job string, grouping map[string]string) error {
	if url == "" {
		return fmt.Errorf("pushgateway url is required")
	}
	if job == "" {
		job = DefaultJob
	}

	pusher := push.New(url, job).Gatherer(Gatherer)
	for name, value := range grouping {
		pusher = pusher.Grouping(name, value)
	}

	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}

// Metrics Documentation
//
// Request Metrics (pkg/gateway):
//   - dgq_requests_total{endpoint, status} (Counter): requests by endpoint and HTTP status
//   - dgq_request_duration_seconds{endpoint} (Histogram): request duration by endpoint
//
// Submission Metrics (pkg/batch):
//   - dgq_parts_submitted_total (Counter): part Downloads accepted
//   - dgq_files_submitted_total (Counter): file paths sent in accepted parts
//   - dgq_files_not_found_total (Counter): paths the server could not resolve
//
// Monitoring Metrics (pkg/monitor):
//   - dgq_status_polls_total (Counter): status checks
//   - dgq_downloads_pending (Gauge): Downloads still pending at the last check
//
// Ledger Metrics (internal/ledger):
//   - dgq_ledger_errors_total{operation} (Counter): Redis ledger failures
//
// Example Prometheus Queries:
//
//	# Share of submitted paths that were not found
//	dgq_files_not_found_total / dgq_files_submitted_total
//
//	# Failed requests per endpoint
//	sum by (endpoint) (dgq_requests_total{status!="200"})
