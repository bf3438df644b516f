// Package monitor polls DataGateway until submitted Downloads leave the
// preparation pipeline.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Sternrassler/dg-queue/pkg/gateway"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for status polling.
var (
	statusPollsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dgq_status_polls_total",
		Help: "Total status checks made while monitoring Downloads",
	})

	downloadsPending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dgq_downloads_pending",
		Help: "Downloads still QUEUED, PAUSED, PREPARING or RESTORING at the last poll",
	})
)

// ErrMonitoringDisabled is returned for a poll interval that is not positive.
var ErrMonitoringDisabled = errors.New("monitoring disabled: poll interval must be > 0")

// CompleteMessage is printed once no Download is pending.
const CompleteMessage = "All downloads complete"

// StatusChecker is the part of the gateway client the poller needs.
type StatusChecker interface {
	DownloadStatus(ctx context.Context, sessionID string, ids []int) ([]gateway.Status, error)
	RefreshSession(ctx context.Context, sessionID string) error
}

// Config holds poller configuration.
type Config struct {
	// Interval between status checks.
	Interval time.Duration
}

// IntervalFromSeconds converts a CLI interval in (fractional) seconds.
func IntervalFromSeconds(seconds float64) time.Duration {
	if seconds <= 0 {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}

// Poller repeatedly checks Download status.
type Poller struct {
	checker StatusChecker
	config  Config
	out     io.Writer
	logger  zerolog.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewPoller creates a poller. Poll reports are written to out; nil discards them.
func NewPoller(checker StatusChecker, cfg Config, out io.Writer) (*Poller, error) {
	if cfg.Interval <= 0 {
		return nil, ErrMonitoringDisabled
	}
	if out == nil {
		out = io.Discard
	}

	return &Poller{
		checker: checker,
		config:  cfg,
		out:     out,
		logger:  log.With().Str("component", "monitor").Logger(),
		sleep:   sleepContext,
	}, nil
}

// Wait polls until every Download is terminal and returns the final statuses.
// Between polls the session is refreshed; a failed refresh is fatal.
func (p *Poller) Wait(ctx context.Context, sessionID string, ids []int) ([]gateway.Status, error) {
	if len(ids) == 0 {
		fmt.Fprintln(p.out, CompleteMessage)
		return []gateway.Status{}, nil
	}

	statuses, err := p.poll(ctx, sessionID, ids, 1)
	if err != nil {
		return nil, err
	}

	for n := 2; gateway.Pending(statuses) > 0; n++ {
		if err := p.checker.RefreshSession(ctx, sessionID); err != nil {
			return nil, fmt.Errorf("refresh session: %w", err)
		}

		if err := p.sleep(ctx, p.config.Interval); err != nil {
			p.logger.Warn().Int("poll", n).Msg("Context cancelled while waiting for downloads")
			return nil, fmt.Errorf("wait for downloads: %w", err)
		}

		statuses, err = p.poll(ctx, sessionID, ids, n)
		if err != nil {
			return nil, err
		}
	}

	p.logger.Info().Ints("download_ids", ids).Msg("All downloads complete")
	fmt.Fprintln(p.out, CompleteMessage)

	return statuses, nil
}

func (p *Poller) poll(ctx context.Context, sessionID string, ids []int, n int) ([]gateway.Status, error) {
	statuses, err := p.checker.DownloadStatus(ctx, sessionID, ids)
	if err != nil {
		return nil, fmt.Errorf("check status (poll %d): %w", n, err)
	}

	pending := gateway.Pending(statuses)
	statusPollsTotal.Inc()
	downloadsPending.Set(float64(pending))

	p.logger.Info().
		Int("poll", n).
		Int("pending", pending).
		Int("downloads", len(ids)).
		Msg("Download status")

	fmt.Fprintln(p.out, FormatStatuses(ids, statuses))

	return statuses, nil
}

// FormatStatuses renders one poll result, e.g.
// "1 of 2 pending: 101=RESTORING 102=COMPLETE".
func FormatStatuses(ids []int, statuses []gateway.Status) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d of %d pending:", gateway.Pending(statuses), len(statuses))
	for i, s := range statuses {
		if i < len(ids) {
			fmt.Fprintf(&b, " %d=%s", ids[i], s)
		} else {
			fmt.Fprintf(&b, " ?=%s", s)
		}
	}
	return b.String()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
