package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Sternrassler/dg-queue/internal/config"
	"github.com/Sternrassler/dg-queue/pkg/batch"
	"github.com/Sternrassler/dg-queue/pkg/metrics"
	"github.com/Sternrassler/dg-queue/pkg/monitor"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// pushTimeout bounds the final Pushgateway push.
const pushTimeout = 10 * time.Second

// runSubmit logs in, queues every path of inputPath in parts and optionally
// waits for the resulting Downloads.
func (a *app) runSubmit(ctx context.Context, cfg *config.Config, inputPath string) error {
	name := cfg.DownloadName
	if name == "" {
		name = batch.DefaultName(time.Now())
	}

	logger := log.With().
		Str("run_id", uuid.NewString()).
		Str("download_name", name).
		Logger()
	defer a.pushMetrics(cfg, name, logger)

	input, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("open input file: %w", err)
	}
	defer input.Close()

	client, sessionID, err := a.login(ctx, cfg, logger)
	if err != nil {
		return err
	}

	led, closeLedger, err := a.openLedger(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeLedger()

	submitter := batch.NewSubmitter(client, a.stdout)
	ids, err := submitter.QueueAll(ctx, sessionID, input, batch.Options{
		AccessMethod: cfg.AccessMethod,
		Name:         name,
		Email:        cfg.EmailAddress,
		AfterSubmit: func(ctx context.Context, part batch.Part) error {
			return led.Append(ctx, name, cfg.AccessMethod, part.DownloadID)
		},
	})
	if err != nil {
		return err
	}

	logger.Info().
		Int("parts", len(ids)).
		Ints("download_ids", ids).
		Msg("Submission complete")

	if !cfg.Monitoring() {
		return nil
	}
	return a.wait(ctx, cfg, client, sessionID, ids)
}

// wait polls ids until none is pending.
func (a *app) wait(ctx context.Context, cfg *config.Config, checker monitor.StatusChecker, sessionID string, ids []int) error {
	poller, err := monitor.NewPoller(checker, monitor.Config{
		Interval: monitor.IntervalFromSeconds(cfg.MonitorInterval),
	}, a.stdout)
	if err != nil {
		return err
	}
	_, err = poller.Wait(ctx, sessionID, ids)
	return err
}

// pushMetrics sends the run's metrics to the configured Pushgateway. A failed
// push is logged and does not change the exit status.
func (a *app) pushMetrics(cfg *config.Config, name string, logger zerolog.Logger) {
	if cfg.PushgatewayURL == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
	defer cancel()

	if err := metrics.Push(ctx, cfg.PushgatewayURL, metrics.DefaultJob, map[string]string{
		"download_name": name,
	}); err != nil {
		logger.Warn().Err(err).Str("url", cfg.PushgatewayURL).Msg("Failed to push metrics")
		return
	}
	logger.Debug().Str("url", cfg.PushgatewayURL).Msg("Pushed metrics")
}
