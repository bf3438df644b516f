package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/Sternrassler/dg-queue/internal/config"
	"github.com/Sternrassler/dg-queue/internal/ledger"
	"github.com/Sternrassler/dg-queue/pkg/monitor"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var errNoDownloads = errors.New("no download ids given: pass DOWNLOAD_ID arguments or --download-name with --redis-url")

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [DOWNLOAD_ID...]",
		Short: "Show the status of submitted Downloads",
		Long: `Shows the status of previously submitted Downloads. The ids are taken from
the arguments or, with --download-name, from the Redis ledger written by an
earlier run. With --monitor-interval > 0 the command keeps polling until no
Download is pending.`,
		Example: `  dg-queue status 101 102 -u abc12345 -p ~/.dg-password
  dg-queue status --download-name beamtime --redis-url redis://localhost:6379/0 -m 60`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			return a.runStatus(cmd.Context(), cfg, ids)
		},
	}
}

func (a *app) runStatus(ctx context.Context, cfg *config.Config, ids []int) error {
	logger := log.With().Str("run_id", uuid.NewString()).Logger()

	if len(ids) == 0 {
		if cfg.DownloadName == "" || cfg.RedisURL == "" {
			return errNoDownloads
		}

		led, closeLedger, err := a.openLedger(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer closeLedger()

		rec, err := led.Get(ctx, cfg.DownloadName)
		if err != nil {
			if errors.Is(err, ledger.ErrNotFound) {
				return fmt.Errorf("no downloads recorded for %q: %w", cfg.DownloadName, err)
			}
			return err
		}
		ids = rec.DownloadIDs
		logger = logger.With().Str("download_name", rec.Name).Logger()
	}

	client, sessionID, err := a.login(ctx, cfg, logger)
	if err != nil {
		return err
	}

	if cfg.Monitoring() {
		return a.wait(ctx, cfg, client, sessionID, ids)
	}

	statuses, err := client.DownloadStatus(ctx, sessionID, ids)
	if err != nil {
		return fmt.Errorf("check status: %w", err)
	}
	fmt.Fprintln(a.stdout, monitor.FormatStatuses(ids, statuses))
	return nil
}

func parseIDs(args []string) ([]int, error) {
	ids := make([]int, 0, len(args))
	for _, arg := range args {
		id, err := strconv.Atoi(arg)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid download id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
