package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/Sternrassler/dg-queue/pkg/gateway"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for part submission.
var (
	partsSubmittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dgq_parts_submitted_total",
		Help: "Total part Downloads accepted by DataGateway",
	})

	filesSubmittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dgq_files_submitted_total",
		Help: "Total file paths sent in accepted part Downloads",
	})

	filesNotFoundTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dgq_files_not_found_total",
		Help: "Total file paths DataGateway reported as not found",
	})
)

// ErrNoSession is returned when QueueAll is called without a session id.
var ErrNoSession = errors.New("session id is required")

// Queuer submits a single part Download. *gateway.Client implements it.
type Queuer interface {
	QueueFiles(ctx context.Context, req gateway.QueueRequest) (*gateway.QueueResponse, error)
}

// Part describes one accepted part Download.
type Part struct {
	Number     int
	Name       string
	Files      int
	DownloadID int
	NotFound   []string
}

// Options configures a QueueAll run.
type Options struct {
	// AccessMethod is the transport: https, globus or dls.
	AccessMethod string

	// Name is the base name; "_part_<n>" is appended per part.
	// Defaults to the current time in DefaultNameLayout.
	Name string

	// Email optionally receives status notifications.
	Email string

	// PartSize overrides MaxPartSize (tests only; values above MaxPartSize are capped).
	PartSize int

	// AfterSubmit, if set, is called after every accepted part.
	// A returned error aborts the run.
	AfterSubmit func(ctx context.Context, part Part) error
}

// withDefaults resolves the base name once so every part shares it.
func (o Options) withDefaults(now func() time.Time) Options {
	if o.Name == "" {
		o.Name = DefaultName(now())
	}
	if o.PartSize <= 0 || o.PartSize > MaxPartSize {
		o.PartSize = MaxPartSize
	}
	return o
}

// Submitter queues path lists as part Downloads.
type Submitter struct {
	queuer Queuer
	out    io.Writer
	now    func() time.Time
	logger zerolog.Logger
}

// NewSubmitter creates a submitter. Per-part reports are written to out;
// a nil out discards them.
func NewSubmitter(queuer Queuer, out io.Writer) *Submitter {
	if out == nil {
		out = io.Discard
	}
	return &Submitter{
		queuer: queuer,
		out:    out,
		now:    time.Now,
		logger: log.With().Str("component", "batch").Logger(),
	}
}

// QueueAll reads newline-delimited paths from r and submits them in parts.
// It returns the download id of every part in submission order, or the first
// error; parts submitted before the error are not withdrawn.
func (s *Submitter) QueueAll(ctx context.Context, sessionID string, r io.Reader, opts Options) ([]int, error) {
	if sessionID == "" {
		return nil, ErrNoSession
	}
	opts = opts.withDefaults(s.now)

	startTime := time.Now()
	chunker := NewChunker(r, opts.PartSize)
	ids := []int{}
	files := 0

	for n := 1; ; n++ {
		paths, err := chunker.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		part, err := s.submit(ctx, sessionID, opts, n, paths)
		if err != nil {
			return nil, err
		}
		ids = append(ids, part.DownloadID)
		files += part.Files

		if opts.AfterSubmit != nil {
			if err := opts.AfterSubmit(ctx, part); err != nil {
				return nil, fmt.Errorf("after part %d: %w", n, err)
			}
		}
	}

	s.logger.Info().
		Str("name", opts.Name).
		Int("parts", len(ids)).
		Int("files", files).
		Dur("duration", time.Since(startTime)).
		Msg("Submission complete")

	return ids, nil
}

// QueuePaths submits an in-memory path list; see QueueAll.
func (s *Submitter) QueuePaths(ctx context.Context, sessionID string, paths []string, opts Options) ([]int, error) {
	if sessionID == "" {
		return nil, ErrNoSession
	}
	opts = opts.withDefaults(s.now)

	ids := make([]int, 0, len(paths)/opts.PartSize+1)
	for i, chunk := range Split(paths, opts.PartSize) {
		part, err := s.submit(ctx, sessionID, opts, i+1, chunk)
		if err != nil {
			return nil, err
		}
		ids = append(ids, part.DownloadID)

		if opts.AfterSubmit != nil {
			if err := opts.AfterSubmit(ctx, part); err != nil {
				return nil, fmt.Errorf("after part %d: %w", i+1, err)
			}
		}
	}
	return ids, nil
}

func (s *Submitter) submit(ctx context.Context, sessionID string, opts Options, n int, paths []string) (Part, error) {
	name := PartName(opts.Name, n)

	resp, err := s.queuer.QueueFiles(ctx, gateway.QueueRequest{
		SessionID: sessionID,
		Transport: opts.AccessMethod,
		FileName:  name,
		Email:     opts.Email,
		Files:     paths,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("part", name).Int("files", len(paths)).Msg("Part submission failed")
		return Part{}, fmt.Errorf("submit %s: %w", name, err)
	}

	part := Part{
		Number:     n,
		Name:       name,
		Files:      len(paths),
		DownloadID: resp.DownloadID,
		NotFound:   resp.NotFound,
	}

	partsSubmittedTotal.Inc()
	filesSubmittedTotal.Add(float64(part.Files))
	filesNotFoundTotal.Add(float64(len(part.NotFound)))

	s.logger.Info().
		Str("part", name).
		Int("download_id", part.DownloadID).
		Int("files", part.Files).
		Int("not_found", len(part.NotFound)).
		Msg("Submitted part Download")
	if len(part.NotFound) > 0 {
		s.logger.Warn().
			Str("part", name).
			Strs("paths", part.NotFound).
			Msg("Files not found")
	}

	fmt.Fprintf(s.out, "Submitted part Download %s with id %d\n", name, part.DownloadID)
	fmt.Fprintf(s.out, "%d file(s) could not be found: %v\n\n", len(part.NotFound), part.NotFound)

	return part, nil
}
