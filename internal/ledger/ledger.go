// Package ledger records which download ids were submitted under a Download
// name, so a later run can resume monitoring them.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// KeyPrefix prefixes every ledger key in Redis.
const KeyPrefix = "dgq:downloads:"

// DefaultTTL matches the 15 days restored data stays on the DLS file system.
const DefaultTTL = 15 * 24 * time.Hour

var (
	// ErrNotFound is returned when nothing is recorded under a name.
	ErrNotFound = errors.New("no downloads recorded")

	// ErrInvalidRecord indicates the stored record could not be decoded.
	ErrInvalidRecord = errors.New("invalid ledger record")
)

var ledgerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "dgq_ledger_errors_total",
	Help: "Total ledger operation errors by operation",
}, []string{"operation"})

// Record is the set of part Downloads submitted under one name.
type Record struct {
	Name         string    `json:"name"`
	AccessMethod string    `json:"access_method"`
	DownloadIDs  []int     `json:"download_ids"`
	SubmittedAt  time.Time `json:"submitted_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Ledger stores Records by name.
type Ledger interface {
	// Append adds a download id to the record for name, creating it if needed.
	Append(ctx context.Context, name, accessMethod string, downloadID int) error

	// Get returns the record for name or ErrNotFound.
	Get(ctx context.Context, name string) (*Record, error)
}

// Key returns the Redis key for name.
func Key(name string) string {
	return KeyPrefix + name
}

// Nop is a Ledger that stores nothing.
type Nop struct{}

// Append does nothing.
func (Nop) Append(ctx context.Context, name, accessMethod string, downloadID int) error {
	return nil
}

// Get always returns ErrNotFound.
func (Nop) Get(ctx context.Context, name string) (*Record, error) {
	return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
}

// RedisLedger keeps Records as JSON values in Redis.
type RedisLedger struct {
	redis  *redis.Client
	ttl    time.Duration
	now    func() time.Time
	logger zerolog.Logger
}

// NewRedisLedger creates a ledger. A ttl of zero or less uses DefaultTTL.
func NewRedisLedger(redisClient *redis.Client, ttl time.Duration, logger zerolog.Logger) *RedisLedger {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisLedger{
		redis:  redisClient,
		ttl:    ttl,
		now:    time.Now,
		logger: logger,
	}
}

// Append adds downloadID to the record for name and refreshes its TTL.
func (l *RedisLedger) Append(ctx context.Context, name, accessMethod string, downloadID int) error {
	now := l.now().UTC()

	rec, err := l.Get(ctx, name)
	if errors.Is(err, ErrNotFound) {
		rec = &Record{
			Name:         name,
			AccessMethod: accessMethod,
			SubmittedAt:  now,
		}
	} else if err != nil {
		return err
	}

	rec.DownloadIDs = append(rec.DownloadIDs, downloadID)
	rec.UpdatedAt = now

	data, err := json.Marshal(rec)
	if err != nil {
		ledgerErrors.WithLabelValues("append").Inc()
		return fmt.Errorf("marshal record: %w", err)
	}

	if err := l.redis.Set(ctx, Key(name), data, l.ttl).Err(); err != nil {
		ledgerErrors.WithLabelValues("append").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	l.logger.Debug().
		Str("name", name).
		Int("download_id", downloadID).
		Int("parts", len(rec.DownloadIDs)).
		Msg("Recorded download")

	return nil
}

// Get returns the record for name.
func (l *RedisLedger) Get(ctx context.Context, name string) (*Record, error) {
	data, err := l.redis.Get(ctx, Key(name)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		ledgerErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		ledgerErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	return &rec, nil
}

// Connect parses a redis:// URL and verifies the server is reachable.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}
