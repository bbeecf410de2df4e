package scan

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"

	"github.com/kurihiro0119/devops-ingest/internal/checkpoint"
	"github.com/kurihiro0119/devops-ingest/internal/collector"
	"github.com/kurihiro0119/devops-ingest/internal/domain"
	"github.com/kurihiro0119/devops-ingest/internal/metrics"
)

// DefaultMaxAttempts bounds the attempts of one orchestrated scan.
const DefaultMaxAttempts = 5

// Store persists scan output and progress.
type Store interface {
	SaveRecords(ctx context.Context, key domain.IntegrationKey, records []domain.EnrichedRecord) error
	GetCheckpoint(ctx context.Context, key domain.IntegrationKey) (checkpoint.Checkpoint, error)
	SaveCheckpoint(ctx context.Context, key domain.IntegrationKey, cp checkpoint.Checkpoint) error
	DeleteCheckpoint(ctx context.Context, key domain.IntegrationKey) error
	SaveScanRun(ctx context.Context, run *domain.ScanRun) error
}

type OrchestratorOptions struct {
	MaxAttempts int
	// BackOff builds the retry schedule of a scan. Defaults to an exponential
	// backoff starting at 5 seconds.
	BackOff func() backoff.BackOff
	Metrics *metrics.Scan
	Logger  *slog.Logger
	Now     func() time.Time
}

// Orchestrator runs a scan to completion, resuming it from its checkpoint
// after each interruption until it succeeds or runs out of attempts.
type Orchestrator struct {
	coordinator *Coordinator
	store       Store
	maxAttempts int
	newBackOff  func() backoff.BackOff
	metrics     *metrics.Scan
	logger      *slog.Logger
	now         func() time.Time
}

func NewOrchestrator(c *Coordinator, store Store, opts OrchestratorOptions) *Orchestrator {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.BackOff == nil {
		opts.BackOff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 5 * time.Second
			b.MaxElapsedTime = 30 * time.Minute
			return b
		}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Orchestrator{
		coordinator: c,
		store:       store,
		maxAttempts: opts.MaxAttempts,
		newBackOff:  opts.BackOff,
		metrics:     opts.Metrics,
		logger:      opts.Logger,
		now:         opts.Now,
	}
}

// storeSink writes every record as soon as it is produced.
type storeSink struct {
	store   Store
	key     domain.IntegrationKey
	records int
}

func (s *storeSink) Emit(ctx context.Context, record domain.EnrichedRecord) error {
	if err := s.store.SaveRecords(ctx, s.key, []domain.EnrichedRecord{record}); err != nil {
		return err
	}
	s.records++
	return nil
}

func (s *storeSink) Checkpoint(ctx context.Context, cp checkpoint.Checkpoint) error {
	return s.store.SaveCheckpoint(ctx, s.key, cp)
}

// Scan runs query starting from the stored checkpoint of its integration.
// The returned run describes the final state; the error is the one that
// stopped the last attempt.
func (o *Orchestrator) Scan(ctx context.Context, query domain.ScanQuery) (*domain.ScanRun, error) {
	key := query.IntegrationKey
	cp, err := o.store.GetCheckpoint(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	// Pin the end of the window so that every attempt covers the same range.
	if query.To.IsZero() {
		query.To = o.now().UTC()
	}
	prepared := o.coordinator.Prepare(query)

	now := o.now().UTC()
	run := &domain.ScanRun{
		ID:             uuid.NewString(),
		IntegrationKey: key,
		Status:         domain.ScanStatusInProgress,
		From:           prepared.From,
		To:             prepared.To,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := o.store.SaveScanRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to save scan run: %w", err)
	}

	sink := &storeSink{store: o.store, key: key}
	operation := func() error {
		run.Attempts++
		o.metrics.IncAttempt()

		res, err := o.coordinator.Run(ctx, query, cp, sink)
		if err != nil {
			return backoff.Permanent(err)
		}
		if res.Complete() {
			return nil
		}

		f := res.Failure
		if len(f.Partial) > 0 {
			if err := o.store.SaveRecords(ctx, key, f.Partial); err != nil {
				return backoff.Permanent(fmt.Errorf("failed to save partial records: %w", err))
			}
			run.Records += len(f.Partial)
		}
		cp = res.Checkpoint
		if err := o.store.SaveCheckpoint(ctx, key, cp); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to save checkpoint: %w", err))
		}
		if collector.IsUnauthorized(f) {
			return backoff.Permanent(f)
		}
		return f
	}

	b := backoff.WithContext(backoff.WithMaxRetries(o.newBackOff(), uint64(o.maxAttempts-1)), ctx)
	err = backoff.RetryNotify(operation, b, func(err error, next time.Duration) {
		o.logger.Warn("scan attempt failed, resuming",
			"integration", key.String(), "attempt", run.Attempts, "next_attempt_in", next, "error", err)
	})

	run.Records += sink.records
	run.UpdatedAt = o.now().UTC()
	switch _, resumable := checkpoint.AsResumable(err); {
	case err == nil:
		run.Status = domain.ScanStatusCompleted
		if derr := o.store.DeleteCheckpoint(ctx, key); derr != nil {
			err = fmt.Errorf("failed to clear checkpoint: %w", derr)
			run.Status = domain.ScanStatusFailed
			run.Message = err.Error()
		}
	case resumable:
		run.Status = domain.ScanStatusResumable
		run.Message = err.Error()
	default:
		run.Status = domain.ScanStatusFailed
		run.Message = err.Error()
	}

	// The scan context may be done already; the run record must still land.
	if serr := o.store.SaveScanRun(context.WithoutCancel(ctx), run); serr != nil {
		o.logger.Error("failed to save scan run", "id", run.ID, "error", serr)
	}
	o.logger.Info("scan finished", "integration", key.String(), "id", run.ID,
		"status", run.Status, "attempts", run.Attempts, "records", run.Records)
	return run, err
}
