// Package scan runs the extraction stages of an integration in order and
// drives retries of interrupted scans.
package scan

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/kurihiro0119/devops-ingest/internal/checkpoint"
	"github.com/kurihiro0119/devops-ingest/internal/domain"
	"github.com/kurihiro0119/devops-ingest/internal/extractor"
	"github.com/kurihiro0119/devops-ingest/internal/metrics"
)

// DefaultOnboardingDays is the look-back of a scan without a start time.
const DefaultOnboardingDays = 90

// Sink receives the output of a scan as it is produced.
type Sink interface {
	Emit(ctx context.Context, record domain.EnrichedRecord) error
	Checkpoint(ctx context.Context, cp checkpoint.Checkpoint) error
}

// StageResult reports what one stage produced.
type StageResult struct {
	Stage    domain.Stage  `json:"stage"`
	Records  int           `json:"records"`
	Items    int           `json:"items"`
	Duration time.Duration `json:"duration"`
	// Skipped is set when a previous attempt already completed the stage.
	Skipped bool `json:"skipped,omitempty"`
}

// Result is the outcome of one scan attempt. A non-nil Failure means the
// attempt stopped early and can be resumed from Checkpoint.
type Result struct {
	Stages     []StageResult
	Checkpoint checkpoint.Checkpoint
	Failure    *checkpoint.ResumableFailure
}

func (r Result) Complete() bool {
	return r.Failure == nil
}

// Records returns the number of records emitted by the attempt.
func (r Result) Records() int {
	n := 0
	for _, s := range r.Stages {
		n += s.Records
	}
	return n
}

type Options struct {
	// Flags are the fetch_* settings of the integration.
	Flags          map[string]bool
	OnboardingDays int
	Metrics        *metrics.Scan
	Logger         *slog.Logger
	Now            func() time.Time
}

// Coordinator decides which stages a scan runs and runs them in order.
type Coordinator struct {
	extractors     map[domain.Stage]extractor.Extractor
	flags          map[string]bool
	onboardingDays int
	metrics        *metrics.Scan
	logger         *slog.Logger
	now            func() time.Time
}

func NewCoordinator(extractors []extractor.Extractor, opts Options) *Coordinator {
	byStage := make(map[domain.Stage]extractor.Extractor, len(extractors))
	for _, e := range extractors {
		byStage[e.Stage()] = e
	}
	if opts.OnboardingDays <= 0 {
		opts.OnboardingDays = DefaultOnboardingDays
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Coordinator{
		extractors:     byStage,
		flags:          opts.Flags,
		onboardingDays: opts.OnboardingDays,
		metrics:        opts.Metrics,
		logger:         opts.Logger,
		now:            opts.Now,
	}
}

// enabled reports whether neither the integration nor the query turned flag off.
func (c *Coordinator) enabled(flag string, query domain.ScanQuery) bool {
	if v, ok := c.flags[flag]; ok && !v {
		return false
	}
	if v, ok := query.IngestionFlags[flag]; ok && !v {
		return false
	}
	return true
}

// Plan returns the stages the query runs, in execution order. Releases must
// be enabled explicitly by the integration; tags only run on onboarding scans.
func (c *Coordinator) Plan(query domain.ScanQuery) []domain.Stage {
	onboarding := query.Onboarding()
	var stages []domain.Stage
	for _, stage := range domain.StageOrder {
		if _, ok := c.extractors[stage]; !ok || !query.JobCategory.Includes(stage) {
			continue
		}
		if !c.enabled(stage.Flag(), query) {
			continue
		}
		switch stage {
		case domain.StageReleases:
			if !c.flags[domain.FlagReleases] {
				continue
			}
		case domain.StageTags:
			if !onboarding {
				continue
			}
		}
		stages = append(stages, stage)
	}
	return stages
}

// Prepare fills the scan window and resolves the flags the extractors read.
func (c *Coordinator) Prepare(query domain.ScanQuery) domain.ScanQuery {
	now := c.now().UTC()
	if query.To.IsZero() {
		query.To = now
	}
	if query.From.IsZero() {
		query.From = now.AddDate(0, 0, -c.onboardingDays)
	}
	flags := maps.Clone(query.IngestionFlags)
	if flags == nil {
		flags = make(map[string]bool, 1)
	}
	flags[domain.FlagWorkItemComments] = c.enabled(domain.FlagWorkItemComments, query)
	query.IngestionFlags = flags
	return query
}

// Run executes the planned stages that cp has not completed yet. Every record
// goes to the sink, and the checkpoint is handed to it after each stage.
//
// A resumable failure ends the attempt with Result.Failure set. Any other
// error is returned as is, unless records were already emitted, in which case
// it becomes a failure resuming at the stage that broke.
func (c *Coordinator) Run(ctx context.Context, query domain.ScanQuery, cp checkpoint.Checkpoint, sink Sink) (Result, error) {
	stages := c.Plan(query)
	query = c.Prepare(query)
	c.logger.Info("starting scan",
		"integration", query.IntegrationKey.String(),
		"from", query.From, "to", query.To,
		"stages", stages,
		"completed_stages", cp.CompletedStages,
		"resume_organization", cp.ResumeFromOrganization,
		"resume_project", cp.ResumeFromProject)

	res := Result{Checkpoint: cp}
	for _, stage := range stages {
		if res.Checkpoint.IsCompleted(stage) {
			res.Stages = append(res.Stages, StageResult{Stage: stage, Skipped: true})
			continue
		}

		sr, err := c.runStage(ctx, stage, query, res.Checkpoint, sink)
		res.Stages = append(res.Stages, sr)
		if err != nil {
			if f, ok := checkpoint.AsResumable(err); ok {
				c.logger.Warn("scan interrupted", "stage", string(stage), "checkpoint", f.Checkpoint.String(), "error", err)
				res.Failure, res.Checkpoint = f, f.Checkpoint
				return res, nil
			}
			if res.Records() > 0 && ctx.Err() == nil {
				res.Failure = &checkpoint.ResumableFailure{
					Stage:      stage,
					Checkpoint: res.Checkpoint,
					Message:    fmt.Sprintf("failed to ingest %s with completed stages %v", stage, res.Checkpoint.CompletedStages),
					Cause:      err,
				}
				return res, nil
			}
			return res, err
		}

		res.Checkpoint = res.Checkpoint.MarkStageCompleted(stage)
		if err := sink.Checkpoint(ctx, res.Checkpoint); err != nil {
			return res, fmt.Errorf("failed to save checkpoint: %w", err)
		}
		c.logger.Info("stage completed", "stage", string(stage), "records", sr.Records, "items", sr.Items, "duration", sr.Duration)
	}
	return res, nil
}

func (c *Coordinator) runStage(ctx context.Context, stage domain.Stage, query domain.ScanQuery, cp checkpoint.Checkpoint, sink Sink) (sr StageResult, err error) {
	start := c.now()
	sr.Stage = stage
	defer func() {
		sr.Duration = c.now().Sub(start)
		c.metrics.ObserveStage(string(stage), sr.Duration)
	}()

	for record, xerr := range c.extractors[stage].Extract(ctx, query, cp) {
		if xerr != nil {
			return sr, xerr
		}
		if err := sink.Emit(ctx, record); err != nil {
			return sr, fmt.Errorf("failed to emit %s record: %w", stage, err)
		}
		sr.Records++
		sr.Items += record.Size()
	}
	return sr, nil
}
