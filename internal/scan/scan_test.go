package scan

import (
	"context"
	"errors"
	"iter"
	"net/http"
	"testing"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurihiro0119/devops-ingest/internal/checkpoint"
	"github.com/kurihiro0119/devops-ingest/internal/collector"
	"github.com/kurihiro0119/devops-ingest/internal/domain"
	"github.com/kurihiro0119/devops-ingest/internal/extractor"
)

var (
	errBoom  = errors.New("boom")
	fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
)

// scriptedExtractor emits its records, failing the first failures calls
// after emitted records with err.
type scriptedExtractor struct {
	stage    domain.Stage
	records  int
	failures int
	plain    bool
	cause    error
	calls    int
	cps      []checkpoint.Checkpoint
	queries  []domain.ScanQuery
}

func (e *scriptedExtractor) Stage() domain.Stage { return e.stage }

func (e *scriptedExtractor) Extract(_ context.Context, query domain.ScanQuery, cp checkpoint.Checkpoint) iter.Seq2[domain.EnrichedRecord, error] {
	e.calls++
	e.cps = append(e.cps, cp)
	e.queries = append(e.queries, query)
	fail := e.calls <= e.failures
	return func(yield func(domain.EnrichedRecord, error) bool) {
		if fail {
			cause := e.cause
			if cause == nil {
				cause = errBoom
			}
			if e.plain {
				yield(domain.EnrichedRecord{}, cause)
				return
			}
			f := checkpoint.Fail(cp, e.stage, string(e.stage), "O1", "P2", cause)
			f.Partial = []domain.EnrichedRecord{{Resource: e.stage, Project: domain.Project{Name: "P1"}}}
			yield(domain.EnrichedRecord{}, f)
			return
		}
		for i := 0; i < e.records; i++ {
			r := domain.EnrichedRecord{Resource: e.stage, Teams: []domain.Team{{ID: "t"}, {ID: "u"}}}
			if !yield(r, nil) {
				return
			}
		}
	}
}

type memSink struct {
	records     []domain.EnrichedRecord
	checkpoints []checkpoint.Checkpoint
	emitErr     error
}

func (s *memSink) Emit(_ context.Context, r domain.EnrichedRecord) error {
	if s.emitErr != nil {
		return s.emitErr
	}
	s.records = append(s.records, r)
	return nil
}

func (s *memSink) Checkpoint(_ context.Context, cp checkpoint.Checkpoint) error {
	s.checkpoints = append(s.checkpoints, cp)
	return nil
}

func allExtractors() []extractor.Extractor {
	var out []extractor.Extractor
	for _, s := range domain.StageOrder {
		out = append(out, &scriptedExtractor{stage: s})
	}
	return out
}

func newCoordinator(extractors []extractor.Extractor, flags map[string]bool) *Coordinator {
	return NewCoordinator(extractors, Options{Flags: flags, Now: func() time.Time { return fixedNow }})
}

func incremental() domain.ScanQuery {
	return domain.ScanQuery{
		IntegrationKey: domain.IntegrationKey{TenantID: "t", IntegrationID: "1"},
		From:           fixedNow.Add(-24 * time.Hour),
		To:             fixedNow,
	}
}

func TestPlan(t *testing.T) {
	onboarding := incremental()
	onboarding.From = time.Time{}

	byCategory := incremental()
	byCategory.JobCategory = domain.JobCategoryCICD

	queryOff := incremental()
	queryOff.IngestionFlags = map[string]bool{domain.FlagPullRequests: false, domain.FlagTeams: true}

	tests := []struct {
		name    string
		flags   map[string]bool
		query   domain.ScanQuery
		want    []domain.Stage
		without []domain.Stage
	}{
		{
			name:    "incremental skips tags and releases",
			query:   incremental(),
			want:    []domain.Stage{domain.StageCommits, domain.StagePullRequests, domain.StageBranches, domain.StageChangeSets, domain.StageLabels, domain.StagePipelines, domain.StageBuilds, domain.StageWorkItemFields, domain.StageWorkItems, domain.StageTeams, domain.StageIterations, domain.StageWorkItemHistories},
		},
		{
			name:  "onboarding adds tags",
			query: onboarding,
			want:  []domain.Stage{domain.StageCommits, domain.StagePullRequests, domain.StageTags, domain.StageBranches, domain.StageChangeSets, domain.StageLabels, domain.StagePipelines, domain.StageBuilds, domain.StageWorkItemFields, domain.StageWorkItems, domain.StageTeams, domain.StageIterations, domain.StageWorkItemHistories},
		},
		{
			name:  "category with releases enabled",
			flags: map[string]bool{domain.FlagReleases: true, domain.FlagBuilds: false},
			query: byCategory,
			want:  []domain.Stage{domain.StagePipelines, domain.StageReleases},
		},
		{
			name:    "query flag off",
			query:   queryOff,
			without: []domain.Stage{domain.StagePullRequests},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := newCoordinator(allExtractors(), tt.flags).Plan(tt.query)
			if tt.want != nil {
				assert.Equal(t, tt.want, got)
			}
			for _, s := range tt.without {
				assert.NotContains(t, got, s)
			}
		})
	}
}

func TestPlanSkipsStagesWithoutExtractor(t *testing.T) {
	c := newCoordinator([]extractor.Extractor{&scriptedExtractor{stage: domain.StageTeams}}, nil)
	assert.Equal(t, []domain.Stage{domain.StageTeams}, c.Plan(incremental()))
}

func TestPrepare(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		q := newCoordinator(nil, nil).Prepare(domain.ScanQuery{})
		assert.Equal(t, fixedNow, q.To)
		assert.Equal(t, fixedNow.AddDate(0, 0, -DefaultOnboardingDays), q.From)
		assert.True(t, q.IngestionFlags[domain.FlagWorkItemComments])
	})

	t.Run("comments off by integration", func(t *testing.T) {
		in := incremental()
		in.IngestionFlags = map[string]bool{domain.FlagTeams: true}
		q := newCoordinator(nil, map[string]bool{domain.FlagWorkItemComments: false}).Prepare(in)
		assert.False(t, q.IngestionFlags[domain.FlagWorkItemComments])
		assert.Equal(t, in.From, q.From)
		assert.NotContains(t, in.IngestionFlags, domain.FlagWorkItemComments)
	})
}

func TestRunCompletesStages(t *testing.T) {
	commits := &scriptedExtractor{stage: domain.StageCommits, records: 2}
	teams := &scriptedExtractor{stage: domain.StageTeams, records: 1}
	c := newCoordinator([]extractor.Extractor{commits, teams}, nil)
	sink := &memSink{}

	res, err := c.Run(context.Background(), incremental(), checkpoint.Checkpoint{}, sink)
	require.NoError(t, err)
	assert.True(t, res.Complete())
	assert.Equal(t, 3, res.Records())
	require.Len(t, res.Stages, 2)
	assert.Equal(t, 4, res.Stages[0].Items)
	assert.Equal(t, []domain.Stage{domain.StageCommits, domain.StageTeams}, res.Checkpoint.CompletedStages)
	assert.Len(t, sink.records, 3)
	require.Len(t, sink.checkpoints, 2)
	assert.Equal(t, []domain.Stage{domain.StageCommits}, sink.checkpoints[0].CompletedStages)

	assert.True(t, teams.queries[0].IngestionFlags[domain.FlagWorkItemComments])
}

func TestRunSkipsCompletedStages(t *testing.T) {
	commits := &scriptedExtractor{stage: domain.StageCommits, records: 2}
	teams := &scriptedExtractor{stage: domain.StageTeams, records: 1}
	c := newCoordinator([]extractor.Extractor{commits, teams}, nil)

	cp := checkpoint.Checkpoint{}.MarkStageCompleted(domain.StageCommits).ResumeAt("O1", "P2")
	res, err := c.Run(context.Background(), incremental(), cp, &memSink{})
	require.NoError(t, err)
	assert.Zero(t, commits.calls)
	assert.True(t, res.Stages[0].Skipped)
	require.Len(t, teams.cps, 1)
	assert.Equal(t, "P2", teams.cps[0].ResumeFromProject)
	assert.Empty(t, res.Checkpoint.ResumeFromProject)
}

func TestRunResumableFailure(t *testing.T) {
	commits := &scriptedExtractor{stage: domain.StageCommits, records: 1}
	teams := &scriptedExtractor{stage: domain.StageTeams, failures: 1}
	c := newCoordinator([]extractor.Extractor{commits, teams}, nil)

	res, err := c.Run(context.Background(), incremental(), checkpoint.Checkpoint{}, &memSink{})
	require.NoError(t, err)
	assert.False(t, res.Complete())
	require.NotNil(t, res.Failure)
	assert.Equal(t, domain.StageTeams, res.Failure.Stage)
	assert.Equal(t, []domain.Stage{domain.StageCommits}, res.Checkpoint.CompletedStages)
	assert.Equal(t, "O1", res.Checkpoint.ResumeFromOrganization)
	assert.Equal(t, "P2", res.Checkpoint.ResumeFromProject)
}

func TestRunPlainErrors(t *testing.T) {
	t.Run("after output becomes resumable", func(t *testing.T) {
		commits := &scriptedExtractor{stage: domain.StageCommits, records: 1}
		teams := &scriptedExtractor{stage: domain.StageTeams, failures: 1, plain: true}
		res, err := newCoordinator([]extractor.Extractor{commits, teams}, nil).
			Run(context.Background(), incremental(), checkpoint.Checkpoint{}, &memSink{})
		require.NoError(t, err)
		require.NotNil(t, res.Failure)
		assert.ErrorIs(t, res.Failure, errBoom)
		assert.Equal(t, []domain.Stage{domain.StageCommits}, res.Failure.Checkpoint.CompletedStages)
		assert.Empty(t, res.Failure.Checkpoint.ResumeFromOrganization)
	})

	t.Run("without output is returned", func(t *testing.T) {
		teams := &scriptedExtractor{stage: domain.StageTeams, failures: 1, plain: true}
		_, err := newCoordinator([]extractor.Extractor{teams}, nil).
			Run(context.Background(), incremental(), checkpoint.Checkpoint{}, &memSink{})
		assert.ErrorIs(t, err, errBoom)
	})

	t.Run("sink failure", func(t *testing.T) {
		teams := &scriptedExtractor{stage: domain.StageTeams, records: 1}
		_, err := newCoordinator([]extractor.Extractor{teams}, nil).
			Run(context.Background(), incremental(), checkpoint.Checkpoint{}, &memSink{emitErr: errBoom})
		assert.ErrorIs(t, err, errBoom)
	})
}

type memStore struct {
	records    []domain.EnrichedRecord
	cp         checkpoint.Checkpoint
	saved      []checkpoint.Checkpoint
	deleted    int
	runs       []domain.ScanRun
	checkpoint error
}

func (s *memStore) SaveRecords(_ context.Context, _ domain.IntegrationKey, records []domain.EnrichedRecord) error {
	s.records = append(s.records, records...)
	return nil
}

func (s *memStore) GetCheckpoint(context.Context, domain.IntegrationKey) (checkpoint.Checkpoint, error) {
	return s.cp, s.checkpoint
}

func (s *memStore) SaveCheckpoint(_ context.Context, _ domain.IntegrationKey, cp checkpoint.Checkpoint) error {
	s.cp = cp
	s.saved = append(s.saved, cp)
	return nil
}

func (s *memStore) DeleteCheckpoint(context.Context, domain.IntegrationKey) error {
	s.cp = checkpoint.Checkpoint{}
	s.deleted++
	return nil
}

func (s *memStore) SaveScanRun(_ context.Context, run *domain.ScanRun) error {
	s.runs = append(s.runs, *run)
	return nil
}

func newOrchestrator(c *Coordinator, store Store, attempts int) *Orchestrator {
	return NewOrchestrator(c, store, OrchestratorOptions{
		MaxAttempts: attempts,
		BackOff:     func() backoff.BackOff { return &backoff.ZeroBackOff{} },
		Now:         func() time.Time { return fixedNow },
	})
}

func TestOrchestratorResumesUntilComplete(t *testing.T) {
	commits := &scriptedExtractor{stage: domain.StageCommits, records: 2}
	teams := &scriptedExtractor{stage: domain.StageTeams, records: 3, failures: 1}
	store := &memStore{}
	o := newOrchestrator(newCoordinator([]extractor.Extractor{commits, teams}, nil), store, 3)

	run, err := o.Scan(context.Background(), incremental())
	require.NoError(t, err)
	assert.Equal(t, domain.ScanStatusCompleted, run.Status)
	assert.Equal(t, 2, run.Attempts)
	// 2 commits, 1 partial team record, 3 team records.
	assert.Equal(t, 6, run.Records)
	assert.Len(t, store.records, 6)
	assert.Equal(t, 1, commits.calls)
	require.Len(t, teams.cps, 2)
	assert.Equal(t, "P2", teams.cps[1].ResumeFromProject)
	assert.Equal(t, []domain.Stage{domain.StageCommits}, teams.cps[1].CompletedStages)
	assert.Equal(t, 1, store.deleted)
	assert.True(t, store.cp.IsZero())

	require.Len(t, store.runs, 2)
	assert.Equal(t, domain.ScanStatusInProgress, store.runs[0].Status)
	assert.Equal(t, run.ID, store.runs[0].ID)
	assert.Equal(t, fixedNow.Add(-24*time.Hour), run.From)
}

func TestOrchestratorGivesUpWithCheckpoint(t *testing.T) {
	teams := &scriptedExtractor{stage: domain.StageTeams, failures: 10}
	store := &memStore{}
	o := newOrchestrator(newCoordinator([]extractor.Extractor{teams}, nil), store, 3)

	run, err := o.Scan(context.Background(), incremental())
	require.Error(t, err)
	_, ok := checkpoint.AsResumable(err)
	assert.True(t, ok)
	assert.Equal(t, domain.ScanStatusResumable, run.Status)
	assert.Equal(t, 3, run.Attempts)
	assert.Equal(t, "P2", store.cp.ResumeFromProject)
	assert.Zero(t, store.deleted)
}

func TestOrchestratorStopsOnUnauthorized(t *testing.T) {
	teams := &scriptedExtractor{
		stage:    domain.StageTeams,
		failures: 10,
		cause:    &collector.ClientError{StatusCode: http.StatusUnauthorized},
	}
	store := &memStore{}
	o := newOrchestrator(newCoordinator([]extractor.Extractor{teams}, nil), store, 5)

	run, err := o.Scan(context.Background(), incremental())
	require.Error(t, err)
	assert.Equal(t, 1, run.Attempts)
	assert.Equal(t, domain.ScanStatusResumable, run.Status)
}

func TestOrchestratorPlainFailure(t *testing.T) {
	teams := &scriptedExtractor{stage: domain.StageTeams, failures: 10, plain: true}
	o := newOrchestrator(newCoordinator([]extractor.Extractor{teams}, nil), &memStore{}, 5)

	run, err := o.Scan(context.Background(), incremental())
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, run.Attempts)
	assert.Equal(t, domain.ScanStatusFailed, run.Status)
	assert.Contains(t, run.Message, "boom")
}

func TestOrchestratorCheckpointLoadFailure(t *testing.T) {
	o := newOrchestrator(newCoordinator(allExtractors(), nil), &memStore{checkpoint: errBoom}, 1)
	_, err := o.Scan(context.Background(), incremental())
	assert.ErrorIs(t, err, errBoom)
}
