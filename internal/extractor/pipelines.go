package extractor

import (
	"context"
	"iter"
	"time"

	"github.com/kurihiro0119/devops-ingest/internal/batch"
	"github.com/kurihiro0119/devops-ingest/internal/checkpoint"
	"github.com/kurihiro0119/devops-ingest/internal/domain"
	"github.com/kurihiro0119/devops-ingest/internal/pagination"
	"github.com/kurihiro0119/devops-ingest/internal/provider"
)

type PipelinesClient interface {
	Pipelines(ctx context.Context, org, project, cursor string) (pagination.CursorPage[domain.Pipeline], error)
	Pipeline(ctx context.Context, org, project string, id int) (domain.Pipeline, error)
	Runs(ctx context.Context, org, project string, pipelineID int) ([]domain.Run, error)
	BuildChanges(ctx context.Context, org, project string, fromBuild, toBuild int) ([]domain.BuildChange, error)
	BuildTimeline(ctx context.Context, org, project string, buildID int) ([]domain.TimelineRecord, error)
	StepLogs(ctx context.Context, logURL string) ([]string, error)
}

// scopedPipeline is the grouping key of pipeline runs.
type scopedPipeline struct {
	Project  domain.Project
	Pipeline domain.Pipeline
}

// Pipelines extracts the runs of every pipeline that started after the scan
// start and finished before its end, with commit ids and rebuilt stages.
type Pipelines struct {
	base
	client PipelinesClient
}

func NewPipelines(client PipelinesClient, projects *provider.Provider, opts Options) *Pipelines {
	return &Pipelines{base: newBase(domain.StagePipelines, 5, projects, opts), client: client}
}

func (e *Pipelines) Extract(ctx context.Context, query domain.ScanQuery, cp checkpoint.Checkpoint) iter.Seq2[domain.EnrichedRecord, error] {
	return group(e.base, e.pairs(ctx, query, cp), func(p scopedPipeline, runs []domain.Run) domain.EnrichedRecord {
		return domain.EnrichedRecord{Project: p.Project, Pipeline: &p.Pipeline, Runs: runs}
	})
}

func (e *Pipelines) pairs(ctx context.Context, query domain.ScanQuery, cp checkpoint.Checkpoint) iter.Seq2[batch.Pair[scopedPipeline, domain.Run], error] {
	return func(yield func(batch.Pair[scopedPipeline, domain.Run], error) bool) {
		for project, err := range e.scopedProjects(ctx, query, cp, nil) {
			if err != nil {
				yield(batch.Pair[scopedPipeline, domain.Run]{}, err)
				return
			}
			org, name := project.Organization, project.Name
			pipelines := pagination.Cursor(pagination.Start(), func(cursor string) (pagination.CursorPage[domain.Pipeline], error) {
				return e.client.Pipelines(ctx, org, name, cursor)
			})
			for pipeline, err := range pipelines {
				if err != nil {
					yield(batch.Pair[scopedPipeline, domain.Run]{}, e.fail(cp, "pipelines", project, err))
					return
				}
				detail, err := e.client.Pipeline(ctx, org, name, pipeline.ID)
				if err != nil {
					yield(batch.Pair[scopedPipeline, domain.Run]{}, e.fail(cp, "pipelines", project, err))
					return
				}
				pipeline.Configuration = detail.Configuration
				runs, err := e.runs(ctx, project, pipeline.ID, query)
				if err != nil {
					yield(batch.Pair[scopedPipeline, domain.Run]{}, e.fail(cp, "pipeline runs", project, err))
					return
				}
				parent := scopedPipeline{Project: project, Pipeline: pipeline}
				for _, run := range runs {
					records, err := e.client.BuildTimeline(ctx, org, name, run.ID)
					if err != nil {
						yield(batch.Pair[scopedPipeline, domain.Run]{}, e.fail(cp, "build stages", project, err))
						return
					}
					run.Stages = BuildStages(ctx, records, e.client.StepLogs, func(r domain.TimelineRecord, err error) {
						e.softSkip("step logs", err, "record", r.ID, "run", run.ID)
					})
					if !yield(batch.Pair[scopedPipeline, domain.Run]{Parent: parent, Child: run}, nil) {
						return
					}
				}
			}
		}
	}
}

// runs returns the leading runs of the pipeline that fall inside the scan
// window. Each run but the last carries the commits between it and the next one.
func (e *Pipelines) runs(ctx context.Context, project domain.Project, pipelineID int, query domain.ScanQuery) ([]domain.Run, error) {
	all, err := e.client.Runs(ctx, project.Organization, project.Name, pipelineID)
	if err != nil {
		return nil, err
	}
	var runs []domain.Run
	for _, run := range all {
		if !runWithin(run, query.From, query.To) {
			break
		}
		runs = append(runs, run)
	}
	for i := 0; i+1 < len(runs); i++ {
		changes, err := e.client.BuildChanges(ctx, project.Organization, project.Name, runs[i].ID, runs[i+1].ID)
		if err != nil {
			return nil, err
		}
		ids := make([]string, 0, len(changes))
		for _, c := range changes {
			ids = append(ids, c.ID)
		}
		runs[i].CommitIDs = ids
	}
	return runs, nil
}

func runWithin(run domain.Run, from, to time.Time) bool {
	created, ok := domain.ParseTime(run.CreatedDate)
	if !ok || !created.After(from) {
		return false
	}
	finished, ok := domain.ParseTime(run.FinishedDate)
	return ok && (to.IsZero() || finished.Before(to))
}

type BuildsClient interface {
	Builds(ctx context.Context, org, project string, from, to time.Time, cursor string) (pagination.CursorPage[domain.Build], error)
}

// Builds extracts the classic builds of every project inside the scan window.
type Builds struct {
	base
	client BuildsClient
}

func NewBuilds(client BuildsClient, projects *provider.Provider, opts Options) *Builds {
	return &Builds{base: newBase(domain.StageBuilds, 50, projects, opts), client: client}
}

func (e *Builds) Extract(ctx context.Context, query domain.ScanQuery, cp checkpoint.Checkpoint) iter.Seq2[domain.EnrichedRecord, error] {
	pairs := projectPairs(e.base, ctx, query, cp, nil, "builds",
		func(project domain.Project) iter.Seq2[domain.Build, error] {
			return pagination.Cursor(pagination.Start(), func(cursor string) (pagination.CursorPage[domain.Build], error) {
				return e.client.Builds(ctx, project.Organization, project.Name, query.From, query.To, cursor)
			})
		})
	return group(e.base, pairs, func(project domain.Project, builds []domain.Build) domain.EnrichedRecord {
		return domain.EnrichedRecord{Project: project, Builds: builds}
	})
}

type ReleasesClient interface {
	ReleaseDefinitions(ctx context.Context, org, project, cursor string) (pagination.CursorPage[domain.ReleaseDefinition], error)
	Releases(ctx context.Context, org, project string, definitionID int, cursor string) (pagination.CursorPage[domain.Release], error)
	Release(ctx context.Context, org, project string, id int) (domain.Release, error)
	ReleaseTaskLog(ctx context.Context, logURL string) (string, error)
}

// scopedDefinition is the grouping key of releases.
type scopedDefinition struct {
	Project    domain.Project
	Definition domain.ReleaseDefinition
}

// Releases extracts the classic releases created strictly inside the scan
// window, with their deploy step tree and task logs.
type Releases struct {
	base
	client ReleasesClient
}

func NewReleases(client ReleasesClient, projects *provider.Provider, opts Options) *Releases {
	return &Releases{base: newBase(domain.StageReleases, 10, projects, opts), client: client}
}

func (e *Releases) Extract(ctx context.Context, query domain.ScanQuery, cp checkpoint.Checkpoint) iter.Seq2[domain.EnrichedRecord, error] {
	return group(e.base, e.pairs(ctx, query, cp), func(d scopedDefinition, releases []domain.Release) domain.EnrichedRecord {
		return domain.EnrichedRecord{Project: d.Project, Definition: &d.Definition, Releases: releases}
	})
}

func (e *Releases) pairs(ctx context.Context, query domain.ScanQuery, cp checkpoint.Checkpoint) iter.Seq2[batch.Pair[scopedDefinition, domain.Release], error] {
	return func(yield func(batch.Pair[scopedDefinition, domain.Release], error) bool) {
		for project, err := range e.scopedProjects(ctx, query, cp, nil) {
			if err != nil {
				yield(batch.Pair[scopedDefinition, domain.Release]{}, err)
				return
			}
			org, name := project.Organization, project.Name
			definitions := pagination.Cursor(pagination.Start(), func(cursor string) (pagination.CursorPage[domain.ReleaseDefinition], error) {
				return e.client.ReleaseDefinitions(ctx, org, name, cursor)
			})
			for definition, err := range definitions {
				if err != nil {
					yield(batch.Pair[scopedDefinition, domain.Release]{}, e.fail(cp, "release definitions", project, err))
					return
				}
				parent := scopedDefinition{Project: project, Definition: definition}
				releases := pagination.Cursor(pagination.Start(), func(cursor string) (pagination.CursorPage[domain.Release], error) {
					return e.client.Releases(ctx, org, name, definition.ID, cursor)
				})
				for release, err := range releases {
					if err != nil {
						yield(batch.Pair[scopedDefinition, domain.Release]{}, e.fail(cp, "releases", project, err))
						return
					}
					if !createdBetween(release.CreatedOn, query.From, query.To) {
						continue
					}
					detail, err := e.client.Release(ctx, org, name, release.ID)
					if err != nil {
						yield(batch.Pair[scopedDefinition, domain.Release]{}, e.fail(cp, "release details", project, err))
						return
					}
					if !yield(batch.Pair[scopedDefinition, domain.Release]{Parent: parent, Child: e.withTaskLogs(ctx, detail)}, nil) {
						return
					}
				}
			}
		}
	}
}

// createdBetween reports whether s is strictly after from and strictly before to.
func createdBetween(s string, from, to time.Time) bool {
	t, ok := domain.ParseTime(s)
	if !ok {
		return false
	}
	return (from.IsZero() || t.After(from)) && (to.IsZero() || t.Before(to))
}

// withTaskLogs fills the logs of every task of the release. A failed log fetch
// is skipped.
func (e *Releases) withTaskLogs(ctx context.Context, r domain.Release) domain.Release {
	for i := range r.Environments {
		env := &r.Environments[i]
		for j := range env.DeploySteps {
			step := &env.DeploySteps[j]
			for k := range step.Phases {
				phase := &step.Phases[k]
				for l := range phase.DeploymentJobs {
					job := &phase.DeploymentJobs[l]
					for m := range job.Tasks {
						task := &job.Tasks[m]
						if task.LogURL == "" {
							continue
						}
						text, err := e.client.ReleaseTaskLog(ctx, task.LogURL)
						if err != nil {
							e.softSkip("release task logs", err, "release", r.ID, "task", task.ID)
							continue
						}
						task.StepLogs = truncateLog(text)
					}
				}
			}
		}
	}
	return r
}
