// Package extractor implements one pull pipeline per resource family:
// projects -> (parent, child) pairs -> batching -> enriched records.
package extractor

import (
	"context"
	"iter"
	"log/slog"

	"github.com/kurihiro0119/devops-ingest/internal/batch"
	"github.com/kurihiro0119/devops-ingest/internal/checkpoint"
	"github.com/kurihiro0119/devops-ingest/internal/domain"
	"github.com/kurihiro0119/devops-ingest/internal/metrics"
	"github.com/kurihiro0119/devops-ingest/internal/provider"
)

// Extractor streams the enriched records of one stage. The sequence is lazy;
// a failure is yielded once, as a *checkpoint.ResumableFailure, and ends it.
type Extractor interface {
	Stage() domain.Stage
	Extract(ctx context.Context, query domain.ScanQuery, cp checkpoint.Checkpoint) iter.Seq2[domain.EnrichedRecord, error]
}

// Client is everything the extractors need from the remote API.
type Client interface {
	CommitsClient
	PullRequestsClient
	TagsClient
	BranchesClient
	ChangeSetsClient
	LabelsClient
	PipelinesClient
	BuildsClient
	ReleasesClient
	WorkItemsClient
	WorkItemHistoriesClient
	WorkItemFieldsClient
	TeamsClient
	IterationsClient
}

// Options are shared by every extractor.
type Options struct {
	Logger  *slog.Logger
	Metrics *metrics.Scan
}

// All builds the extractors of every stage.
func All(c Client, projects *provider.Provider, opts Options) []Extractor {
	return []Extractor{
		NewCommits(c, projects, opts),
		NewPullRequests(c, projects, opts),
		NewTags(c, projects, opts),
		NewBranches(c, projects, opts),
		NewChangeSets(c, projects, opts),
		NewLabels(c, projects, opts),
		NewPipelines(c, projects, opts),
		NewReleases(c, projects, opts),
		NewBuilds(c, projects, opts),
		NewWorkItemFields(c, projects, opts),
		NewWorkItems(c, projects, opts),
		NewTeams(c, projects, opts),
		NewIterations(c, projects, opts),
		NewWorkItemHistories(c, projects, opts),
	}
}

type base struct {
	stage    domain.Stage
	window   int
	projects *provider.Provider
	logger   *slog.Logger
	metrics  *metrics.Scan
}

func newBase(stage domain.Stage, window int, projects *provider.Provider, opts Options) base {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return base{
		stage:    stage,
		window:   window,
		projects: projects,
		logger:   logger.With("stage", string(stage)),
		metrics:  opts.Metrics,
	}
}

func (b base) Stage() domain.Stage {
	return b.stage
}

// fail positions a failure at the project being processed.
func (b base) fail(cp checkpoint.Checkpoint, what string, project domain.Project, err error) error {
	b.logger.Warn("failed to ingest "+what,
		"organization", project.Organization, "project", project.Name, "error", err)
	return checkpoint.Fail(cp, b.stage, what, project.Organization, project.Name, err)
}

// softSkip records an optional fetch that failed and was skipped.
func (b base) softSkip(reason string, err error, args ...any) {
	b.metrics.IncSoftSkip(string(b.stage), reason)
	b.logger.Warn("skipping "+reason, append(args, "error", err)...)
}

// scopedProjects yields the projects of the scan that pass keep. Provider
// failures are forwarded untouched.
func (b base) scopedProjects(ctx context.Context, query domain.ScanQuery, cp checkpoint.Checkpoint, keep func(domain.Project) bool) iter.Seq2[domain.Project, error] {
	return func(yield func(domain.Project, error) bool) {
		for project, err := range b.projects.Projects(ctx, query, cp) {
			if err != nil {
				yield(domain.Project{}, err)
				return
			}
			if keep != nil && !keep(project) {
				continue
			}
			if !yield(project, nil) {
				return
			}
		}
	}
}

func gitProjects(p domain.Project) bool  { return p.GitEnabled }
func tfvcProjects(p domain.Project) bool { return p.TfvcEnabled }

// group batches pairs and finalizes the record stream of a stage.
func group[P, C any](b base, pairs iter.Seq2[batch.Pair[P, C], error], build func(P, []C) domain.EnrichedRecord) iter.Seq2[domain.EnrichedRecord, error] {
	records := batch.Group(pairs, b.window, build)
	return func(yield func(domain.EnrichedRecord, error) bool) {
		for record, err := range records {
			if err != nil {
				if f, ok := checkpoint.AsResumable(err); ok {
					if f.Stage == "" {
						f.Stage = b.stage
					}
					for i := range f.Partial {
						f.Partial[i].Resource = b.stage
					}
					b.metrics.IncResumableFailure(string(b.stage))
				}
				yield(domain.EnrichedRecord{}, err)
				return
			}
			record.Resource = b.stage
			b.metrics.Emitted(string(b.stage), record.Size())
			if !yield(record, nil) {
				return
			}
		}
	}
}

// projectPairs wraps every child of fetch into a pair parented by the project.
// Errors of fetch that are not already resumable fail the project.
func projectPairs[C any](b base, ctx context.Context, query domain.ScanQuery, cp checkpoint.Checkpoint,
	keep func(domain.Project) bool, what string, fetch func(domain.Project) iter.Seq2[C, error]) iter.Seq2[batch.Pair[domain.Project, C], error] {
	return func(yield func(batch.Pair[domain.Project, C], error) bool) {
		for project, err := range b.scopedProjects(ctx, query, cp, keep) {
			if err != nil {
				yield(batch.Pair[domain.Project, C]{}, err)
				return
			}
			for child, err := range fetch(project) {
				if err != nil {
					yield(batch.Pair[domain.Project, C]{}, b.wrap(cp, what, project, err))
					return
				}
				if !yield(batch.Pair[domain.Project, C]{Parent: project, Child: child}, nil) {
					return
				}
			}
		}
	}
}

// repositoryPairs runs fetch over every repository of the git projects of the scan.
func repositoryPairs[C any](b base, ctx context.Context, query domain.ScanQuery, cp checkpoint.Checkpoint,
	repos RepositoryLister, what string, fetch func(domain.Project, domain.Repository) iter.Seq2[C, error]) iter.Seq2[batch.Pair[domain.Repository, C], error] {
	return func(yield func(batch.Pair[domain.Repository, C], error) bool) {
		for project, err := range b.scopedProjects(ctx, query, cp, gitProjects) {
			if err != nil {
				yield(batch.Pair[domain.Repository, C]{}, err)
				return
			}
			list, err := repos.Repositories(ctx, project.Organization, project.Name)
			if err != nil {
				yield(batch.Pair[domain.Repository, C]{}, b.fail(cp, "repositories", project, err))
				return
			}
			for _, repo := range list {
				repo.Project = project
				for child, err := range fetch(project, repo) {
					if err != nil {
						yield(batch.Pair[domain.Repository, C]{}, b.wrap(cp, what, project, err))
						return
					}
					if !yield(batch.Pair[domain.Repository, C]{Parent: repo, Child: child}, nil) {
						return
					}
				}
			}
		}
	}
}

// wrap turns err into a failure positioned at project unless it already is one.
func (b base) wrap(cp checkpoint.Checkpoint, what string, project domain.Project, err error) error {
	if _, ok := checkpoint.AsResumable(err); ok {
		return err
	}
	return b.fail(cp, what, project, err)
}

// enrich applies f to every item of seq. An error of f ends the sequence.
func enrich[T any](seq iter.Seq2[T, error], f func(T) (T, error)) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for item, err := range seq {
			if err == nil {
				item, err = f(item)
			}
			if err != nil {
				yield(item, err)
				return
			}
			if !yield(item, nil) {
				return
			}
		}
	}
}

// filter drops the items of seq for which keep is false.
func filter[T any](seq iter.Seq2[T, error], keep func(T) bool) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for item, err := range seq {
			if err != nil {
				yield(item, err)
				return
			}
			if keep(item) && !yield(item, nil) {
				return
			}
		}
	}
}

// each adapts a slice into a sequence.
func each[T any](items []T) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for _, item := range items {
			if !yield(item, nil) {
				return
			}
		}
	}
}

// failed is a sequence made of a single error.
func failed[T any](err error) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		yield(zero, err)
	}
}
