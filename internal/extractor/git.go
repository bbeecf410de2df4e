package extractor

import (
	"context"
	"iter"
	"time"

	"github.com/kurihiro0119/devops-ingest/internal/checkpoint"
	"github.com/kurihiro0119/devops-ingest/internal/collector"
	"github.com/kurihiro0119/devops-ingest/internal/domain"
	"github.com/kurihiro0119/devops-ingest/internal/pagination"
	"github.com/kurihiro0119/devops-ingest/internal/provider"
)

// RepositoryLister lists the git repositories of a project.
type RepositoryLister interface {
	Repositories(ctx context.Context, org, project string) ([]domain.Repository, error)
}

type CommitsClient interface {
	RepositoryLister
	PageSize() int
	Commits(ctx context.Context, org, project, repoID string, from, to time.Time, skip int) ([]domain.Commit, error)
	CommitChanges(ctx context.Context, org, project, repoID, commitID string, skip int) ([]domain.Change, error)
}

// Commits extracts the commits of every git repository, with their changes.
type Commits struct {
	base
	client CommitsClient
}

func NewCommits(client CommitsClient, projects *provider.Provider, opts Options) *Commits {
	return &Commits{base: newBase(domain.StageCommits, 100, projects, opts), client: client}
}

func (e *Commits) Extract(ctx context.Context, query domain.ScanQuery, cp checkpoint.Checkpoint) iter.Seq2[domain.EnrichedRecord, error] {
	size := e.client.PageSize()
	pairs := repositoryPairs(e.base, ctx, query, cp, e.client, "commits",
		func(project domain.Project, repo domain.Repository) iter.Seq2[domain.Commit, error] {
			commits := pagination.Offset(size, func(skip int) ([]domain.Commit, error) {
				return e.client.Commits(ctx, project.Organization, project.Name, repo.ID, query.From, query.To, skip)
			})
			return enrich(commits, func(c domain.Commit) (domain.Commit, error) {
				changes, err := pagination.Collect(pagination.Offset(size, func(skip int) ([]domain.Change, error) {
					return e.client.CommitChanges(ctx, project.Organization, project.Name, repo.ID, c.CommitID, skip)
				}))
				c.Changes = changes
				return c, err
			})
		})
	return group(e.base, pairs, func(repo domain.Repository, commits []domain.Commit) domain.EnrichedRecord {
		return domain.EnrichedRecord{Project: repo.Project, Repository: &repo, Commits: commits}
	})
}

type PullRequestsClient interface {
	RepositoryLister
	PageSize() int
	PullRequests(ctx context.Context, org, project, repoID string, skip int) ([]domain.PullRequest, error)
	PullRequest(ctx context.Context, org, project, repoID string, id int) (domain.PullRequest, error)
	PullRequestLabels(ctx context.Context, org, project, repoID string, id int) ([]domain.PullRequestLabel, error)
	PullRequestThreads(ctx context.Context, org, project, repoID string, id int) ([]domain.PullRequestThread, error)
}

// PullRequests extracts the pull requests created or closed inside the scan
// window, with their commits, labels and threads.
type PullRequests struct {
	base
	client PullRequestsClient
}

func NewPullRequests(client PullRequestsClient, projects *provider.Provider, opts Options) *PullRequests {
	return &PullRequests{base: newBase(domain.StagePullRequests, 50, projects, opts), client: client}
}

func (e *PullRequests) Extract(ctx context.Context, query domain.ScanQuery, cp checkpoint.Checkpoint) iter.Seq2[domain.EnrichedRecord, error] {
	size := e.client.PageSize()
	pairs := repositoryPairs(e.base, ctx, query, cp, e.client, "pull requests",
		func(project domain.Project, repo domain.Repository) iter.Seq2[domain.PullRequest, error] {
			prs := pagination.Offset(size, func(skip int) ([]domain.PullRequest, error) {
				return e.client.PullRequests(ctx, project.Organization, project.Name, repo.ID, skip)
			})
			prs = filter(prs, func(pr domain.PullRequest) bool {
				return inRange(pr.CreationDate, query.From, query.To) || inRange(pr.ClosedDate, query.From, query.To)
			})
			return enrich(prs, func(pr domain.PullRequest) (domain.PullRequest, error) {
				return e.enrich(ctx, project, repo, pr)
			})
		})
	return group(e.base, pairs, func(repo domain.Repository, prs []domain.PullRequest) domain.EnrichedRecord {
		return domain.EnrichedRecord{Project: repo.Project, Repository: &repo, PullRequests: prs}
	})
}

func (e *PullRequests) enrich(ctx context.Context, project domain.Project, repo domain.Repository, pr domain.PullRequest) (domain.PullRequest, error) {
	detail, err := e.client.PullRequest(ctx, project.Organization, project.Name, repo.ID, pr.PullRequestID)
	if err != nil {
		return pr, err
	}
	pr.Commits = detail.Commits
	if pr.Labels, err = e.client.PullRequestLabels(ctx, project.Organization, project.Name, repo.ID, pr.PullRequestID); err != nil {
		return pr, err
	}
	pr.Threads, err = e.client.PullRequestThreads(ctx, project.Organization, project.Name, repo.ID, pr.PullRequestID)
	return pr, err
}

type TagsClient interface {
	RepositoryLister
	Tags(ctx context.Context, org, project, repoID, cursor string) (pagination.CursorPage[domain.Tag], error)
	AnnotatedTag(ctx context.Context, org, project, repoID, objectID string) (domain.TagAnnotation, error)
}

// Tags extracts the tag refs of every git repository. Annotated tags are
// resolved; lightweight tags have no annotation object and stay as they are.
type Tags struct {
	base
	client TagsClient
}

func NewTags(client TagsClient, projects *provider.Provider, opts Options) *Tags {
	return &Tags{base: newBase(domain.StageTags, 100, projects, opts), client: client}
}

func (e *Tags) Extract(ctx context.Context, query domain.ScanQuery, cp checkpoint.Checkpoint) iter.Seq2[domain.EnrichedRecord, error] {
	pairs := repositoryPairs(e.base, ctx, query, cp, e.client, "tags",
		func(project domain.Project, repo domain.Repository) iter.Seq2[domain.Tag, error] {
			tags := pagination.Cursor(pagination.Start(), func(cursor string) (pagination.CursorPage[domain.Tag], error) {
				return e.client.Tags(ctx, project.Organization, project.Name, repo.ID, cursor)
			})
			return enrich(tags, func(tag domain.Tag) (domain.Tag, error) {
				annotation, err := e.client.AnnotatedTag(ctx, project.Organization, project.Name, repo.ID, tag.ObjectID)
				if collector.IsNotFound(err) {
					return tag, nil
				}
				if err != nil {
					return tag, err
				}
				tag.Annotation = &annotation
				return tag, nil
			})
		})
	return group(e.base, pairs, func(repo domain.Repository, tags []domain.Tag) domain.EnrichedRecord {
		return domain.EnrichedRecord{Project: repo.Project, Repository: &repo, Tags: tags}
	})
}
