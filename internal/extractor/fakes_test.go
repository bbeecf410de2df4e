package extractor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/kurihiro0119/devops-ingest/internal/cache"
	"github.com/kurihiro0119/devops-ingest/internal/collector"
	"github.com/kurihiro0119/devops-ingest/internal/domain"
	"github.com/kurihiro0119/devops-ingest/internal/pagination"
	"github.com/kurihiro0119/devops-ingest/internal/provider"
)

var errRemote = errors.New("remote unavailable")

type fakeProjects struct {
	orgsErr  error
	projects []domain.Project
}

func (f *fakeProjects) Organizations(context.Context) ([]string, error) {
	if f.orgsErr != nil {
		return nil, f.orgsErr
	}
	var orgs []string
	seen := map[string]bool{}
	for _, p := range f.projects {
		if !seen[p.Organization] {
			seen[p.Organization] = true
			orgs = append(orgs, p.Organization)
		}
	}
	return orgs, nil
}

func (f *fakeProjects) Projects(_ context.Context, org, _ string) (pagination.CursorPage[domain.Project], error) {
	var page pagination.CursorPage[domain.Project]
	for _, p := range f.projects {
		if p.Organization == org {
			page.Data = append(page.Data, p)
		}
	}
	return page, nil
}

func (f *fakeProjects) ProjectProperties(_ context.Context, _, projectID string) ([]domain.ProjectProperty, error) {
	for _, p := range f.projects {
		if p.ID == projectID {
			return []domain.ProjectProperty{
				{Name: "System.SourceControlGitEnabled", Value: p.GitEnabled},
				{Name: "System.SourceControlTfvcEnabled", Value: p.TfvcEnabled},
			}, nil
		}
	}
	return nil, nil
}

func testProject(org, name string, git, tfvc bool) domain.Project {
	return domain.Project{
		Organization:   org,
		ID:             org + "-" + name,
		Name:           name,
		LastUpdateTime: "2024-01-01T00:00:00Z",
		GitEnabled:     git,
		TfvcEnabled:    tfvc,
	}
}

func newProvider(projects ...domain.Project) *provider.Provider {
	return newProviderFrom(&fakeProjects{projects: projects})
}

func newProviderFrom(c provider.ProjectClient) *provider.Provider {
	return provider.New(c, cache.Disabled{}, nil, nil, nil)
}

func testQuery() domain.ScanQuery {
	return domain.ScanQuery{
		IntegrationKey: domain.IntegrationKey{TenantID: "t", IntegrationID: "1"},
		From:           time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		To:             time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
	}
}

func offsetPage[T any](all []T, skip, size int) []T {
	if skip >= len(all) {
		return nil
	}
	return all[skip:min(skip+size, len(all))]
}

func notFound() error {
	return &collector.ClientError{StatusCode: http.StatusNotFound, Method: http.MethodGet, URL: "http://remote/x"}
}

// fakeRemote implements Client over in-memory fixtures. Keys are project
// names, repository ids or parent ids depending on the resource.
type fakeRemote struct {
	pageSize int

	repos       map[string][]domain.Repository
	commits     map[string][]domain.Commit
	changes     map[string][]domain.Change
	failChanges string
	prs         map[string][]domain.PullRequest
	prDetail    map[int]domain.PullRequest
	tags        map[string][]domain.Tag
	annotations map[string]domain.TagAnnotation

	branches    map[string][]domain.Branch
	changesets  map[string][]domain.ChangeSet
	csChanges   map[int][]domain.ChangeSetChange
	csWorkItems map[int][]domain.ChangeSetWorkItem
	labels      map[string][]domain.TfvcLabel

	pipelines    map[string][]domain.Pipeline
	runs         map[int][]domain.Run
	buildChanges map[[2]int][]domain.BuildChange
	timelines    map[int][]domain.TimelineRecord
	failTimeline int
	stepLogs     map[string][]string
	builds       map[string][]domain.Build
	definitions  map[string][]domain.ReleaseDefinition
	releases     map[int][]domain.Release
	releaseLogs  map[string]string

	changedIDs    map[int][]int
	queries       []Bucket
	workItemCalls [][]int
	comments      map[int][]domain.Comment
	updates       map[int][]domain.WorkItemHistory
	fields        map[string][]domain.WorkItemField
	teams         map[string][]domain.Team
	iterations    map[string][]domain.Iteration
	allIterations []bool
}

var (
	_ Client = (*fakeRemote)(nil)
	_ Client = (*collector.Client)(nil)
)

func (f *fakeRemote) PageSize() int { return f.pageSize }

func (f *fakeRemote) Repositories(_ context.Context, _, project string) ([]domain.Repository, error) {
	return f.repos[project], nil
}

func (f *fakeRemote) Commits(_ context.Context, _, _, repoID string, _, _ time.Time, skip int) ([]domain.Commit, error) {
	return offsetPage(f.commits[repoID], skip, f.pageSize), nil
}

func (f *fakeRemote) CommitChanges(_ context.Context, _, _, _, commitID string, skip int) ([]domain.Change, error) {
	if commitID == f.failChanges {
		return nil, errRemote
	}
	return offsetPage(f.changes[commitID], skip, f.pageSize), nil
}

func (f *fakeRemote) PullRequests(_ context.Context, _, _, repoID string, skip int) ([]domain.PullRequest, error) {
	return offsetPage(f.prs[repoID], skip, f.pageSize), nil
}

func (f *fakeRemote) PullRequest(_ context.Context, _, _, _ string, id int) (domain.PullRequest, error) {
	return f.prDetail[id], nil
}

func (f *fakeRemote) PullRequestLabels(_ context.Context, _, _, _ string, id int) ([]domain.PullRequestLabel, error) {
	return []domain.PullRequestLabel{{ID: fmt.Sprint(id), Name: "label"}}, nil
}

func (f *fakeRemote) PullRequestThreads(_ context.Context, _, _, _ string, id int) ([]domain.PullRequestThread, error) {
	return []domain.PullRequestThread{{ID: id}}, nil
}

func (f *fakeRemote) Tags(_ context.Context, _, _, repoID, cursor string) (pagination.CursorPage[domain.Tag], error) {
	return pagination.CursorPage[domain.Tag]{Data: f.tags[repoID]}, nil
}

func (f *fakeRemote) AnnotatedTag(_ context.Context, _, _, _, objectID string) (domain.TagAnnotation, error) {
	a, ok := f.annotations[objectID]
	if !ok {
		return domain.TagAnnotation{}, notFound()
	}
	return a, nil
}

func (f *fakeRemote) Branches(_ context.Context, _, project string) ([]domain.Branch, error) {
	return f.branches[project], nil
}

func (f *fakeRemote) ChangeSets(_ context.Context, _, project string, _ time.Time, skip int) ([]domain.ChangeSet, error) {
	return offsetPage(f.changesets[project], skip, f.pageSize), nil
}

func (f *fakeRemote) ChangeSetChanges(_ context.Context, _ string, id, skip int) ([]domain.ChangeSetChange, error) {
	return offsetPage(f.csChanges[id], skip, f.pageSize), nil
}

func (f *fakeRemote) ChangeSetWorkItems(_ context.Context, _ string, id int) ([]domain.ChangeSetWorkItem, error) {
	return f.csWorkItems[id], nil
}

func (f *fakeRemote) Labels(_ context.Context, _, project string, skip int) ([]domain.TfvcLabel, error) {
	return offsetPage(f.labels[project], skip, f.pageSize), nil
}

func (f *fakeRemote) Pipelines(_ context.Context, _, project, _ string) (pagination.CursorPage[domain.Pipeline], error) {
	return pagination.CursorPage[domain.Pipeline]{Data: f.pipelines[project]}, nil
}

func (f *fakeRemote) Pipeline(_ context.Context, _, _ string, id int) (domain.Pipeline, error) {
	return domain.Pipeline{ID: id, Configuration: &domain.PipelineConfiguration{Type: "yaml", Path: "azure-pipelines.yml"}}, nil
}

func (f *fakeRemote) Runs(_ context.Context, _, _ string, pipelineID int) ([]domain.Run, error) {
	return f.runs[pipelineID], nil
}

func (f *fakeRemote) BuildChanges(_ context.Context, _, _ string, fromBuild, toBuild int) ([]domain.BuildChange, error) {
	return f.buildChanges[[2]int{fromBuild, toBuild}], nil
}

func (f *fakeRemote) BuildTimeline(_ context.Context, _, _ string, buildID int) ([]domain.TimelineRecord, error) {
	if buildID == f.failTimeline {
		return nil, errRemote
	}
	return f.timelines[buildID], nil
}

func (f *fakeRemote) StepLogs(_ context.Context, logURL string) ([]string, error) {
	lines, ok := f.stepLogs[logURL]
	if !ok {
		return nil, errRemote
	}
	return lines, nil
}

func (f *fakeRemote) Builds(_ context.Context, _, project string, _, _ time.Time, _ string) (pagination.CursorPage[domain.Build], error) {
	return pagination.CursorPage[domain.Build]{Data: f.builds[project]}, nil
}

func (f *fakeRemote) ReleaseDefinitions(_ context.Context, _, project, _ string) (pagination.CursorPage[domain.ReleaseDefinition], error) {
	return pagination.CursorPage[domain.ReleaseDefinition]{Data: f.definitions[project]}, nil
}

func (f *fakeRemote) Releases(_ context.Context, _, _ string, definitionID int, _ string) (pagination.CursorPage[domain.Release], error) {
	return pagination.CursorPage[domain.Release]{Data: f.releases[definitionID]}, nil
}

func (f *fakeRemote) Release(_ context.Context, _, _ string, id int) (domain.Release, error) {
	for _, releases := range f.releases {
		for _, r := range releases {
			if r.ID == id {
				return r, nil
			}
		}
	}
	return domain.Release{}, notFound()
}

func (f *fakeRemote) ReleaseTaskLog(_ context.Context, logURL string) (string, error) {
	text, ok := f.releaseLogs[logURL]
	if !ok {
		return "", errRemote
	}
	return text, nil
}

func (f *fakeRemote) WorkItemQuery(_ context.Context, _, _ string, from, to time.Time) ([]int, error) {
	f.queries = append(f.queries, Bucket{From: from, To: to})
	return f.changedIDs[len(f.queries)-1], nil
}

func (f *fakeRemote) WorkItems(_ context.Context, _, _ string, ids []int) ([]domain.WorkItem, error) {
	f.workItemCalls = append(f.workItemCalls, append([]int(nil), ids...))
	items := make([]domain.WorkItem, 0, len(ids))
	for _, id := range ids {
		items = append(items, domain.WorkItem{ID: id})
	}
	return items, nil
}

func (f *fakeRemote) WorkItemComments(_ context.Context, _, _ string, id int) ([]domain.Comment, error) {
	return f.comments[id], nil
}

func (f *fakeRemote) WorkItemUpdates(_ context.Context, _, _ string, id int) ([]domain.WorkItemHistory, error) {
	return f.updates[id], nil
}

func (f *fakeRemote) Fields(_ context.Context, _, project string) ([]domain.WorkItemField, error) {
	return f.fields[project], nil
}

func (f *fakeRemote) Teams(_ context.Context, _, project string, skip int) ([]domain.Team, error) {
	return offsetPage(f.teams[project], skip, f.pageSize), nil
}

func (f *fakeRemote) Iterations(_ context.Context, _, _, team string, all bool) ([]domain.Iteration, error) {
	f.allIterations = append(f.allIterations, all)
	return f.iterations[team], nil
}
