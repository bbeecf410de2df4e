// Package preflight verifies, before onboarding, that a token can read every
// resource a scan touches. Listings ask for a single element, so each
// resource costs one small request.
package preflight

import (
	"context"
	"log/slog"
	"time"

	"github.com/kurihiro0119/devops-ingest/internal/domain"
	"github.com/kurihiro0119/devops-ingest/internal/pagination"
)

// PageSize is the page size the client passed to New should be built with.
const PageSize = 1

// Resources checked for every organization, in order.
const (
	ResourceOrganizations     = "organizations"
	ResourceProjects          = "projects"
	ResourceProjectProperties = "project_properties"
	ResourceTeams             = "teams"
	ResourcePipelines         = "pipelines"
	ResourceBuilds            = "builds"
	ResourceRepositories      = "repositories"
	ResourceWorkItemQuery     = "work_item_query"
	ResourceIterations        = "iterations"
	ResourceChangeSets        = "changesets"
	ResourceLabels            = "labels"
	ResourceBranches          = "branches"
)

// Client is the part of the remote client the checks call.
type Client interface {
	Organizations(ctx context.Context) ([]string, error)
	Projects(ctx context.Context, org, cursor string) (pagination.CursorPage[domain.Project], error)
	ProjectProperties(ctx context.Context, org, projectID string) ([]domain.ProjectProperty, error)
	Teams(ctx context.Context, org, project string, skip int) ([]domain.Team, error)
	Pipelines(ctx context.Context, org, project, cursor string) (pagination.CursorPage[domain.Pipeline], error)
	Builds(ctx context.Context, org, project string, from, to time.Time, cursor string) (pagination.CursorPage[domain.Build], error)
	Repositories(ctx context.Context, org, project string) ([]domain.Repository, error)
	WorkItemQuery(ctx context.Context, org, project string, from, to time.Time) ([]int, error)
	Iterations(ctx context.Context, org, project, team string, all bool) ([]domain.Iteration, error)
	ChangeSets(ctx context.Context, org, project string, from time.Time, skip int) ([]domain.ChangeSet, error)
	Labels(ctx context.Context, org, project string, skip int) ([]domain.TfvcLabel, error)
	Branches(ctx context.Context, org, project string) ([]domain.Branch, error)
}

// Result is the outcome of one check.
type Result struct {
	Organization string `json:"organization,omitempty"`
	Project      string `json:"project,omitempty"`
	Resource     string `json:"resource"`
	Success      bool   `json:"success"`
	Detail       string `json:"detail,omitempty"`
}

// Checker runs the checks.
type Checker struct {
	client Client
	now    func() time.Time
	logger *slog.Logger
}

func New(client Client, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{client: client, now: time.Now, logger: logger}
}

// Passed reports whether every check succeeded.
func Passed(results []Result) bool {
	for _, r := range results {
		if !r.Success {
			return false
		}
	}
	return true
}

// Check runs the checks for each organization of the token. The first project
// of an organization stands in for the rest. Checks that need a team are
// skipped when the project has none, and an organization without a readable
// project only gets its projects entry.
func (c *Checker) Check(ctx context.Context) []Result {
	orgs, err := c.client.Organizations(ctx)
	if err != nil {
		return []Result{c.failed("", "", ResourceOrganizations, err)}
	}
	if len(orgs) == 0 {
		return []Result{{Resource: ResourceOrganizations, Detail: "no organizations found"}}
	}

	var results []Result
	for _, org := range orgs {
		results = append(results, c.checkOrganization(ctx, org)...)
	}
	return results
}

func (c *Checker) checkOrganization(ctx context.Context, org string) []Result {
	page, err := c.client.Projects(ctx, org, "")
	if err != nil {
		return []Result{c.failed(org, "", ResourceProjects, err)}
	}
	if len(page.Data) == 0 {
		c.logger.Warn("no projects found, skipping remaining checks", "organization", org)
		return []Result{{Organization: org, Resource: ResourceProjects, Success: true, Detail: "no projects"}}
	}
	project := page.Data[0]
	name := project.Name
	results := []Result{{Organization: org, Project: name, Resource: ResourceProjects, Success: true}}

	check := func(resource string, call func() (int, error)) {
		n, err := call()
		if err != nil {
			results = append(results, c.failed(org, name, resource, err))
			return
		}
		r := Result{Organization: org, Project: name, Resource: resource, Success: true}
		if n == 0 {
			r.Detail = "empty"
		}
		results = append(results, r)
	}

	check(ResourceProjectProperties, func() (int, error) {
		props, err := c.client.ProjectProperties(ctx, org, project.ID)
		return len(props), err
	})

	var team *domain.Team
	check(ResourceTeams, func() (int, error) {
		teams, err := c.client.Teams(ctx, org, name, 0)
		if len(teams) > 0 {
			team = &teams[0]
		}
		return len(teams), err
	})

	check(ResourcePipelines, func() (int, error) {
		p, err := c.client.Pipelines(ctx, org, name, "")
		return len(p.Data), err
	})
	check(ResourceBuilds, func() (int, error) {
		p, err := c.client.Builds(ctx, org, name, time.Time{}, time.Time{}, "")
		return len(p.Data), err
	})
	check(ResourceRepositories, func() (int, error) {
		repos, err := c.client.Repositories(ctx, org, name)
		return len(repos), err
	})

	if team != nil {
		now := c.now().UTC()
		check(ResourceWorkItemQuery, func() (int, error) {
			ids, err := c.client.WorkItemQuery(ctx, org, name, now.Add(-24*time.Hour), now)
			return len(ids), err
		})
		check(ResourceIterations, func() (int, error) {
			its, err := c.client.Iterations(ctx, org, name, team.ID, false)
			return len(its), err
		})
	} else {
		c.logger.Warn("no team found, skipping board checks", "organization", org, "project", name)
	}

	check(ResourceChangeSets, func() (int, error) {
		sets, err := c.client.ChangeSets(ctx, org, name, time.Time{}, 0)
		return len(sets), err
	})
	check(ResourceLabels, func() (int, error) {
		labels, err := c.client.Labels(ctx, org, name, 0)
		return len(labels), err
	})
	check(ResourceBranches, func() (int, error) {
		branches, err := c.client.Branches(ctx, org, name)
		return len(branches), err
	})
	return results
}

func (c *Checker) failed(org, project, resource string, err error) Result {
	c.logger.Error("preflight check failed",
		"organization", org, "project", project, "resource", resource, "error", err)
	return Result{Organization: org, Project: project, Resource: resource, Detail: err.Error()}
}
