package collector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kurihiro0119/devops-ingest/internal/domain"
	"github.com/kurihiro0119/devops-ingest/internal/pagination"
)

const (
	apiVersionBuilds       = "6.1-preview.6"
	apiVersionBuildCommits = "6.0-preview.2"
)

// Pipelines fetches one page of the pipelines of a project.
func (c *Client) Pipelines(ctx context.Context, org, project, cursor string) (pagination.CursorPage[domain.Pipeline], error) {
	q := apiVersion(apiVersionDefault)
	q.Set("$top", fmt.Sprint(c.pageSize))
	return listPage[domain.Pipeline](ctx, c, "pipelines", c.baseURL, q, cursor, org, project, "_apis", "pipelines")
}

// Pipeline returns one pipeline with its configuration.
func (c *Client) Pipeline(ctx context.Context, org, project string, id int) (domain.Pipeline, error) {
	var p domain.Pipeline
	u := endpoint(c.baseURL, apiVersion(apiVersionDefault), org, project, "_apis", "pipelines", fmt.Sprint(id))
	_, err := c.getJSON(ctx, "pipeline", u, &p)
	return p, err
}

// Runs returns the runs of a pipeline, newest first.
func (c *Client) Runs(ctx context.Context, org, project string, pipelineID int) ([]domain.Run, error) {
	return list[domain.Run](ctx, c, "pipeline_runs", c.baseURL, apiVersion(apiVersionDefault),
		org, project, "_apis", "pipelines", fmt.Sprint(pipelineID), "runs")
}

// BuildChanges returns the commits that went in between two builds.
func (c *Client) BuildChanges(ctx context.Context, org, project string, fromBuild, toBuild int) ([]domain.BuildChange, error) {
	q := apiVersion(apiVersionBuildCommits)
	q.Set("fromBuildId", fmt.Sprint(fromBuild))
	q.Set("toBuildId", fmt.Sprint(toBuild))
	return list[domain.BuildChange](ctx, c, "build_changes", c.baseURL, q, org, project, "_apis", "build", "changes")
}

// BuildTimeline returns the flat timeline of a build. A build without a
// timeline yields no records.
func (c *Client) BuildTimeline(ctx context.Context, org, project string, buildID int) ([]domain.TimelineRecord, error) {
	var resp struct {
		Records []domain.TimelineRecord `json:"records"`
	}
	u := endpoint(c.baseURL, apiVersion(apiVersionBuildCommits), org, project, "_apis", "build", "builds", fmt.Sprint(buildID), "timeline")
	if _, err := c.getJSON(ctx, "build_timeline", u, &resp); err != nil {
		return nil, err
	}
	return resp.Records, nil
}

// StepLogs returns the lines of a timeline log.
func (c *Client) StepLogs(ctx context.Context, logURL string) ([]string, error) {
	var resp listResponse[string]
	if _, err := c.getJSON(ctx, "step_logs", logURL, &resp); err != nil {
		return nil, err
	}
	return resp.Value, nil
}

// Builds fetches one page of the builds of a project finished in [from, to].
func (c *Client) Builds(ctx context.Context, org, project string, from, to time.Time, cursor string) (pagination.CursorPage[domain.Build], error) {
	q := apiVersion(apiVersionBuilds)
	q.Set("$top", fmt.Sprint(c.pageSize))
	if !from.IsZero() {
		q.Set("minTime", formatTime(from))
	}
	if !to.IsZero() {
		q.Set("maxTime", formatTime(to))
	}
	return listPage[domain.Build](ctx, c, "builds", c.baseURL, q, cursor, org, project, "_apis", "build", "builds")
}

// ReleaseDefinitions fetches one page of the release definitions of a project.
func (c *Client) ReleaseDefinitions(ctx context.Context, org, project, cursor string) (pagination.CursorPage[domain.ReleaseDefinition], error) {
	q := apiVersion(apiVersionDefault)
	q.Set("$top", fmt.Sprint(c.pageSize))
	return listPage[domain.ReleaseDefinition](ctx, c, "release_definitions", c.releaseURL, q, cursor,
		org, project, "_apis", "release", "definitions")
}

// Releases fetches one page of the releases of a definition.
func (c *Client) Releases(ctx context.Context, org, project string, definitionID int, cursor string) (pagination.CursorPage[domain.Release], error) {
	q := apiVersion(apiVersionDefault)
	q.Set("$top", fmt.Sprint(c.pageSize))
	q.Set("definitionId", fmt.Sprint(definitionID))
	return listPage[domain.Release](ctx, c, "releases", c.releaseURL, q, cursor, org, project, "_apis", "release", "releases")
}

// Release returns a release with its environments and deploy steps.
func (c *Client) Release(ctx context.Context, org, project string, id int) (domain.Release, error) {
	var r domain.Release
	u := endpoint(c.releaseURL, apiVersion(apiVersionDefault), org, project, "_apis", "release", "releases", fmt.Sprint(id))
	_, err := c.getJSON(ctx, "release", u, &r)
	return r, err
}

// ReleaseTaskLog returns the raw log of a release task.
func (c *Client) ReleaseTaskLog(ctx context.Context, logURL string) (string, error) {
	text, err := c.getText(ctx, "release_task_log", logURL)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(text, "\n"), nil
}
