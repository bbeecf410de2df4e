package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/kurihiro0119/devops-ingest/internal/domain"
	"github.com/kurihiro0119/devops-ingest/internal/pagination"
)

const apiVersionAnnotatedTags = "5.1-preview.1"

// Repositories lists the git repositories of a project.
func (c *Client) Repositories(ctx context.Context, org, project string) ([]domain.Repository, error) {
	repos, err := list[domain.Repository](ctx, c, "repositories", c.baseURL,
		apiVersion(apiVersionDefault), org, project, "_apis", "git", "repositories")
	if err != nil {
		return nil, fmt.Errorf("failed to list repositories of %s/%s: %w", org, project, err)
	}
	return repos, nil
}

// Commits fetches one offset page of the commits of a repository made in
// [from, to]. A repository hidden from the caller yields an empty page.
func (c *Client) Commits(ctx context.Context, org, project, repoID string, from, to time.Time, skip int) ([]domain.Commit, error) {
	q := c.offsetQuery(apiVersionDefault, skip, "$skip", "$top")
	if !from.IsZero() {
		q.Set("searchCriteria.fromDate", formatTime(from))
	}
	if !to.IsZero() {
		q.Set("searchCriteria.toDate", formatTime(to))
	}
	commits, err := list[domain.Commit](ctx, c, "commits", c.baseURL, q,
		org, project, "_apis", "git", "repositories", repoID, "commits")
	if IsPermissionDenied(err) {
		c.logger.Warn("repository not accessible, skipping commits",
			"organization", org, "project", project, "repository", repoID)
		return nil, nil
	}
	return commits, err
}

// CommitChanges fetches one offset page of the changes of a commit.
func (c *Client) CommitChanges(ctx context.Context, org, project, repoID, commitID string, skip int) ([]domain.Change, error) {
	var resp struct {
		Changes []domain.Change `json:"changes"`
	}
	u := endpoint(c.baseURL, c.offsetQuery(apiVersionDefault, skip, "skip", "top"),
		org, project, "_apis", "git", "repositories", repoID, "commits", commitID, "changes")
	if _, err := c.getJSON(ctx, "commit_changes", u, &resp); err != nil {
		return nil, err
	}
	return resp.Changes, nil
}

// PullRequests fetches one offset page of the pull requests of a repository,
// whatever their status.
func (c *Client) PullRequests(ctx context.Context, org, project, repoID string, skip int) ([]domain.PullRequest, error) {
	q := c.offsetQuery(apiVersionDefault, skip, "$skip", "$top")
	q.Set("searchCriteria.status", "all")
	prs, err := list[domain.PullRequest](ctx, c, "pull_requests", c.baseURL, q,
		org, project, "_apis", "git", "repositories", repoID, "pullrequests")
	if IsPermissionDenied(err) {
		c.logger.Warn("repository not accessible, skipping pull requests",
			"organization", org, "project", project, "repository", repoID)
		return nil, nil
	}
	return prs, err
}

// PullRequest returns a pull request with its commits.
func (c *Client) PullRequest(ctx context.Context, org, project, repoID string, id int) (domain.PullRequest, error) {
	q := apiVersion(apiVersionDefault)
	q.Set("includeCommits", "true")
	var pr domain.PullRequest
	u := endpoint(c.baseURL, q, org, project, "_apis", "git", "repositories", repoID, "pullrequests", fmt.Sprint(id))
	_, err := c.getJSON(ctx, "pull_request", u, &pr)
	return pr, err
}

// PullRequestLabels returns the labels of a pull request.
func (c *Client) PullRequestLabels(ctx context.Context, org, project, repoID string, id int) ([]domain.PullRequestLabel, error) {
	return list[domain.PullRequestLabel](ctx, c, "pull_request_labels", c.baseURL, apiVersion(apiVersionDefault),
		org, project, "_apis", "git", "repositories", repoID, "pullRequests", fmt.Sprint(id), "labels")
}

// PullRequestThreads returns the comment threads of a pull request.
func (c *Client) PullRequestThreads(ctx context.Context, org, project, repoID string, id int) ([]domain.PullRequestThread, error) {
	return list[domain.PullRequestThread](ctx, c, "pull_request_threads", c.baseURL, apiVersion(apiVersionProperties),
		org, project, "_apis", "git", "repositories", repoID, "pullrequests", fmt.Sprint(id), "threads")
}

// Tags fetches one page of the tag refs of a repository.
func (c *Client) Tags(ctx context.Context, org, project, repoID, cursor string) (pagination.CursorPage[domain.Tag], error) {
	q := apiVersion(apiVersionLegacy)
	q.Set("filter", "tags")
	q.Set("$top", fmt.Sprint(c.pageSize))
	page, err := listPage[domain.Tag](ctx, c, "tags", c.baseURL, q, cursor,
		org, project, "_apis", "git", "repositories", repoID, "refs")
	if IsPermissionDenied(err) {
		c.logger.Warn("repository not accessible, skipping tags",
			"organization", org, "project", project, "repository", repoID)
		return pagination.CursorPage[domain.Tag]{}, nil
	}
	return page, err
}

// AnnotatedTag returns the annotation of a tag object.
func (c *Client) AnnotatedTag(ctx context.Context, org, project, repoID, objectID string) (domain.TagAnnotation, error) {
	var tag domain.TagAnnotation
	u := endpoint(c.baseURL, apiVersion(apiVersionAnnotatedTags),
		org, project, "_apis", "git", "repositories", repoID, "annotatedtags", objectID)
	_, err := c.getJSON(ctx, "annotated_tag", u, &tag)
	return tag, err
}
