package collector

import (
	"context"
	"strconv"
	"time"

	"github.com/kurihiro0119/devops-ingest/internal/domain"
)

// ChangeSets fetches one offset page of the changesets of a project checked
// in since from.
func (c *Client) ChangeSets(ctx context.Context, org, project string, from time.Time, skip int) ([]domain.ChangeSet, error) {
	q := c.offsetQuery(apiVersionLegacy, skip, "$skip", "$top")
	if !from.IsZero() {
		q.Set("searchCriteria.fromDate", formatTime(from))
	}
	return list[domain.ChangeSet](ctx, c, "changesets", c.baseURL, q, org, project, "_apis", "tfvc", "changesets")
}

// ChangeSetChanges fetches one offset page of the changes of a changeset.
func (c *Client) ChangeSetChanges(ctx context.Context, org string, changesetID, skip int) ([]domain.ChangeSetChange, error) {
	return list[domain.ChangeSetChange](ctx, c, "changeset_changes", c.baseURL,
		c.offsetQuery(apiVersionLegacy, skip, "$skip", "$top"), org, "_apis", "tfvc", "changesets", strconv.Itoa(changesetID), "changes")
}

// ChangeSetWorkItems returns the work items linked to a changeset.
func (c *Client) ChangeSetWorkItems(ctx context.Context, org string, changesetID int) ([]domain.ChangeSetWorkItem, error) {
	return list[domain.ChangeSetWorkItem](ctx, c, "changeset_work_items", c.baseURL, apiVersion(apiVersionLegacy),
		org, "_apis", "tfvc", "changesets", strconv.Itoa(changesetID), "workItems")
}

// Branches returns the TFVC branches of a project with their children.
func (c *Client) Branches(ctx context.Context, org, project string) ([]domain.Branch, error) {
	q := apiVersion(apiVersionLegacy)
	q.Set("includeChildren", "true")
	return list[domain.Branch](ctx, c, "branches", c.baseURL, q, org, project, "_apis", "tfvc", "branches")
}

// Labels fetches one offset page of the TFVC labels of a project.
func (c *Client) Labels(ctx context.Context, org, project string, skip int) ([]domain.TfvcLabel, error) {
	return list[domain.TfvcLabel](ctx, c, "labels", c.baseURL,
		c.offsetQuery(apiVersionLegacy, skip, "$skip", "$top"), org, project, "_apis", "tfvc", "labels")
}
