package collector

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kurihiro0119/devops-ingest/internal/domain"
)

const (
	apiVersionWorkItems = "6.1-preview.3"
	apiVersionComments  = "6.0-preview.3"
	// The query endpoint has no $skip and rejects $top above 20000.
	maxQueryResults = 19999
)

// WorkItemQuery returns the ids of the work items of a project changed
// strictly between from and to, in ascending id order.
func (c *Client) WorkItemQuery(ctx context.Context, org, project string, from, to time.Time) ([]int, error) {
	q := apiVersion(apiVersionLegacy)
	q.Set("$top", strconv.Itoa(maxQueryResults))
	q.Set("timePrecision", "True")

	wiql := fmt.Sprintf("Select [System.Id] From WorkItems Where [System.TeamProject] = '%s'"+
		" AND [System.ChangedDate] > '%s' AND [System.ChangedDate] < '%s' order by [System.Id] asc",
		strings.ReplaceAll(project, "'", "''"), formatTime(from), formatTime(to))

	var resp struct {
		WorkItems []struct {
			ID int `json:"id"`
		} `json:"workItems"`
	}
	u := endpoint(c.baseURL, q, org, project, "_apis", "wit", "wiql")
	if _, err := c.postJSON(ctx, "work_item_query", u, map[string]string{"query": wiql}, &resp); err != nil {
		return nil, fmt.Errorf("failed to query work items of %s/%s: %w", org, project, err)
	}

	ids := make([]int, len(resp.WorkItems))
	for i, wi := range resp.WorkItems {
		ids[i] = wi.ID
	}
	return ids, nil
}

// WorkItems returns the work items with the given ids, all fields expanded.
func (c *Client) WorkItems(ctx context.Context, org, project string, ids []int) ([]domain.WorkItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	q := apiVersion(apiVersionWorkItems)
	q.Set("ids", strings.Join(parts, ","))
	q.Set("$expand", "All")
	return list[domain.WorkItem](ctx, c, "work_items", c.baseURL, q, org, project, "_apis", "wit", "workitems")
}

// WorkItemComments returns the comments of a work item, oldest first.
func (c *Client) WorkItemComments(ctx context.Context, org, project string, id int) ([]domain.Comment, error) {
	q := apiVersion(apiVersionComments)
	q.Set("order", "asc")
	var resp struct {
		Comments []domain.Comment `json:"comments"`
	}
	u := endpoint(c.baseURL, q, org, project, "_apis", "wit", "workitems", strconv.Itoa(id), "comments")
	if _, err := c.getJSON(ctx, "work_item_comments", u, &resp); err != nil {
		return nil, err
	}
	return resp.Comments, nil
}

// WorkItemUpdates returns every revision of a work item.
func (c *Client) WorkItemUpdates(ctx context.Context, org, project string, id int) ([]domain.WorkItemHistory, error) {
	return list[domain.WorkItemHistory](ctx, c, "work_item_updates", c.baseURL, apiVersion(apiVersionWorkItems),
		org, project, "_apis", "wit", "workitems", strconv.Itoa(id), "updates")
}

// Fields returns the work item fields of a project.
func (c *Client) Fields(ctx context.Context, org, project string) ([]domain.WorkItemField, error) {
	return list[domain.WorkItemField](ctx, c, "work_item_fields", c.baseURL, apiVersion(apiVersionLegacy),
		org, project, "_apis", "wit", "fields")
}
