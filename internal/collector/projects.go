package collector

import (
	"context"
	"fmt"

	"github.com/kurihiro0119/devops-ingest/internal/domain"
	"github.com/kurihiro0119/devops-ingest/internal/pagination"
)

const (
	apiVersionDefault    = "6.1-preview.1"
	apiVersionProjects   = "6.1-preview.4"
	apiVersionProperties = "6.0-preview.1"
	apiVersionLegacy     = "6.0"
	apiVersionProfile    = "5.1"
)

type account struct {
	AccountID   string `json:"accountId"`
	AccountName string `json:"accountName"`
}

// Organizations returns the configured organizations, or discovers the ones
// the token's owner belongs to.
func (c *Client) Organizations(ctx context.Context) ([]string, error) {
	if len(c.organizations) > 0 {
		return c.organizations, nil
	}

	var profile struct {
		ID string `json:"id"`
	}
	if _, err := c.getJSON(ctx, "profile", endpoint(c.profileURL, apiVersion(apiVersionProfile), "_apis", "profile", "profiles", "me"), &profile); err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	q := apiVersion(apiVersionLegacy)
	q.Set("memberId", profile.ID)
	accounts, err := list[account](ctx, c, "accounts", c.profileURL, q, "_apis", "accounts")
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	orgs := make([]string, 0, len(accounts))
	for _, a := range accounts {
		if a.AccountName != "" {
			orgs = append(orgs, a.AccountName)
		}
	}
	return orgs, nil
}

// Projects fetches one page of the projects of an organization.
func (c *Client) Projects(ctx context.Context, org, cursor string) (pagination.CursorPage[domain.Project], error) {
	q := apiVersion(apiVersionProjects)
	q.Set("$top", fmt.Sprint(c.pageSize))
	page, err := listPage[domain.Project](ctx, c, "projects", c.baseURL, q, cursor, org, "_apis", "projects")
	if err != nil {
		return page, fmt.Errorf("failed to list projects of %s: %w", org, err)
	}
	for i := range page.Data {
		page.Data[i].Organization = org
	}
	return page, nil
}

// ProjectProperties returns the properties of a project.
func (c *Client) ProjectProperties(ctx context.Context, org, projectID string) ([]domain.ProjectProperty, error) {
	props, err := list[domain.ProjectProperty](ctx, c, "project_properties", c.baseURL,
		apiVersion(apiVersionProperties), org, "_apis", "projects", projectID, "properties")
	if err != nil {
		return nil, fmt.Errorf("failed to get properties of project %s: %w", projectID, err)
	}
	return props, nil
}

// Teams fetches one offset page of the teams of a project.
func (c *Client) Teams(ctx context.Context, org, project string, skip int) ([]domain.Team, error) {
	return list[domain.Team](ctx, c, "teams", c.baseURL,
		c.offsetQuery(apiVersionLegacy, skip, "$skip", "$top"), org, "_apis", "projects", project, "teams")
}

// Iterations returns the iterations of a team. Only the current one is
// returned unless all is set.
func (c *Client) Iterations(ctx context.Context, org, project, team string, all bool) ([]domain.Iteration, error) {
	q := apiVersion("4.1")
	if !all {
		q.Set("$timeframe", "current")
	}
	return list[domain.Iteration](ctx, c, "iterations", c.baseURL, q,
		org, project, team, "_apis", "work", "teamsettings", "iterations")
}

