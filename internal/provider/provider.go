// Package provider streams the projects a scan has to visit, honouring the
// resume position of a checkpoint.
package provider

import (
	"context"
	"iter"
	"log/slog"
	"slices"
	"strings"

	"github.com/kurihiro0119/devops-ingest/internal/cache"
	"github.com/kurihiro0119/devops-ingest/internal/checkpoint"
	"github.com/kurihiro0119/devops-ingest/internal/domain"
	"github.com/kurihiro0119/devops-ingest/internal/metrics"
	"github.com/kurihiro0119/devops-ingest/internal/pagination"
)

// ProjectClient is the subset of the remote client used to list projects.
type ProjectClient interface {
	Organizations(ctx context.Context) ([]string, error)
	Projects(ctx context.Context, org, cursor string) (pagination.CursorPage[domain.Project], error)
	ProjectProperties(ctx context.Context, org, projectID string) ([]domain.ProjectProperty, error)
}

// Provider yields projects organization by organization.
type Provider struct {
	client    ProjectClient
	projects  *cache.ProjectList
	qualified map[string]struct{}
	metrics   *metrics.Scan
	logger    *slog.Logger
}

// New creates a Provider. qualifiedProjects is an optional allowlist of
// "org/project" names; matching is case-insensitive.
func New(client ProjectClient, c cache.IngestionCache, qualifiedProjects []string, m *metrics.Scan, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	qualified := make(map[string]struct{}, len(qualifiedProjects))
	for _, q := range qualifiedProjects {
		if q = strings.ToLower(strings.TrimSpace(q)); q != "" {
			qualified[q] = struct{}{}
		}
	}
	return &Provider{
		client:    client,
		projects:  cache.NewProjectList(c, logger),
		qualified: qualified,
		metrics:   m,
		logger:    logger,
	}
}

// Projects streams the projects to scan. The organization named by the
// checkpoint is resumed at its project (inclusive); organizations before it
// are skipped. Failures are yielded as *checkpoint.ResumableFailure.
func (p *Provider) Projects(ctx context.Context, query domain.ScanQuery, cp checkpoint.Checkpoint) iter.Seq2[domain.Project, error] {
	return func(yield func(domain.Project, error) bool) {
		orgs, err := p.client.Organizations(ctx)
		if err != nil {
			yield(domain.Project{}, checkpoint.Fail(cp, "", "organizations", cp.ResumeFromOrganization, cp.ResumeFromProject, err))
			return
		}

		start, resumeProject := 0, ""
		if cp.ResumeFromOrganization != "" {
			idx := slices.Index(orgs, cp.ResumeFromOrganization)
			if idx < 0 {
				p.logger.Warn("resume organization not found, scanning all organizations",
					"organization", cp.ResumeFromOrganization, "organizations", orgs)
			} else {
				start, resumeProject = idx, cp.ResumeFromProject
			}
		}

		for i, org := range orgs[start:] {
			skipping := i == 0 && resumeProject != ""
			for project, err := range p.organizationProjects(ctx, query.IntegrationKey, org, cp) {
				if err != nil {
					yield(domain.Project{}, err)
					return
				}
				if skipping {
					if !strings.EqualFold(project.Name, resumeProject) {
						continue
					}
					skipping = false
				}
				if project.LastUpdateTime == "" {
					p.logger.Debug("skipping project without lastUpdateTime", "organization", org, "project", project.Name)
					continue
				}
				if !p.qualifies(project) {
					continue
				}
				if !yield(project, nil) {
					return
				}
			}
			if skipping {
				p.logger.Warn("resume project not found in organization",
					"organization", org, "project", resumeProject)
			}
		}
	}
}

func (p *Provider) qualifies(project domain.Project) bool {
	if len(p.qualified) == 0 {
		return true
	}
	_, ok := p.qualified[project.QualifiedName()]
	return ok
}

// organizationProjects serves the enriched project list of one organization
// from the cache, or fetches it and populates the cache while streaming.
func (p *Provider) organizationProjects(ctx context.Context, key domain.IntegrationKey, org string, cp checkpoint.Checkpoint) iter.Seq2[domain.Project, error] {
	return func(yield func(domain.Project, error) bool) {
		if p.projects.Enabled() {
			cached, ok := p.projects.Load(ctx, key, org)
			p.metrics.CacheLookup(ok)
			if ok {
				for _, project := range cached {
					if !yield(project, nil) {
						return
					}
				}
				return
			}
		}

		resumeProject := ""
		if org == cp.ResumeFromOrganization {
			resumeProject = cp.ResumeFromProject
		}

		count := 0
		remote := pagination.Cursor(pagination.Start(), func(cursor string) (pagination.CursorPage[domain.Project], error) {
			return p.client.Projects(ctx, org, cursor)
		})
		for project, err := range remote {
			if err != nil {
				yield(domain.Project{}, checkpoint.Fail(cp, "", "projects", org, resumeProject, err))
				return
			}
			props, err := p.client.ProjectProperties(ctx, org, project.ID)
			if err != nil {
				yield(domain.Project{}, checkpoint.Fail(cp, "", "project properties", org, project.Name, err))
				return
			}
			project.ApplyProperties(props)

			p.projects.Store(ctx, key, org, count, project)
			count++
			if !yield(project, nil) {
				return
			}
		}
		p.projects.Commit(ctx, key, org, count)
	}
}
