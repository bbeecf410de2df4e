package aggregator

import (
	"context"
	"fmt"
	"sort"

	"github.com/kurihiro0119/devops-ingest/internal/domain"
	"github.com/kurihiro0119/devops-ingest/internal/storage"
)

// Aggregator defines the interface for summarizing ingested records
type Aggregator interface {
	// Summarize builds the summary of everything stored for one integration
	Summarize(ctx context.Context, key domain.IntegrationKey) (*domain.IntegrationSummary, error)

	// ProjectSummary returns the item counts of a single project
	ProjectSummary(ctx context.Context, key domain.IntegrationKey, organization, project string) (*domain.ProjectSummary, error)
}

// aggregator implements the Aggregator interface
type aggregator struct {
	storage storage.Storage
}

// NewAggregator creates a new aggregator
func NewAggregator(storage storage.Storage) Aggregator {
	return &aggregator{
		storage: storage,
	}
}

// Summarize builds the summary of everything stored for one integration
func (a *aggregator) Summarize(ctx context.Context, key domain.IntegrationKey) (*domain.IntegrationSummary, error) {
	counts, err := a.storage.CountRecords(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}

	summary := &domain.IntegrationSummary{
		IntegrationKey: key,
		ByResource:     make(map[domain.Stage]int),
		Projects:       projectSummaries(counts),
	}
	for _, c := range counts {
		summary.TotalRecords += c.Records
		summary.TotalItems += c.Items
		summary.ByResource[c.Resource] += c.Items
	}

	runs, err := a.storage.GetScanRuns(ctx, key, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to get scan runs: %w", err)
	}
	if len(runs) > 0 {
		summary.LastScan = runs[0]
	}

	cp, err := a.storage.GetCheckpoint(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}
	summary.PendingResume = !cp.IsZero()
	summary.CompletedStages = cp.CompletedStages

	return summary, nil
}

// ProjectSummary returns the item counts of a single project
func (a *aggregator) ProjectSummary(ctx context.Context, key domain.IntegrationKey, organization, project string) (*domain.ProjectSummary, error) {
	counts, err := a.storage.CountRecords(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}
	for _, p := range projectSummaries(counts) {
		if p.Organization == organization && p.Project == project {
			return &p, nil
		}
	}
	return nil, storage.ErrNotFound
}

func projectSummaries(counts []domain.ResourceCount) []domain.ProjectSummary {
	index := make(map[[2]string]int)
	var projects []domain.ProjectSummary
	for _, c := range counts {
		k := [2]string{c.Organization, c.Project}
		i, ok := index[k]
		if !ok {
			i = len(projects)
			index[k] = i
			projects = append(projects, domain.ProjectSummary{
				Organization: c.Organization,
				Project:      c.Project,
				Items:        make(map[domain.Stage]int),
			})
		}
		projects[i].Items[c.Resource] += c.Items
		projects[i].TotalItems += c.Items
	}

	sort.SliceStable(projects, func(i, j int) bool {
		if projects[i].Organization != projects[j].Organization {
			return projects[i].Organization < projects[j].Organization
		}
		return projects[i].Project < projects[j].Project
	})
	return projects
}
