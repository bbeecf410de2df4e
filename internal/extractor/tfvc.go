package extractor

import (
	"context"
	"iter"
	"time"

	"github.com/kurihiro0119/devops-ingest/internal/checkpoint"
	"github.com/kurihiro0119/devops-ingest/internal/domain"
	"github.com/kurihiro0119/devops-ingest/internal/pagination"
	"github.com/kurihiro0119/devops-ingest/internal/provider"
)

type BranchesClient interface {
	Branches(ctx context.Context, org, project string) ([]domain.Branch, error)
}

// Branches extracts the TFVC branches created inside the scan window, both
// bounds included.
type Branches struct {
	base
	client BranchesClient
}

func NewBranches(client BranchesClient, projects *provider.Provider, opts Options) *Branches {
	return &Branches{base: newBase(domain.StageBranches, 100, projects, opts), client: client}
}

func (e *Branches) Extract(ctx context.Context, query domain.ScanQuery, cp checkpoint.Checkpoint) iter.Seq2[domain.EnrichedRecord, error] {
	pairs := projectPairs(e.base, ctx, query, cp, tfvcProjects, "branches",
		func(project domain.Project) iter.Seq2[domain.Branch, error] {
			branches, err := e.client.Branches(ctx, project.Organization, project.Name)
			if err != nil {
				return failed[domain.Branch](err)
			}
			return filter(each(branches), func(b domain.Branch) bool {
				return createdWithin(b.CreatedDate, query.From, query.To)
			})
		})
	return group(e.base, pairs, func(project domain.Project, branches []domain.Branch) domain.EnrichedRecord {
		return domain.EnrichedRecord{Project: project, Branches: branches}
	})
}

// createdWithin reports whether s falls in [from, to]. A zero bound is open.
func createdWithin(s string, from, to time.Time) bool {
	t, ok := domain.ParseTime(s)
	if !ok {
		return false
	}
	return (from.IsZero() || !t.Before(from)) && (to.IsZero() || !t.After(to))
}

type ChangeSetsClient interface {
	PageSize() int
	ChangeSets(ctx context.Context, org, project string, from time.Time, skip int) ([]domain.ChangeSet, error)
	ChangeSetChanges(ctx context.Context, org string, changesetID, skip int) ([]domain.ChangeSetChange, error)
	ChangeSetWorkItems(ctx context.Context, org string, changesetID int) ([]domain.ChangeSetWorkItem, error)
}

// ChangeSets extracts the TFVC changesets checked in since the scan start and
// up to its end, with their changes and linked work items.
type ChangeSets struct {
	base
	client ChangeSetsClient
}

func NewChangeSets(client ChangeSetsClient, projects *provider.Provider, opts Options) *ChangeSets {
	return &ChangeSets{base: newBase(domain.StageChangeSets, 50, projects, opts), client: client}
}

func (e *ChangeSets) Extract(ctx context.Context, query domain.ScanQuery, cp checkpoint.Checkpoint) iter.Seq2[domain.EnrichedRecord, error] {
	size := e.client.PageSize()
	pairs := projectPairs(e.base, ctx, query, cp, tfvcProjects, "changesets",
		func(project domain.Project) iter.Seq2[domain.ChangeSet, error] {
			changesets := pagination.Offset(size, func(skip int) ([]domain.ChangeSet, error) {
				return e.client.ChangeSets(ctx, project.Organization, project.Name, query.From, skip)
			})
			changesets = filter(changesets, func(c domain.ChangeSet) bool {
				return createdWithin(c.CreatedDate, time.Time{}, query.To)
			})
			return enrich(changesets, func(c domain.ChangeSet) (domain.ChangeSet, error) {
				changes, err := pagination.Collect(pagination.Offset(size, func(skip int) ([]domain.ChangeSetChange, error) {
					return e.client.ChangeSetChanges(ctx, project.Organization, c.ChangesetID, skip)
				}))
				if err != nil {
					return c, err
				}
				c.Changes = changes
				c.WorkItems, err = e.client.ChangeSetWorkItems(ctx, project.Organization, c.ChangesetID)
				return c, err
			})
		})
	return group(e.base, pairs, func(project domain.Project, changesets []domain.ChangeSet) domain.EnrichedRecord {
		return domain.EnrichedRecord{Project: project, ChangeSets: changesets}
	})
}

type LabelsClient interface {
	PageSize() int
	Labels(ctx context.Context, org, project string, skip int) ([]domain.TfvcLabel, error)
}

// Labels extracts every TFVC label.
type Labels struct {
	base
	client LabelsClient
}

func NewLabels(client LabelsClient, projects *provider.Provider, opts Options) *Labels {
	return &Labels{base: newBase(domain.StageLabels, 100, projects, opts), client: client}
}

func (e *Labels) Extract(ctx context.Context, query domain.ScanQuery, cp checkpoint.Checkpoint) iter.Seq2[domain.EnrichedRecord, error] {
	size := e.client.PageSize()
	pairs := projectPairs(e.base, ctx, query, cp, tfvcProjects, "labels",
		func(project domain.Project) iter.Seq2[domain.TfvcLabel, error] {
			return pagination.Offset(size, func(skip int) ([]domain.TfvcLabel, error) {
				return e.client.Labels(ctx, project.Organization, project.Name, skip)
			})
		})
	return group(e.base, pairs, func(project domain.Project, labels []domain.TfvcLabel) domain.EnrichedRecord {
		return domain.EnrichedRecord{Project: project, Labels: labels}
	})
}
