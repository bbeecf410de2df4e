package extractor

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/kurihiro0119/devops-ingest/internal/checkpoint"
	"github.com/kurihiro0119/devops-ingest/internal/domain"
	"github.com/kurihiro0119/devops-ingest/internal/pagination"
	"github.com/kurihiro0119/devops-ingest/internal/provider"
)

// workItemBatchSize is the largest id list the work items endpoint accepts.
const workItemBatchSize = 200

// WorkItemQuerier finds the ids of the work items changed in a time range.
type WorkItemQuerier interface {
	WorkItemQuery(ctx context.Context, org, project string, from, to time.Time) ([]int, error)
}

// ErrOpenWindow is returned when a work item scan has no start time.
var ErrOpenWindow = errors.New("work item scan needs a start time")

// changedWorkItems queries the scan window one day at a time and returns the
// distinct ids in first-seen order.
func changedWorkItems(ctx context.Context, q WorkItemQuerier, project domain.Project, from, to time.Time) ([]int, error) {
	if from.IsZero() {
		return nil, ErrOpenWindow
	}
	seen := make(map[int]struct{})
	var ids []int
	for _, bucket := range DailyBuckets(from, to) {
		found, err := q.WorkItemQuery(ctx, project.Organization, project.Name, bucket.From, bucket.To)
		if err != nil {
			return nil, err
		}
		for _, id := range found {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

type WorkItemsClient interface {
	WorkItemQuerier
	WorkItems(ctx context.Context, org, project string, ids []int) ([]domain.WorkItem, error)
	WorkItemComments(ctx context.Context, org, project string, id int) ([]domain.Comment, error)
}

// WorkItems extracts the work items changed inside the scan window.
// Comments are fetched per item when the fetch_work_items_comments flag of
// the query is set.
type WorkItems struct {
	base
	client WorkItemsClient
}

func NewWorkItems(client WorkItemsClient, projects *provider.Provider, opts Options) *WorkItems {
	return &WorkItems{base: newBase(domain.StageWorkItems, 100, projects, opts), client: client}
}

func (e *WorkItems) Extract(ctx context.Context, query domain.ScanQuery, cp checkpoint.Checkpoint) iter.Seq2[domain.EnrichedRecord, error] {
	pairs := projectPairs(e.base, ctx, query, cp, nil, "work items",
		func(project domain.Project) iter.Seq2[domain.WorkItem, error] {
			return e.workItems(ctx, project, query)
		})
	return group(e.base, pairs, func(project domain.Project, items []domain.WorkItem) domain.EnrichedRecord {
		return domain.EnrichedRecord{Project: project, WorkItems: items}
	})
}

func (e *WorkItems) workItems(ctx context.Context, project domain.Project, query domain.ScanQuery) iter.Seq2[domain.WorkItem, error] {
	comments := query.IngestionFlags[domain.FlagWorkItemComments]
	return func(yield func(domain.WorkItem, error) bool) {
		ids, err := changedWorkItems(ctx, e.client, project, query.From, query.To)
		if err != nil {
			yield(domain.WorkItem{}, err)
			return
		}
		for _, batch := range chunk(ids, workItemBatchSize) {
			items, err := e.client.WorkItems(ctx, project.Organization, project.Name, batch)
			if err != nil {
				yield(domain.WorkItem{}, err)
				return
			}
			for _, item := range items {
				if comments {
					if item.Comments, err = e.client.WorkItemComments(ctx, project.Organization, project.Name, item.ID); err != nil {
						yield(domain.WorkItem{}, err)
						return
					}
				}
				if !yield(item, nil) {
					return
				}
			}
		}
	}
}

type WorkItemHistoriesClient interface {
	WorkItemQuerier
	WorkItemUpdates(ctx context.Context, org, project string, id int) ([]domain.WorkItemHistory, error)
}

// WorkItemHistories extracts the full update history of every work item
// changed inside the scan window. Updates themselves are not filtered by date.
type WorkItemHistories struct {
	base
	client WorkItemHistoriesClient
}

func NewWorkItemHistories(client WorkItemHistoriesClient, projects *provider.Provider, opts Options) *WorkItemHistories {
	return &WorkItemHistories{base: newBase(domain.StageWorkItemHistories, 200, projects, opts), client: client}
}

func (e *WorkItemHistories) Extract(ctx context.Context, query domain.ScanQuery, cp checkpoint.Checkpoint) iter.Seq2[domain.EnrichedRecord, error] {
	pairs := projectPairs(e.base, ctx, query, cp, nil, "work item histories",
		func(project domain.Project) iter.Seq2[domain.WorkItemHistory, error] {
			return e.histories(ctx, project, query)
		})
	return group(e.base, pairs, func(project domain.Project, histories []domain.WorkItemHistory) domain.EnrichedRecord {
		return domain.EnrichedRecord{Project: project, WorkItemHistories: histories}
	})
}

func (e *WorkItemHistories) histories(ctx context.Context, project domain.Project, query domain.ScanQuery) iter.Seq2[domain.WorkItemHistory, error] {
	return func(yield func(domain.WorkItemHistory, error) bool) {
		ids, err := changedWorkItems(ctx, e.client, project, query.From, query.To)
		if err != nil {
			yield(domain.WorkItemHistory{}, err)
			return
		}
		for _, id := range ids {
			updates, err := e.client.WorkItemUpdates(ctx, project.Organization, project.Name, id)
			if err != nil {
				yield(domain.WorkItemHistory{}, err)
				return
			}
			for _, u := range updates {
				if u.WorkItemID == 0 {
					u.WorkItemID = id
				}
				if !yield(u, nil) {
					return
				}
			}
		}
	}
}

type WorkItemFieldsClient interface {
	Fields(ctx context.Context, org, project string) ([]domain.WorkItemField, error)
}

// WorkItemFields extracts the work item field definitions of every project.
type WorkItemFields struct {
	base
	client WorkItemFieldsClient
}

func NewWorkItemFields(client WorkItemFieldsClient, projects *provider.Provider, opts Options) *WorkItemFields {
	return &WorkItemFields{base: newBase(domain.StageWorkItemFields, 600, projects, opts), client: client}
}

func (e *WorkItemFields) Extract(ctx context.Context, query domain.ScanQuery, cp checkpoint.Checkpoint) iter.Seq2[domain.EnrichedRecord, error] {
	pairs := projectPairs(e.base, ctx, query, cp, nil, "work item fields",
		func(project domain.Project) iter.Seq2[domain.WorkItemField, error] {
			fields, err := e.client.Fields(ctx, project.Organization, project.Name)
			if err != nil {
				return failed[domain.WorkItemField](err)
			}
			return each(fields)
		})
	return group(e.base, pairs, func(project domain.Project, fields []domain.WorkItemField) domain.EnrichedRecord {
		return domain.EnrichedRecord{Project: project, WorkItemFields: fields}
	})
}

type TeamsClient interface {
	PageSize() int
	Teams(ctx context.Context, org, project string, skip int) ([]domain.Team, error)
}

// Teams extracts the teams of every project.
type Teams struct {
	base
	client TeamsClient
}

func NewTeams(client TeamsClient, projects *provider.Provider, opts Options) *Teams {
	return &Teams{base: newBase(domain.StageTeams, 100, projects, opts), client: client}
}

func (e *Teams) Extract(ctx context.Context, query domain.ScanQuery, cp checkpoint.Checkpoint) iter.Seq2[domain.EnrichedRecord, error] {
	pairs := projectPairs(e.base, ctx, query, cp, nil, "teams",
		func(project domain.Project) iter.Seq2[domain.Team, error] {
			return projectTeams(ctx, e.client, project)
		})
	return group(e.base, pairs, func(project domain.Project, teams []domain.Team) domain.EnrichedRecord {
		return domain.EnrichedRecord{Project: project, Teams: teams}
	})
}

func projectTeams(ctx context.Context, c TeamsClient, project domain.Project) iter.Seq2[domain.Team, error] {
	return pagination.Offset(c.PageSize(), func(skip int) ([]domain.Team, error) {
		return c.Teams(ctx, project.Organization, project.Name, skip)
	})
}

type IterationsClient interface {
	TeamsClient
	Iterations(ctx context.Context, org, project, team string, all bool) ([]domain.Iteration, error)
}

// Iterations extracts the iterations of every team. Only the current
// iteration is fetched unless the scan asks for all of them.
type Iterations struct {
	base
	client IterationsClient
}

func NewIterations(client IterationsClient, projects *provider.Provider, opts Options) *Iterations {
	return &Iterations{base: newBase(domain.StageIterations, 100, projects, opts), client: client}
}

func (e *Iterations) Extract(ctx context.Context, query domain.ScanQuery, cp checkpoint.Checkpoint) iter.Seq2[domain.EnrichedRecord, error] {
	pairs := projectPairs(e.base, ctx, query, cp, nil, "iterations",
		func(project domain.Project) iter.Seq2[domain.Iteration, error] {
			return e.iterations(ctx, project, query.FetchAllIterations)
		})
	return group(e.base, pairs, func(project domain.Project, iterations []domain.Iteration) domain.EnrichedRecord {
		return domain.EnrichedRecord{Project: project, Iterations: iterations}
	})
}

func (e *Iterations) iterations(ctx context.Context, project domain.Project, all bool) iter.Seq2[domain.Iteration, error] {
	return func(yield func(domain.Iteration, error) bool) {
		for team, err := range projectTeams(ctx, e.client, project) {
			if err != nil {
				yield(domain.Iteration{}, err)
				return
			}
			iterations, err := e.client.Iterations(ctx, project.Organization, project.Name, team.ID, all)
			if err != nil {
				yield(domain.Iteration{}, err)
				return
			}
			for _, it := range iterations {
				it.TeamID, it.TeamName = team.ID, team.Name
				if !yield(it, nil) {
					return
				}
			}
		}
	}
}
