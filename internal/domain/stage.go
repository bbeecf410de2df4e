package domain

import (
	"fmt"
	"time"
)

// Stage identifies one resource family of a scan. Stage names are persisted in
// checkpoints, so they must never be renamed.
type Stage string

const (
	StageCommits           Stage = "commits"
	StagePullRequests      Stage = "prs"
	StageTags              Stage = "tags"
	StageBranches          Stage = "branches"
	StageChangeSets        Stage = "changesets"
	StageLabels            Stage = "labels"
	StagePipelines         Stage = "pipelines"
	StageReleases          Stage = "releases"
	StageBuilds            Stage = "builds"
	StageWorkItemFields    Stage = "workitem_fields"
	StageWorkItems         Stage = "workitems"
	StageTeams             Stage = "teams"
	StageIterations        Stage = "iterations"
	StageWorkItemHistories Stage = "workitem_histories"
)

// Ingestion flags. A stage runs unless its flag is set to false.
const (
	FlagCommits           = "fetch_commits"
	FlagPullRequests      = "fetch_prs"
	FlagTags              = "fetch_tags"
	FlagBranches          = "fetch_branches"
	FlagChangeSets        = "fetch_change_sets"
	FlagLabels            = "fetch_labels"
	FlagPipelines         = "fetch_pipelines"
	FlagReleases          = "fetch_releases"
	FlagBuilds            = "fetch_builds"
	FlagWorkItemFields    = "fetch_workitem_fields"
	FlagWorkItems         = "fetch_work_items"
	FlagWorkItemComments  = "fetch_work_items_comments"
	FlagTeams             = "fetch_teams"
	FlagIterations        = "fetch_iterations"
	FlagWorkItemHistories = "fetch_workitem_histories"
)

var stageFlags = map[Stage]string{
	StageCommits:           FlagCommits,
	StagePullRequests:      FlagPullRequests,
	StageTags:              FlagTags,
	StageBranches:          FlagBranches,
	StageChangeSets:        FlagChangeSets,
	StageLabels:            FlagLabels,
	StagePipelines:         FlagPipelines,
	StageReleases:          FlagReleases,
	StageBuilds:            FlagBuilds,
	StageWorkItemFields:    FlagWorkItemFields,
	StageWorkItems:         FlagWorkItems,
	StageTeams:             FlagTeams,
	StageIterations:        FlagIterations,
	StageWorkItemHistories: FlagWorkItemHistories,
}

// Flag returns the ingestion flag that toggles the stage.
func (s Stage) Flag() string {
	return stageFlags[s]
}

// JobCategory restricts a scan to a subset of stages.
type JobCategory string

const (
	JobCategoryAll     JobCategory = ""
	JobCategorySCMGit  JobCategory = "SCM_GIT"
	JobCategoryTFVC    JobCategory = "SCM_TFVC"
	JobCategoryCICD    JobCategory = "CICD"
	JobCategoryBoards1 JobCategory = "BOARDS_1"
	JobCategoryBoards2 JobCategory = "BOARDS_2"
)

// StageOrder lists every stage in execution order, grouped by category.
var StageOrder = []Stage{
	StageCommits, StagePullRequests, StageTags,
	StageBranches, StageChangeSets, StageLabels,
	StagePipelines, StageReleases, StageBuilds,
	StageWorkItemFields, StageWorkItems, StageTeams,
	StageIterations, StageWorkItemHistories,
}

// Category returns the job category the stage belongs to.
func (s Stage) Category() JobCategory {
	switch s {
	case StageCommits, StagePullRequests, StageTags:
		return JobCategorySCMGit
	case StageBranches, StageChangeSets, StageLabels:
		return JobCategoryTFVC
	case StagePipelines, StageReleases, StageBuilds:
		return JobCategoryCICD
	case StageWorkItemFields, StageWorkItems, StageTeams:
		return JobCategoryBoards1
	case StageIterations, StageWorkItemHistories:
		return JobCategoryBoards2
	}
	return JobCategoryAll
}

// Includes reports whether the category selects stage.
func (c JobCategory) Includes(stage Stage) bool {
	return c == JobCategoryAll || stage.Category() == c
}

// ParseStage validates a stage name.
func ParseStage(s string) (Stage, error) {
	stage := Stage(s)
	if _, ok := stageFlags[stage]; !ok {
		return "", fmt.Errorf("unknown stage %q", s)
	}
	return stage, nil
}

// ParseJobCategory validates a category name. The empty string selects every stage.
func ParseJobCategory(s string) (JobCategory, error) {
	switch c := JobCategory(s); c {
	case JobCategoryAll, JobCategorySCMGit, JobCategoryTFVC, JobCategoryCICD, JobCategoryBoards1, JobCategoryBoards2:
		return c, nil
	}
	return "", fmt.Errorf("unknown job category %q", s)
}

// IntegrationKey scopes checkpoints, cache entries and stored records.
type IntegrationKey struct {
	TenantID      string `json:"tenant_id"`
	IntegrationID string `json:"integration_id"`
}

func (k IntegrationKey) String() string {
	return k.TenantID + "/" + k.IntegrationID
}

// ScanQuery describes one scan invocation. It is passed by value.
type ScanQuery struct {
	IntegrationKey     IntegrationKey
	From               time.Time
	To                 time.Time
	FetchOnce          bool
	FetchAllIterations bool
	JobCategory        JobCategory
	// IngestionFlags holds per-scan fetch_* overrides. A flag set to false
	// disables the matching stage.
	IngestionFlags map[string]bool
}

// Onboarding reports whether the scan has no lower bound, or is a one-shot scan.
func (q ScanQuery) Onboarding() bool {
	return q.From.IsZero() || q.FetchOnce
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseTime parses a timestamp as returned by the remote API. Zone-less values
// are read as UTC.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
