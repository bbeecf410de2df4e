package domain

import "time"

// EnrichedRecord is the unit of output of a scan: one parent (a project,
// repository, pipeline, release definition or team) with the children that
// were grouped under it inside one batching window. A parent whose children
// span several windows produces several records; consumers merge them.
type EnrichedRecord struct {
	Resource   Stage              `json:"resource"`
	Project    Project            `json:"project"`
	Repository *Repository        `json:"repository,omitempty"`
	Pipeline   *Pipeline          `json:"pipeline,omitempty"`
	Definition *ReleaseDefinition `json:"definition,omitempty"`

	Commits           []Commit          `json:"commits,omitempty"`
	PullRequests      []PullRequest     `json:"pullRequests,omitempty"`
	Tags              []Tag             `json:"tags,omitempty"`
	Branches          []Branch          `json:"branches,omitempty"`
	ChangeSets        []ChangeSet       `json:"changeSets,omitempty"`
	Labels            []TfvcLabel       `json:"labels,omitempty"`
	Runs              []Run             `json:"runs,omitempty"`
	Builds            []Build           `json:"builds,omitempty"`
	Releases          []Release         `json:"releases,omitempty"`
	WorkItemFields    []WorkItemField   `json:"workItemFields,omitempty"`
	WorkItems         []WorkItem        `json:"workItems,omitempty"`
	WorkItemHistories []WorkItemHistory `json:"workItemHistories,omitempty"`
	Teams             []Team            `json:"teams,omitempty"`
	Iterations        []Iteration       `json:"iterations,omitempty"`
}

// Size returns the number of children carried by the record.
func (r EnrichedRecord) Size() int {
	return len(r.Commits) + len(r.PullRequests) + len(r.Tags) + len(r.Branches) +
		len(r.ChangeSets) + len(r.Labels) + len(r.Runs) + len(r.Builds) +
		len(r.Releases) + len(r.WorkItemFields) + len(r.WorkItems) +
		len(r.WorkItemHistories) + len(r.Teams) + len(r.Iterations)
}

// StoredRecord is an EnrichedRecord as persisted by storage.
type StoredRecord struct {
	ID             string         `json:"id"`
	IntegrationKey IntegrationKey `json:"integration_key"`
	Resource       Stage          `json:"resource"`
	Organization   string         `json:"organization"`
	Project        string         `json:"project"`
	Items          int            `json:"items"`
	Record         EnrichedRecord `json:"record"`
	CreatedAt      time.Time      `json:"created_at"`
}
