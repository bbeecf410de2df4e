package domain

import "time"

// ScanRun status values.
const (
	ScanStatusInProgress = "in_progress"
	ScanStatusCompleted  = "completed"
	ScanStatusResumable  = "resumable"
	ScanStatusFailed     = "failed"
)

// ScanRun tracks one orchestrated scan across its attempts.
type ScanRun struct {
	ID             string         `json:"id"`
	IntegrationKey IntegrationKey `json:"integration_key"`
	Status         string         `json:"status"`
	From           time.Time      `json:"from"`
	To             time.Time      `json:"to"`
	Attempts       int            `json:"attempts"`
	Records        int            `json:"records"`
	Message        string         `json:"message,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// ResourceCount is the number of stored records and items for one resource
// of one project.
type ResourceCount struct {
	Resource     Stage  `json:"resource"`
	Organization string `json:"organization"`
	Project      string `json:"project"`
	Records      int    `json:"records"`
	Items        int    `json:"items"`
}

// IntegrationSummary is the aggregated view of everything ingested for one
// integration.
type IntegrationSummary struct {
	IntegrationKey  IntegrationKey   `json:"integration_key"`
	TotalRecords    int              `json:"total_records"`
	TotalItems      int              `json:"total_items"`
	ByResource      map[Stage]int    `json:"by_resource"`
	Projects        []ProjectSummary `json:"projects"`
	LastScan        *ScanRun         `json:"last_scan,omitempty"`
	PendingResume   bool             `json:"pending_resume"`
	CompletedStages []Stage          `json:"completed_stages,omitempty"`
}

// ProjectSummary lists item counts per resource for one project.
type ProjectSummary struct {
	Organization string        `json:"organization"`
	Project      string        `json:"project"`
	Items        map[Stage]int `json:"items"`
	TotalItems   int           `json:"total_items"`
}
