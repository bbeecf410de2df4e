package domain

// Pipeline is a YAML or classic pipeline definition.
type Pipeline struct {
	ID            int                    `json:"id"`
	Name          string                 `json:"name"`
	Folder        string                 `json:"folder,omitempty"`
	Revision      int                    `json:"revision,omitempty"`
	URL           string                 `json:"url,omitempty"`
	Configuration *PipelineConfiguration `json:"configuration,omitempty"`
	Runs          []Run                  `json:"runs,omitempty"`
}

type PipelineConfiguration struct {
	Type       string         `json:"type,omitempty"`
	Path       string         `json:"path,omitempty"`
	Repository map[string]any `json:"repository,omitempty"`
}

// Run is one execution of a pipeline.
type Run struct {
	ID           int              `json:"id"`
	Name         string           `json:"name,omitempty"`
	State        string           `json:"state,omitempty"`
	Result       string           `json:"result,omitempty"`
	CreatedDate  string           `json:"createdDate,omitempty"`
	FinishedDate string           `json:"finishedDate,omitempty"`
	URL          string           `json:"url,omitempty"`
	Variables    map[string]any   `json:"variables,omitempty"`
	Resources    map[string]any   `json:"resources,omitempty"`
	CommitIDs    []string         `json:"commitIds,omitempty"`
	Stages       []TimelineRecord `json:"stages,omitempty"`
}

// BuildChange is a commit associated with a range of builds.
type BuildChange struct {
	ID        string      `json:"id"`
	Message   string      `json:"message,omitempty"`
	Type      string      `json:"type,omitempty"`
	Timestamp string      `json:"timestamp,omitempty"`
	Author    IdentityRef `json:"author"`
}

// Timeline record types.
const (
	RecordTypeStage = "Stage"
	RecordTypePhase = "Phase"
	RecordTypeJob   = "Job"
	RecordTypeTask  = "Task"
)

// TimelineRecord is a node of a build timeline. Only Stage records carry Steps
// once the timeline has been rebuilt.
type TimelineRecord struct {
	ID         string           `json:"id"`
	ParentID   string           `json:"parentId,omitempty"`
	Type       string           `json:"type"`
	Name       string           `json:"name,omitempty"`
	StartTime  string           `json:"startTime,omitempty"`
	FinishTime string           `json:"finishTime,omitempty"`
	State      string           `json:"state,omitempty"`
	Result     string           `json:"result,omitempty"`
	Order      int              `json:"order,omitempty"`
	Attempt    int              `json:"attempt,omitempty"`
	Log        *TimelineLog     `json:"log,omitempty"`
	StepLogs   string           `json:"stepLogs,omitempty"`
	Steps      []TimelineRecord `json:"steps,omitempty"`
}

type TimelineLog struct {
	ID   int    `json:"id"`
	Type string `json:"type,omitempty"`
	URL  string `json:"url"`
}

// Build is a classic build record.
type Build struct {
	ID            int             `json:"id"`
	BuildNumber   string          `json:"buildNumber,omitempty"`
	Status        string          `json:"status,omitempty"`
	Result        string          `json:"result,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	QueueTime     string          `json:"queueTime,omitempty"`
	StartTime     string          `json:"startTime,omitempty"`
	FinishTime    string          `json:"finishTime,omitempty"`
	URL           string          `json:"url,omitempty"`
	SourceBranch  string          `json:"sourceBranch,omitempty"`
	SourceVersion string          `json:"sourceVersion,omitempty"`
	Definition    BuildDefinition `json:"definition"`
	RequestedFor  IdentityRef     `json:"requestedFor"`
	Repository    BuildRepository `json:"repository"`
}

type BuildDefinition struct {
	ID   int    `json:"id"`
	Name string `json:"name,omitempty"`
	Path string `json:"path,omitempty"`
}

type BuildRepository struct {
	ID   string `json:"id,omitempty"`
	Type string `json:"type,omitempty"`
	Name string `json:"name,omitempty"`
}

// ReleaseDefinition is the parent of releases.
type ReleaseDefinition struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Path       string `json:"path,omitempty"`
	URL        string `json:"url,omitempty"`
	CreatedOn  string `json:"createdOn,omitempty"`
	ModifiedOn string `json:"modifiedOn,omitempty"`
}

// Release is a classic release with its environment and step tree.
type Release struct {
	ID           int                  `json:"id"`
	Name         string               `json:"name"`
	Status       string               `json:"status,omitempty"`
	Reason       string               `json:"reason,omitempty"`
	CreatedOn    string               `json:"createdOn,omitempty"`
	ModifiedOn   string               `json:"modifiedOn,omitempty"`
	CreatedBy    IdentityRef          `json:"createdBy"`
	Definition   ReleaseDefinition    `json:"releaseDefinition"`
	Environments []ReleaseEnvironment `json:"environments,omitempty"`
	Artifacts    []map[string]any     `json:"artifacts,omitempty"`
}

type ReleaseEnvironment struct {
	ID          int          `json:"id"`
	Name        string       `json:"name"`
	Status      string       `json:"status,omitempty"`
	DeploySteps []DeployStep `json:"deploySteps,omitempty"`
}

type DeployStep struct {
	ID             int           `json:"id"`
	Attempt        int           `json:"attempt"`
	Status         string        `json:"status,omitempty"`
	QueuedOn       string        `json:"queuedOn,omitempty"`
	LastModifiedOn string        `json:"lastModifiedOn,omitempty"`
	Phases         []DeployPhase `json:"releaseDeployPhases,omitempty"`
}

type DeployPhase struct {
	ID             int             `json:"id"`
	Name           string          `json:"name,omitempty"`
	Status         string          `json:"status,omitempty"`
	Rank           int             `json:"rank,omitempty"`
	DeploymentJobs []DeploymentJob `json:"deploymentJobs,omitempty"`
}

type DeploymentJob struct {
	Job   ReleaseTask   `json:"job"`
	Tasks []ReleaseTask `json:"tasks,omitempty"`
}

// ReleaseTask is a leaf step of a release. StepLogs holds the fetched log text.
type ReleaseTask struct {
	ID         int    `json:"id"`
	Name       string `json:"name,omitempty"`
	Status     string `json:"status,omitempty"`
	StartTime  string `json:"startTime,omitempty"`
	FinishTime string `json:"finishTime,omitempty"`
	LogURL     string `json:"logUrl,omitempty"`
	StepLogs   string `json:"stepLogs,omitempty"`
}
