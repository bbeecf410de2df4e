package domain

import "strings"

const (
	propertyGitEnabled  = "System.SourceControlGitEnabled"
	propertyTfvcEnabled = "System.SourceControlTfvcEnabled"
)

// Project is a container inside an organization.
type Project struct {
	Organization   string            `json:"organization"`
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Description    string            `json:"description,omitempty"`
	URL            string            `json:"url,omitempty"`
	State          string            `json:"state,omitempty"`
	Revision       int64             `json:"revision,omitempty"`
	Visibility     string            `json:"visibility,omitempty"`
	LastUpdateTime string            `json:"lastUpdateTime,omitempty"`
	GitEnabled     bool              `json:"gitEnabled"`
	TfvcEnabled    bool              `json:"tfvcEnabled"`
	Properties     []ProjectProperty `json:"properties,omitempty"`
}

// ProjectProperty is a name/value pair attached to a project.
type ProjectProperty struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// QualifiedName returns the lowercase "org/project" form used by allowlists.
func (p Project) QualifiedName() string {
	return strings.ToLower(p.Organization + "/" + p.Name)
}

// ApplyProperties records the properties and derives the version control flags.
func (p *Project) ApplyProperties(props []ProjectProperty) {
	p.Properties = props
	p.GitEnabled = false
	p.TfvcEnabled = false
	for _, prop := range props {
		switch prop.Name {
		case propertyGitEnabled:
			p.GitEnabled = propertyTrue(prop.Value)
		case propertyTfvcEnabled:
			p.TfvcEnabled = propertyTrue(prop.Value)
		}
	}
}

func propertyTrue(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return strings.EqualFold(val, "true")
	}
	return false
}

// Repository is a git repository of a project.
type Repository struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	URL           string  `json:"url,omitempty"`
	DefaultBranch string  `json:"defaultBranch,omitempty"`
	Size          int64   `json:"size,omitempty"`
	IsDisabled    bool    `json:"isDisabled,omitempty"`
	RemoteURL     string  `json:"remoteUrl,omitempty"`
	Project       Project `json:"project"`
}

// IdentityRef is a user or group reference.
type IdentityRef struct {
	ID          string `json:"id,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	UniqueName  string `json:"uniqueName,omitempty"`
	URL         string `json:"url,omitempty"`
}

// Team is a project team.
type Team struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url,omitempty"`
	ProjectName string `json:"projectName,omitempty"`
	ProjectID   string `json:"projectId,omitempty"`
}

// Iteration is a sprint of a team.
type Iteration struct {
	ID         string              `json:"id"`
	Name       string              `json:"name"`
	Path       string              `json:"path,omitempty"`
	URL        string              `json:"url,omitempty"`
	Attributes IterationAttributes `json:"attributes"`
	TeamID     string              `json:"teamId,omitempty"`
	TeamName   string              `json:"teamName,omitempty"`
}

type IterationAttributes struct {
	StartDate  string `json:"startDate,omitempty"`
	FinishDate string `json:"finishDate,omitempty"`
	TimeFrame  string `json:"timeFrame,omitempty"`
}
