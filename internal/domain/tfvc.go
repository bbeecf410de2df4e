package domain

// ChangeSet is a TFVC check-in.
type ChangeSet struct {
	ChangesetID int                 `json:"changesetId"`
	Author      IdentityRef         `json:"author"`
	CheckedInBy IdentityRef         `json:"checkedInBy"`
	CreatedDate string              `json:"createdDate,omitempty"`
	Comment     string              `json:"comment,omitempty"`
	URL         string              `json:"url,omitempty"`
	Changes     []ChangeSetChange   `json:"changes,omitempty"`
	WorkItems   []ChangeSetWorkItem `json:"workItems,omitempty"`
}

type ChangeSetChange struct {
	ChangeType string `json:"changeType"`
	Item       struct {
		Version int    `json:"version,omitempty"`
		Path    string `json:"path,omitempty"`
		URL     string `json:"url,omitempty"`
	} `json:"item"`
}

type ChangeSetWorkItem struct {
	ID           int    `json:"id"`
	Title        string `json:"title,omitempty"`
	WorkItemType string `json:"workItemType,omitempty"`
	State        string `json:"state,omitempty"`
	AssignedTo   string `json:"assignedTo,omitempty"`
	WebURL       string `json:"webUrl,omitempty"`
}

// Branch is a TFVC branch. Children are returned when requested.
type Branch struct {
	Path        string      `json:"path"`
	Description string      `json:"description,omitempty"`
	CreatedDate string      `json:"createdDate,omitempty"`
	Owner       IdentityRef `json:"owner"`
	URL         string      `json:"url,omitempty"`
	IsDeleted   bool        `json:"isDeleted,omitempty"`
	Children    []Branch    `json:"children,omitempty"`
}

// TfvcLabel is a TFVC label.
type TfvcLabel struct {
	ID           int         `json:"id"`
	Name         string      `json:"name"`
	Description  string      `json:"description,omitempty"`
	LabelScope   string      `json:"labelScope,omitempty"`
	ModifiedDate string      `json:"modifiedDate,omitempty"`
	Owner        IdentityRef `json:"owner"`
	URL          string      `json:"url,omitempty"`
}
