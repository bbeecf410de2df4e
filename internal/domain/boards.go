package domain

// WorkItem is a board item with all of its fields.
type WorkItem struct {
	ID       int            `json:"id"`
	Rev      int            `json:"rev,omitempty"`
	URL      string         `json:"url,omitempty"`
	Fields   map[string]any `json:"fields,omitempty"`
	Comments []Comment      `json:"comments,omitempty"`
}

// WorkItemHistory is one revision of a work item.
type WorkItemHistory struct {
	ID          int                    `json:"id"`
	WorkItemID  int                    `json:"workItemId"`
	Rev         int                    `json:"rev,omitempty"`
	RevisedBy   IdentityRef            `json:"revisedBy"`
	RevisedDate string                 `json:"revisedDate,omitempty"`
	Fields      map[string]FieldChange `json:"fields,omitempty"`
}

type FieldChange struct {
	OldValue any `json:"oldValue,omitempty"`
	NewValue any `json:"newValue,omitempty"`
}

// WorkItemField describes one work item field of a project.
type WorkItemField struct {
	Name          string `json:"name"`
	ReferenceName string `json:"referenceName"`
	Type          string `json:"type,omitempty"`
	Usage         string `json:"usage,omitempty"`
	ReadOnly      bool   `json:"readOnly,omitempty"`
	Description   string `json:"description,omitempty"`
}
