package domain

// GitUserDate is the author or committer of a commit.
type GitUserDate struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Date  string `json:"date,omitempty"`
}

// Commit is a git commit with its changed items.
type Commit struct {
	CommitID     string         `json:"commitId"`
	Author       GitUserDate    `json:"author"`
	Committer    GitUserDate    `json:"committer"`
	Comment      string         `json:"comment,omitempty"`
	ChangeCounts map[string]int `json:"changeCounts,omitempty"`
	URL          string         `json:"url,omitempty"`
	RemoteURL    string         `json:"remoteUrl,omitempty"`
	Changes      []Change       `json:"changes,omitempty"`
}

// Change is one file-level change of a commit.
type Change struct {
	ChangeType string     `json:"changeType"`
	Item       ChangeItem `json:"item"`
}

type ChangeItem struct {
	ObjectID         string `json:"objectId,omitempty"`
	OriginalObjectID string `json:"originalObjectId,omitempty"`
	GitObjectType    string `json:"gitObjectType,omitempty"`
	CommitID         string `json:"commitId,omitempty"`
	Path             string `json:"path,omitempty"`
	IsFolder         bool   `json:"isFolder,omitempty"`
	URL              string `json:"url,omitempty"`
}

// PullRequest is a git pull request with its enrichments.
type PullRequest struct {
	PullRequestID int                 `json:"pullRequestId"`
	CodeReviewID  int                 `json:"codeReviewId,omitempty"`
	Status        string              `json:"status"`
	CreatedBy     IdentityRef         `json:"createdBy"`
	CreationDate  string              `json:"creationDate,omitempty"`
	ClosedDate    string              `json:"closedDate,omitempty"`
	Title         string              `json:"title,omitempty"`
	Description   string              `json:"description,omitempty"`
	SourceRefName string              `json:"sourceRefName,omitempty"`
	TargetRefName string              `json:"targetRefName,omitempty"`
	MergeStatus   string              `json:"mergeStatus,omitempty"`
	IsDraft       bool                `json:"isDraft,omitempty"`
	MergeID       string              `json:"mergeId,omitempty"`
	URL           string              `json:"url,omitempty"`
	Reviewers     []Reviewer          `json:"reviewers,omitempty"`
	Commits       []Commit            `json:"commits,omitempty"`
	Labels        []PullRequestLabel  `json:"labels,omitempty"`
	Threads       []PullRequestThread `json:"threads,omitempty"`
}

type Reviewer struct {
	IdentityRef
	Vote       int  `json:"vote"`
	IsRequired bool `json:"isRequired,omitempty"`
}

// PullRequestLabel is a tag attached to a pull request.
type PullRequestLabel struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
	URL    string `json:"url,omitempty"`
}

// PullRequestThread is a comment thread, used as the pull request history.
type PullRequestThread struct {
	ID              int            `json:"id"`
	PublishedDate   string         `json:"publishedDate,omitempty"`
	LastUpdatedDate string         `json:"lastUpdatedDate,omitempty"`
	Status          string         `json:"status,omitempty"`
	IsDeleted       bool           `json:"isDeleted,omitempty"`
	Properties      map[string]any `json:"properties,omitempty"`
	Comments        []Comment      `json:"comments,omitempty"`
}

// Comment belongs to a pull request thread or a work item.
type Comment struct {
	ID              int         `json:"id"`
	Author          IdentityRef `json:"author"`
	Content         string      `json:"content,omitempty"`
	Text            string      `json:"text,omitempty"`
	CommentType     string      `json:"commentType,omitempty"`
	PublishedDate   string      `json:"publishedDate,omitempty"`
	CreatedDate     string      `json:"createdDate,omitempty"`
	LastUpdatedDate string      `json:"lastUpdatedDate,omitempty"`
}

// Tag is a git tag ref, with the annotation when the tag is annotated.
type Tag struct {
	Name           string         `json:"name"`
	ObjectID       string         `json:"objectId"`
	PeeledObjectID string         `json:"peeledObjectId,omitempty"`
	Creator        IdentityRef    `json:"creator"`
	URL            string         `json:"url,omitempty"`
	Annotation     *TagAnnotation `json:"annotation,omitempty"`
}

// TagAnnotation is the body of an annotated tag.
type TagAnnotation struct {
	Name         string       `json:"name"`
	ObjectID     string       `json:"objectId"`
	Message      string       `json:"message,omitempty"`
	TaggedBy     *GitUserDate `json:"taggedBy,omitempty"`
	TaggedObject struct {
		ObjectID   string `json:"objectId"`
		ObjectType string `json:"objectType"`
	} `json:"taggedObject"`
}
