// Package checkpoint holds the resumable position of a scan.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/kurihiro0119/devops-ingest/internal/domain"
)

// Checkpoint records which stages are done and where the in-progress stage
// should pick up again. The zero value starts from the first organization.
//
// Checkpoints are values: every method returns a new Checkpoint and never
// shares the CompletedStages backing array with its receiver.
type Checkpoint struct {
	CompletedStages        []domain.Stage `json:"completed_stages,omitempty"`
	ResumeFromOrganization string         `json:"resume_from_organization,omitempty"`
	ResumeFromProject      string         `json:"resume_from_project,omitempty"`
}

// ResumeAt returns a copy positioned at the given organization and project.
func (c Checkpoint) ResumeAt(org, project string) Checkpoint {
	return Checkpoint{
		CompletedStages:        slices.Clone(c.CompletedStages),
		ResumeFromOrganization: org,
		ResumeFromProject:      project,
	}
}

// MarkStageCompleted returns a copy with the stage appended to the completed
// list and the resume position cleared.
func (c Checkpoint) MarkStageCompleted(stage domain.Stage) Checkpoint {
	stages := slices.Clone(c.CompletedStages)
	if !slices.Contains(stages, stage) {
		stages = append(stages, stage)
	}
	return Checkpoint{CompletedStages: stages}
}

// IsCompleted reports whether the stage already finished in an earlier attempt.
func (c Checkpoint) IsCompleted(stage domain.Stage) bool {
	return slices.Contains(c.CompletedStages, stage)
}

// IsZero reports whether the checkpoint carries no progress.
func (c Checkpoint) IsZero() bool {
	return len(c.CompletedStages) == 0 && c.ResumeFromOrganization == "" && c.ResumeFromProject == ""
}

func (c Checkpoint) String() string {
	return fmt.Sprintf("completed=%v org=%q project=%q", c.CompletedStages, c.ResumeFromOrganization, c.ResumeFromProject)
}

// Encode serializes the checkpoint for persistence by the orchestrator.
func (c Checkpoint) Encode() ([]byte, error) {
	return json.Marshal(c)
}

// Decode parses a persisted checkpoint. Empty input yields the zero checkpoint.
func Decode(data []byte) (Checkpoint, error) {
	var c Checkpoint
	if len(data) == 0 {
		return c, nil
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return Checkpoint{}, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	return c, nil
}
