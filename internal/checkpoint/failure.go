package checkpoint

import (
	"errors"
	"fmt"

	"github.com/kurihiro0119/devops-ingest/internal/domain"
)

// ResumableFailure is the terminal error of an interrupted extraction. It
// carries the checkpoint to resume from and whatever output was already
// produced but not yet handed to the consumer.
type ResumableFailure struct {
	Stage      domain.Stage
	Partial    []domain.EnrichedRecord
	Checkpoint Checkpoint
	Message    string
	Cause      error
}

func (f *ResumableFailure) Error() string {
	if f.Cause != nil {
		return fmt.Sprintf("%s: %v", f.Message, f.Cause)
	}
	return f.Message
}

func (f *ResumableFailure) Unwrap() error {
	return f.Cause
}

// Fail builds a ResumableFailure positioned at the organization and project
// that were being processed when cause occurred.
func Fail(prev Checkpoint, stage domain.Stage, what, org, project string, cause error) *ResumableFailure {
	return &ResumableFailure{
		Stage:      stage,
		Checkpoint: prev.ResumeAt(org, project),
		Message: fmt.Sprintf("failed to ingest %s for project %s of organization %s with completed stages %v",
			what, project, org, prev.CompletedStages),
		Cause: cause,
	}
}

// AsResumable extracts a ResumableFailure from an error chain.
func AsResumable(err error) (*ResumableFailure, bool) {
	var f *ResumableFailure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}
