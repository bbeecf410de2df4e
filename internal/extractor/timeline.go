package extractor

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/kurihiro0119/devops-ingest/internal/domain"
)

// MaxLogSize caps the step log text kept per timeline record or release task.
const MaxLogSize = 102400

// StepLogFetcher fetches the log lines behind a timeline log URL.
type StepLogFetcher func(ctx context.Context, logURL string) ([]string, error)

// BuildStages rebuilds the stage tree of a flat build timeline. Every Stage
// record receives, for each of its Phase children and each Job child of those
// phases, the job's children followed by the job itself. Records with a log URL
// get their step logs when fetch is set; a failed fetch leaves them empty.
func BuildStages(ctx context.Context, records []domain.TimelineRecord, fetch StepLogFetcher, onErr func(domain.TimelineRecord, error)) []domain.TimelineRecord {
	children := make(map[string][]domain.TimelineRecord, len(records))
	for _, r := range records {
		if r.ParentID != "" {
			children[r.ParentID] = append(children[r.ParentID], r)
		}
	}

	var stages []domain.TimelineRecord
	for _, stage := range records {
		if stage.Type != domain.RecordTypeStage {
			continue
		}
		var steps []domain.TimelineRecord
		for _, phase := range ofType(children[stage.ID], domain.RecordTypePhase) {
			for _, job := range ofType(children[phase.ID], domain.RecordTypeJob) {
				for _, step := range children[job.ID] {
					steps = append(steps, withStepLogs(ctx, step, fetch, onErr))
				}
				steps = append(steps, withStepLogs(ctx, job, fetch, onErr))
			}
		}
		stage.Steps = steps
		stages = append(stages, stage)
	}
	return stages
}

func ofType(records []domain.TimelineRecord, recordType string) []domain.TimelineRecord {
	var out []domain.TimelineRecord
	for _, r := range records {
		if r.Type == recordType {
			out = append(out, r)
		}
	}
	return out
}

func withStepLogs(ctx context.Context, r domain.TimelineRecord, fetch StepLogFetcher, onErr func(domain.TimelineRecord, error)) domain.TimelineRecord {
	if fetch == nil || r.Log == nil || r.Log.URL == "" {
		return r
	}
	lines, err := fetch(ctx, r.Log.URL)
	if err != nil {
		if onErr != nil {
			onErr(r, err)
		}
		return r
	}
	r.StepLogs = truncateLog(strings.Join(lines, "\n"))
	return r
}

// truncateLog cuts s to at most MaxLogSize bytes without splitting a rune.
func truncateLog(s string) string {
	if len(s) <= MaxLogSize {
		return s
	}
	cut := MaxLogSize
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
