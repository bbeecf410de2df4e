package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/kurihiro0119/devops-ingest/internal/domain"
)

// ProjectCountKey and ProjectIndexKey name the entries holding the cached
// project list of one organization. The count is written last, so a reader
// that sees a count but misses an index is looking at a torn write.
func ProjectCountKey(org string) string {
	return org + "_project_count"
}

func ProjectIndexKey(org string, i int) string {
	return fmt.Sprintf("%s_project_nb_%d", org, i)
}

// ProjectList reads and writes per-organization project lists. Cache
// failures are logged and never returned: a failed read is a miss and a
// failed write is dropped.
type ProjectList struct {
	cache  IngestionCache
	logger *slog.Logger
}

func NewProjectList(c IngestionCache, logger *slog.Logger) *ProjectList {
	if c == nil {
		c = Disabled{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ProjectList{cache: c, logger: logger}
}

func (l *ProjectList) Enabled() bool {
	return l.cache.Enabled()
}

// Load returns the whole cached list or reports a miss. It never returns a
// partial list.
func (l *ProjectList) Load(ctx context.Context, key domain.IntegrationKey, org string) ([]domain.Project, bool) {
	if !l.cache.Enabled() {
		return nil, false
	}
	raw, ok, err := l.cache.Read(ctx, key, ProjectCountKey(org))
	if err != nil {
		l.logger.Warn("project cache read failed", "organization", org, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	count, err := strconv.Atoi(raw)
	if err != nil || count < 0 {
		l.logger.Warn("invalid cached project count", "organization", org, "value", raw)
		return nil, false
	}

	projects := make([]domain.Project, 0, count)
	for i := range count {
		raw, ok, err := l.cache.Read(ctx, key, ProjectIndexKey(org, i))
		if err != nil || !ok {
			l.logger.Warn("cached project list is incomplete, refetching",
				"organization", org, "index", i, "count", count, "error", err)
			return nil, false
		}
		var p domain.Project
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			l.logger.Warn("cached project is corrupted, refetching",
				"organization", org, "index", i, "error", err)
			return nil, false
		}
		projects = append(projects, p)
	}
	return projects, true
}

// Store writes one project at its index.
func (l *ProjectList) Store(ctx context.Context, key domain.IntegrationKey, org string, i int, p domain.Project) {
	if !l.cache.Enabled() {
		return
	}
	data, err := json.Marshal(p)
	if err != nil {
		l.logger.Warn("failed to encode project for cache", "organization", org, "project", p.Name, "error", err)
		return
	}
	if err := l.cache.Write(ctx, key, ProjectIndexKey(org, i), string(data)); err != nil {
		l.logger.Warn("project cache write failed", "organization", org, "index", i, "error", err)
	}
}

// Commit writes the count, making the stored list visible to Load.
func (l *ProjectList) Commit(ctx context.Context, key domain.IntegrationKey, org string, count int) {
	if !l.cache.Enabled() {
		return
	}
	if err := l.cache.Write(ctx, key, ProjectCountKey(org), strconv.Itoa(count)); err != nil {
		l.logger.Warn("project cache write failed", "organization", org, "error", err)
	}
}
