package preflight

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurihiro0119/devops-ingest/internal/collector"
)

var _ Client = (*collector.Client)(nil)

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func values(items ...map[string]any) map[string]any {
	return map[string]any{"count": len(items), "value": items}
}

// azureServer answers every check of the project "Web" of "contoso". Paths in
// denied get a 403, and teams reports no team when noTeam is set.
func azureServer(t *testing.T, denied map[string]bool, noTeam bool, top *[]string) *collector.Client {
	t.Helper()
	routes := map[string]any{
		"/contoso/_apis/projects":                            values(map[string]any{"id": "p1", "name": "Web"}),
		"/contoso/_apis/projects/p1/properties":              values(map[string]any{"name": "System.SourceControlGitEnabled", "value": "True"}),
		"/contoso/_apis/projects/Web/teams":                  values(map[string]any{"id": "t1", "name": "Core"}),
		"/contoso/Web/_apis/pipelines":                       values(map[string]any{"id": 4, "name": "ci"}),
		"/contoso/Web/_apis/build/builds":                    values(map[string]any{"id": 9}),
		"/contoso/Web/_apis/git/repositories":                values(map[string]any{"id": "r1", "name": "web"}),
		"/contoso/Web/_apis/wit/wiql":                        map[string]any{"workItems": []map[string]any{{"id": 12}}},
		"/contoso/Web/t1/_apis/work/teamsettings/iterations": values(map[string]any{"id": "i1", "name": "Sprint 1"}),
		"/contoso/Web/_apis/tfvc/changesets":                 values(),
		"/contoso/Web/_apis/tfvc/labels":                     values(map[string]any{"id": 2, "name": "v1"}),
		"/contoso/Web/_apis/tfvc/branches":                   values(map[string]any{"path": "$/Web/main"}),
	}
	if noTeam {
		routes["/contoso/_apis/projects/Web/teams"] = values()
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if top != nil && r.URL.Query().Has("$top") && r.URL.Path != "/contoso/Web/_apis/wit/wiql" {
			*top = append(*top, r.URL.Query().Get("$top"))
		}
		if denied[r.URL.Path] {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		body, ok := routes[r.URL.Path]
		if !ok {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, body)
	}))
	t.Cleanup(srv.Close)

	return collector.New(collector.Options{
		BaseURL:       srv.URL,
		Token:         "secret",
		PageSize:      PageSize,
		Organizations: []string{"contoso"},
		HTTPClient:    srv.Client(),
	})
}

func byResource(results []Result) map[string]Result {
	m := make(map[string]Result, len(results))
	for _, r := range results {
		m[r.Resource] = r
	}
	return m
}

func TestCheckReportsDeniedResource(t *testing.T) {
	var top []string
	client := azureServer(t, map[string]bool{"/contoso/Web/_apis/build/builds": true}, false, &top)
	checker := New(client, nil)
	checker.now = func() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) }

	results := checker.Check(context.Background())
	require.Len(t, results, 11)
	assert.False(t, Passed(results))

	got := byResource(results)
	builds := got[ResourceBuilds]
	assert.False(t, builds.Success)
	assert.Equal(t, "contoso", builds.Organization)
	assert.Equal(t, "Web", builds.Project)
	assert.Contains(t, builds.Detail, "403")

	for _, resource := range []string{
		ResourceProjects, ResourceProjectProperties, ResourceTeams, ResourcePipelines,
		ResourceRepositories, ResourceWorkItemQuery, ResourceIterations,
		ResourceChangeSets, ResourceLabels, ResourceBranches,
	} {
		assert.True(t, got[resource].Success, resource)
	}
	assert.Equal(t, "empty", got[ResourceChangeSets].Detail)

	require.NotEmpty(t, top)
	for _, v := range top {
		assert.Equal(t, "1", v)
	}
}

func TestCheckAllPass(t *testing.T) {
	results := New(azureServer(t, nil, false, nil), nil).Check(context.Background())
	require.Len(t, results, 11)
	assert.True(t, Passed(results))
}

func TestCheckWithoutTeamSkipsBoards(t *testing.T) {
	results := New(azureServer(t, nil, true, nil), nil).Check(context.Background())
	got := byResource(results)
	require.Len(t, results, 9)
	assert.NotContains(t, got, ResourceWorkItemQuery)
	assert.NotContains(t, got, ResourceIterations)
	assert.Equal(t, "empty", got[ResourceTeams].Detail)
	assert.True(t, Passed(results))
}

func TestCheckProjectsDenied(t *testing.T) {
	results := New(azureServer(t, map[string]bool{"/contoso/_apis/projects": true}, false, nil), nil).
		Check(context.Background())
	require.Len(t, results, 1)
	assert.Equal(t, ResourceProjects, results[0].Resource)
	assert.False(t, Passed(results))
}
