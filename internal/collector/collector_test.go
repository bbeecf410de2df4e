package collector

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurihiro0119/devops-ingest/internal/pagination"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts Options) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	opts.BaseURL = srv.URL
	opts.ReleaseURL = srv.URL + "/vsrm"
	opts.ProfileURL = srv.URL + "/vssps"
	if opts.Token == "" {
		opts.Token = "secret"
	}
	opts.HTTPClient = srv.Client()
	return New(opts)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestShouldFail(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{200, false},
		{201, false},
		{204, false},
		{203, true},
		{301, true},
		{404, true},
		{500, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ShouldFail(tt.status), "status %d", tt.status)
	}
}

func TestProjectsCursorPagination(t *testing.T) {
	var tokens []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/contoso/_apis/projects", r.URL.Path)
		assert.Equal(t, "25", r.URL.Query().Get("$top"))
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "", user)
		assert.Equal(t, "secret", pass)

		token := r.URL.Query().Get("continuationToken")
		tokens = append(tokens, token)
		if token == "" {
			w.Header().Set("x-ms-continuationtoken", "page-2")
			writeJSON(w, map[string]any{"count": 2, "value": []map[string]any{{"id": "1", "name": "A"}, {"id": "2", "name": "B"}}})
			return
		}
		writeJSON(w, map[string]any{"count": 1, "value": []map[string]any{{"id": "3", "name": "C"}}})
	}, Options{PageSize: 25})

	seq := pagination.Cursor(pagination.Start(), func(cursor string) (pagination.CursorPage[string], error) {
		page, err := c.Projects(context.Background(), "contoso", cursor)
		if err != nil {
			return pagination.CursorPage[string]{}, err
		}
		names := make([]string, len(page.Data))
		for i, p := range page.Data {
			assert.Equal(t, "contoso", p.Organization)
			names[i] = p.Name
		}
		return pagination.CursorPage[string]{Data: names, Cursor: page.Cursor}, nil
	})
	names, err := pagination.Collect(seq)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, names)
	assert.Equal(t, []string{"", "page-2"}, tokens)
}

func TestNonAuthoritativeIsFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNonAuthoritativeInfo)
		_, _ = io.WriteString(w, "<html>sign in</html>")
	}, Options{})

	_, err := c.Repositories(context.Background(), "org", "proj")
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))
	assert.Equal(t, http.StatusNonAuthoritativeInfo, statusOf(err))
}

func TestPermissionDeniedIsIgnoredForGitListings(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"message":"TF401019: The Git repository with name or identifier repo does not exist or you do not have permissions for the operation you are attempting."}`)
	}, Options{})
	ctx := context.Background()

	commits, err := c.Commits(ctx, "org", "proj", "repo", time.Time{}, time.Time{}, 0)
	require.NoError(t, err)
	assert.Empty(t, commits)

	prs, err := c.PullRequests(ctx, "org", "proj", "repo", 0)
	require.NoError(t, err)
	assert.Empty(t, prs)

	page, err := c.Tags(ctx, "org", "proj", "repo", "")
	require.NoError(t, err)
	assert.Nil(t, page.Cursor)

	_, err = c.Repositories(ctx, "org", "proj")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestCommitsQuery(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/org/My Project/_apis/git/repositories/r1/commits", r.URL.Path)
		assert.Equal(t, "50", q.Get("$skip"))
		assert.Equal(t, "2024-01-01T00:00:00Z", q.Get("searchCriteria.fromDate"))
		assert.Equal(t, "2024-01-31T00:00:00Z", q.Get("searchCriteria.toDate"))
		writeJSON(w, map[string]any{"value": []map[string]any{{"commitId": "abc"}}})
	}, Options{PageSize: 50})

	commits, err := c.Commits(context.Background(), "org", "My Project", "r1", from, to, 50)
	require.NoError(t, err)
	require.Len(t, commits, 1)
	assert.Equal(t, "abc", commits[0].CommitID)
}

func TestOrganizationsDiscovery(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/vssps/_apis/profile/profiles/me":
			writeJSON(w, map[string]any{"id": "member-1"})
		case "/vssps/_apis/accounts":
			assert.Equal(t, "member-1", r.URL.Query().Get("memberId"))
			writeJSON(w, map[string]any{"value": []map[string]any{{"accountName": "org-a"}, {"accountName": "org-b"}}})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}, Options{})

	orgs, err := c.Organizations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"org-a", "org-b"}, orgs)

	configured := New(Options{Organizations: []string{"fixed"}})
	orgs, err = configured.Organizations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"fixed"}, orgs)
}

func TestWorkItemQuery(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "19999", r.URL.Query().Get("$top"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Contains(t, body["query"], "[System.TeamProject] = 'O''Neil'")
		assert.Contains(t, body["query"], "[System.ChangedDate] > '2024-01-01T00:00:00Z'")
		writeJSON(w, map[string]any{"workItems": []map[string]any{{"id": 3}, {"id": 7}}})
	}, Options{})

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ids, err := c.WorkItemQuery(context.Background(), "org", "O'Neil", from, from.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []int{3, 7}, ids)
}

func TestWorkItemsBatch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1,2,3", r.URL.Query().Get("ids"))
		assert.Equal(t, "All", r.URL.Query().Get("$expand"))
		writeJSON(w, map[string]any{"value": []map[string]any{{"id": 1}, {"id": 2}, {"id": 3}}})
	}, Options{})

	items, err := c.WorkItems(context.Background(), "org", "proj", []int{1, 2, 3})
	require.NoError(t, err)
	assert.Len(t, items, 3)

	none, err := c.WorkItems(context.Background(), "org", "proj", nil)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestBuildTimelineNoContent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}, Options{})

	records, err := c.BuildTimeline(context.Background(), "org", "proj", 12)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestReleasesUseReleaseHost(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.URL.Path, "/vsrm/org/proj/_apis/release/"), r.URL.Path)
		assert.Equal(t, "9", r.URL.Query().Get("definitionId"))
		writeJSON(w, map[string]any{"value": []map[string]any{{"id": 1, "name": "Release-1"}}})
	}, Options{})

	page, err := c.Releases(context.Background(), "org", "proj", 9, "")
	require.NoError(t, err)
	assert.Len(t, page.Data, 1)
	assert.Nil(t, page.Cursor)
}

func TestBearerAuth(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer oauth-token", r.Header.Get("Authorization"))
		writeJSON(w, map[string]any{"value": []any{}})
	}, Options{AuthType: AuthBearer, Token: "oauth-token"})

	_, err := c.Fields(context.Background(), "org", "proj")
	require.NoError(t, err)
}

func TestRateLimiterHonoursRetryAfter(t *testing.T) {
	l := NewRateLimiter(0, nil).(*intervalRateLimiter)
	h := http.Header{}
	h.Set("Retry-After", "2")
	l.UpdateLimit(h)
	assert.WithinDuration(t, time.Now().Add(2*time.Second), l.blockedUntil, 500*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, l.Wait(ctx), context.Canceled)
}
