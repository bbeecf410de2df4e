// Package collector is the client of the Azure DevOps REST API. Every method
// performs one request (or one page of a listing) and is paced by the rate
// limiter; pagination is driven by the caller.
package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/kurihiro0119/devops-ingest/internal/metrics"
	"github.com/kurihiro0119/devops-ingest/internal/pagination"
)

const (
	DefaultBaseURL    = "https://dev.azure.com"
	DefaultReleaseURL = "https://vsrm.dev.azure.com"
	DefaultProfileURL = "https://app.vssps.visualstudio.com"
	DefaultPageSize   = 100

	continuationHeader = "x-ms-continuationtoken"
	continuationParam  = "continuationToken"
	maxErrorBody       = 1024
)

// Auth types.
const (
	AuthPAT    = "pat"
	AuthBearer = "bearer"
)

// Options configures a Client.
type Options struct {
	BaseURL            string
	ReleaseURL         string
	ProfileURL         string
	Token              string
	AuthType           string
	PageSize           int
	ThrottlingInterval time.Duration
	Timeout            time.Duration
	// Organizations, when set, replaces discovery through the accounts API.
	Organizations []string
	HTTPClient    *http.Client
	Metrics       *metrics.Scan
	Logger        *slog.Logger
}

// Client talks to one Azure DevOps tenant.
type Client struct {
	http          *http.Client
	baseURL       string
	releaseURL    string
	profileURL    string
	token         string
	authType      string
	pageSize      int
	organizations []string
	rateLimiter   RateLimiter
	metrics       *metrics.Scan
	logger        *slog.Logger
}

// New creates a new Azure DevOps client.
func New(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	base := opts.HTTPClient
	if base == nil {
		base = &http.Client{Timeout: opts.Timeout}
	}

	httpClient := base
	if opts.AuthType == AuthBearer {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token})
		httpClient = oauth2.NewClient(ctx, ts)
		httpClient.Timeout = base.Timeout
	}

	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	return &Client{
		http:          httpClient,
		baseURL:       firstNonEmpty(opts.BaseURL, DefaultBaseURL),
		releaseURL:    firstNonEmpty(opts.ReleaseURL, DefaultReleaseURL),
		profileURL:    firstNonEmpty(opts.ProfileURL, DefaultProfileURL),
		token:         opts.Token,
		authType:      firstNonEmpty(opts.AuthType, AuthPAT),
		pageSize:      pageSize,
		organizations: opts.Organizations,
		rateLimiter:   NewRateLimiter(opts.ThrottlingInterval, logger),
		metrics:       opts.Metrics,
		logger:        logger,
	}
}

// PageSize is the $top value sent with offset-paginated requests.
func (c *Client) PageSize() int {
	return c.pageSize
}

type listResponse[T any] struct {
	Count int `json:"count"`
	Value []T `json:"value"`
}

// endpoint builds a request URL below base. Path segments are escaped.
func endpoint(base string, query url.Values, segments ...string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	u = u.JoinPath(segments...)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func apiVersion(v string) url.Values {
	return url.Values{"api-version": []string{v}}
}

func (c *Client) send(ctx context.Context, name, method, rawURL string, body []byte, accept string) ([]byte, http.Header, int, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, nil, 0, err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", accept)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.authType == AuthPAT {
		req.SetBasicAuth("", c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, 0, &ClientError{Method: method, URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	c.metrics.ObserveRequest(name, resp.StatusCode, time.Since(start))
	c.rateLimiter.UpdateLimit(resp.Header)
	if err != nil {
		return nil, resp.Header, resp.StatusCode, &ClientError{StatusCode: resp.StatusCode, Method: method, URL: rawURL, Err: err}
	}
	if ShouldFail(resp.StatusCode) {
		msg := string(data)
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		return nil, resp.Header, resp.StatusCode, &ClientError{StatusCode: resp.StatusCode, Method: method, URL: rawURL, Body: msg}
	}
	return data, resp.Header, resp.StatusCode, nil
}

// getJSON decodes the response body into out. A 204 or empty body leaves
// out untouched.
func (c *Client) getJSON(ctx context.Context, name, rawURL string, out any) (http.Header, error) {
	return c.doJSON(ctx, name, http.MethodGet, rawURL, nil, out)
}

func (c *Client) postJSON(ctx context.Context, name, rawURL string, in, out any) (http.Header, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	return c.doJSON(ctx, name, http.MethodPost, rawURL, body, out)
}

func (c *Client) doJSON(ctx context.Context, name, method, rawURL string, body []byte, out any) (http.Header, error) {
	data, header, status, err := c.send(ctx, name, method, rawURL, body, "application/json")
	if err != nil {
		return header, err
	}
	if status == http.StatusNoContent || len(bytes.TrimSpace(data)) == 0 {
		return header, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return header, fmt.Errorf("failed to decode %s response: %w", name, err)
	}
	return header, nil
}

func (c *Client) getText(ctx context.Context, name, rawURL string) (string, error) {
	data, _, _, err := c.send(ctx, name, http.MethodGet, rawURL, nil, "text/plain")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// listPage fetches one page of a continuation-token listing.
func listPage[T any](ctx context.Context, c *Client, name, base string, query url.Values, cursor string, segments ...string) (pagination.CursorPage[T], error) {
	if cursor != "" {
		query.Set(continuationParam, cursor)
	}
	var resp listResponse[T]
	header, err := c.getJSON(ctx, name, endpoint(base, query, segments...), &resp)
	if err != nil {
		return pagination.CursorPage[T]{}, err
	}
	page := pagination.CursorPage[T]{Data: resp.Value}
	if next := strings.TrimSpace(header.Get(continuationHeader)); next != "" {
		page.Cursor = &next
	}
	return page, nil
}

// list fetches a non-paginated listing.
func list[T any](ctx context.Context, c *Client, name, base string, query url.Values, segments ...string) ([]T, error) {
	var resp listResponse[T]
	if _, err := c.getJSON(ctx, name, endpoint(base, query, segments...), &resp); err != nil {
		return nil, err
	}
	return resp.Value, nil
}

func (c *Client) offsetQuery(version string, skip int, skipParam, topParam string) url.Values {
	q := apiVersion(version)
	q.Set(skipParam, fmt.Sprint(skip))
	q.Set(topParam, fmt.Sprint(c.pageSize))
	return q
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
