package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/kurihiro0119/devops-ingest/internal/checkpoint"
	"github.com/kurihiro0119/devops-ingest/internal/domain"
)

// Client is the API client for devops-ingest
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError is returned for non-200 responses
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("API error: %d %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("API error: %d - %s", e.StatusCode, e.Message)
}

// RecordsQuery narrows GetRecords. Zero values are omitted.
type RecordsQuery struct {
	Resource domain.Stage
	Project  string
	Limit    int
	Offset   int
}

// CheckpointState is the pending checkpoint of an integration
type CheckpointState struct {
	Checkpoint checkpoint.Checkpoint `json:"data"`
	Pending    bool                  `json:"pending"`
}

func integrationPath(key domain.IntegrationKey, suffix string) string {
	return fmt.Sprintf("/api/v1/integrations/%s/%s/%s",
		url.PathEscape(key.TenantID), url.PathEscape(key.IntegrationID), suffix)
}

// GetSummary retrieves the ingestion summary of an integration
func (c *Client) GetSummary(ctx context.Context, key domain.IntegrationKey) (*domain.IntegrationSummary, error) {
	var response struct {
		Data *domain.IntegrationSummary `json:"data"`
	}
	if err := c.get(ctx, integrationPath(key, "summary"), nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetProjectSummary retrieves the item counts of one project
func (c *Client) GetProjectSummary(ctx context.Context, key domain.IntegrationKey, organization, project string) (*domain.ProjectSummary, error) {
	path := integrationPath(key, "projects/"+url.PathEscape(organization)+"/"+url.PathEscape(project))
	var response struct {
		Data *domain.ProjectSummary `json:"data"`
	}
	if err := c.get(ctx, path, nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetRecords retrieves stored records
func (c *Client) GetRecords(ctx context.Context, key domain.IntegrationKey, q RecordsQuery) ([]*domain.StoredRecord, error) {
	params := url.Values{}
	if q.Resource != "" {
		params.Set("resource", string(q.Resource))
	}
	if q.Project != "" {
		params.Set("project", q.Project)
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		params.Set("offset", strconv.Itoa(q.Offset))
	}

	var response struct {
		Data []*domain.StoredRecord `json:"data"`
	}
	if err := c.get(ctx, integrationPath(key, "records"), params, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetCheckpoint retrieves the pending checkpoint of an integration
func (c *Client) GetCheckpoint(ctx context.Context, key domain.IntegrationKey) (*CheckpointState, error) {
	var response CheckpointState
	if err := c.get(ctx, integrationPath(key, "checkpoint"), nil, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// GetScanRuns retrieves the latest scan runs of an integration
func (c *Client) GetScanRuns(ctx context.Context, key domain.IntegrationKey, limit int) ([]*domain.ScanRun, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	var response struct {
		Data []*domain.ScanRun `json:"data"`
	}
	if err := c.get(ctx, integrationPath(key, "scans"), params, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetScanRun retrieves one scan run
func (c *Client) GetScanRun(ctx context.Context, id string) (*domain.ScanRun, error) {
	var response struct {
		Data *domain.ScanRun `json:"data"`
	}
	if err := c.get(ctx, "/api/v1/scans/"+url.PathEscape(id), nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// HealthCheck checks if the API is healthy
func (c *Client) HealthCheck(ctx context.Context) error {
	var response struct {
		Status string `json:"status"`
	}
	if err := c.get(ctx, "/health", nil, &response); err != nil {
		return err
	}
	if response.Status != "ok" {
		return fmt.Errorf("unhealthy status: %s", response.Status)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return err
	}
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(body)}
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(body, &envelope) == nil && envelope.Error.Code != "" {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}

	return json.NewDecoder(resp.Body).Decode(result)
}
