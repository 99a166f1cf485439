// Package client provides an HTTP client for the clusterdata API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/HatiCode/clusterdata/pkg/records"
)

// DataClient is an HTTP client for the clusterdata server.
// It is safe for concurrent use by multiple goroutines.
type DataClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewDataClient creates a new client for the data server.
// The baseURL should include the scheme and host (e.g., "http://localhost:3333").
// A default timeout of 5 seconds is used for HTTP requests.
func NewDataClient(baseURL string) *DataClient {
	return NewDataClientWithTimeout(baseURL, 5*time.Second)
}

// NewDataClientWithTimeout creates a new client with a custom timeout.
func NewDataClientWithTimeout(baseURL string, timeout time.Duration) *DataClient {
	return &DataClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// APIError is returned for any non-2xx response.
type APIError struct {
	Status  int
	Message string
	Details string
}

func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("clusterdata: %d %s: %s", e.Status, e.Message, e.Details)
	}
	return fmt.Sprintf("clusterdata: %d %s", e.Status, e.Message)
}

// PutSnapshotResult is the decoded body of a successful PutSnapshot.
type PutSnapshotResult struct {
	Success  bool           `json:"success"`
	Snapshot records.Record `json:"snapshot"`
}

// ListClusters returns the id and name of every stored snapshot record.
func (c *DataClient) ListClusters(ctx context.Context) ([]records.ClusterSummary, error) {
	var out []records.ClusterSummary
	if err := c.do(ctx, http.MethodGet, "/data/clusters", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetSnapshots returns the snapshot records of one cluster. An unknown
// cluster yields an empty slice, not an error.
func (c *DataClient) GetSnapshots(ctx context.Context, clusterID string) ([]records.Record, error) {
	if clusterID == "" {
		return nil, fmt.Errorf("cluster_id cannot be empty")
	}
	q := url.Values{"cluster_id": {clusterID}}

	var out []records.Record
	if err := c.do(ctx, http.MethodGet, "/data/snapshot", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetTimeSeries returns every series of metricType for one cluster.
func (c *DataClient) GetTimeSeries(ctx context.Context, clusterID, metricType string) ([]records.TimeSeriesRecord, error) {
	if clusterID == "" || metricType == "" {
		return nil, fmt.Errorf("cluster_id and type cannot be empty")
	}
	q := url.Values{"cluster_id": {clusterID}, "type": {metricType}}

	var out []records.TimeSeriesRecord
	if err := c.do(ctx, http.MethodGet, "/data/timeseries", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// PutSnapshot inserts rec or merges it into the stored record with the same
// cluster_id. The server echoes rec as submitted.
func (c *DataClient) PutSnapshot(ctx context.Context, rec records.Record) (*PutSnapshotResult, error) {
	body, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}

	var out PutSnapshotResult
	if err := c.do(ctx, http.MethodPut, "/data/snapshot", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *DataClient) do(ctx context.Context, method, path string, query url.Values, body []byte, out any) error {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	u.Path = path
	u.RawQuery = query.Encode()

	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var errResp struct {
			Error   string `json:"error"`
			Details string `json:"details"`
		}
		if json.NewDecoder(resp.Body).Decode(&errResp) == nil && errResp.Error != "" {
			apiErr.Message = errResp.Error
			apiErr.Details = errResp.Details
		}
		return apiErr
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
