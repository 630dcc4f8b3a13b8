// Package client is the HTTP client for the tempo daemon's control API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/groblegark/tempo/internal/model"
	"github.com/groblegark/tempo/internal/tracker"
)

// Client talks to a running tempo daemon over its loopback HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client targeting the given base URL
// (e.g. "http://127.0.0.1:4680").
func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// StatusResponse is the payload of GET /v1/status.
type StatusResponse struct {
	tracker.Status
	Version string `json:"version"`
}

// ControlResponse is the envelope returned by every control mutation.
type ControlResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Status  *tracker.Status `json:"status,omitempty"`
}

// Status fetches the daemon's current state.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var out StatusResponse
	if err := c.doJSON(ctx, http.MethodGet, "/v1/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health checks that the daemon is up.
func (c *Client) Health(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodGet, "/v1/health", nil, nil)
}

// Start begins or resumes tracking.
func (c *Client) Start(ctx context.Context) (*ControlResponse, error) {
	return c.control(ctx, "/v1/start")
}

// Pause opens a break.
func (c *Client) Pause(ctx context.Context) (*ControlResponse, error) {
	return c.control(ctx, "/v1/pause")
}

// Resume closes the open break.
func (c *Client) Resume(ctx context.Context) (*ControlResponse, error) {
	return c.control(ctx, "/v1/resume")
}

// Stop ends the current session.
func (c *Client) Stop(ctx context.Context) (*ControlResponse, error) {
	return c.control(ctx, "/v1/stop")
}

// SetIssue pins exports to one issue key; an empty key clears the pin.
func (c *Client) SetIssue(ctx context.Context, issueKey string) (*ControlResponse, error) {
	var out ControlResponse
	body := map[string]string{"issue_key": issueKey}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/issue", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SessionList is the payload of GET /v1/sessions.
type SessionList struct {
	Sessions []*model.Session `json:"sessions"`
}

// Sessions lists recent sessions, newest first. A limit of zero uses the
// daemon's default.
func (c *Client) Sessions(ctx context.Context, limit int) (*SessionList, error) {
	path := "/v1/sessions"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out SessionList
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Export downloads the active session dump in the given format (csv or json).
func (c *Client) Export(ctx context.Context, format string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/v1/export?format="+format, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, apiError(resp.StatusCode, body)
	}
	return body, nil
}

func (c *Client) control(ctx context.Context, path string) (*ControlResponse, error) {
	var out ControlResponse
	if err := c.doJSON(ctx, http.MethodPost, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// APIError represents an error response from the daemon.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

func apiError(status int, body []byte) *APIError {
	var errResp struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &errResp) == nil {
		if errResp.Error != "" {
			return &APIError{StatusCode: status, Message: errResp.Error}
		}
		if errResp.Message != "" {
			return &APIError{StatusCode: status, Message: errResp.Message}
		}
	}
	return &APIError{StatusCode: status, Message: string(body)}
}

// doJSON performs an HTTP request with optional JSON body and decodes the
// JSON response. If result is nil, the response body is discarded.
func (c *Client) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return apiError(resp.StatusCode, respBody)
	}
	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
