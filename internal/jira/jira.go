// Package jira is a minimal Jira Cloud REST client covering the pieces the
// export path needs: assigned issues, assignment checks, and worklogs.
package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// issueKeyPattern matches Jira issue keys like PROJ-123.
var issueKeyPattern = regexp.MustCompile(`([A-Z]+-\d+)`)

// FindIssueKey returns the first issue key found in text, or "".
func FindIssueKey(text string) string {
	return issueKeyPattern.FindString(text)
}

// ValidIssueKey reports whether s is exactly one issue key.
func ValidIssueKey(s string) bool {
	return issueKeyPattern.FindString(s) == s && s != ""
}

// AssignedIssue is one issue currently assigned to the configured user.
type AssignedIssue struct {
	Key     string `json:"key"`
	Summary string `json:"summary"`
	Status  string `json:"status"`
}

// Worklog is a single time entry to record against an issue.
type Worklog struct {
	Comment          string
	TimeSpentSeconds int64
	Started          time.Time
}

// Client talks to a Jira Cloud instance using basic auth (email + API token).
type Client struct {
	baseURL    string
	email      string
	apiToken   string
	httpClient *http.Client
}

// NewClient creates a Jira client for the given base URL
// (e.g. "https://your-domain.atlassian.net").
func NewClient(baseURL, email, apiToken string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		email:      email,
		apiToken:   apiToken,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// GetAssignedIssues returns open issues assigned to the authenticated user.
func (c *Client) GetAssignedIssues(ctx context.Context) ([]AssignedIssue, error) {
	jql := url.QueryEscape("assignee = currentUser() AND statusCategory != Done ORDER BY updated DESC")
	path := "/rest/api/3/search?maxResults=50&fields=summary,status&jql=" + jql

	var resp struct {
		Issues []struct {
			Key    string `json:"key"`
			Fields struct {
				Summary string `json:"summary"`
				Status  struct {
					Name string `json:"name"`
				} `json:"status"`
			} `json:"fields"`
		} `json:"issues"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("fetching assigned issues: %w", err)
	}

	issues := make([]AssignedIssue, 0, len(resp.Issues))
	for _, is := range resp.Issues {
		issues = append(issues, AssignedIssue{
			Key:     is.Key,
			Summary: is.Fields.Summary,
			Status:  is.Fields.Status.Name,
		})
	}
	return issues, nil
}

// IsAssignedToMe reports whether the issue's assignee matches the configured email.
func (c *Client) IsAssignedToMe(ctx context.Context, issueKey string) (bool, error) {
	var resp struct {
		Fields struct {
			Assignee *struct {
				EmailAddress string `json:"emailAddress"`
			} `json:"assignee"`
		} `json:"fields"`
	}
	path := "/rest/api/3/issue/" + url.PathEscape(issueKey) + "?fields=assignee"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return false, fmt.Errorf("checking assignment for %s: %w", issueKey, err)
	}
	if resp.Fields.Assignee == nil {
		return false, nil
	}
	return strings.EqualFold(resp.Fields.Assignee.EmailAddress, c.email), nil
}

// LogWork records a worklog entry against the issue.
func (c *Client) LogWork(ctx context.Context, issueKey string, wl Worklog) error {
	body := map[string]any{
		"comment":          wl.Comment,
		"timeSpentSeconds": wl.TimeSpentSeconds,
		"started":          wl.Started.UTC().Format("2006-01-02T15:04:05.000-0700"),
	}
	path := "/rest/api/3/issue/" + url.PathEscape(issueKey) + "/worklog"
	if err := c.doJSON(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("logging work to %s: %w", issueKey, err)
	}
	return nil
}

// HealthCheck verifies credentials against the /myself endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := c.doJSON(ctx, http.MethodGet, "/rest/api/3/myself", nil, nil); err != nil {
		return fmt.Errorf("jira unreachable: %w", err)
	}
	return nil
}

// APIError represents a non-2xx response from Jira.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// doJSON performs a basic-auth request with optional JSON body and decodes
// the JSON response. If result is nil, the body is discarded.
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
	req.SetBasicAuth(c.email, c.apiToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	}
	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
