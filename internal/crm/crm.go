// Package crm mirrors accepted time entries into a Salesforce-style CRM
// using the OAuth password grant with a one-shot re-auth retry on 401.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// TimeEntry is one logged slice of work.
type TimeEntry struct {
	Name            string
	StartTime       time.Time
	DurationMinutes float64
	Description     string
}

// wireTimeEntry is the JSON shape the CRM object API expects.
type wireTimeEntry struct {
	Name            string  `json:"Name"`
	StartTime       string  `json:"StartTime__c"`
	DurationMinutes float64 `json:"DurationMinutes__c"`
	Description     string  `json:"Description__c"`
}

// Credentials hold everything the password grant needs.
type Credentials struct {
	Username     string
	Password     string
	ClientID     string
	ClientSecret string
}

// Client logs time entries against a CRM instance.
type Client struct {
	instanceURL string
	creds       Credentials
	httpClient  *http.Client

	mu          sync.Mutex
	accessToken string
}

// NewClient creates a CRM client for the given instance URL.
func NewClient(instanceURL string, creds Credentials, timeout time.Duration) *Client {
	return &Client{
		instanceURL: strings.TrimRight(instanceURL, "/"),
		creds:       creds,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

// authenticate obtains a fresh access token via the password grant.
func (c *Client) authenticate(ctx context.Context) error {
	form := url.Values{
		"grant_type":    {"password"},
		"client_id":     {c.creds.ClientID},
		"client_secret": {c.creds.ClientSecret},
		"username":      {c.creds.Username},
		"password":      {c.creds.Password},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.instanceURL+"/services/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("creating auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("authenticating: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading auth response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("authentication failed (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var auth struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &auth); err != nil {
		return fmt.Errorf("decoding auth response: %w", err)
	}
	if auth.AccessToken == "" {
		return fmt.Errorf("authentication response missing access token")
	}

	c.mu.Lock()
	c.accessToken = auth.AccessToken
	c.mu.Unlock()
	return nil
}

func (c *Client) token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken
}

// LogTime creates a time entry record. An expired token triggers exactly one
// re-authentication and retry.
func (c *Client) LogTime(ctx context.Context, entry TimeEntry) error {
	if c.token() == "" {
		if err := c.authenticate(ctx); err != nil {
			return err
		}
	}

	status, body, err := c.postEntry(ctx, entry)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized {
		if err := c.authenticate(ctx); err != nil {
			return fmt.Errorf("re-authenticating: %w", err)
		}
		status, body, err = c.postEntry(ctx, entry)
		if err != nil {
			return err
		}
	}
	if status >= 400 {
		return fmt.Errorf("logging time failed (%d): %s", status, strings.TrimSpace(body))
	}
	return nil
}

func (c *Client) postEntry(ctx context.Context, entry TimeEntry) (int, string, error) {
	payload, err := json.Marshal(wireTimeEntry{
		Name:            entry.Name,
		StartTime:       entry.StartTime.UTC().Format(time.RFC3339),
		DurationMinutes: entry.DurationMinutes,
		Description:     entry.Description,
	})
	if err != nil {
		return 0, "", fmt.Errorf("marshaling time entry: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.instanceURL+"/services/data/v58.0/sobjects/TimeEntry__c", bytes.NewReader(payload))
	if err != nil {
		return 0, "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("posting time entry: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, "", fmt.Errorf("reading response: %w", err)
	}
	return resp.StatusCode, string(body), nil
}

// HealthCheck verifies credentials by authenticating.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := c.authenticate(ctx); err != nil {
		return fmt.Errorf("crm unreachable: %w", err)
	}
	return nil
}
