// Package capture fetches raw screen observations from the local activity
// capture service (a screenpipe-compatible search API).
package capture

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// unitDurationSec is the fixed length attributed to each raw observation.
// The capture service samples frames; each frame stands for one minute.
const unitDurationSec = 60

// fetchLimit caps how many entries a single poll requests.
const fetchLimit = 100

// Observation is a single raw capture entry, normalized for consolidation.
type Observation struct {
	Timestamp   time.Time
	DurationSec int64
	AppName     string
	WindowTitle string
	Text        string
}

// Client talks to the capture service over loopback HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a capture client for the given base URL
// (e.g. "http://127.0.0.1:3030").
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// searchResponse mirrors the capture service search payload.
type searchResponse struct {
	Data []searchEntry `json:"data"`
}

type searchEntry struct {
	Type    string        `json:"type"`
	Content searchContent `json:"content"`
}

type searchContent struct {
	FrameID    *int64 `json:"frame_id"`
	Text       string `json:"text"`
	Timestamp  string `json:"timestamp"`
	AppName    string `json:"app_name"`
	WindowName string `json:"window_name"`
	BrowserURL string `json:"browser_url"`
}

// FetchSince returns observations captured in [since, until). Entries with an
// unparsable timestamp are stamped with the current time rather than dropped.
func (c *Client) FetchSince(ctx context.Context, since, until time.Time) ([]Observation, error) {
	url := fmt.Sprintf("%s/search?start_timestamp=%s&end_timestamp=%s&limit=%d",
		c.baseURL,
		strconv.FormatInt(since.Unix(), 10),
		strconv.FormatInt(until.Unix(), 10),
		fetchLimit,
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching observations: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("capture service returned %d: %s", resp.StatusCode, body)
	}

	var sr searchResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	obs := make([]Observation, 0, len(sr.Data))
	for _, entry := range sr.Data {
		ts := time.Now().UTC()
		if entry.Content.Timestamp != "" {
			if parsed, err := time.Parse(time.RFC3339, entry.Content.Timestamp); err == nil {
				ts = parsed.UTC()
			}
		}
		obs = append(obs, Observation{
			Timestamp:   ts,
			DurationSec: unitDurationSec,
			AppName:     entry.Content.AppName,
			WindowTitle: entry.Content.WindowName,
			Text:        entry.Content.Text,
		})
	}
	return obs, nil
}

// HealthCheck reports whether the capture service is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("capture service unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("capture service returned %d", resp.StatusCode)
	}
	return nil
}
