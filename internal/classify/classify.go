// Package classify sends batched activity units to the corporate AI endpoint
// and returns the issue groupings it proposes.
package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/groblegark/tempo/internal/jira"
	"github.com/groblegark/tempo/internal/model"
)

// maxTextSample caps how much captured text is sent per unit.
const maxTextSample = 500

// UnitForAnalysis is one activity unit as presented to the classifier.
type UnitForAnalysis struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	DurationSec int64     `json:"duration_secs"`
	AppName     string    `json:"app_name"`
	WindowTitle string    `json:"window_title"`
	TextSample  string    `json:"text_sample,omitempty"`
}

// Request is the batch analysis payload.
type Request struct {
	User       UserContext       `json:"user"`
	Session    SessionContext    `json:"session"`
	Activities ActivitiesContext `json:"activities"`
	Task       TaskInstructions  `json:"task"`
}

type UserContext struct {
	Email          string               `json:"email"`
	AssignedIssues []jira.AssignedIssue `json:"assigned_issues"`
}

type SessionContext struct {
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	TrackingSecs int64     `json:"tracking_duration_secs"`
	BreakSecs    int64     `json:"break_duration_secs"`
}

type ActivitiesContext struct {
	Billable []UnitForAnalysis `json:"billable"`
	Micro    []UnitForAnalysis `json:"micro"`
}

type TaskInstructions struct {
	Primary string   `json:"primary"`
	Rules   []string `json:"rules"`
}

// Response wraps the classifier's analysis.
type Response struct {
	Analysis Analysis `json:"analysis"`
}

// Analysis is the full grouping result for one batch.
type Analysis struct {
	TotalProductiveSecs int64        `json:"total_productive_time_secs"`
	Confidence          float64      `json:"confidence"`
	Issues              []IssueMatch `json:"issues"`
	Unmatched           Unmatched    `json:"unmatched"`
	RedFlags            []string     `json:"red_flags"`
}

// IssueMatch groups a set of units under one issue key.
type IssueMatch struct {
	Key           string   `json:"key"`
	TotalTimeSecs int64    `json:"total_time_secs"`
	Summary       string   `json:"summary"`
	WorkType      string   `json:"work_type"`
	UnitIDs       []string `json:"activities_included"`
	Confidence    float64  `json:"confidence"`
}

// Unmatched is the bucket of units the classifier could not place.
type Unmatched struct {
	TotalTimeSecs int64    `json:"total_time_secs"`
	UnitIDs       []string `json:"activities"`
	LikelyReason  string   `json:"likely_reason"`
}

// Client calls the AI batch endpoint.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a classifier client.
func NewClient(endpoint, apiKey string, timeout time.Duration) *Client {
	return &Client{
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// unitForAnalysis converts a stored unit, truncating the text sample.
func unitForAnalysis(u *model.ActivityUnit) UnitForAnalysis {
	sample := u.TextSample
	if len(sample) > maxTextSample {
		sample = sample[:maxTextSample] + "..."
	}
	return UnitForAnalysis{
		ID:          u.ID,
		Timestamp:   u.Timestamp,
		DurationSec: u.DurationSec,
		AppName:     u.AppName,
		WindowTitle: u.WindowTitle,
		TextSample:  sample,
	}
}

// BatchInput collects everything AnalyzeBatch sends.
type BatchInput struct {
	UserEmail      string
	AssignedIssues []jira.AssignedIssue
	SessionStart   time.Time
	SessionEnd     time.Time
	TrackingSecs   int64
	BreakSecs      int64
	Billable       []*model.ActivityUnit
	Micro          []*model.ActivityUnit
}

// AnalyzeBatch submits the session's unexported units for grouping.
func (c *Client) AnalyzeBatch(ctx context.Context, in BatchInput) (*Response, error) {
	req := Request{
		User: UserContext{
			Email:          in.UserEmail,
			AssignedIssues: in.AssignedIssues,
		},
		Session: SessionContext{
			Start:        in.SessionStart,
			End:          in.SessionEnd,
			TrackingSecs: in.TrackingSecs,
			BreakSecs:    in.BreakSecs,
		},
		Activities: ActivitiesContext{
			Billable: make([]UnitForAnalysis, 0, len(in.Billable)),
			Micro:    make([]UnitForAnalysis, 0, len(in.Micro)),
		},
		Task: TaskInstructions{
			Primary: "Analyze this work session. Group activities by issue, generate summaries, calculate productive time. ONLY match to assigned issues. Return grouped results.",
			Rules: []string{
				"ONLY match to assigned_issues list",
				"Combine micro-activities with related billable activities when logical",
				"Generate summaries max 200 characters",
				"Return confidence scores (0-1)",
				"Flag unmatched activities (possible personal/other client work)",
				"Calculate actual productive time per issue",
			},
		},
	}
	for _, u := range in.Billable {
		req.Activities.Billable = append(req.Activities.Billable, unitForAnalysis(u))
	}
	for _, u := range in.Micro {
		req.Activities.Micro = append(req.Activities.Micro, unitForAnalysis(u))
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling analysis request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling classifier: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("classifier returned %d: %s", resp.StatusCode, body)
	}

	var out Response
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &out, nil
}
