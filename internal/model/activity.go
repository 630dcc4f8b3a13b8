package model

import "time"

// DefaultBillableThreshold is the duration at or above which an activity
// unit is classified Billable rather than Micro.
const DefaultBillableThreshold = 10 * time.Minute

// Tier classifies an activity unit by duration.
type Tier string

const (
	TierMicro    Tier = "micro"
	TierBillable Tier = "billable"
)

// String returns the string representation of the tier.
func (t Tier) String() string {
	return string(t)
}

// IsValid checks whether the tier is a known value.
func (t Tier) IsValid() bool {
	return t == TierMicro || t == TierBillable
}

// TierForDuration classifies a duration against the billable threshold.
// The boundary is inclusive on the billable side.
func TierForDuration(d, threshold time.Duration) Tier {
	if threshold <= 0 {
		threshold = DefaultBillableThreshold
	}
	if d < threshold {
		return TierMicro
	}
	return TierBillable
}

// ActivityUnit is one consolidated, persisted slice of observed activity.
// All fields except Exported are immutable once stored.
type ActivityUnit struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	Timestamp   time.Time `json:"timestamp"`
	DurationSec int64     `json:"duration_secs"`
	AppName     string    `json:"app_name"`
	WindowTitle string    `json:"window_title"`
	TextSample  string    `json:"text_sample,omitempty"`
	Tier        Tier      `json:"tier"`
	Exported    bool      `json:"exported"`
}

// ActivityFilter narrows GetActivities results.
type ActivityFilter struct {
	Tier           Tier // empty = all tiers
	UnexportedOnly bool
}
