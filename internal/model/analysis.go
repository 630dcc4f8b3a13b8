package model

import (
	"encoding/json"
	"time"
)

// AnalysisRecord is an audit row for one classifier run. Append-only.
type AnalysisRecord struct {
	ID         string          `json:"id"`
	SessionID  string          `json:"session_id"`
	AnalyzedAt time.Time       `json:"analyzed_at"`
	RawResult  json.RawMessage `json:"raw_result"`
	Confidence float64         `json:"confidence"`
}

// SessionStats summarizes a session. For open sessions the totals are
// computed against the current clock and grow between samples.
type SessionStats struct {
	SessionID     string     `json:"session_id"`
	StartedAt     time.Time  `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
	TotalSecs     int64      `json:"total_secs"`
	BreakSecs     int64      `json:"break_secs"`
	BillableSecs  int64      `json:"billable_secs"`
	MicroSecs     int64      `json:"micro_secs"`
	TotalUnits    int        `json:"total_units"`
	BillableUnits int        `json:"billable_units"`
	MicroUnits    int        `json:"micro_units"`
	ExportedUnits int        `json:"exported_units"`
}
