package model

import "time"

// TrackingState represents the lifecycle state of the tracker.
type TrackingState string

const (
	StateStopped  TrackingState = "stopped"
	StateTracking TrackingState = "tracking"
	StatePaused   TrackingState = "paused"
)

// String returns the string representation of the state.
func (s TrackingState) String() string {
	return string(s)
}

// IsValid checks whether the state is a known value.
func (s TrackingState) IsValid() bool {
	switch s {
	case StateStopped, StateTracking, StatePaused:
		return true
	}
	return false
}

// IsTracking reports whether the tracker is actively collecting.
func (s TrackingState) IsTracking() bool {
	return s == StateTracking
}

// Session is one continuous tracking engagement from start to stop.
// At most one session is open (EndedAt == nil) at a time.
type Session struct {
	ID        string        `json:"id"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   *time.Time    `json:"ended_at,omitempty"`
	State     TrackingState `json:"state"`
}

// Open reports whether the session has not been closed yet.
func (s *Session) Open() bool {
	return s.EndedAt == nil
}

// Duration returns the session length, using now for open sessions.
func (s *Session) Duration(now time.Time) time.Duration {
	end := now
	if s.EndedAt != nil {
		end = *s.EndedAt
	}
	d := end.Sub(s.StartedAt)
	if d < 0 {
		return 0
	}
	return d
}

// BreakPeriod is a paused interval within an open session.
// At most one break is open per open session.
type BreakPeriod struct {
	ID        string     `json:"id"`
	SessionID string     `json:"session_id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// Open reports whether the break has not been closed yet.
func (b *BreakPeriod) Open() bool {
	return b.EndedAt == nil
}

// Duration returns the break length, using now for open breaks.
func (b *BreakPeriod) Duration(now time.Time) time.Duration {
	end := now
	if b.EndedAt != nil {
		end = *b.EndedAt
	}
	d := end.Sub(b.StartedAt)
	if d < 0 {
		return 0
	}
	return d
}
