package events

import (
	"context"

	"github.com/groblegark/tempo/internal/model"
)

// Event topic constants
const (
	TopicSessionStarted = "tempo.session.started"
	TopicSessionPaused  = "tempo.session.paused"
	TopicSessionResumed = "tempo.session.resumed"
	TopicSessionStopped = "tempo.session.stopped"

	TopicExportCompleted = "tempo.export.completed"
)

// Event types

type SessionStarted struct {
	Session *model.Session `json:"session"`
}

type SessionPaused struct {
	Session *model.Session     `json:"session"`
	Break   *model.BreakPeriod `json:"break"`
}

type SessionResumed struct {
	Session *model.Session     `json:"session"`
	Break   *model.BreakPeriod `json:"break"`
}

type SessionStopped struct {
	Session *model.Session      `json:"session"`
	Stats   *model.SessionStats `json:"stats,omitempty"`
}

type ExportCompleted struct {
	SessionID      string `json:"session_id"`
	MatchedUnits   int    `json:"matched_units"`
	UnmatchedUnits int    `json:"unmatched_units"`
	Fallback       bool   `json:"fallback"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
