package store

import (
	"context"
	"time"

	"github.com/groblegark/tempo/internal/model"
)

// Store defines the persistence interface for tempo.
type Store interface {
	// Sessions
	CreateSession(ctx context.Context, session *model.Session) error
	EndSession(ctx context.Context, id string, endedAt time.Time) error
	GetSession(ctx context.Context, id string) (*model.Session, error)
	GetActiveSession(ctx context.Context) (*model.Session, error)
	ListSessions(ctx context.Context, limit int) ([]*model.Session, error)

	// Breaks
	CreateBreak(ctx context.Context, brk *model.BreakPeriod) error
	EndBreak(ctx context.Context, id string, endedAt time.Time) error
	GetOpenBreak(ctx context.Context, sessionID string) (*model.BreakPeriod, error)
	GetBreaks(ctx context.Context, sessionID string) ([]*model.BreakPeriod, error)

	// Activity units
	StoreActivity(ctx context.Context, unit *model.ActivityUnit) error
	GetActivities(ctx context.Context, sessionID string, filter model.ActivityFilter) ([]*model.ActivityUnit, error)
	MarkExported(ctx context.Context, unitIDs []string) error

	// Analysis results
	StoreAnalysis(ctx context.Context, rec *model.AnalysisRecord) error
	GetAnalyses(ctx context.Context, sessionID string) ([]*model.AnalysisRecord, error)

	// Reporting
	SessionStats(ctx context.Context, sessionID string) (*model.SessionStats, error)

	// Transaction support
	RunInTransaction(ctx context.Context, fn func(tx Store) error) error

	// Lifecycle
	Close() error
}
