// Package tracker orchestrates the tracking lifecycle: session control,
// periodic consolidation of raw observations into activity units, and
// batch export of those units to the issue tracker.
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/groblegark/tempo/internal/capture"
	"github.com/groblegark/tempo/internal/classify"
	"github.com/groblegark/tempo/internal/crm"
	"github.com/groblegark/tempo/internal/events"
	"github.com/groblegark/tempo/internal/idgen"
	"github.com/groblegark/tempo/internal/jira"
	"github.com/groblegark/tempo/internal/model"
	"github.com/groblegark/tempo/internal/state"
	"github.com/groblegark/tempo/internal/store"
)

// Capturer fetches raw observations from the capture service.
type Capturer interface {
	FetchSince(ctx context.Context, since, until time.Time) ([]capture.Observation, error)
}

// IssueTracker is the slice of the Jira client the export path needs.
type IssueTracker interface {
	GetAssignedIssues(ctx context.Context) ([]jira.AssignedIssue, error)
	IsAssignedToMe(ctx context.Context, issueKey string) (bool, error)
	LogWork(ctx context.Context, issueKey string, wl jira.Worklog) error
}

// TimeMirror receives a copy of every accepted time entry (CRM).
type TimeMirror interface {
	LogTime(ctx context.Context, entry crm.TimeEntry) error
}

// Classifier groups a batch of units by issue.
type Classifier interface {
	AnalyzeBatch(ctx context.Context, in classify.BatchInput) (*classify.Response, error)
}

// Archiver receives the final session report on stop.
type Archiver interface {
	ArchiveSession(ctx context.Context, session *model.Session, stats *model.SessionStats) error
}

// Options configures a Tracker. Store and Capture are required; every other
// collaborator is optional.
type Options struct {
	Store      store.Store
	Capture    Capturer
	Issues     IssueTracker
	Mirror     TimeMirror
	Classifier Classifier
	Archiver   Archiver
	Publisher  events.Publisher
	Logger     *slog.Logger

	UserEmail           string
	BillableThreshold   time.Duration
	ConfidenceThreshold float64
	IssueCacheTTL       time.Duration
	ExportOnStop        bool

	Clock func() time.Time
}

// Tracker owns the state machine and drives all collaborators.
type Tracker struct {
	store      store.Store
	machine    *state.Machine
	capture    Capturer
	issues     IssueTracker
	mirror     TimeMirror
	classifier Classifier
	archiver   Archiver
	publisher  events.Publisher
	logger     *slog.Logger

	userEmail    string
	threshold    time.Duration
	confidence   float64
	exportOnStop bool
	cache        *issueCache
	now          func() time.Time

	mu       sync.Mutex
	cursor   time.Time
	override string
}

// New creates a Tracker in the Stopped state.
func New(opts Options) *Tracker {
	if opts.Publisher == nil {
		opts.Publisher = &events.NoopPublisher{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.BillableThreshold <= 0 {
		opts.BillableThreshold = model.DefaultBillableThreshold
	}
	if opts.ConfidenceThreshold <= 0 {
		opts.ConfidenceThreshold = 0.75
	}
	if opts.IssueCacheTTL <= 0 {
		opts.IssueCacheTTL = 2 * time.Hour
	}
	return &Tracker{
		store:        opts.Store,
		machine:      state.NewWithClock(opts.Clock),
		capture:      opts.Capture,
		issues:       opts.Issues,
		mirror:       opts.Mirror,
		classifier:   opts.Classifier,
		archiver:     opts.Archiver,
		publisher:    opts.Publisher,
		logger:       opts.Logger,
		userEmail:    opts.UserEmail,
		threshold:    opts.BillableThreshold,
		confidence:   opts.ConfidenceThreshold,
		exportOnStop: opts.ExportOnStop,
		cache:        newIssueCache(opts.IssueCacheTTL, opts.Clock),
		now:          opts.Clock,
	}
}

// Snapshot exposes the current machine state.
func (t *Tracker) Snapshot() state.Snapshot {
	return t.machine.Snapshot()
}

// Start begins a new session, or resumes if the tracker is paused.
func (t *Tracker) Start(ctx context.Context) (state.Snapshot, error) {
	id, err := idgen.Session()
	if err != nil {
		return t.machine.Snapshot(), err
	}

	snap, err := t.machine.Start(id)
	if err != nil {
		return snap, err
	}

	if snap.Session != nil && snap.Session.ID == id {
		// Fresh session.
		if err := t.store.CreateSession(ctx, snap.Session); err != nil {
			t.machine.Stop()
			return t.machine.Snapshot(), fmt.Errorf("persist session: %w", err)
		}
		t.mu.Lock()
		t.cursor = snap.Session.StartedAt
		t.mu.Unlock()
		t.publish(ctx, events.TopicSessionStarted, events.SessionStarted{Session: snap.Session})
		t.logger.Info("session started", "session", snap.Session.ID)
		return snap, nil
	}

	// Start while paused resumes the open session.
	if snap.Break != nil && snap.Break.EndedAt != nil {
		if err := t.store.EndBreak(ctx, snap.Break.ID, *snap.Break.EndedAt); err != nil {
			return snap, fmt.Errorf("close break: %w", err)
		}
	}
	t.publish(ctx, events.TopicSessionResumed, events.SessionResumed{Session: snap.Session, Break: snap.Break})
	t.logger.Info("session resumed", "session", snap.Session.ID)
	return snap, nil
}

// Pause opens a break on the current session.
func (t *Tracker) Pause(ctx context.Context) (state.Snapshot, error) {
	id, err := idgen.Break()
	if err != nil {
		return t.machine.Snapshot(), err
	}

	snap, err := t.machine.Pause(id)
	if err != nil {
		return snap, err
	}
	if err := t.store.CreateBreak(ctx, snap.Break); err != nil {
		t.machine.Resume()
		return t.machine.Snapshot(), fmt.Errorf("persist break: %w", err)
	}
	t.publish(ctx, events.TopicSessionPaused, events.SessionPaused{Session: snap.Session, Break: snap.Break})
	t.logger.Info("session paused", "session", snap.Session.ID, "break", snap.Break.ID)
	return snap, nil
}

// Resume closes the open break and returns to tracking.
func (t *Tracker) Resume(ctx context.Context) (state.Snapshot, error) {
	snap, err := t.machine.Resume()
	if err != nil {
		return snap, err
	}
	if snap.Break != nil && snap.Break.EndedAt != nil {
		if err := t.store.EndBreak(ctx, snap.Break.ID, *snap.Break.EndedAt); err != nil {
			return snap, fmt.Errorf("close break: %w", err)
		}
	}
	t.publish(ctx, events.TopicSessionResumed, events.SessionResumed{Session: snap.Session, Break: snap.Break})
	t.logger.Info("session resumed", "session", snap.Session.ID)
	return snap, nil
}

// Stop runs a final consolidation, ends the session (closing any open break
// in the same transaction), and kicks off the export and archive steps.
func (t *Tracker) Stop(ctx context.Context) (state.Snapshot, error) {
	if err := t.consolidateOnce(ctx); err != nil {
		t.logger.Warn("final consolidation failed", "err", err)
	}

	snap, err := t.machine.Stop()
	if err != nil {
		return snap, err
	}

	err = t.store.RunInTransaction(ctx, func(tx store.Store) error {
		if snap.Break != nil && snap.Break.EndedAt != nil {
			if err := tx.EndBreak(ctx, snap.Break.ID, *snap.Break.EndedAt); err != nil {
				return fmt.Errorf("close break: %w", err)
			}
		}
		if err := tx.EndSession(ctx, snap.Session.ID, *snap.Session.EndedAt); err != nil {
			return fmt.Errorf("close session: %w", err)
		}
		return nil
	})
	if err != nil {
		return snap, err
	}

	stats, statsErr := t.store.SessionStats(ctx, snap.Session.ID)
	if statsErr != nil {
		t.logger.Warn("session stats unavailable", "session", snap.Session.ID, "err", statsErr)
	}
	t.publish(ctx, events.TopicSessionStopped, events.SessionStopped{Session: snap.Session, Stats: stats})
	t.logger.Info("session stopped", "session", snap.Session.ID)

	if t.exportOnStop {
		if err := t.ExportSession(ctx, snap.Session.ID); err != nil {
			t.logger.Error("export on stop failed", "session", snap.Session.ID, "err", err)
		}
	}
	if t.archiver != nil && stats != nil {
		if err := t.archiver.ArchiveSession(ctx, snap.Session, stats); err != nil {
			t.logger.Error("session archive failed", "session", snap.Session.ID, "err", err)
		}
	}
	return snap, nil
}

// Status is the live view served by the control surface.
type Status struct {
	State         model.TrackingState `json:"state"`
	Session       *model.Session      `json:"session,omitempty"`
	Break         *model.BreakPeriod  `json:"break,omitempty"`
	SessionSecs   int64               `json:"session_secs"`
	BreakSecs     int64               `json:"break_secs"`
	IssueOverride string              `json:"issue_override,omitempty"`
	Stats         *model.SessionStats `json:"stats,omitempty"`
}

// Status reports the current state with live durations and, when a session
// is open, its aggregate stats.
func (t *Tracker) Status(ctx context.Context) *Status {
	snap := t.machine.Snapshot()
	st := &Status{
		State:         snap.State,
		Session:       snap.Session,
		Break:         snap.Break,
		IssueOverride: t.IssueOverride(),
	}
	if snap.Session != nil {
		st.SessionSecs = int64(snap.Session.Duration(snap.TakenAt).Seconds())
		stats, err := t.store.SessionStats(ctx, snap.Session.ID)
		if err != nil {
			t.logger.Warn("session stats unavailable", "session", snap.Session.ID, "err", err)
		} else {
			st.Stats = stats
			st.BreakSecs = stats.BreakSecs
		}
	}
	if snap.Break != nil {
		st.BreakSecs = int64(snap.Break.Duration(snap.TakenAt).Seconds())
	}
	return st
}

// SetIssueOverride pins the export target to one issue key. An empty key
// clears the override. The key is trimmed, uppercased, and validated.
func (t *Tracker) SetIssueOverride(key string) (string, error) {
	key = strings.ToUpper(strings.TrimSpace(key))
	if key != "" && !jira.ValidIssueKey(key) {
		return "", fmt.Errorf("invalid issue key %q", key)
	}
	t.mu.Lock()
	t.override = key
	t.mu.Unlock()
	// Pinning usually means automatic matching picked the wrong issue, so
	// refetch assigned issues on the next export.
	t.cache.invalidate()
	return key, nil
}

// IssueOverride returns the current override, or "".
func (t *Tracker) IssueOverride() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.override
}

func (t *Tracker) publish(ctx context.Context, topic string, event any) {
	if err := t.publisher.Publish(ctx, topic, event); err != nil {
		t.logger.Warn("event publish failed", "topic", topic, "err", err)
	}
}
