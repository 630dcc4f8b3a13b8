package tracker

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/groblegark/tempo/internal/capture"
	"github.com/groblegark/tempo/internal/model"
	"github.com/groblegark/tempo/internal/store"
)

// memStore is an in-memory store.Store for tracker tests.
type memStore struct {
	mu       sync.Mutex
	sessions map[string]*model.Session
	breaks   map[string]*model.BreakPeriod
	units    map[string]*model.ActivityUnit
	analyses []*model.AnalysisRecord

	createSessionErr error
	storeActivityErr error
}

func newMemStore() *memStore {
	return &memStore{
		sessions: make(map[string]*model.Session),
		breaks:   make(map[string]*model.BreakPeriod),
		units:    make(map[string]*model.ActivityUnit),
	}
}

func (m *memStore) CreateSession(_ context.Context, s *model.Session) error {
	if m.createSessionErr != nil {
		return m.createSessionErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *memStore) EndSession(_ context.Context, id string, endedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.EndedAt != nil {
		return fmt.Errorf("session %s not open", id)
	}
	s.EndedAt = &endedAt
	s.State = model.StateStopped
	return nil
}

func (m *memStore) GetSession(_ context.Context, id string) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s not found", id)
	}
	cp := *s
	return &cp, nil
}

// GetActiveSession follows the postgres store and surfaces sql.ErrNoRows
// when no session is open.
func (m *memStore) GetActiveSession(_ context.Context) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.EndedAt == nil {
			cp := *s
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memStore) ListSessions(_ context.Context, limit int) ([]*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Session
	for _, s := range m.sessions {
		cp := *s
		out = append(out, &cp)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) CreateBreak(_ context.Context, b *model.BreakPeriod) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *b
	m.breaks[b.ID] = &cp
	return nil
}

func (m *memStore) EndBreak(_ context.Context, id string, endedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.breaks[id]
	if !ok || b.EndedAt != nil {
		return fmt.Errorf("break %s not open", id)
	}
	b.EndedAt = &endedAt
	return nil
}

func (m *memStore) GetOpenBreak(_ context.Context, sessionID string) (*model.BreakPeriod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.breaks {
		if b.SessionID == sessionID && b.EndedAt == nil {
			cp := *b
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memStore) GetBreaks(_ context.Context, sessionID string) ([]*model.BreakPeriod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.BreakPeriod
	for _, b := range m.breaks {
		if b.SessionID == sessionID {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) StoreActivity(_ context.Context, u *model.ActivityUnit) error {
	if m.storeActivityErr != nil {
		return m.storeActivityErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.units[u.ID] = &cp
	return nil
}

func (m *memStore) GetActivities(_ context.Context, sessionID string, filter model.ActivityFilter) ([]*model.ActivityUnit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.ActivityUnit
	for _, u := range m.units {
		if u.SessionID != sessionID {
			continue
		}
		if filter.UnexportedOnly && u.Exported {
			continue
		}
		if filter.Tier != "" && u.Tier != filter.Tier {
			continue
		}
		cp := *u
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memStore) MarkExported(_ context.Context, unitIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range unitIDs {
		if u, ok := m.units[id]; ok {
			u.Exported = true
		}
	}
	return nil
}

func (m *memStore) StoreAnalysis(_ context.Context, rec *model.AnalysisRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.analyses = append(m.analyses, &cp)
	return nil
}

func (m *memStore) GetAnalyses(_ context.Context, sessionID string) ([]*model.AnalysisRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.AnalysisRecord
	for _, a := range m.analyses {
		if a.SessionID == sessionID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) SessionStats(_ context.Context, sessionID string) (*model.SessionStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %s not found", sessionID)
	}
	stats := &model.SessionStats{
		SessionID: sessionID,
		StartedAt: s.StartedAt,
		EndedAt:   s.EndedAt,
	}
	end := time.Now()
	if s.EndedAt != nil {
		end = *s.EndedAt
	}
	stats.TotalSecs = int64(end.Sub(s.StartedAt).Seconds())
	for _, b := range m.breaks {
		if b.SessionID != sessionID {
			continue
		}
		bEnd := end
		if b.EndedAt != nil {
			bEnd = *b.EndedAt
		}
		stats.BreakSecs += int64(bEnd.Sub(b.StartedAt).Seconds())
	}
	for _, u := range m.units {
		if u.SessionID != sessionID {
			continue
		}
		stats.TotalUnits++
		if u.Exported {
			stats.ExportedUnits++
		}
		if u.Tier == model.TierBillable {
			stats.BillableUnits++
			stats.BillableSecs += u.DurationSec
		} else {
			stats.MicroUnits++
			stats.MicroSecs += u.DurationSec
		}
	}
	return stats, nil
}

func (m *memStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(m)
}

func (m *memStore) Close() error { return nil }

func (m *memStore) unexported(sessionID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int
	for _, u := range m.units {
		if u.SessionID == sessionID && !u.Exported {
			n++
		}
	}
	return n
}

// mockCapture records FetchSince calls and serves canned observations.
type mockCapture struct {
	mu    sync.Mutex
	obs   []capture.Observation
	err   error
	calls []fetchCall
}

type fetchCall struct {
	since time.Time
	until time.Time
}

func (c *mockCapture) FetchSince(_ context.Context, since, until time.Time) ([]capture.Observation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, fetchCall{since: since, until: until})
	if c.err != nil {
		return nil, c.err
	}
	return c.obs, nil
}

func (c *mockCapture) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

// fakeClock is a settable clock shared by tracker and tests.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{t: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestTracker(t *testing.T, opts Options) (*Tracker, *memStore, *fakeClock) {
	t.Helper()
	clock := newFakeClock(time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC))
	ms := newMemStore()
	if opts.Store == nil {
		opts.Store = ms
	} else {
		ms, _ = opts.Store.(*memStore)
	}
	if opts.Capture == nil {
		opts.Capture = &mockCapture{}
	}
	opts.Logger = testLogger()
	opts.Clock = clock.Now
	return New(opts), ms, clock
}

func TestStartPersistsSession(t *testing.T) {
	tr, ms, _ := newTestTracker(t, Options{})

	snap, err := tr.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if snap.State != model.StateTracking {
		t.Errorf("state = %s, want tracking", snap.State)
	}
	stored, err := ms.GetSession(context.Background(), snap.Session.ID)
	if err != nil {
		t.Fatalf("session not persisted: %v", err)
	}
	if stored.EndedAt != nil {
		t.Error("persisted session should be open")
	}
}

func TestStartTwiceFails(t *testing.T) {
	tr, _, _ := newTestTracker(t, Options{})

	if _, err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := tr.Start(context.Background()); err == nil {
		t.Fatal("second Start should fail while tracking")
	}
}

func TestStartPersistFailureRollsBack(t *testing.T) {
	ms := newMemStore()
	ms.createSessionErr = fmt.Errorf("db down")
	tr, _, _ := newTestTracker(t, Options{Store: ms})

	if _, err := tr.Start(context.Background()); err == nil {
		t.Fatal("Start should surface persistence failure")
	}
	if got := tr.Snapshot().State; got != model.StateStopped {
		t.Errorf("state after failed start = %s, want stopped", got)
	}
}

func TestPauseAndResumePersistBreak(t *testing.T) {
	tr, ms, clock := newTestTracker(t, Options{})
	ctx := context.Background()

	snap, err := tr.Start(ctx)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	sessionID := snap.Session.ID

	clock.Advance(10 * time.Minute)
	pSnap, err := tr.Pause(ctx)
	if err != nil {
		t.Fatalf("Pause: %v", err)
	}
	open, err := ms.GetOpenBreak(ctx, sessionID)
	if err != nil || open == nil {
		t.Fatalf("open break not persisted: %v", err)
	}
	if open.ID != pSnap.Break.ID {
		t.Errorf("open break id = %s, want %s", open.ID, pSnap.Break.ID)
	}

	clock.Advance(5 * time.Minute)
	if _, err := tr.Resume(ctx); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	open, _ = ms.GetOpenBreak(ctx, sessionID)
	if open != nil {
		t.Error("break should be closed after resume")
	}
	breaks, _ := ms.GetBreaks(ctx, sessionID)
	if len(breaks) != 1 {
		t.Fatalf("breaks = %d, want 1", len(breaks))
	}
	if got := breaks[0].EndedAt.Sub(breaks[0].StartedAt); got != 5*time.Minute {
		t.Errorf("break duration = %v, want 5m", got)
	}
}

func TestStartWhilePausedResumes(t *testing.T) {
	tr, ms, clock := newTestTracker(t, Options{})
	ctx := context.Background()

	first, err := tr.Start(ctx)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	clock.Advance(time.Minute)
	if _, err := tr.Pause(ctx); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	clock.Advance(time.Minute)

	snap, err := tr.Start(ctx)
	if err != nil {
		t.Fatalf("Start while paused: %v", err)
	}
	if snap.Session.ID != first.Session.ID {
		t.Errorf("start while paused created new session %s", snap.Session.ID)
	}
	if snap.State != model.StateTracking {
		t.Errorf("state = %s, want tracking", snap.State)
	}
	if open, _ := ms.GetOpenBreak(ctx, first.Session.ID); open != nil {
		t.Error("break should be closed when start resumes")
	}
}

func TestStopClosesSessionAndOpenBreak(t *testing.T) {
	tr, ms, clock := newTestTracker(t, Options{})
	ctx := context.Background()

	snap, err := tr.Start(ctx)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	sessionID := snap.Session.ID
	clock.Advance(30 * time.Minute)
	if _, err := tr.Pause(ctx); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	clock.Advance(10 * time.Minute)

	stopSnap, err := tr.Stop(ctx)
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if stopSnap.Session.EndedAt == nil {
		t.Fatal("stop snapshot should carry the closed session")
	}

	stored, _ := ms.GetSession(ctx, sessionID)
	if stored.EndedAt == nil {
		t.Error("session should be closed in store")
	}
	if open, _ := ms.GetOpenBreak(ctx, sessionID); open != nil {
		t.Error("open break should be closed on stop")
	}
	if got := tr.Snapshot().State; got != model.StateStopped {
		t.Errorf("state = %s, want stopped", got)
	}
}

func TestStopWithoutSessionFails(t *testing.T) {
	tr, _, _ := newTestTracker(t, Options{})
	if _, err := tr.Stop(context.Background()); err == nil {
		t.Fatal("Stop without a session should fail")
	}
}

func TestSetIssueOverride(t *testing.T) {
	tr, _, _ := newTestTracker(t, Options{})

	key, err := tr.SetIssueOverride("  proj-42 ")
	if err != nil {
		t.Fatalf("SetIssueOverride: %v", err)
	}
	if key != "PROJ-42" {
		t.Errorf("normalized key = %q, want PROJ-42", key)
	}
	if got := tr.IssueOverride(); got != "PROJ-42" {
		t.Errorf("IssueOverride = %q", got)
	}

	if _, err := tr.SetIssueOverride("not a key"); err == nil {
		t.Error("invalid key should be rejected")
	}
	if got := tr.IssueOverride(); got != "PROJ-42" {
		t.Errorf("failed set should not clobber override, got %q", got)
	}

	if _, err := tr.SetIssueOverride(""); err != nil {
		t.Fatalf("clearing override: %v", err)
	}
	if got := tr.IssueOverride(); got != "" {
		t.Errorf("override should be cleared, got %q", got)
	}
}

func TestStatus(t *testing.T) {
	tr, _, clock := newTestTracker(t, Options{})
	ctx := context.Background()

	st := tr.Status(ctx)
	if st.State != model.StateStopped || st.Session != nil {
		t.Fatalf("idle status = %+v", st)
	}

	snap, err := tr.Start(ctx)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	clock.Advance(42 * time.Minute)

	st = tr.Status(ctx)
	if st.State != model.StateTracking {
		t.Errorf("state = %s, want tracking", st.State)
	}
	if st.Session == nil || st.Session.ID != snap.Session.ID {
		t.Fatal("status should carry the open session")
	}
	if st.SessionSecs != int64((42 * time.Minute).Seconds()) {
		t.Errorf("session secs = %d, want %d", st.SessionSecs, 42*60)
	}
	if st.Stats == nil {
		t.Error("status should include stats for the open session")
	}
}

func TestStopExportsWhenConfigured(t *testing.T) {
	issues := &mockIssues{assignedTo: map[string]bool{"PROJ-7": true}}
	ms := newMemStore()
	tr, _, clock := newTestTracker(t, Options{
		Store:        ms,
		Issues:       issues,
		ExportOnStop: true,
	})
	ctx := context.Background()

	snap, err := tr.Start(ctx)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	clock.Advance(20 * time.Minute)
	seedUnit(t, ms, snap.Session.ID, "u1", "Code", "PROJ-7 fix flaky test", 1200, model.TierBillable)

	if _, err := tr.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := issues.workCount(); got != 1 {
		t.Errorf("worklogs on stop = %d, want 1", got)
	}
	if got := ms.unexported(snap.Session.ID); got != 0 {
		t.Errorf("unexported units after stop = %d, want 0", got)
	}
}

func seedUnit(t *testing.T, ms *memStore, sessionID, id, app, title string, secs int64, tier model.Tier) {
	t.Helper()
	err := ms.StoreActivity(context.Background(), &model.ActivityUnit{
		ID:          id,
		SessionID:   sessionID,
		Timestamp:   time.Date(2026, 8, 28, 9, 5, 0, 0, time.UTC),
		DurationSec: secs,
		AppName:     app,
		WindowTitle: title,
		Tier:        tier,
	})
	if err != nil {
		t.Fatalf("seed unit: %v", err)
	}
}
