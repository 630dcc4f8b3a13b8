package tracker

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/groblegark/tempo/internal/capture"
	"github.com/groblegark/tempo/internal/model"
)

func obsAt(t time.Time, app, title string, secs int64) capture.Observation {
	return capture.Observation{Timestamp: t, DurationSec: secs, AppName: app, WindowTitle: title}
}

func TestConsolidate_GroupsByAppAndTitle(t *testing.T) {
	base := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	obs := []capture.Observation{
		obsAt(base, "X", "A", 60),
		obsAt(base.Add(time.Minute), "X", "A", 60),
		obsAt(base.Add(2*time.Minute), "Y", "B", 30),
	}

	units := consolidate(obs, "ts-1", 10*time.Minute)
	if len(units) != 2 {
		t.Fatalf("units = %d, want 2", len(units))
	}
	if units[0].AppName != "X" || units[0].DurationSec != 120 {
		t.Errorf("first unit = %s/%d, want X/120", units[0].AppName, units[0].DurationSec)
	}
	if !units[0].Timestamp.Equal(base) {
		t.Errorf("first unit timestamp = %v, want earliest observation", units[0].Timestamp)
	}
	if units[1].AppName != "Y" || units[1].DurationSec != 30 {
		t.Errorf("second unit = %s/%d, want Y/30", units[1].AppName, units[1].DurationSec)
	}
	for _, u := range units {
		if u.SessionID != "ts-1" {
			t.Errorf("unit session = %s, want ts-1", u.SessionID)
		}
		if u.Exported {
			t.Error("new units must start unexported")
		}
	}
}

func TestConsolidate_SameAppDifferentTitleSplits(t *testing.T) {
	base := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	obs := []capture.Observation{
		obsAt(base, "Code", "main.go", 60),
		obsAt(base.Add(time.Minute), "Code", "parser.go", 60),
	}
	units := consolidate(obs, "ts-1", 10*time.Minute)
	if len(units) != 2 {
		t.Fatalf("units = %d, want 2 (distinct titles must not merge)", len(units))
	}
}

func TestConsolidate_TierBoundary(t *testing.T) {
	base := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	threshold := 10 * time.Minute

	tests := []struct {
		secs int64
		want model.Tier
	}{
		{599, model.TierMicro},
		{600, model.TierBillable},
		{601, model.TierBillable},
	}
	for _, tt := range tests {
		units := consolidate([]capture.Observation{obsAt(base, "X", "A", tt.secs)}, "ts-1", threshold)
		if got := units[0].Tier; got != tt.want {
			t.Errorf("tier for %ds = %s, want %s", tt.secs, got, tt.want)
		}
	}
}

func TestConsolidate_TextSampleBounded(t *testing.T) {
	base := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	big := strings.Repeat("x", maxSampleLen)
	obs := []capture.Observation{
		{Timestamp: base, DurationSec: 60, AppName: "X", WindowTitle: "A", Text: big},
		{Timestamp: base.Add(time.Minute), DurationSec: 60, AppName: "X", WindowTitle: "A", Text: big},
	}
	units := consolidate(obs, "ts-1", 10*time.Minute)
	if got := len(units[0].TextSample); got != maxSampleLen {
		t.Errorf("sample length = %d, want capped at %d", got, maxSampleLen)
	}
}

func TestConsolidateOnce_NoopWhenNotTracking(t *testing.T) {
	cap := &mockCapture{}
	tr, _, _ := newTestTracker(t, Options{Capture: cap})

	if err := tr.ConsolidateOnce(context.Background()); err != nil {
		t.Fatalf("ConsolidateOnce: %v", err)
	}
	if got := cap.callCount(); got != 0 {
		t.Errorf("fetch calls = %d, want 0 while stopped", got)
	}
}

func TestConsolidateOnce_NoopWhilePaused(t *testing.T) {
	cap := &mockCapture{}
	tr, _, _ := newTestTracker(t, Options{Capture: cap})
	ctx := context.Background()

	if _, err := tr.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := tr.Pause(ctx); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	before := cap.callCount()
	if err := tr.ConsolidateOnce(ctx); err != nil {
		t.Fatalf("ConsolidateOnce: %v", err)
	}
	if got := cap.callCount(); got != before {
		t.Errorf("fetch calls while paused = %d, want %d", got, before)
	}
}

func TestConsolidateOnce_StoresUnits(t *testing.T) {
	base := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	cap := &mockCapture{obs: []capture.Observation{
		obsAt(base, "Code", "main.go", 60),
		obsAt(base.Add(time.Minute), "Code", "main.go", 60),
	}}
	tr, ms, clock := newTestTracker(t, Options{Capture: cap})
	ctx := context.Background()

	snap, err := tr.Start(ctx)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	clock.Advance(5 * time.Minute)

	if err := tr.ConsolidateOnce(ctx); err != nil {
		t.Fatalf("ConsolidateOnce: %v", err)
	}
	units, _ := ms.GetActivities(ctx, snap.Session.ID, model.ActivityFilter{})
	if len(units) != 1 {
		t.Fatalf("stored units = %d, want 1", len(units))
	}
	if units[0].DurationSec != 120 {
		t.Errorf("duration = %d, want 120", units[0].DurationSec)
	}
	if units[0].ID == "" {
		t.Error("stored unit must carry a generated id")
	}
}

func TestConsolidateOnce_CursorAdvances(t *testing.T) {
	cap := &mockCapture{}
	tr, _, clock := newTestTracker(t, Options{Capture: cap})
	ctx := context.Background()

	snap, err := tr.Start(ctx)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	clock.Advance(5 * time.Minute)
	if err := tr.ConsolidateOnce(ctx); err != nil {
		t.Fatalf("first ConsolidateOnce: %v", err)
	}
	clock.Advance(5 * time.Minute)
	if err := tr.ConsolidateOnce(ctx); err != nil {
		t.Fatalf("second ConsolidateOnce: %v", err)
	}

	cap.mu.Lock()
	defer cap.mu.Unlock()
	if len(cap.calls) != 2 {
		t.Fatalf("fetch calls = %d, want 2", len(cap.calls))
	}
	if !cap.calls[0].since.Equal(snap.Session.StartedAt) {
		t.Errorf("first window starts at %v, want session start", cap.calls[0].since)
	}
	if !cap.calls[1].since.Equal(cap.calls[0].until) {
		t.Errorf("second window starts at %v, want previous until %v",
			cap.calls[1].since, cap.calls[0].until)
	}
}

func TestConsolidateOnce_FetchErrorKeepsCursor(t *testing.T) {
	cap := &mockCapture{err: fmt.Errorf("capture down")}
	tr, _, clock := newTestTracker(t, Options{Capture: cap})
	ctx := context.Background()

	if _, err := tr.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	clock.Advance(5 * time.Minute)
	if err := tr.ConsolidateOnce(ctx); err == nil {
		t.Fatal("fetch failure should surface")
	}

	cap.mu.Lock()
	cap.err = nil
	cap.mu.Unlock()
	clock.Advance(5 * time.Minute)
	if err := tr.ConsolidateOnce(ctx); err != nil {
		t.Fatalf("retry ConsolidateOnce: %v", err)
	}

	cap.mu.Lock()
	defer cap.mu.Unlock()
	if !cap.calls[1].since.Equal(cap.calls[0].since) {
		t.Errorf("cursor must not advance on fetch failure: retry since = %v, want %v",
			cap.calls[1].since, cap.calls[0].since)
	}
}

func TestConsolidateOnce_StoreErrorAdvancesCursor(t *testing.T) {
	base := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	ms := newMemStore()
	ms.storeActivityErr = fmt.Errorf("db down")
	cap := &mockCapture{obs: []capture.Observation{obsAt(base, "X", "A", 60)}}
	tr, _, clock := newTestTracker(t, Options{Store: ms, Capture: cap})
	ctx := context.Background()

	if _, err := tr.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	clock.Advance(5 * time.Minute)
	if err := tr.ConsolidateOnce(ctx); err == nil {
		t.Fatal("store failure should surface")
	}
	clock.Advance(5 * time.Minute)
	ms.storeActivityErr = nil
	if err := tr.ConsolidateOnce(ctx); err != nil {
		t.Fatalf("retry: %v", err)
	}

	cap.mu.Lock()
	defer cap.mu.Unlock()
	if !cap.calls[1].since.Equal(cap.calls[0].until) {
		t.Errorf("cursor advances after a successful fetch even when persistence fails")
	}
}
