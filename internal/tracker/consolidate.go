package tracker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/groblegark/tempo/internal/capture"
	"github.com/groblegark/tempo/internal/idgen"
	"github.com/groblegark/tempo/internal/model"
)

// maxSampleLen bounds the text sample stored per unit. The classifier
// truncates further on its side.
const maxSampleLen = 2000

// ConsolidateOnce pulls observations captured since the cursor, folds them
// into per-application units, and persists the result. No-op unless the
// tracker is actively tracking. The cursor advances after a successful
// fetch even if persistence of individual units fails, so a bad row is
// skipped rather than refetched forever.
func (t *Tracker) ConsolidateOnce(ctx context.Context) error {
	return t.consolidateOnce(ctx)
}

func (t *Tracker) consolidateOnce(ctx context.Context) error {
	snap := t.machine.Snapshot()
	if snap.State != model.StateTracking {
		return nil
	}

	t.mu.Lock()
	since := t.cursor
	t.mu.Unlock()
	if since.IsZero() {
		since = snap.Session.StartedAt
	}
	until := t.now()

	obs, err := t.capture.FetchSince(ctx, since, until)
	if err != nil {
		return fmt.Errorf("fetch observations: %w", err)
	}

	t.mu.Lock()
	t.cursor = until
	t.mu.Unlock()

	units := consolidate(obs, snap.Session.ID, t.threshold)
	var failed int
	for _, u := range units {
		id, err := idgen.Activity()
		if err != nil {
			return err
		}
		u.ID = id
		if err := t.store.StoreActivity(ctx, u); err != nil {
			t.logger.Error("store activity failed", "app", u.AppName, "err", err)
			failed++
		}
	}
	if len(units) > 0 {
		t.logger.Debug("consolidated observations",
			"session", snap.Session.ID, "observations", len(obs), "units", len(units))
	}
	if failed > 0 {
		return fmt.Errorf("storing units: %d of %d failed", failed, len(units))
	}
	return nil
}

// consolidate groups observations that share an application and window
// title into a single unit, summing durations and keeping the earliest
// timestamp. Group order follows first appearance.
func consolidate(obs []capture.Observation, sessionID string, threshold time.Duration) []*model.ActivityUnit {
	type group struct {
		first time.Time
		total int64
		app   string
		title string
		texts []string
	}

	var order []string
	groups := make(map[string]*group)
	for _, o := range obs {
		key := o.AppName + "\x00" + o.WindowTitle
		g, ok := groups[key]
		if !ok {
			g = &group{first: o.Timestamp, app: o.AppName, title: o.WindowTitle}
			groups[key] = g
			order = append(order, key)
		}
		g.total += o.DurationSec
		if o.Timestamp.Before(g.first) {
			g.first = o.Timestamp
		}
		if o.Text != "" {
			g.texts = append(g.texts, o.Text)
		}
	}

	units := make([]*model.ActivityUnit, 0, len(order))
	for _, key := range order {
		g := groups[key]
		sample := strings.Join(g.texts, "\n")
		if len(sample) > maxSampleLen {
			sample = sample[:maxSampleLen]
		}
		units = append(units, &model.ActivityUnit{
			SessionID:   sessionID,
			Timestamp:   g.first,
			DurationSec: g.total,
			AppName:     g.app,
			WindowTitle: g.title,
			TextSample:  sample,
			Tier:        model.TierForDuration(time.Duration(g.total)*time.Second, threshold),
		})
	}
	return units
}
