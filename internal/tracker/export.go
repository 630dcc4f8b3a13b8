package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/groblegark/tempo/internal/classify"
	"github.com/groblegark/tempo/internal/crm"
	"github.com/groblegark/tempo/internal/events"
	"github.com/groblegark/tempo/internal/idgen"
	"github.com/groblegark/tempo/internal/jira"
	"github.com/groblegark/tempo/internal/model"
)

// ExportSession pushes the session's unexported units to the issue tracker.
// The classifier path groups units per issue in one batch; when the
// classifier is unavailable or fails, the deterministic fallback matches
// each unit from its window title. Units stay unexported unless their
// worklog was accepted, so a partial failure is retried on the next run.
func (t *Tracker) ExportSession(ctx context.Context, sessionID string) error {
	if t.issues == nil {
		t.logger.Debug("issue tracker not configured, skipping export", "session", sessionID)
		return nil
	}

	units, err := t.store.GetActivities(ctx, sessionID, model.ActivityFilter{UnexportedOnly: true})
	if err != nil {
		return fmt.Errorf("load units: %w", err)
	}
	if len(units) == 0 {
		t.logger.Debug("nothing to export", "session", sessionID)
		return nil
	}

	if t.classifier != nil {
		err := t.exportWithClassifier(ctx, sessionID, units)
		if err == nil {
			return nil
		}
		t.logger.Warn("classifier export failed, using fallback", "session", sessionID, "err", err)
	}
	return t.exportFallback(ctx, sessionID, units)
}

func (t *Tracker) exportWithClassifier(ctx context.Context, sessionID string, units []*model.ActivityUnit) error {
	assigned, err := t.cache.get(ctx, t.issues.GetAssignedIssues)
	if err != nil {
		return fmt.Errorf("assigned issues: %w", err)
	}
	if len(assigned) == 0 {
		return fmt.Errorf("no assigned issues to match against")
	}

	stats, err := t.store.SessionStats(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("session stats: %w", err)
	}
	sessionEnd := t.now()
	if stats.EndedAt != nil {
		sessionEnd = *stats.EndedAt
	}

	in := classify.BatchInput{
		UserEmail:      t.userEmail,
		AssignedIssues: assigned,
		SessionStart:   stats.StartedAt,
		SessionEnd:     sessionEnd,
		TrackingSecs:   stats.TotalSecs - stats.BreakSecs,
		BreakSecs:      stats.BreakSecs,
	}
	for _, u := range units {
		if u.Tier == model.TierBillable {
			in.Billable = append(in.Billable, u)
		} else {
			in.Micro = append(in.Micro, u)
		}
	}

	resp, err := t.classifier.AnalyzeBatch(ctx, in)
	if err != nil {
		return fmt.Errorf("analyze batch: %w", err)
	}
	t.recordAnalysis(ctx, sessionID, &resp.Analysis)

	assignedKeys := make(map[string]bool, len(assigned))
	for _, iss := range assigned {
		assignedKeys[iss.Key] = true
	}

	var matched int
	for _, m := range resp.Analysis.Issues {
		if m.Confidence < t.confidence {
			t.logger.Info("match below confidence threshold, skipped",
				"issue", m.Key, "confidence", m.Confidence, "units", len(m.UnitIDs))
			continue
		}
		if !assignedKeys[m.Key] {
			t.logger.Warn("classifier matched an unassigned issue, skipped", "issue", m.Key)
			continue
		}
		wl := jira.Worklog{
			Comment:          fmt.Sprintf("%s [%s]", m.Summary, m.WorkType),
			TimeSpentSeconds: m.TotalTimeSecs,
			Started:          stats.StartedAt,
		}
		if err := t.issues.LogWork(ctx, m.Key, wl); err != nil {
			t.logger.Error("worklog rejected", "issue", m.Key, "err", err)
			continue
		}
		if err := t.store.MarkExported(ctx, m.UnitIDs); err != nil {
			t.logger.Error("mark exported failed", "issue", m.Key, "err", err)
		}
		matched += len(m.UnitIDs)
		t.mirrorEntry(ctx, m.Key, m.Summary, stats.StartedAt, m.TotalTimeSecs)
	}

	if n := len(resp.Analysis.Unmatched.UnitIDs); n > 0 {
		t.logger.Info("units left unmatched",
			"session", sessionID, "units", n, "reason", resp.Analysis.Unmatched.LikelyReason)
	}
	for _, flag := range resp.Analysis.RedFlags {
		t.logger.Warn("classifier red flag", "session", sessionID, "flag", flag)
	}

	t.publish(ctx, events.TopicExportCompleted, events.ExportCompleted{
		SessionID:      sessionID,
		MatchedUnits:   matched,
		UnmatchedUnits: len(units) - matched,
	})
	return nil
}

// exportFallback logs one worklog per billable unit, resolving the issue
// key from the pinned override or from the window title. Micro units are
// left for the next classifier run. Units with no resolvable key, or keys
// not assigned to the user, are skipped.
func (t *Tracker) exportFallback(ctx context.Context, sessionID string, units []*model.ActivityUnit) error {
	override := t.IssueOverride()

	var matched int
	for _, u := range units {
		if u.Tier != model.TierBillable {
			continue
		}
		key := override
		if key == "" {
			key = jira.FindIssueKey(u.WindowTitle + " " + u.AppName)
		}
		if key == "" {
			continue
		}
		ok, err := t.issues.IsAssignedToMe(ctx, key)
		if err != nil {
			t.logger.Error("assignment check failed", "issue", key, "err", err)
			continue
		}
		if !ok {
			t.logger.Info("issue not assigned to user, skipped", "issue", key)
			continue
		}
		wl := jira.Worklog{
			Comment:          fmt.Sprintf("Auto-tracked: %s - %s", u.AppName, u.WindowTitle),
			TimeSpentSeconds: u.DurationSec,
			Started:          u.Timestamp,
		}
		if err := t.issues.LogWork(ctx, key, wl); err != nil {
			t.logger.Error("worklog rejected", "issue", key, "err", err)
			continue
		}
		if err := t.store.MarkExported(ctx, []string{u.ID}); err != nil {
			t.logger.Error("mark exported failed", "unit", u.ID, "err", err)
		}
		matched++
		t.mirrorEntry(ctx, key, u.WindowTitle, u.Timestamp, u.DurationSec)
	}

	t.publish(ctx, events.TopicExportCompleted, events.ExportCompleted{
		SessionID:      sessionID,
		MatchedUnits:   matched,
		UnmatchedUnits: len(units) - matched,
		Fallback:       true,
	})
	return nil
}

// recordAnalysis persists the raw classifier output for audit. Failures
// are logged and do not block the export.
func (t *Tracker) recordAnalysis(ctx context.Context, sessionID string, analysis *classify.Analysis) {
	id, err := idgen.Analysis()
	if err != nil {
		t.logger.Error("analysis id generation failed", "err", err)
		return
	}
	raw, err := json.Marshal(analysis)
	if err != nil {
		t.logger.Error("analysis marshal failed", "err", err)
		return
	}
	rec := &model.AnalysisRecord{
		ID:         id,
		SessionID:  sessionID,
		AnalyzedAt: t.now(),
		RawResult:  raw,
		Confidence: analysis.Confidence,
	}
	if err := t.store.StoreAnalysis(ctx, rec); err != nil {
		t.logger.Error("analysis persist failed", "session", sessionID, "err", err)
	}
}

// mirrorEntry copies an accepted worklog into the CRM. Mirroring is best
// effort, credited time lives in the issue tracker.
func (t *Tracker) mirrorEntry(ctx context.Context, issueKey, description string, start time.Time, secs int64) {
	if t.mirror == nil {
		return
	}
	entry := crm.TimeEntry{
		Name:            fmt.Sprintf("Auto-tracked: %s", issueKey),
		StartTime:       start,
		DurationMinutes: float64(secs) / 60,
		Description:     description,
	}
	if err := t.mirror.LogTime(ctx, entry); err != nil {
		t.logger.Warn("crm mirror failed", "issue", issueKey, "err", err)
	}
}
