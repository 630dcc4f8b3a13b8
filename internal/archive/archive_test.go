package archive

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/groblegark/tempo/internal/model"
	"github.com/groblegark/tempo/internal/store"
)

// reportStore serves canned rows for report building.
type reportStore struct {
	store.Store

	units    []*model.ActivityUnit
	breaks   []*model.BreakPeriod
	analyses []*model.AnalysisRecord
}

func (s *reportStore) GetActivities(context.Context, string, model.ActivityFilter) ([]*model.ActivityUnit, error) {
	return s.units, nil
}

func (s *reportStore) GetBreaks(context.Context, string) ([]*model.BreakPeriod, error) {
	return s.breaks, nil
}

func (s *reportStore) GetAnalyses(context.Context, string) ([]*model.AnalysisRecord, error) {
	return s.analyses, nil
}

func TestBuildReport(t *testing.T) {
	start := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)
	session := &model.Session{ID: "ts-1", StartedAt: start, EndedAt: &end}
	stats := &model.SessionStats{SessionID: "ts-1", StartedAt: start, TotalSecs: 7200}

	st := &reportStore{
		units: []*model.ActivityUnit{
			{ID: "au-1", SessionID: "ts-1", Timestamp: start, DurationSec: 600, AppName: "Code", Tier: model.TierBillable},
			{ID: "au-2", SessionID: "ts-1", Timestamp: start.Add(time.Hour), DurationSec: 60, AppName: "Slack", Tier: model.TierMicro},
		},
		breaks: []*model.BreakPeriod{
			{ID: "br-1", SessionID: "ts-1", StartedAt: start.Add(30 * time.Minute)},
		},
		analyses: []*model.AnalysisRecord{
			{ID: "an-1", SessionID: "ts-1", AnalyzedAt: end, Confidence: 0.8},
		},
	}

	data, err := BuildReport(context.Background(), st, session, stats)
	if err != nil {
		t.Fatalf("BuildReport: %v", err)
	}

	var types []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		var line struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			t.Fatalf("line not valid JSON: %v", err)
		}
		types = append(types, line.Type)
	}
	want := []string{"header", "session", "stats", "break", "activity", "activity", "analysis"}
	if len(types) != len(want) {
		t.Fatalf("lines = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("line %d type = %s, want %s", i, types[i], want[i])
		}
	}

	var hdr header
	first := bytes.SplitN(data, []byte("\n"), 2)[0]
	if err := json.Unmarshal(first, &hdr); err != nil {
		t.Fatal(err)
	}
	if hdr.SessionID != "ts-1" || hdr.UnitCount != 2 || hdr.Version != "1" {
		t.Errorf("header = %+v", hdr)
	}
}
