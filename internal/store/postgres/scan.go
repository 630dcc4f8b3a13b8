package postgres

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/groblegark/tempo/internal/model"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanSession scans a single row into a model.Session.
// The row must contain columns in the order defined by sessionColumns.
func scanSession(row scannable) (*model.Session, error) {
	var s model.Session
	var endedAt sql.NullTime

	if err := row.Scan(&s.ID, &s.StartedAt, &endedAt, &s.State); err != nil {
		return nil, err
	}
	if endedAt.Valid {
		t := endedAt.Time
		s.EndedAt = &t
	}
	return &s, nil
}

// scanSessions scans multiple rows into a slice of model.Session pointers.
func scanSessions(rows *sql.Rows) ([]*model.Session, error) {
	var sessions []*model.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

// scanBreak scans a single row into a model.BreakPeriod.
func scanBreak(row scannable) (*model.BreakPeriod, error) {
	var b model.BreakPeriod
	var endedAt sql.NullTime

	if err := row.Scan(&b.ID, &b.SessionID, &b.StartedAt, &endedAt); err != nil {
		return nil, err
	}
	if endedAt.Valid {
		t := endedAt.Time
		b.EndedAt = &t
	}
	return &b, nil
}

// scanBreaks scans multiple rows into a slice of model.BreakPeriod pointers.
func scanBreaks(rows *sql.Rows) ([]*model.BreakPeriod, error) {
	var breaks []*model.BreakPeriod
	for rows.Next() {
		b, err := scanBreak(rows)
		if err != nil {
			return nil, err
		}
		breaks = append(breaks, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return breaks, nil
}

// scanActivity scans a single row into a model.ActivityUnit.
// The row must contain columns in the order defined by activityColumns.
func scanActivity(row scannable) (*model.ActivityUnit, error) {
	var u model.ActivityUnit
	var textSample sql.NullString

	err := row.Scan(
		&u.ID,
		&u.SessionID,
		&u.Timestamp,
		&u.DurationSec,
		&u.AppName,
		&u.WindowTitle,
		&textSample,
		&u.Tier,
		&u.Exported,
	)
	if err != nil {
		return nil, err
	}
	u.TextSample = textSample.String
	return &u, nil
}

// scanActivities scans multiple rows into a slice of model.ActivityUnit pointers.
func scanActivities(rows *sql.Rows) ([]*model.ActivityUnit, error) {
	var units []*model.ActivityUnit
	for rows.Next() {
		u, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return units, nil
}

// scanAnalysis scans a single row into a model.AnalysisRecord.
func scanAnalysis(row scannable) (*model.AnalysisRecord, error) {
	var r model.AnalysisRecord
	var raw []byte

	if err := row.Scan(&r.ID, &r.SessionID, &r.AnalyzedAt, &raw, &r.Confidence); err != nil {
		return nil, err
	}
	if len(raw) > 0 {
		r.RawResult = json.RawMessage(raw)
	}
	return &r, nil
}

// scanAnalyses scans multiple rows into a slice of model.AnalysisRecord pointers.
func scanAnalyses(rows *sql.Rows) ([]*model.AnalysisRecord, error) {
	var records []*model.AnalysisRecord
	for rows.Next() {
		r, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// nullTimePtr converts a *time.Time to a sql.NullTime.
func nullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// nullString converts a string to sql.NullString; empty string is null.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// jsonbBytes converts json.RawMessage to a []byte suitable for JSONB columns.
func jsonbBytes(m json.RawMessage) []byte {
	if len(m) == 0 {
		return nil
	}
	return []byte(m)
}
