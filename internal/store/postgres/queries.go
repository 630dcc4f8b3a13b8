package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/groblegark/tempo/internal/model"
)

// sessionColumns is the column list used for SELECT statements on the sessions table.
const sessionColumns = `id, started_at, ended_at, state`

// activityColumns is the column list used for SELECT statements on the activity_units table.
const activityColumns = `id, session_id, observed_at, duration_secs, app_name, window_title, text_sample, tier, exported`

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryCreateSession(ctx context.Context, db executor, s *model.Session) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO sessions (id, started_at, ended_at, state)
		VALUES ($1, $2, $3, $4)`,
		s.ID,
		s.StartedAt,
		nullTimePtr(s.EndedAt),
		string(s.State),
	)
	return err
}

func queryEndSession(ctx context.Context, db executor, id string, endedAt time.Time) error {
	res, err := db.ExecContext(ctx, `
		UPDATE sessions
		SET ended_at = $2, state = 'stopped'
		WHERE id = $1 AND ended_at IS NULL`,
		id, endedAt,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func queryGetSession(ctx context.Context, db executor, id string) (*model.Session, error) {
	row := db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	return scanSession(row)
}

func queryGetActiveSession(ctx context.Context, db executor) (*model.Session, error) {
	row := db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE ended_at IS NULL
		ORDER BY started_at DESC
		LIMIT 1`)
	return scanSession(row)
}

func queryListSessions(ctx context.Context, db executor, limit int) ([]*model.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions ORDER BY started_at DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()
	return scanSessions(rows)
}

func queryCreateBreak(ctx context.Context, db executor, b *model.BreakPeriod) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO breaks (id, session_id, started_at, ended_at)
		VALUES ($1, $2, $3, $4)`,
		b.ID,
		b.SessionID,
		b.StartedAt,
		nullTimePtr(b.EndedAt),
	)
	return err
}

func queryEndBreak(ctx context.Context, db executor, id string, endedAt time.Time) error {
	res, err := db.ExecContext(ctx, `
		UPDATE breaks
		SET ended_at = $2
		WHERE id = $1 AND ended_at IS NULL`,
		id, endedAt,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func queryGetOpenBreak(ctx context.Context, db executor, sessionID string) (*model.BreakPeriod, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, session_id, started_at, ended_at
		FROM breaks
		WHERE session_id = $1 AND ended_at IS NULL`,
		sessionID,
	)
	return scanBreak(row)
}

func queryGetBreaks(ctx context.Context, db executor, sessionID string) ([]*model.BreakPeriod, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, session_id, started_at, ended_at
		FROM breaks
		WHERE session_id = $1
		ORDER BY started_at ASC`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBreaks(rows)
}

func queryStoreActivity(ctx context.Context, db executor, u *model.ActivityUnit) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO activity_units (
			id, session_id, observed_at, duration_secs,
			app_name, window_title, text_sample, tier, exported
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8, $9
		)`,
		u.ID,
		u.SessionID,
		u.Timestamp,
		u.DurationSec,
		u.AppName,
		u.WindowTitle,
		nullString(u.TextSample),
		string(u.Tier),
		u.Exported,
	)
	return err
}

func queryGetActivities(ctx context.Context, db executor, sessionID string, filter model.ActivityFilter) ([]*model.ActivityUnit, error) {
	whereClauses := []string{"session_id = $1"}
	args := []any{sessionID}
	argIdx := 1

	nextArg := func() string {
		argIdx++
		return fmt.Sprintf("$%d", argIdx)
	}

	if filter.Tier != "" {
		whereClauses = append(whereClauses, "tier = "+nextArg())
		args = append(args, string(filter.Tier))
	}
	if filter.UnexportedOnly {
		whereClauses = append(whereClauses, "exported = FALSE")
	}

	query := `SELECT ` + activityColumns + ` FROM activity_units WHERE ` +
		strings.Join(whereClauses, " AND ") + ` ORDER BY observed_at ASC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get activities: %w", err)
	}
	defer rows.Close()
	return scanActivities(rows)
}

func queryMarkExported(ctx context.Context, db executor, unitIDs []string) error {
	if len(unitIDs) == 0 {
		return nil
	}
	_, err := db.ExecContext(ctx, `
		UPDATE activity_units
		SET exported = TRUE
		WHERE id = ANY($1)`,
		pq.Array(unitIDs),
	)
	return err
}

func queryStoreAnalysis(ctx context.Context, db executor, r *model.AnalysisRecord) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO analysis_results (id, session_id, analyzed_at, raw_result, confidence)
		VALUES ($1, $2, $3, $4, $5)`,
		r.ID,
		r.SessionID,
		r.AnalyzedAt,
		jsonbBytes(r.RawResult),
		r.Confidence,
	)
	return err
}

func queryGetAnalyses(ctx context.Context, db executor, sessionID string) ([]*model.AnalysisRecord, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, session_id, analyzed_at, raw_result, confidence
		FROM analysis_results
		WHERE session_id = $1
		ORDER BY analyzed_at ASC`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAnalyses(rows)
}

func querySessionStats(ctx context.Context, db executor, sessionID string) (*model.SessionStats, error) {
	stats := &model.SessionStats{SessionID: sessionID}

	var endedAt sql.NullTime
	err := db.QueryRowContext(ctx, `
		SELECT
			s.started_at,
			s.ended_at,
			EXTRACT(EPOCH FROM (COALESCE(s.ended_at, NOW()) - s.started_at))::bigint,
			COALESCE((
				SELECT SUM(EXTRACT(EPOCH FROM (COALESCE(b.ended_at, NOW()) - b.started_at)))
				FROM breaks b WHERE b.session_id = s.id
			), 0)::bigint
		FROM sessions s
		WHERE s.id = $1`,
		sessionID,
	).Scan(&stats.StartedAt, &endedAt, &stats.TotalSecs, &stats.BreakSecs)
	if err != nil {
		return nil, fmt.Errorf("session stats: %w", err)
	}
	if endedAt.Valid {
		t := endedAt.Time
		stats.EndedAt = &t
	}

	err = db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN tier = 'billable' THEN duration_secs ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN tier = 'micro' THEN duration_secs ELSE 0 END), 0),
			COUNT(*),
			COALESCE(SUM(CASE WHEN tier = 'billable' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN tier = 'micro' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN exported THEN 1 ELSE 0 END), 0)
		FROM activity_units
		WHERE session_id = $1`,
		sessionID,
	).Scan(
		&stats.BillableSecs,
		&stats.MicroSecs,
		&stats.TotalUnits,
		&stats.BillableUnits,
		&stats.MicroUnits,
		&stats.ExportedUnits,
	)
	if err != nil {
		return nil, fmt.Errorf("activity stats: %w", err)
	}

	return stats, nil
}
