// Package postgres implements the store.Store interface backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/groblegark/tempo/internal/model"
	"github.com/groblegark/tempo/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements store.Store backed by a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements store.Store.
var _ store.Store = (*PostgresStore)(nil)

// New opens a connection to the PostgreSQL database at the given URL,
// configures the connection pool, and runs any pending migrations.
func New(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) CreateSession(ctx context.Context, session *model.Session) error {
	return queryCreateSession(ctx, s.db, session)
}

func (s *PostgresStore) EndSession(ctx context.Context, id string, endedAt time.Time) error {
	return queryEndSession(ctx, s.db, id, endedAt)
}

func (s *PostgresStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	return queryGetSession(ctx, s.db, id)
}

func (s *PostgresStore) GetActiveSession(ctx context.Context) (*model.Session, error) {
	return queryGetActiveSession(ctx, s.db)
}

func (s *PostgresStore) ListSessions(ctx context.Context, limit int) ([]*model.Session, error) {
	return queryListSessions(ctx, s.db, limit)
}

func (s *PostgresStore) CreateBreak(ctx context.Context, brk *model.BreakPeriod) error {
	return queryCreateBreak(ctx, s.db, brk)
}

func (s *PostgresStore) EndBreak(ctx context.Context, id string, endedAt time.Time) error {
	return queryEndBreak(ctx, s.db, id, endedAt)
}

func (s *PostgresStore) GetOpenBreak(ctx context.Context, sessionID string) (*model.BreakPeriod, error) {
	return queryGetOpenBreak(ctx, s.db, sessionID)
}

func (s *PostgresStore) GetBreaks(ctx context.Context, sessionID string) ([]*model.BreakPeriod, error) {
	return queryGetBreaks(ctx, s.db, sessionID)
}

func (s *PostgresStore) StoreActivity(ctx context.Context, unit *model.ActivityUnit) error {
	return queryStoreActivity(ctx, s.db, unit)
}

func (s *PostgresStore) GetActivities(ctx context.Context, sessionID string, filter model.ActivityFilter) ([]*model.ActivityUnit, error) {
	return queryGetActivities(ctx, s.db, sessionID, filter)
}

func (s *PostgresStore) MarkExported(ctx context.Context, unitIDs []string) error {
	return queryMarkExported(ctx, s.db, unitIDs)
}

func (s *PostgresStore) StoreAnalysis(ctx context.Context, rec *model.AnalysisRecord) error {
	return queryStoreAnalysis(ctx, s.db, rec)
}

func (s *PostgresStore) GetAnalyses(ctx context.Context, sessionID string) ([]*model.AnalysisRecord, error) {
	return queryGetAnalyses(ctx, s.db, sessionID)
}

func (s *PostgresStore) SessionStats(ctx context.Context, sessionID string) (*model.SessionStats, error) {
	return querySessionStats(ctx, s.db, sessionID)
}

// RunInTransaction begins a database transaction, creates a txStore that
// delegates to it, calls fn, and commits on success or rolls back on error.
func (s *PostgresStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	txS := &txStore{tx: tx}
	if err := fn(txS); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// txStore implements store.Store using a *sql.Tx.
type txStore struct {
	tx *sql.Tx
}

// Compile-time check that txStore implements store.Store.
var _ store.Store = (*txStore)(nil)

func (s *txStore) CreateSession(ctx context.Context, session *model.Session) error {
	return queryCreateSession(ctx, s.tx, session)
}

func (s *txStore) EndSession(ctx context.Context, id string, endedAt time.Time) error {
	return queryEndSession(ctx, s.tx, id, endedAt)
}

func (s *txStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	return queryGetSession(ctx, s.tx, id)
}

func (s *txStore) GetActiveSession(ctx context.Context) (*model.Session, error) {
	return queryGetActiveSession(ctx, s.tx)
}

func (s *txStore) ListSessions(ctx context.Context, limit int) ([]*model.Session, error) {
	return queryListSessions(ctx, s.tx, limit)
}

func (s *txStore) CreateBreak(ctx context.Context, brk *model.BreakPeriod) error {
	return queryCreateBreak(ctx, s.tx, brk)
}

func (s *txStore) EndBreak(ctx context.Context, id string, endedAt time.Time) error {
	return queryEndBreak(ctx, s.tx, id, endedAt)
}

func (s *txStore) GetOpenBreak(ctx context.Context, sessionID string) (*model.BreakPeriod, error) {
	return queryGetOpenBreak(ctx, s.tx, sessionID)
}

func (s *txStore) GetBreaks(ctx context.Context, sessionID string) ([]*model.BreakPeriod, error) {
	return queryGetBreaks(ctx, s.tx, sessionID)
}

func (s *txStore) StoreActivity(ctx context.Context, unit *model.ActivityUnit) error {
	return queryStoreActivity(ctx, s.tx, unit)
}

func (s *txStore) GetActivities(ctx context.Context, sessionID string, filter model.ActivityFilter) ([]*model.ActivityUnit, error) {
	return queryGetActivities(ctx, s.tx, sessionID, filter)
}

func (s *txStore) MarkExported(ctx context.Context, unitIDs []string) error {
	return queryMarkExported(ctx, s.tx, unitIDs)
}

func (s *txStore) StoreAnalysis(ctx context.Context, rec *model.AnalysisRecord) error {
	return queryStoreAnalysis(ctx, s.tx, rec)
}

func (s *txStore) GetAnalyses(ctx context.Context, sessionID string) ([]*model.AnalysisRecord, error) {
	return queryGetAnalyses(ctx, s.tx, sessionID)
}

func (s *txStore) SessionStats(ctx context.Context, sessionID string) (*model.SessionStats, error) {
	return querySessionStats(ctx, s.tx, sessionID)
}

// RunInTransaction on a txStore reuses the existing transaction (no nesting).
func (s *txStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

// Close is a no-op for a transaction store; the parent store owns the connection.
func (s *txStore) Close() error {
	return nil
}
