// Package auditlog mirrors every execute_locus attempt to Postgres for
// analytics. It is additive telemetry: the registry/phenotype/regression
// files remain the engine's sole source of truth, this is a durable
// side-channel a dashboard can query without touching engine state.
package auditlog

import (
	"context"
	"embed"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	_ "github.com/lib/pq"

	"github.com/selfgene/sg/internal/engerr"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Entry is one recorded execute_locus attempt.
type Entry struct {
	ID         string    `db:"id"`
	Locus      string    `db:"locus"`
	AlleleID   string    `db:"allele_id"`
	Outcome    string    `db:"outcome"`
	DurationMS int64     `db:"duration_ms"`
	Error      string    `db:"error"`
	RecordedAt time.Time `db:"recorded_at"`
}

// Log is a durable mirror of execution attempts backed by Postgres.
type Log struct {
	db *sqlx.DB
}

// Open connects to dsn and configures the connection pool.
func Open(dsn string, maxOpenConns, maxIdleConns int, connMaxLifetime time.Duration) (*Log, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, engerr.Internal("failed to connect to audit database", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	return &Log{db: db}, nil
}

// Migrate applies the embedded schema migrations, skipping if already current.
func (l *Log) Migrate() error {
	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return engerr.Internal("failed to load embedded migrations", err)
	}
	driver, err := postgres.WithInstance(l.db.DB, &postgres.Config{})
	if err != nil {
		return engerr.Internal("failed to init migration driver", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return engerr.Internal("failed to init migrator", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return engerr.Internal("failed to apply migrations", err)
	}
	return nil
}

// Record persists one execute_locus attempt.
func (l *Log) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now().UTC()
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO execution_audit_log (id, locus, allele_id, outcome, duration_ms, error, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.ID, e.Locus, e.AlleleID, e.Outcome, e.DurationMS, e.Error, e.RecordedAt)
	if err != nil {
		return engerr.Internal("failed to record execution audit entry", err)
	}
	return nil
}

// RecentByLocus returns the most recent entries for locus, newest first.
func (l *Log) RecentByLocus(ctx context.Context, locus string, limit int) ([]Entry, error) {
	var entries []Entry
	err := l.db.SelectContext(ctx, &entries, `
		SELECT id, locus, allele_id, outcome, duration_ms, error, recorded_at
		FROM execution_audit_log
		WHERE locus = $1
		ORDER BY recorded_at DESC
		LIMIT $2
	`, locus, limit)
	if err != nil {
		return nil, engerr.Internal("failed to query execution audit log", err)
	}
	return entries, nil
}

// Close releases the underlying connection pool.
func (l *Log) Close() error {
	return l.db.Close()
}
