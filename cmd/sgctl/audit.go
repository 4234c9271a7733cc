package main

import (
	"context"
	"fmt"
	"time"

	"github.com/selfgene/sg/internal/auditlog"
	"github.com/selfgene/sg/internal/engconfig"
	"github.com/selfgene/sg/internal/obslog"
)

// auditSink adapts *auditlog.Log to orchestrator.AuditSink. Record errors
// are logged rather than surfaced: a broken audit mirror must never fail
// an execute_locus call, since the registry/phenotype files remain the
// engine's source of truth.
type auditSink struct {
	log    *auditlog.Log
	logger *obslog.Logger
}

func (s *auditSink) Record(ctx context.Context, locus, alleleID, outcome string, durationMS int64, errMsg string) {
	err := s.log.Record(ctx, auditlog.Entry{
		Locus:      locus,
		AlleleID:   alleleID,
		Outcome:    outcome,
		DurationMS: durationMS,
		Error:      errMsg,
	})
	if err != nil && s.logger != nil {
		s.logger.Warn(ctx, "audit log record failed", map[string]interface{}{"error": err.Error(), "locus": locus})
	}
}

// newAuditSink opens the Postgres audit mirror when SG_AUDIT_DSN is set,
// running embedded migrations on first connect. Returns a nil sink (and
// no error) when no DSN is configured, so running without Postgres stays
// the zero-config default.
func newAuditSink(cfg *engconfig.Config, logger *obslog.Logger) (*auditSink, error) {
	if cfg.Database.DSN == "" {
		return nil, nil
	}
	log, err := auditlog.Open(
		cfg.Database.DSN,
		cfg.Database.MaxOpenConns,
		cfg.Database.MaxIdleConns,
		time.Duration(cfg.Database.ConnMaxLifetime)*time.Second,
	)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	if cfg.Database.MigrateOnStart {
		if err := log.Migrate(); err != nil {
			return nil, fmt.Errorf("migrate audit log: %w", err)
		}
	}
	return &auditSink{log: log, logger: logger}, nil
}
