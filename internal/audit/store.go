package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// Store persists the redaction audit trail in PostgreSQL.
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// Config contains database configuration
type Config struct {
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
}

const schema = `
CREATE TABLE IF NOT EXISTS redaction_events (
	id             BIGSERIAL PRIMARY KEY,
	document_hash  TEXT NOT NULL,
	source         TEXT NOT NULL,
	lines_redacted INTEGER NOT NULL DEFAULT 0,
	spans_applied  INTEGER NOT NULL DEFAULT 0,
	spans_dropped  INTEGER NOT NULL DEFAULT 0,
	kinds          TEXT NOT NULL DEFAULT '',
	detect_ms      DOUBLE PRECISION NOT NULL DEFAULT 0,
	redact_ms      DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// NewStore creates a new audit store instance
func NewStore(config *Config, logger *zap.Logger) (*Store, error) {
	db, err := sqlx.Connect("postgres", config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	store := &Store{
		db:     db,
		logger: logger,
	}

	if err := store.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	logger.Info("Audit store initialized successfully",
		zap.String("database_url", maskDatabaseURL(config.DatabaseURL)),
		zap.Int("max_open_conns", config.MaxOpenConns),
		zap.Int("max_idle_conns", config.MaxIdleConns))

	return store, nil
}

// initialize checks the database connection and ensures the events table
func (s *Store) initialize() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure redaction_events table: %w", err)
	}

	return nil
}

// Insert adds a single audit event
func (s *Store) Insert(ctx context.Context, event *Event) error {
	query := `
		INSERT INTO redaction_events
			(document_hash, source, lines_redacted, spans_applied, spans_dropped, kinds, detect_ms, redact_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`

	err := s.db.QueryRowContext(ctx, query,
		event.DocumentHash,
		event.Source,
		event.LinesRedacted,
		event.SpansApplied,
		event.SpansDropped,
		event.Kinds,
		event.DetectMS,
		event.RedactMS,
	).Scan(&event.ID, &event.CreatedAt)

	if err != nil {
		s.logger.Error("Failed to insert audit event",
			zap.Error(err),
			zap.String("document_hash", event.DocumentHash),
			zap.String("source", event.Source))
		return fmt.Errorf("failed to insert audit event: %w", err)
	}

	s.logger.Debug("Audit event recorded",
		zap.Int64("id", event.ID),
		zap.String("source", event.Source),
		zap.Int("spans_applied", event.SpansApplied))

	return nil
}

// BatchInsert adds multiple audit events efficiently
func (s *Store) BatchInsert(ctx context.Context, events []*Event) (*BatchInsertResult, error) {
	if len(events) == 0 {
		return &BatchInsertResult{}, nil
	}

	start := time.Now()
	result := &BatchInsertResult{}

	valueStrings := make([]string, 0, len(events))
	valueArgs := make([]interface{}, 0, len(events)*8)

	for i, event := range events {
		valueStrings = append(valueStrings, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			i*8+1, i*8+2, i*8+3, i*8+4, i*8+5, i*8+6, i*8+7, i*8+8))
		valueArgs = append(valueArgs,
			event.DocumentHash,
			event.Source,
			event.LinesRedacted,
			event.SpansApplied,
			event.SpansDropped,
			event.Kinds,
			event.DetectMS,
			event.RedactMS,
		)
	}

	query := fmt.Sprintf(`
		INSERT INTO redaction_events
			(document_hash, source, lines_redacted, spans_applied, spans_dropped, kinds, detect_ms, redact_ms)
		VALUES %s`,
		strings.Join(valueStrings, ","))

	res, err := s.db.ExecContext(ctx, query, valueArgs...)
	if err != nil {
		result.Failed = int64(len(events))
		s.logger.Error("Batch insert failed", zap.Error(err))
		return result, fmt.Errorf("batch insert failed: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		s.logger.Warn("Could not get rows affected", zap.Error(err))
		inserted = int64(len(events))
	}

	result.Inserted = inserted
	result.Failed = int64(len(events)) - inserted
	result.Duration = time.Since(start)

	s.logger.Info("Batch insert completed",
		zap.Int64("inserted", result.Inserted),
		zap.Int64("failed", result.Failed),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// Recent returns the most recent audit events, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]*Event, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, document_hash, source, lines_redacted, spans_applied,
		       spans_dropped, kinds, detect_ms, redact_ms, created_at
		FROM redaction_events
		ORDER BY created_at DESC
		LIMIT $1`

	var events []*Event
	if err := s.db.SelectContext(ctx, &events, query, limit); err != nil {
		return nil, fmt.Errorf("failed to query recent events: %w", err)
	}

	return events, nil
}

// GetTotals returns aggregate audit statistics
func (s *Store) GetTotals(ctx context.Context) (*Totals, error) {
	totals := &Totals{}

	query := `
		SELECT
			COUNT(*) as total_events,
			COALESCE(SUM(lines_redacted), 0) as total_lines,
			COALESCE(SUM(spans_applied), 0) as total_spans,
			COUNT(CASE WHEN source = 'batch' THEN 1 END) as batch_events,
			COUNT(CASE WHEN source <> 'batch' THEN 1 END) as request_events
		FROM redaction_events`

	err := s.db.QueryRowContext(ctx, query).Scan(
		&totals.TotalEvents,
		&totals.TotalLines,
		&totals.TotalSpans,
		&totals.BatchEvents,
		&totals.RequestEvents,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get audit totals: %w", err)
	}

	return totals, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// KindsList formats per-kind findings into the stored kinds column.
func KindsList(kinds []string) string {
	return strings.Join(kinds, ",")
}

// maskDatabaseURL masks sensitive information in database URL for logging
func maskDatabaseURL(url string) string {
	// Simple masking - replace password with ***
	if strings.Contains(url, "@") {
		parts := strings.Split(url, "@")
		if len(parts) >= 2 {
			userPart := parts[0]
			if strings.Contains(userPart, ":") {
				userParts := strings.Split(userPart, ":")
				if len(userParts) >= 3 {
					userParts[len(userParts)-1] = "***"
					parts[0] = strings.Join(userParts, ":")
				}
			}
			return strings.Join(parts, "@")
		}
	}
	return url
}
