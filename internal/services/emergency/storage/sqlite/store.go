package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/louisbranch/egress/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/egress/internal/services/emergency/storage"
	"github.com/louisbranch/egress/internal/services/emergency/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed journal persistence.
type Store struct {
	sqlDB *sql.DB
	clock func() time.Time
}

// Open opens a journal SQLite store and applies migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(ctx, sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, clock: time.Now}, nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

// RecordEvent persists one event; a repeated id keeps the original row.
func (s *Store) RecordEvent(ctx context.Context, event storage.EventRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	event.EventID = strings.TrimSpace(event.EventID)
	if event.EventID == "" {
		return fmt.Errorf("event id is required")
	}
	if strings.TrimSpace(event.EventType) == "" {
		return fmt.Errorf("event type is required")
	}
	if event.ReportedAt.IsZero() {
		return fmt.Errorf("reported at is required")
	}
	if event.RecordedAt.IsZero() {
		event.RecordedAt = s.clock().UTC()
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO emergency_events (
	event_id,
	event_type,
	severity,
	threat_level,
	location_x,
	location_y,
	floor,
	radius_meters,
	evacuation_requested,
	reported_at,
	recorded_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(event_id) DO NOTHING
`,
		event.EventID,
		event.EventType,
		event.Severity,
		event.ThreatLevel,
		event.X,
		event.Y,
		event.Floor,
		event.RadiusMeters,
		boolToInt(event.EvacuationRequested),
		event.ReportedAt.UTC().UnixMilli(),
		event.RecordedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	return nil
}

// MarkCleared stamps eventID as cleared for reason.
func (s *Store) MarkCleared(ctx context.Context, eventID string, reason string, clearedAt time.Time) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return fmt.Errorf("event id is required")
	}
	if clearedAt.IsZero() {
		clearedAt = s.clock()
	}
	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE emergency_events
SET cleared_at = ?, clear_reason = ?
WHERE event_id = ?
`, clearedAt.UTC().UnixMilli(), strings.TrimSpace(reason), eventID)
	if err != nil {
		return fmt.Errorf("mark cleared: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark cleared rows: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// RecordDispatchAttempt persists one responder notification outcome.
func (s *Store) RecordDispatchAttempt(ctx context.Context, attempt storage.DispatchAttempt) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	attempt.EventID = strings.TrimSpace(attempt.EventID)
	attempt.ContactType = strings.TrimSpace(attempt.ContactType)
	attempt.Outcome = strings.TrimSpace(attempt.Outcome)
	if attempt.EventID == "" {
		return fmt.Errorf("event id is required")
	}
	if attempt.ContactType == "" {
		return fmt.Errorf("contact type is required")
	}
	if attempt.Outcome == "" {
		return fmt.Errorf("outcome is required")
	}
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = s.clock()
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO dispatch_attempts (
	event_id,
	contact_type,
	threat_level,
	outcome,
	last_error,
	created_at
) VALUES (?, ?, ?, ?, ?, ?)
`,
		attempt.EventID,
		attempt.ContactType,
		attempt.ThreatLevel,
		attempt.Outcome,
		strings.TrimSpace(attempt.LastError),
		attempt.CreatedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("record dispatch attempt: %w", err)
	}
	return nil
}

// ListEvents lists newest-first journaled events.
func (s *Store) ListEvents(ctx context.Context, limit int) ([]storage.EventRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT
	event_id,
	event_type,
	severity,
	threat_level,
	location_x,
	location_y,
	floor,
	radius_meters,
	evacuation_requested,
	reported_at,
	recorded_at,
	cleared_at,
	clear_reason
FROM emergency_events
ORDER BY reported_at DESC, event_id ASC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	records := make([]storage.EventRecord, 0, limit)
	for rows.Next() {
		var (
			record     storage.EventRecord
			evacuation int
			reportedAt int64
			recordedAt int64
			clearedAt  sql.NullInt64
		)
		if err := rows.Scan(
			&record.EventID,
			&record.EventType,
			&record.Severity,
			&record.ThreatLevel,
			&record.X,
			&record.Y,
			&record.Floor,
			&record.RadiusMeters,
			&evacuation,
			&reportedAt,
			&recordedAt,
			&clearedAt,
			&record.ClearReason,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		record.EvacuationRequested = evacuation != 0
		record.ReportedAt = time.UnixMilli(reportedAt).UTC()
		record.RecordedAt = time.UnixMilli(recordedAt).UTC()
		if clearedAt.Valid {
			at := time.UnixMilli(clearedAt.Int64).UTC()
			record.ClearedAt = &at
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return records, nil
}

// ListDispatchAttempts lists newest-first attempts for eventID.
func (s *Store) ListDispatchAttempts(ctx context.Context, eventID string, limit int) ([]storage.DispatchAttempt, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT
	id,
	event_id,
	contact_type,
	threat_level,
	outcome,
	last_error,
	created_at
FROM dispatch_attempts
WHERE event_id = ?
ORDER BY created_at DESC, id DESC
LIMIT ?
`, strings.TrimSpace(eventID), limit)
	if err != nil {
		return nil, fmt.Errorf("list dispatch attempts: %w", err)
	}
	defer rows.Close()

	attempts := make([]storage.DispatchAttempt, 0, limit)
	for rows.Next() {
		var attempt storage.DispatchAttempt
		var createdAt int64
		if err := rows.Scan(
			&attempt.ID,
			&attempt.EventID,
			&attempt.ContactType,
			&attempt.ThreatLevel,
			&attempt.Outcome,
			&attempt.LastError,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan dispatch attempt: %w", err)
		}
		attempt.CreatedAt = time.UnixMilli(createdAt).UTC()
		attempts = append(attempts, attempt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dispatch attempts: %w", err)
	}
	return attempts, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

var _ storage.Journal = (*Store)(nil)
