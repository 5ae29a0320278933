// Package storage defines the durable audit journal of emergency events and
// responder dispatch attempts.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates a journal record was not found.
var ErrNotFound = errors.New("journal record not found")

// Clear reasons recorded with MarkCleared.
const (
	ClearReasonOperator = "operator"
	ClearReasonExpired  = "expired"
)

// Dispatch outcomes recorded with RecordDispatchAttempt.
const (
	DispatchDelivered = "delivered"
	DispatchFailed    = "failed"
)

// EventRecord is one journaled emergency event.
type EventRecord struct {
	EventID             string
	EventType           string
	Severity            string
	ThreatLevel         string
	X                   float64
	Y                   float64
	Floor               int
	RadiusMeters        float64
	EvacuationRequested bool
	ReportedAt          time.Time
	RecordedAt          time.Time
	ClearedAt           *time.Time
	ClearReason         string
}

// DispatchAttempt is one durable responder notification outcome.
type DispatchAttempt struct {
	ID          int64
	EventID     string
	ContactType string
	ThreatLevel string
	Outcome     string
	LastError   string
	CreatedAt   time.Time
}

// Journal persists the emergency audit trail.
type Journal interface {
	// RecordEvent stores event; a repeated event id keeps the first record.
	RecordEvent(ctx context.Context, event EventRecord) error
	// MarkCleared stamps an event as cleared. ErrNotFound when unknown.
	MarkCleared(ctx context.Context, eventID string, reason string, clearedAt time.Time) error
	RecordDispatchAttempt(ctx context.Context, attempt DispatchAttempt) error
	ListEvents(ctx context.Context, limit int) ([]EventRecord, error)
	ListDispatchAttempts(ctx context.Context, eventID string, limit int) ([]DispatchAttempt, error)
}
