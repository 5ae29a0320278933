package app

import (
	"context"
	"time"

	"github.com/louisbranch/egress/internal/services/emergency/domain/escalation"
	"github.com/louisbranch/egress/internal/services/emergency/domain/hazard"
	"github.com/louisbranch/egress/internal/services/emergency/domain/incident"
	"github.com/louisbranch/egress/internal/services/emergency/render"
	"github.com/louisbranch/egress/internal/services/emergency/storage"
)

// Alert is the evacuation broadcast handed to the alert-delivery collaborator.
type Alert struct {
	EventID     string               `json:"event_id"`
	ThreatLevel incident.ThreatLevel `json:"threat_level"`
	Message     string               `json:"message"`
	// Messages holds the announcement per BCP 47 tag.
	Messages map[string]string `json:"messages"`
	Zone     hazard.Zone       `json:"zone"`
	Evacuate bool              `json:"evacuate"`
	IssuedAt time.Time         `json:"issued_at"`
}

// Broadcaster delivers evacuation alerts to occupants.
type Broadcaster interface {
	BroadcastEvacuationAlert(ctx context.Context, alert Alert) error
}

// StatusFeed reports responder availability.
type StatusFeed interface {
	ContactStatuses(ctx context.Context) (map[escalation.ContactType]escalation.ContactStatus, error)
}

// Journal is the audit trail subset the coordinator writes to.
type Journal interface {
	RecordEvent(ctx context.Context, event storage.EventRecord) error
	MarkCleared(ctx context.Context, eventID string, reason string, clearedAt time.Time) error
	RecordDispatchAttempt(ctx context.Context, attempt storage.DispatchAttempt) error
}

// AlertRenderer localizes alert announcements.
type AlertRenderer interface {
	Announcements(input render.Input) map[string]string
}
