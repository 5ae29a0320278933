package app

import (
	"context"
	"log"

	"github.com/louisbranch/egress/internal/services/emergency/domain/escalation"
	"github.com/louisbranch/egress/internal/services/emergency/domain/incident"
)

// LogBroadcaster writes alerts to the process log. It stands in when no
// delivery transport is configured.
type LogBroadcaster struct{}

// BroadcastEvacuationAlert implements Broadcaster.
func (LogBroadcaster) BroadcastEvacuationAlert(_ context.Context, alert Alert) error {
	log.Printf("alert %s [%s]: %s", alert.EventID, alert.ThreatLevel, alert.Message)
	return nil
}

// LogDispatcher writes dispatch requests to the process log.
type LogDispatcher struct{}

// DispatchNotification implements escalation.Dispatcher.
func (LogDispatcher) DispatchNotification(_ context.Context, contactType escalation.ContactType, event incident.Event, level incident.ThreatLevel) error {
	log.Printf("dispatch %s for event %s (%s, level %s)", contactType, event.ID, event.Type, level)
	return nil
}
