package escalation

import (
	"context"
	"log"
	"slices"
	"sync"
	"time"

	apperrors "github.com/louisbranch/egress/internal/platform/errors"
	"github.com/louisbranch/egress/internal/services/emergency/domain/incident"
)

// Dispatcher delivers a notification to the external responder channel.
type Dispatcher interface {
	DispatchNotification(ctx context.Context, contactType ContactType, event incident.Event, level incident.ThreatLevel) error
}

// Notification describes one Notify result.
type Notification struct {
	EventID     string               `json:"event_id"`
	ContactType ContactType          `json:"contact_type"`
	ContactName string               `json:"contact_name"`
	Level       incident.ThreatLevel `json:"level"`
	SentAt      time.Time            `json:"sent_at"`
	// Duplicate is set when the pair was already notified or is in flight.
	Duplicate bool `json:"duplicate"`
}

type notifyKey struct {
	eventID     string
	contactType ContactType
}

// Escalator owns contact state and per-event notification bookkeeping.
type Escalator struct {
	dispatcher Dispatcher
	clock      func() time.Time
	// statusLock, when set, is held by every other writer of contact status;
	// Notify takes it before marking a contact responding.
	statusLock sync.Locker

	mu       sync.Mutex
	contacts map[ContactType]Contact
	// sent holds pairs that are delivered or currently being dispatched.
	sent map[notifyKey]bool
}

// NewEscalator builds an escalator over directory. Later entries replace
// earlier ones of the same type.
func NewEscalator(directory []Contact, dispatcher Dispatcher, clock func() time.Time) *Escalator {
	if clock == nil {
		clock = time.Now
	}
	contacts := make(map[ContactType]Contact, len(directory))
	for _, c := range directory {
		if c.Status == "" {
			c.Status = StatusAvailable
		}
		contacts[c.Type] = c
	}
	return &Escalator{
		dispatcher: dispatcher,
		clock:      clock,
		contacts:   contacts,
		sent:       make(map[notifyKey]bool),
	}
}

// SetStatusLock makes Notify take lock around its contact status write. The
// owner of lock must hold it when calling UpdateStatus or ApplyStatuses.
// Call before the first Notify.
func (e *Escalator) SetStatusLock(lock sync.Locker) {
	e.statusLock = lock
}

// Notify dispatches one notification for (event, contactType). Repeats for a
// pair that was delivered or is in flight return Duplicate without another
// dispatch. A failed dispatch leaves the contact untouched and the pair
// eligible for a later retry.
func (e *Escalator) Notify(ctx context.Context, contactType ContactType, event incident.Event, level incident.ThreatLevel) (Notification, error) {
	key := notifyKey{eventID: event.ID, contactType: contactType}

	e.mu.Lock()
	contact, ok := e.contacts[contactType]
	if !ok {
		e.mu.Unlock()
		return Notification{}, apperrors.WithMetadata(apperrors.CodeInvalidContact, "contact not in directory", map[string]string{"contact_type": string(contactType)})
	}
	result := Notification{EventID: event.ID, ContactType: contactType, ContactName: contact.Name, Level: level}
	if _, seen := e.sent[key]; seen {
		e.mu.Unlock()
		result.Duplicate = true
		return result, nil
	}
	e.sent[key] = false
	e.mu.Unlock()

	var err error
	if e.dispatcher != nil {
		err = e.dispatcher.DispatchNotification(ctx, contactType, event.Clone(), level)
	}

	if err == nil && e.statusLock != nil {
		e.statusLock.Lock()
		defer e.statusLock.Unlock()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		delete(e.sent, key)
		return Notification{}, apperrors.Wrap(apperrors.CodeNotificationFailure, "dispatch "+string(contactType), err)
	}
	// ForgetEvent may have run while dispatching; only record live pairs.
	if _, live := e.sent[key]; live {
		e.sent[key] = true
	}
	contact = e.contacts[contactType]
	if contact.Status != StatusOnSite {
		contact.Status = StatusResponding
		e.contacts[contactType] = contact
	}
	result.SentAt = e.clock().UTC()
	return result, nil
}

// UpdateStatus applies an external status change for contactType.
func (e *Escalator) UpdateStatus(contactType ContactType, status ContactStatus) error {
	if !status.Valid() {
		return apperrors.WithMetadata(apperrors.CodeInvalidContact, "unknown contact status", map[string]string{"status": string(status)})
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	contact, ok := e.contacts[contactType]
	if !ok {
		return apperrors.WithMetadata(apperrors.CodeInvalidContact, "contact not in directory", map[string]string{"contact_type": string(contactType)})
	}
	contact.Status = status
	e.contacts[contactType] = contact
	return nil
}

// ApplyStatuses applies a polled status snapshot and returns the types whose
// status changed. Unknown types and statuses are skipped.
func (e *Escalator) ApplyStatuses(statuses map[ContactType]ContactStatus) []ContactType {
	e.mu.Lock()
	defer e.mu.Unlock()
	var changed []ContactType
	for contactType, status := range statuses {
		contact, ok := e.contacts[contactType]
		if !ok || !status.Valid() {
			log.Printf("escalation: skip status %q for %q", status, contactType)
			continue
		}
		if contact.Status == status {
			continue
		}
		contact.Status = status
		e.contacts[contactType] = contact
		changed = append(changed, contactType)
	}
	slices.Sort(changed)
	return changed
}

// Contacts returns a directory snapshot in ContactTypes order.
func (e *Escalator) Contacts() []Contact {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Contact, 0, len(e.contacts))
	for _, contactType := range ContactTypes() {
		if c, ok := e.contacts[contactType]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Contact returns the directory entry for contactType.
func (e *Escalator) Contact(contactType ContactType) (Contact, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.contacts[contactType]
	return c, ok
}

// Notified reports whether (eventID, contactType) was delivered.
func (e *Escalator) Notified(eventID string, contactType ContactType) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sent[notifyKey{eventID: eventID, contactType: contactType}]
}

// ForgetEvent drops notification bookkeeping for a cleared event.
func (e *Escalator) ForgetEvent(eventID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for key := range e.sent {
		if key.eventID == eventID {
			delete(e.sent, key)
		}
	}
}
