// Package hazard owns the set of active hazard zones derived from emergency
// events and their expiry rules.
package hazard

import (
	"slices"
	"strings"
	"sync"
	"time"

	apperrors "github.com/louisbranch/egress/internal/platform/errors"
	"github.com/louisbranch/egress/internal/services/emergency/domain/incident"
)

// ExpiryWindow is how long a non-critical zone survives without being cleared.
const ExpiryWindow = 30 * time.Minute

// Zone is the geofenced danger region derived from one event.
type Zone struct {
	ID                  string             `json:"id"`
	EventID             string             `json:"event_id"`
	Type                incident.EventType `json:"type"`
	Location            incident.Location  `json:"location"`
	RadiusMeters        float64            `json:"radius_meters"`
	Severity            incident.Severity  `json:"severity"`
	Active              bool               `json:"active"`
	CreatedAt           time.Time          `json:"created_at"`
	BlockedExits        []string           `json:"blocked_exits,omitempty"`
	AlternativeRouteIDs []string           `json:"alternative_route_ids,omitempty"`
}

// Critical reports whether the zone is exempt from automatic expiry.
func (z Zone) Critical() bool {
	return z.Severity == incident.SeverityCritical
}

// Contains reports whether loc lies within the zone radius.
func (z Zone) Contains(loc incident.Location) bool {
	return z.Location.DistanceTo(loc) <= z.RadiusMeters
}

// Blocks reports whether node is explicitly listed as a blocked exit.
func (z Zone) Blocks(node string) bool {
	return slices.Contains(z.BlockedExits, node)
}

// Expired reports whether a non-critical zone has outlived ExpiryWindow.
func (z Zone) Expired(now time.Time) bool {
	return !z.Critical() && now.Sub(z.CreatedAt) > ExpiryWindow
}

// Clone returns a deep copy of z.
func (z Zone) Clone() Zone {
	z.BlockedExits = slices.Clone(z.BlockedExits)
	z.AlternativeRouteIDs = slices.Clone(z.AlternativeRouteIDs)
	return z
}

// ZoneID derives the zone identifier owned by eventID.
func ZoneID(eventID string) string {
	return "hazard-" + eventID
}

// ZoneFromEvent builds the active zone for event, created at now; expiry
// counts from now, not from the reported timestamp. blockedExits lists exit
// nodes the caller already knows are unusable; it is copied and sorted.
func ZoneFromEvent(event incident.Event, blockedExits []string, now time.Time) Zone {
	blocked := slices.Clone(blockedExits)
	slices.Sort(blocked)
	return Zone{
		ID:           ZoneID(event.ID),
		EventID:      event.ID,
		Type:         event.Type,
		Location:     event.Location,
		RadiusMeters: event.RadiusMeters,
		Severity:     event.Severity,
		Active:       true,
		CreatedAt:    now.UTC(),
		BlockedExits: slices.Compact(blocked),
	}
}

// Registry holds hazard zones keyed by id. Reads return copies so callers
// never observe a zone change mid-iteration.
type Registry struct {
	mu    sync.RWMutex
	zones map[string]Zone
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{zones: make(map[string]Zone)}
}

// Upsert inserts or replaces zone by id.
func (r *Registry) Upsert(zone Zone) error {
	if strings.TrimSpace(zone.ID) == "" {
		return apperrors.New(apperrors.CodeInvalidZone, "hazard zone id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.zones[zone.ID] = zone.Clone()
	return nil
}

// Remove deletes the zone with id and reports whether it existed.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.zones[id]; !ok {
		return false
	}
	delete(r.zones, id)
	return true
}

// Get returns a copy of the zone with id.
func (r *Registry) Get(id string) (Zone, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	zone, ok := r.zones[id]
	if !ok {
		return Zone{}, false
	}
	return zone.Clone(), true
}

// Sweep removes every expired zone and returns the removed ids sorted.
func (r *Registry) Sweep(now time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed []string
	for id, zone := range r.zones {
		if zone.Expired(now) {
			delete(r.zones, id)
			removed = append(removed, id)
		}
	}
	slices.Sort(removed)
	return removed
}

// ActiveZones returns a sorted snapshot of the zones flagged active.
func (r *Registry) ActiveZones() []Zone {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Zone, 0, len(r.zones))
	for _, zone := range r.zones {
		if zone.Active {
			out = append(out, zone.Clone())
		}
	}
	slices.SortFunc(out, func(a, b Zone) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// Len returns the number of zones held, active or not.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.zones)
}
