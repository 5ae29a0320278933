package incident

import (
	"math"
	"slices"
	"strings"
	"time"

	apperrors "github.com/louisbranch/egress/internal/platform/errors"
)

// EventType classifies what kind of emergency was reported.
type EventType string

const (
	EventFire             EventType = "fire"
	EventSecurityThreat   EventType = "security_threat"
	EventMedicalEmergency EventType = "medical_emergency"
	EventStructuralDamage EventType = "structural_damage"
	EventChemicalSpill    EventType = "chemical_spill"
)

// EventTypes lists every recognised event type in declaration order.
func EventTypes() []EventType {
	return []EventType{
		EventFire,
		EventSecurityThreat,
		EventMedicalEmergency,
		EventStructuralDamage,
		EventChemicalSpill,
	}
}

// Valid reports whether t is a recognised event type.
func (t EventType) Valid() bool {
	return slices.Contains(EventTypes(), t)
}

// Severity is the reporter-assigned severity of an event.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Score maps severity onto 1..4; unknown severities score 0.
func (s Severity) Score() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// Valid reports whether s is a recognised severity.
func (s Severity) Valid() bool {
	return s.Score() > 0
}

// floorHeightMeters converts floor separation into distance for proximity checks.
const floorHeightMeters = 5.0

// Location is a point inside the facility.
type Location struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Floor int     `json:"floor"`
}

// DistanceTo returns straight-line meters between l and other, counting each
// floor of separation as floorHeightMeters of vertical distance.
func (l Location) DistanceTo(other Location) float64 {
	dx := l.X - other.X
	dy := l.Y - other.Y
	dz := float64(l.Floor-other.Floor) * floorHeightMeters
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Valid reports whether both coordinates are finite.
func (l Location) Valid() bool {
	return !math.IsNaN(l.X) && !math.IsInf(l.X, 0) && !math.IsNaN(l.Y) && !math.IsInf(l.Y, 0)
}

// Event is one already-classified emergency report. Events are immutable once
// accepted; Clone before handing one across a component boundary.
type Event struct {
	ID                  string    `json:"id"`
	Type                EventType `json:"type"`
	Severity            Severity  `json:"severity"`
	Location            Location  `json:"location"`
	RadiusMeters        float64   `json:"radius_meters"`
	Timestamp           time.Time `json:"timestamp"`
	EvacuationRequested bool      `json:"evacuation_requested"`
	Authorities         []string  `json:"authorities,omitempty"`
}

// Validate rejects events missing required fields.
func (e Event) Validate() error {
	switch {
	case strings.TrimSpace(e.ID) == "":
		return invalid("id", "event id is required")
	case !e.Type.Valid():
		return invalid("type", "unknown event type "+string(e.Type))
	case !e.Severity.Valid():
		return invalid("severity", "unknown severity "+string(e.Severity))
	case !e.Location.Valid():
		return invalid("location", "event location is not finite")
	case math.IsNaN(e.RadiusMeters) || e.RadiusMeters < 0:
		return invalid("radius_meters", "affected radius must be non-negative")
	case e.Timestamp.IsZero():
		return invalid("timestamp", "event timestamp is required")
	}
	return nil
}

// Clone returns a deep copy of e.
func (e Event) Clone() Event {
	e.Authorities = slices.Clone(e.Authorities)
	return e
}

// WithAuthority returns a copy of e with name appended to its authorities
// unless it is already listed.
func (e Event) WithAuthority(name string) Event {
	out := e.Clone()
	if name == "" || slices.Contains(out.Authorities, name) {
		return out
	}
	out.Authorities = append(out.Authorities, name)
	return out
}

func invalid(field string, message string) error {
	return apperrors.WithMetadata(apperrors.CodeInvalidEvent, message, map[string]string{"field": field})
}
