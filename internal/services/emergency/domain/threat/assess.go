// Package threat classifies emergency events into threat levels and derives
// the response plan for each. Everything here is pure and deterministic so
// events can be replayed.
package threat

import "github.com/louisbranch/egress/internal/services/emergency/domain/incident"

// Band thresholds on the weighted score.
const (
	criticalScore = 4.0
	highScore     = 3.0
	mediumScore   = 2.0
)

var typeMultipliers = map[incident.EventType]float64{
	incident.EventChemicalSpill:    1.6,
	incident.EventFire:             1.5,
	incident.EventStructuralDamage: 1.4,
	incident.EventSecurityThreat:   1.3,
	incident.EventMedicalEmergency: 1.1,
}

// Multiplier returns the weighting applied to eventType. Unknown types weigh 1.
func Multiplier(eventType incident.EventType) float64 {
	if m, ok := typeMultipliers[eventType]; ok {
		return m
	}
	return 1
}

// Score returns severity score times the type multiplier.
func Score(event incident.Event) float64 {
	return float64(event.Severity.Score()) * Multiplier(event.Type)
}

// Assess maps event onto a threat level band.
func Assess(event incident.Event) incident.ThreatLevel {
	if !event.Severity.Valid() {
		return incident.ThreatNone
	}
	score := Score(event)
	switch {
	case score >= criticalScore:
		return incident.ThreatCritical
	case score >= highScore:
		return incident.ThreatHigh
	case score >= mediumScore:
		return incident.ThreatMedium
	default:
		return incident.ThreatLow
	}
}
