package threat

import "github.com/louisbranch/egress/internal/services/emergency/domain/incident"

// Plan is the response derived from one assessed event.
type Plan struct {
	EvacuationRequired       bool `json:"evacuation_required"`
	AuthorityNotification    bool `json:"authority_notification"`
	PublicAnnouncement       bool `json:"public_announcement"`
	RouteRecalculation       bool `json:"route_recalculation"`
	EstimatedResponseMinutes int  `json:"estimated_response_minutes"`
}

var responseMinutes = map[incident.ThreatLevel]int{
	incident.ThreatNone:     0,
	incident.ThreatLow:      30,
	incident.ThreatMedium:   15,
	incident.ThreatHigh:     8,
	incident.ThreatCritical: 4,
}

// GeneratePlan derives the plan for event at level.
func GeneratePlan(event incident.Event, level incident.ThreatLevel) Plan {
	return Plan{
		EvacuationRequired:       level >= incident.ThreatHigh,
		AuthorityNotification:    level > incident.ThreatLow,
		PublicAnnouncement:       level >= incident.ThreatMedium || event.EvacuationRequested,
		RouteRecalculation:       true,
		EstimatedResponseMinutes: responseMinutes[level],
	}
}
