package escalation

import (
	"slices"

	"github.com/louisbranch/egress/internal/services/emergency/domain/incident"
)

type requirement struct {
	base     []ContactType
	elevated []ContactType
}

// requirements is keyed by every incident.EventType; elevated contacts join
// at high and critical levels.
var requirements = map[incident.EventType]requirement{
	incident.EventFire: {
		base:     []ContactType{ContactFireDepartment},
		elevated: []ContactType{ContactPolice, ContactMedical},
	},
	incident.EventSecurityThreat: {
		base:     []ContactType{ContactSecurity, ContactPolice},
		elevated: []ContactType{ContactMedical},
	},
	incident.EventMedicalEmergency: {
		base:     []ContactType{ContactMedical},
		elevated: []ContactType{ContactSecurity, ContactPolice},
	},
	incident.EventStructuralDamage: {
		base:     []ContactType{ContactFireDepartment, ContactSecurity},
		elevated: []ContactType{ContactMedical, ContactPolice},
	},
	incident.EventChemicalSpill: {
		base:     []ContactType{ContactFireDepartment, ContactMedical},
		elevated: []ContactType{ContactPolice},
	},
}

// RequiredContacts returns the responders for eventType at level, starting
// with the airport authority. Unknown event types get the authority only.
func RequiredContacts(eventType incident.EventType, level incident.ThreatLevel) []ContactType {
	out := []ContactType{ContactAirportAuthority}
	req, ok := requirements[eventType]
	if !ok {
		return out
	}
	out = appendUnique(out, req.base...)
	if level >= incident.ThreatHigh {
		out = appendUnique(out, req.elevated...)
	}
	return out
}

// SecondaryContacts are escalated to when an area has no hazard-free exit.
func SecondaryContacts() []ContactType {
	return []ContactType{ContactPolice, ContactMedical}
}

func appendUnique(dst []ContactType, values ...ContactType) []ContactType {
	for _, v := range values {
		if !slices.Contains(dst, v) {
			dst = append(dst, v)
		}
	}
	return dst
}
