package escalation

import (
	"slices"
	"testing"

	"github.com/louisbranch/egress/internal/services/emergency/domain/incident"
)

func TestRequirementsCoverEveryEventType(t *testing.T) {
	for _, eventType := range incident.EventTypes() {
		if _, ok := requirements[eventType]; !ok {
			t.Fatalf("no requirement row for %q", eventType)
		}
	}
	if len(requirements) != len(incident.EventTypes()) {
		t.Fatalf("requirements has %d rows, want %d", len(requirements), len(incident.EventTypes()))
	}
}

func TestRequiredContacts(t *testing.T) {
	cases := []struct {
		eventType incident.EventType
		level     incident.ThreatLevel
		want      []ContactType
	}{
		{incident.EventFire, incident.ThreatMedium, []ContactType{ContactAirportAuthority, ContactFireDepartment}},
		{incident.EventFire, incident.ThreatCritical, []ContactType{ContactAirportAuthority, ContactFireDepartment, ContactPolice, ContactMedical}},
		{incident.EventSecurityThreat, incident.ThreatLow, []ContactType{ContactAirportAuthority, ContactSecurity, ContactPolice}},
		{incident.EventMedicalEmergency, incident.ThreatMedium, []ContactType{ContactAirportAuthority, ContactMedical}},
		{incident.EventMedicalEmergency, incident.ThreatHigh, []ContactType{ContactAirportAuthority, ContactMedical, ContactSecurity, ContactPolice}},
		{incident.EventStructuralDamage, incident.ThreatHigh, []ContactType{ContactAirportAuthority, ContactFireDepartment, ContactSecurity, ContactMedical, ContactPolice}},
		{incident.EventChemicalSpill, incident.ThreatCritical, []ContactType{ContactAirportAuthority, ContactFireDepartment, ContactMedical, ContactPolice}},
		{"flood", incident.ThreatCritical, []ContactType{ContactAirportAuthority}},
	}
	for _, tc := range cases {
		got := RequiredContacts(tc.eventType, tc.level)
		if !slices.Equal(got, tc.want) {
			t.Fatalf("RequiredContacts(%s, %s) = %v, want %v", tc.eventType, tc.level, got, tc.want)
		}
	}
}

func TestElevatedLevelsAlwaysIncludePoliceAndMedical(t *testing.T) {
	for _, eventType := range incident.EventTypes() {
		for _, level := range []incident.ThreatLevel{incident.ThreatHigh, incident.ThreatCritical} {
			got := RequiredContacts(eventType, level)
			for _, want := range SecondaryContacts() {
				if !slices.Contains(got, want) {
					t.Fatalf("%s/%s contacts %v missing %s", eventType, level, got, want)
				}
			}
		}
	}
}
