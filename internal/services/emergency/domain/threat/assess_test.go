package threat

import (
	"testing"

	"github.com/louisbranch/egress/internal/services/emergency/domain/incident"
)

func TestAssessBands(t *testing.T) {
	cases := []struct {
		eventType incident.EventType
		severity  incident.Severity
		want      incident.ThreatLevel
	}{
		{incident.EventChemicalSpill, incident.SeverityCritical, incident.ThreatCritical},
		{incident.EventFire, incident.SeverityHigh, incident.ThreatCritical},
		{incident.EventMedicalEmergency, incident.SeverityHigh, incident.ThreatHigh},
		{incident.EventSecurityThreat, incident.SeverityMedium, incident.ThreatMedium},
		{incident.EventStructuralDamage, incident.SeverityMedium, incident.ThreatMedium},
		{incident.EventMedicalEmergency, incident.SeverityMedium, incident.ThreatMedium},
		{incident.EventFire, incident.SeverityLow, incident.ThreatLow},
		{incident.EventChemicalSpill, incident.SeverityLow, incident.ThreatLow},
		{incident.EventStructuralDamage, incident.SeverityHigh, incident.ThreatCritical},
		{incident.EventSecurityThreat, incident.SeverityHigh, incident.ThreatHigh},
	}
	for _, tc := range cases {
		t.Run(string(tc.eventType)+"/"+string(tc.severity), func(t *testing.T) {
			got := Assess(incident.Event{Type: tc.eventType, Severity: tc.severity})
			if got != tc.want {
				t.Fatalf("assess = %v, want %v (score %.2f)", got, tc.want, Score(incident.Event{Type: tc.eventType, Severity: tc.severity}))
			}
		})
	}
}

func TestAssessChemicalCriticalAlwaysCritical(t *testing.T) {
	for _, loc := range []incident.Location{{}, {X: -40, Y: 900, Floor: 3}} {
		event := incident.Event{ID: "c", Type: incident.EventChemicalSpill, Severity: incident.SeverityCritical, Location: loc, RadiusMeters: 100}
		if got := Assess(event); got != incident.ThreatCritical {
			t.Fatalf("assess = %v, want critical", got)
		}
	}
}

func TestAssessUnknownSeverity(t *testing.T) {
	if got := Assess(incident.Event{Type: incident.EventFire, Severity: "unknown"}); got != incident.ThreatNone {
		t.Fatalf("assess = %v, want none", got)
	}
}

func TestGeneratePlan(t *testing.T) {
	cases := []struct {
		level     incident.ThreatLevel
		requested bool
		want      Plan
	}{
		{level: incident.ThreatLow, want: Plan{RouteRecalculation: true, EstimatedResponseMinutes: 30}},
		{level: incident.ThreatLow, requested: true, want: Plan{PublicAnnouncement: true, RouteRecalculation: true, EstimatedResponseMinutes: 30}},
		{level: incident.ThreatMedium, want: Plan{AuthorityNotification: true, PublicAnnouncement: true, RouteRecalculation: true, EstimatedResponseMinutes: 15}},
		{level: incident.ThreatHigh, want: Plan{EvacuationRequired: true, AuthorityNotification: true, PublicAnnouncement: true, RouteRecalculation: true, EstimatedResponseMinutes: 8}},
		{level: incident.ThreatCritical, want: Plan{EvacuationRequired: true, AuthorityNotification: true, PublicAnnouncement: true, RouteRecalculation: true, EstimatedResponseMinutes: 4}},
	}
	for _, tc := range cases {
		event := incident.Event{ID: "e", Type: incident.EventFire, Severity: incident.SeverityLow, EvacuationRequested: tc.requested}
		got := GeneratePlan(event, tc.level)
		if got != tc.want {
			t.Fatalf("plan(%v, requested=%v) = %+v, want %+v", tc.level, tc.requested, got, tc.want)
		}
		if again := GeneratePlan(event, tc.level); again != got {
			t.Fatalf("plan not deterministic: %+v vs %+v", again, got)
		}
	}
}
