package incident

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	apperrors "github.com/louisbranch/egress/internal/platform/errors"
)

func validEvent() Event {
	return Event{
		ID:           "evt-1",
		Type:         EventFire,
		Severity:     SeverityHigh,
		Location:     Location{X: 10, Y: 20, Floor: 1},
		RadiusMeters: 15,
		Timestamp:    time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestEventValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Event)
		field  string
	}{
		{name: "valid", mutate: func(*Event) {}},
		{name: "missing id", mutate: func(e *Event) { e.ID = "  " }, field: "id"},
		{name: "unknown type", mutate: func(e *Event) { e.Type = "flood" }, field: "type"},
		{name: "unknown severity", mutate: func(e *Event) { e.Severity = "extreme" }, field: "severity"},
		{name: "nan location", mutate: func(e *Event) { e.Location.X = math.NaN() }, field: "location"},
		{name: "negative radius", mutate: func(e *Event) { e.RadiusMeters = -1 }, field: "radius_meters"},
		{name: "zero timestamp", mutate: func(e *Event) { e.Timestamp = time.Time{} }, field: "timestamp"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			event := validEvent()
			tc.mutate(&event)
			err := event.Validate()
			if tc.field == "" {
				if err != nil {
					t.Fatalf("validate: %v", err)
				}
				return
			}
			if !apperrors.HasCode(err, apperrors.CodeInvalidEvent) {
				t.Fatalf("error = %v, want invalid event", err)
			}
			var domainErr *apperrors.Error
			if de, ok := err.(*apperrors.Error); ok {
				domainErr = de
			}
			if domainErr == nil || domainErr.Metadata["field"] != tc.field {
				t.Fatalf("metadata = %+v, want field %q", domainErr, tc.field)
			}
		})
	}
}

func TestEventWithAuthorityDoesNotAlias(t *testing.T) {
	event := validEvent()
	event.Authorities = []string{"Terminal Operations Center"}

	updated := event.WithAuthority("Airport Fire Station 2")
	updated = updated.WithAuthority("Airport Fire Station 2")

	if len(event.Authorities) != 1 {
		t.Fatalf("original authorities mutated: %v", event.Authorities)
	}
	if len(updated.Authorities) != 2 {
		t.Fatalf("authorities = %v, want two entries", updated.Authorities)
	}
}

func TestLocationDistanceCountsFloors(t *testing.T) {
	a := Location{X: 0, Y: 0, Floor: 1}
	b := Location{X: 3, Y: 4, Floor: 1}
	if got := a.DistanceTo(b); got != 5 {
		t.Fatalf("distance = %v, want 5", got)
	}
	c := Location{X: 0, Y: 0, Floor: 2}
	if got := a.DistanceTo(c); got != floorHeightMeters {
		t.Fatalf("distance across floors = %v, want %v", got, floorHeightMeters)
	}
}

func TestThreatLevelText(t *testing.T) {
	for _, level := range []ThreatLevel{ThreatNone, ThreatLow, ThreatMedium, ThreatHigh, ThreatCritical} {
		raw, err := json.Marshal(level)
		if err != nil {
			t.Fatalf("marshal %v: %v", level, err)
		}
		var decoded ThreatLevel
		if err := json.Unmarshal(raw, &decoded); err != nil {
			t.Fatalf("unmarshal %s: %v", raw, err)
		}
		if decoded != level {
			t.Fatalf("decoded %v, want %v", decoded, level)
		}
	}
	if _, err := ParseThreatLevel("severe"); err == nil {
		t.Fatal("expected unknown level error")
	}
	if Max(ThreatHigh, ThreatMedium) != ThreatHigh {
		t.Fatal("expected max to pick high")
	}
}
