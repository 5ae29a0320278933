package app

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/louisbranch/egress/internal/services/emergency/domain/escalation"
	"github.com/louisbranch/egress/internal/services/emergency/domain/incident"
)

func TestTickExpiresStaleHazardsAndReturnsToNormal(t *testing.T) {
	cfg := testConfig()
	cfg.AutoEvacuationThreshold = incident.ThreatMedium
	h := newHarness(t, cfg)
	ctx := context.Background()
	if _, err := h.coordinator.HandleEvent(ctx, h.event("evt-stale", incident.EventSecurityThreat, incident.SeverityMedium, hallLocation, 2)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	h.settle(t)
	if h.coordinator.Status().Mode != ModeElevated {
		t.Fatal("expected elevated before expiry")
	}

	h.clock.Advance(31 * time.Minute)
	if !h.coordinator.Tick(ctx) {
		t.Fatal("tick skipped")
	}
	h.settle(t)

	status := h.coordinator.Status()
	if status.Mode != ModeNormal || status.ThreatLevel != incident.ThreatNone {
		t.Fatalf("status = %s/%s, want normal/none", status.Mode, status.ThreatLevel)
	}
	if len(status.HazardZones) != 0 || len(status.ActiveEvents) != 0 {
		t.Fatalf("zones=%d active=%d, want none", len(status.HazardZones), len(status.ActiveEvents))
	}
	if status.LoggedEvents != 1 {
		t.Fatalf("logged events = %d, want expired event kept", status.LoggedEvents)
	}
	if status.MonitoringInterval != time.Second {
		t.Fatalf("interval = %v, want 1s", status.MonitoringInterval)
	}
	if got := h.journal.clearReason("evt-stale"); got != "expired" {
		t.Fatalf("clear reason = %q, want expired", got)
	}
	for _, route := range h.coordinator.Routes() {
		if !route.HazardFree {
			t.Fatalf("route %s still hazardous after expiry", route.ID)
		}
	}
}

func TestTickKeepsCriticalHazards(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()
	if _, err := h.coordinator.HandleEvent(ctx, h.event("evt-crit", incident.EventFire, incident.SeverityCritical, hallLocation, 2)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	h.settle(t)
	h.clock.Advance(2 * time.Hour)
	h.coordinator.Tick(ctx)

	status := h.coordinator.Status()
	if len(status.HazardZones) != 1 || status.Mode != ModeElevated {
		t.Fatalf("status = %+v, want critical zone kept", status)
	}
}

func TestTickSkipsWhenPreviousTickRunning(t *testing.T) {
	h := newHarness(t, testConfig())
	h.coordinator.ticking.Store(true)
	if h.coordinator.Tick(context.Background()) {
		t.Fatal("overlapping tick ran")
	}
	h.coordinator.ticking.Store(false)
	if !h.coordinator.Tick(context.Background()) {
		t.Fatal("tick did not run after previous finished")
	}
}

func TestTickIsolatesFailingPhases(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()
	if _, err := h.coordinator.HandleEvent(ctx, h.event("evt-1", incident.EventFire, incident.SeverityHigh, hallLocation, 2)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	h.settle(t)
	before := h.coordinator.router.Generation()

	h.feed.panicky = true
	if !h.coordinator.Tick(ctx) {
		t.Fatal("tick skipped")
	}
	if h.coordinator.router.Generation() <= before {
		t.Fatal("recalculation did not run alongside failing poll")
	}
	if h.feed.callCount() != 1 {
		t.Fatalf("feed calls = %d, want 1", h.feed.callCount())
	}

	h.feed.panicky = false
	h.feed.err = errors.New("redis down")
	if !h.coordinator.Tick(ctx) {
		t.Fatal("tick skipped after failing phase")
	}
}

func TestTickPollsContactsWhileElevated(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()

	h.feed.statuses = map[escalation.ContactType]escalation.ContactStatus{
		escalation.ContactFireDepartment: escalation.StatusOnSite,
	}
	h.coordinator.Tick(ctx)
	if h.feed.callCount() != 0 {
		t.Fatal("polled contacts while normal")
	}

	if _, err := h.coordinator.HandleEvent(ctx, h.event("evt-1", incident.EventFire, incident.SeverityHigh, hallLocation, 2)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	h.settle(t)
	h.coordinator.Tick(ctx)
	for _, contact := range h.coordinator.EmergencyContacts() {
		if contact.Type == escalation.ContactFireDepartment && contact.Status != escalation.StatusOnSite {
			t.Fatalf("fire status = %s, want on_site", contact.Status)
		}
	}
}

func TestRecalculationSupersededByNewerJob(t *testing.T) {
	h := newHarness(t, testConfig())
	c := h.coordinator

	c.mu.Lock()
	stale := c.beginRecalcLocked()
	fresh := c.beginRecalcLocked()
	c.mu.Unlock()

	if !errors.Is(context.Cause(stale.ctx), errSuperseded) {
		t.Fatalf("stale cause = %v, want superseded", context.Cause(stale.ctx))
	}
	if c.runRecalc(stale) {
		t.Fatal("superseded recalculation committed")
	}
	if !c.runRecalc(fresh) {
		t.Fatal("fresh recalculation not committed")
	}
	if got := c.router.Generation(); got != fresh.generation {
		t.Fatalf("generation = %d, want %d", got, fresh.generation)
	}
}

func TestRecalculationOverBudgetCommitsPartialResult(t *testing.T) {
	cfg := testConfig()
	cfg.RecalculationBudget = time.Nanosecond
	h := newHarness(t, cfg)
	c := h.coordinator

	c.mu.Lock()
	job := c.beginRecalcLocked()
	c.mu.Unlock()
	time.Sleep(time.Millisecond)

	if !c.runRecalc(job) {
		t.Fatal("over-budget recalculation was not committed")
	}
	if got := c.router.Generation(); got != job.generation {
		t.Fatalf("generation = %d, want %d", got, job.generation)
	}
	if len(c.Routes()) != 2 {
		t.Fatalf("routes = %d, want table preserved", len(c.Routes()))
	}
}

func TestStartStop(t *testing.T) {
	cfg := testConfig()
	cfg.MonitorInterval = 5 * time.Millisecond
	cfg.RouteRecalculationInterval = 2 * time.Millisecond
	h := newHarness(t, cfg)
	ctx := context.Background()
	if _, err := h.coordinator.HandleEvent(ctx, h.event("evt-1", incident.EventFire, incident.SeverityHigh, hallLocation, 2)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	h.settle(t)

	if !h.coordinator.Start(ctx) {
		t.Fatal("monitor did not start")
	}
	if h.coordinator.Start(ctx) {
		t.Fatal("monitor started twice")
	}
	if !h.coordinator.Status().MonitoringActive {
		t.Fatal("status reports monitoring inactive")
	}

	deadline := time.Now().Add(2 * time.Second)
	for h.feed.callCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("monitor never ticked")
		}
		time.Sleep(time.Millisecond)
	}

	h.coordinator.Stop()
	calls := h.feed.callCount()
	time.Sleep(20 * time.Millisecond)
	if got := h.feed.callCount(); got != calls {
		t.Fatalf("feed calls after stop = %d, want %d", got, calls)
	}
	if h.coordinator.Status().MonitoringActive {
		t.Fatal("status reports monitoring active after stop")
	}
}

func TestStartDisabledMonitoring(t *testing.T) {
	cfg := testConfig()
	cfg.EmergencyMonitoring = false
	h := newHarness(t, cfg)
	if h.coordinator.Start(context.Background()) {
		t.Fatal("monitor started while disabled")
	}
}

func TestSecondaryEscalationSurvivesSupersededRecalculation(t *testing.T) {
	cfg := testConfig()
	cfg.AutoEvacuationThreshold = incident.ThreatMedium
	graph := &slowGraph{}
	h := newHarnessWithGraph(t, cfg, graph)
	graph.slow.Store(true)
	ctx := context.Background()

	// Medium security threat: its own plan never asks for medical, so medical
	// can only come from the enclosed-exit escalation.
	event := h.event("evt-trap", incident.EventSecurityThreat, incident.SeverityMedium, incident.Location{X: 10, Y: 10, Floor: 1}, 14.5)
	out, err := h.coordinator.HandleEvent(ctx, event)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if out.Mode != ModeElevated {
		t.Fatalf("mode = %s, want elevated", out.Mode)
	}
	time.Sleep(10 * time.Millisecond)
	if !h.coordinator.Tick(ctx) {
		t.Fatal("tick skipped")
	}
	h.settle(t)

	if got := h.coordinator.Status().CompromisedAreas; len(got) != 1 || got[0] != "lobby" {
		t.Fatalf("compromised = %v, want [lobby]", got)
	}
	contacted := h.dispatcher.contacted()
	for _, want := range escalation.SecondaryContacts() {
		if !slices.Contains(contacted, want) {
			t.Fatalf("contacted = %v, missing %s", contacted, want)
		}
	}
}

func TestLateReportGetsFullExpiryWindow(t *testing.T) {
	cfg := testConfig()
	cfg.AutoEvacuationThreshold = incident.ThreatMedium
	h := newHarness(t, cfg)
	ctx := context.Background()

	event := h.event("evt-late", incident.EventSecurityThreat, incident.SeverityMedium, hallLocation, 2)
	event.Timestamp = h.clock.Now().Add(-2 * time.Hour)
	if _, err := h.coordinator.HandleEvent(ctx, event); err != nil {
		t.Fatalf("handle: %v", err)
	}
	h.settle(t)

	h.coordinator.Tick(ctx)
	h.settle(t)
	if zones := h.coordinator.Status().HazardZones; len(zones) != 1 {
		t.Fatalf("zones = %d, want late report kept", len(zones))
	}

	h.clock.Advance(31 * time.Minute)
	h.coordinator.Tick(ctx)
	h.settle(t)
	if zones := h.coordinator.Status().HazardZones; len(zones) != 0 {
		t.Fatalf("zones = %d, want expired after window", len(zones))
	}
}
