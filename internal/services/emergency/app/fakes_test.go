package app

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/louisbranch/egress/internal/services/emergency/domain/escalation"
	"github.com/louisbranch/egress/internal/services/emergency/domain/evacuation"
	"github.com/louisbranch/egress/internal/services/emergency/domain/incident"
	"github.com/louisbranch/egress/internal/services/emergency/storage"
)

// lineGraph is a single area "lobby" with two exits:
//
//	lobby(0,0) -- hall(10,0) -- exit-a(20,0)
//	  |
//	side(0,10) -- exit-b(0,20)
type lineGraph struct{}

var linePositions = map[string]incident.Location{
	"lobby":  {X: 0, Y: 0, Floor: 1},
	"hall":   {X: 10, Y: 0, Floor: 1},
	"exit-a": {X: 20, Y: 0, Floor: 1},
	"side":   {X: 0, Y: 10, Floor: 1},
	"exit-b": {X: 0, Y: 20, Floor: 1},
}

var lineEdges = map[string][]string{
	"lobby":  {"hall", "side"},
	"hall":   {"lobby", "exit-a"},
	"exit-a": {"hall"},
	"side":   {"lobby", "exit-b"},
	"exit-b": {"side"},
}

func (lineGraph) Neighbors(node string) []string { return lineEdges[node] }
func (lineGraph) Exits(string) []string          { return []string{"exit-a", "exit-b"} }
func (lineGraph) Areas() []evacuation.Area       { return []evacuation.Area{{ID: "lobby", Node: "lobby"}} }

func (lineGraph) Distance(a, b string) float64 {
	return linePositions[a].DistanceTo(linePositions[b])
}

func (lineGraph) Position(node string) (incident.Location, bool) {
	pos, ok := linePositions[node]
	return pos, ok
}

// slowGraph is lineGraph with Neighbors delayed once slow is set, so a
// recalculation stays in flight long enough to be superseded.
type slowGraph struct {
	lineGraph
	slow atomic.Bool
}

func (g *slowGraph) Neighbors(node string) []string {
	if g.slow.Load() {
		time.Sleep(20 * time.Millisecond)
	}
	return g.lineGraph.Neighbors(node)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeDispatcher struct {
	mu    sync.Mutex
	calls []escalation.ContactType
	err   error
}

func (f *fakeDispatcher) DispatchNotification(_ context.Context, contactType escalation.ContactType, _ incident.Event, _ incident.ThreatLevel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, contactType)
	return f.err
}

func (f *fakeDispatcher) contacted() []escalation.ContactType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := slices.Clone(f.calls)
	slices.Sort(out)
	return out
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	alerts []Alert
}

func (f *fakeBroadcaster) BroadcastEvacuationAlert(_ context.Context, alert Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, alert)
	return nil
}

func (f *fakeBroadcaster) sent() []Alert {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.alerts)
}

type fakeJournal struct {
	mu       sync.Mutex
	events   []storage.EventRecord
	cleared  map[string]string
	attempts []storage.DispatchAttempt
}

func (f *fakeJournal) RecordEvent(_ context.Context, event storage.EventRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeJournal) MarkCleared(_ context.Context, eventID string, reason string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cleared == nil {
		f.cleared = make(map[string]string)
	}
	f.cleared[eventID] = reason
	return nil
}

func (f *fakeJournal) RecordDispatchAttempt(_ context.Context, attempt storage.DispatchAttempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, attempt)
	return nil
}

func (f *fakeJournal) clearReason(eventID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cleared[eventID]
}

type fakeFeed struct {
	mu       sync.Mutex
	calls    int
	statuses map[escalation.ContactType]escalation.ContactStatus
	err      error
	panicky  bool
}

func (f *fakeFeed) ContactStatuses(context.Context) (map[escalation.ContactType]escalation.ContactStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.panicky {
		panic("feed exploded")
	}
	return f.statuses, f.err
}

func (f *fakeFeed) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type harness struct {
	coordinator *Coordinator
	clock       *fakeClock
	dispatcher  *fakeDispatcher
	broadcaster *fakeBroadcaster
	journal     *fakeJournal
	feed        *fakeFeed
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RecalculationBudget = time.Second
	return cfg
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	return newHarnessWithGraph(t, cfg, lineGraph{})
}

func newHarnessWithGraph(t *testing.T, cfg Config, graph evacuation.FacilityGraph) *harness {
	t.Helper()
	h := &harness{
		clock:       newFakeClock(),
		dispatcher:  &fakeDispatcher{},
		broadcaster: &fakeBroadcaster{},
		journal:     &fakeJournal{},
		feed:        &fakeFeed{},
	}
	coordinator, err := New(cfg, Deps{
		Graph:       graph,
		Dispatcher:  h.dispatcher,
		Broadcaster: h.broadcaster,
		StatusFeed:  h.feed,
		Journal:     h.journal,
		Clock:       h.clock.Now,
		NewID:       func() (string, error) { return "abc", nil },
	})
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	t.Cleanup(coordinator.Close)
	h.coordinator = coordinator
	return h
}

func (h *harness) settle(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.coordinator.Settle(ctx); err != nil {
		t.Fatalf("settle: %v", err)
	}
}

func (h *harness) event(id string, eventType incident.EventType, severity incident.Severity, loc incident.Location, radius float64) incident.Event {
	return incident.Event{
		ID:           id,
		Type:         eventType,
		Severity:     severity,
		Location:     loc,
		RadiusMeters: radius,
		Timestamp:    h.clock.Now(),
	}
}
