// Package app wires the emergency domain into a running coordinator: the
// serialized state machine, its fan-out and the background monitor.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/louisbranch/egress/internal/platform/errors"
	"github.com/louisbranch/egress/internal/platform/id"
	"github.com/louisbranch/egress/internal/services/emergency/domain/escalation"
	"github.com/louisbranch/egress/internal/services/emergency/domain/evacuation"
	"github.com/louisbranch/egress/internal/services/emergency/domain/hazard"
	"github.com/louisbranch/egress/internal/services/emergency/domain/incident"
	"github.com/louisbranch/egress/internal/services/emergency/domain/threat"
	"github.com/louisbranch/egress/internal/services/emergency/render"
	"github.com/louisbranch/egress/internal/services/emergency/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/louisbranch/egress/internal/services/emergency/app"

var (
	errSuperseded     = errors.New("recalculation superseded")
	errBudgetExceeded = errors.New("recalculation budget exceeded")
	errClosed         = errors.New("coordinator closed")
)

// Mode is the coordinator state machine position.
type Mode string

const (
	ModeNormal   Mode = "normal"
	ModeElevated Mode = "elevated"
)

// Deps are the collaborators a coordinator is built from. Only Graph is
// required.
type Deps struct {
	Graph         evacuation.FacilityGraph
	RouterOptions evacuation.Options
	Contacts      []escalation.Contact
	Dispatcher    escalation.Dispatcher
	Broadcaster   Broadcaster
	StatusFeed    StatusFeed
	Journal       Journal
	Renderer      AlertRenderer
	Clock         func() time.Time
	NewID         func() (string, error)
}

// Outcome reports what HandleEvent did.
type Outcome struct {
	EventID     string               `json:"event_id,omitempty"`
	Level       incident.ThreatLevel `json:"level"`
	Plan        threat.Plan          `json:"plan"`
	ZoneID      string               `json:"zone_id,omitempty"`
	Mode        Mode                 `json:"mode"`
	SystemLevel incident.ThreatLevel `json:"system_level"`
	// Duplicate is set when the event id was already recorded.
	Duplicate bool `json:"duplicate,omitempty"`
	// Ignored is set when the request was dropped; Reason says why.
	Ignored bool           `json:"ignored,omitempty"`
	Reason  apperrors.Code `json:"reason,omitempty"`
}

type eventRecord struct {
	event  incident.Event
	level  incident.ThreatLevel
	plan   threat.Plan
	active bool
}

// Coordinator owns the emergency state machine. Events, threat level, mode
// and cadence are guarded by mu; zones, routes and contacts are reached only
// through their owning components.
type Coordinator struct {
	cfg         Config
	hazards     *hazard.Registry
	router      *evacuation.Router
	escalator   *escalation.Escalator
	broadcaster Broadcaster
	statusFeed  StatusFeed
	journal     Journal
	renderer    AlertRenderer
	clock       func() time.Time
	newID       func() (string, error)
	tracer      trace.Tracer

	lifetime context.Context
	shutdown context.CancelCauseFunc

	mu           sync.Mutex
	events       map[string]*eventRecord
	level        incident.ThreatLevel
	elevated     bool
	interval     time.Duration
	generation   uint64
	cancelRecalc context.CancelCauseFunc
	closed       bool

	fanout sync.WaitGroup

	monitorMu   sync.Mutex
	monitorStop context.CancelFunc
	monitorDone chan struct{}
	ticking     atomic.Bool
	wake        chan struct{}
}

// New validates cfg and builds a coordinator in Normal mode with the
// baseline route table computed.
func New(cfg Config, deps Deps) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Graph == nil {
		return nil, apperrors.New(apperrors.CodeConfigInvalid, "facility graph is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := deps.NewID
	if newID == nil {
		newID = id.NewID
	}
	router, err := evacuation.NewRouter(deps.Graph, deps.RouterOptions, clock)
	if err != nil {
		return nil, err
	}
	if err := router.Initialize(); err != nil {
		return nil, err
	}
	directory := deps.Contacts
	if len(directory) == 0 {
		directory = escalation.DefaultDirectory()
	}
	dispatcher := deps.Dispatcher
	if dispatcher == nil {
		dispatcher = LogDispatcher{}
	}
	broadcaster := deps.Broadcaster
	if broadcaster == nil {
		broadcaster = LogBroadcaster{}
	}
	renderer := deps.Renderer
	if renderer == nil {
		renderer = render.NewRenderer()
	}
	lifetime, shutdown := context.WithCancelCause(context.Background())

	c := &Coordinator{
		cfg:         cfg,
		hazards:     hazard.NewRegistry(),
		router:      router,
		escalator:   escalation.NewEscalator(directory, dispatcher, clock),
		broadcaster: broadcaster,
		statusFeed:  deps.StatusFeed,
		journal:     deps.Journal,
		renderer:    renderer,
		clock:       clock,
		newID:       newID,
		tracer:      otel.Tracer(tracerName),
		lifetime:    lifetime,
		shutdown:    shutdown,
		events:      make(map[string]*eventRecord),
		interval:    cfg.MonitorInterval,
		wake:        make(chan struct{}, 1),
	}
	// Contact status changes from dispatch serialize with feed and operator
	// updates on the state lock.
	c.escalator.SetStatusLock(&c.mu)
	return c, nil
}

// HandleEvent applies one classified event. It returns once the hazard zone
// and any state transition are in place; recalculation, escalation and the
// broadcast continue in the background (see Settle). A repeated event id is
// a no-op reported as Duplicate.
func (c *Coordinator) HandleEvent(ctx context.Context, event incident.Event) (Outcome, error) {
	ctx, span := c.tracer.Start(ctx, "coordinator.HandleEvent", trace.WithAttributes(
		attribute.String("event.id", event.ID),
		attribute.String("event.type", string(event.Type)),
	))
	defer span.End()

	if err := event.Validate(); err != nil {
		span.RecordError(err)
		return Outcome{}, err
	}
	event = event.Clone()
	level := threat.Assess(event)
	plan := threat.GeneratePlan(event, level)
	zone := hazard.ZoneFromEvent(event, c.blockedExits(event), c.clock())

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Outcome{}, errClosed
	}
	if existing, ok := c.events[event.ID]; ok {
		out := c.outcomeLocked(existing)
		out.Duplicate = true
		c.mu.Unlock()
		return out, nil
	}
	if err := c.hazards.Upsert(zone); err != nil {
		c.mu.Unlock()
		return Outcome{}, err
	}
	rec := &eventRecord{event: event, level: level, plan: plan, active: true}
	c.events[event.ID] = rec
	c.level = c.maxLevelLocked()
	triggered := c.level >= c.cfg.AutoEvacuationThreshold || plan.EvacuationRequired
	if triggered {
		c.enterElevatedLocked()
	}
	var job *recalcJob
	if plan.RouteRecalculation {
		job = c.beginRecalcLocked()
	}
	out := c.outcomeLocked(rec)
	c.fanout.Add(1)
	c.mu.Unlock()

	span.SetAttributes(attribute.String("threat.level", level.String()), attribute.String("mode", string(out.Mode)))
	log.Printf("event %s (%s/%s) assessed %s: mode %s level %s", event.ID, event.Type, event.Severity, level, out.Mode, out.SystemLevel)

	go c.fanOut(context.WithoutCancel(ctx), fanOutTask{
		event:     event,
		level:     level,
		plan:      plan,
		zone:      zone,
		triggered: triggered,
		job:       job,
	})
	return out, nil
}

// ClearEmergency removes an event and its hazard zone. Clearing the last
// active event returns the coordinator to Normal at baseline cadence.
func (c *Coordinator) ClearEmergency(ctx context.Context, eventID string) error {
	ctx, span := c.tracer.Start(ctx, "coordinator.ClearEmergency", trace.WithAttributes(attribute.String("event.id", eventID)))
	defer span.End()

	eventID = strings.TrimSpace(eventID)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errClosed
	}
	if _, ok := c.events[eventID]; !ok {
		c.mu.Unlock()
		return apperrors.WithMetadata(apperrors.CodeNotFound, "event not found", map[string]string{"event_id": eventID})
	}
	delete(c.events, eventID)
	c.hazards.Remove(hazard.ZoneID(eventID))
	c.level = c.maxLevelLocked()
	c.leaveElevatedIfIdleLocked()
	job := c.beginRecalcLocked()
	mode, level := c.modeLocked(), c.level
	c.fanout.Add(1)
	c.mu.Unlock()

	c.escalator.ForgetEvent(eventID)
	log.Printf("event %s cleared: mode %s level %s", eventID, mode, level)

	go func(ctx context.Context) {
		defer c.fanout.Done()
		c.journalCleared(ctx, eventID, storage.ClearReasonOperator)
		c.runRecalc(job)
	}(context.WithoutCancel(ctx))
	return nil
}

// ActivatePanicButton raises a high-severity medical event at location. When
// the panic button is disabled the request is ignored without state change.
func (c *Coordinator) ActivatePanicButton(ctx context.Context, location incident.Location) (Outcome, error) {
	if !c.cfg.PanicButtonEnabled {
		c.mu.Lock()
		out := Outcome{
			Mode:        c.modeLocked(),
			SystemLevel: c.level,
			Ignored:     true,
			Reason:      apperrors.CodePanicButtonDisabled,
		}
		c.mu.Unlock()
		log.Printf("panic button disabled: ignoring activation at %+v", location)
		return out, nil
	}
	if !location.Valid() {
		return Outcome{}, apperrors.New(apperrors.CodeInvalidLocation, "panic location is not finite")
	}
	suffix, err := c.newID()
	if err != nil {
		return Outcome{}, fmt.Errorf("generate panic event id: %w", err)
	}
	return c.HandleEvent(ctx, incident.Event{
		ID:           "panic-" + suffix,
		Type:         incident.EventMedicalEmergency,
		Severity:     incident.SeverityHigh,
		Location:     location,
		RadiusMeters: c.cfg.PanicRadiusMeters,
		Timestamp:    c.clock().UTC(),
	})
}

// ContactStatusUpdate applies a status change from the external feed.
func (c *Coordinator) ContactStatusUpdate(contactType escalation.ContactType, status escalation.ContactStatus) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.escalator.UpdateStatus(contactType, status)
}

// Status is a point-in-time view of the coordinator.
type Status struct {
	Mode                       Mode                 `json:"mode"`
	EmergencyMode              bool                 `json:"emergency_mode"`
	ThreatLevel                incident.ThreatLevel `json:"threat_level"`
	ActiveEvents               []incident.Event     `json:"active_events"`
	LoggedEvents               int                  `json:"logged_events"`
	HazardZones                []hazard.Zone        `json:"hazard_zones"`
	MonitoringInterval         time.Duration        `json:"-"`
	MonitoringIntervalMillis   int64                `json:"monitoring_interval_ms"`
	MonitoringActive           bool                 `json:"monitoring_active"`
	RouteGeneration            uint64               `json:"route_generation"`
	CompromisedAreas           []string             `json:"compromised_areas"`
	HazardDetectionSensitivity string               `json:"hazard_detection_sensitivity"`
	PanicButtonEnabled         bool                 `json:"panic_button_enabled"`
}

// Status returns the current state.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	status := Status{
		Mode:                       c.modeLocked(),
		EmergencyMode:              c.elevated,
		ThreatLevel:                c.level,
		LoggedEvents:               len(c.events),
		MonitoringInterval:         c.interval,
		MonitoringIntervalMillis:   c.interval.Milliseconds(),
		HazardDetectionSensitivity: c.cfg.HazardDetectionSensitivity,
		PanicButtonEnabled:         c.cfg.PanicButtonEnabled,
	}
	for _, rec := range c.events {
		if rec.active {
			status.ActiveEvents = append(status.ActiveEvents, rec.event.Clone())
		}
	}
	c.mu.Unlock()

	slices.SortFunc(status.ActiveEvents, func(a, b incident.Event) int { return strings.Compare(a.ID, b.ID) })
	status.HazardZones = c.hazards.ActiveZones()
	status.RouteGeneration = c.router.Generation()
	status.CompromisedAreas = evacuation.CompromisedAreas(c.router.Routes())
	status.MonitoringActive = c.monitoring()
	return status
}

// Event returns the logged event with id, including authorities engaged.
func (c *Coordinator) Event(eventID string) (incident.Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.events[eventID]
	if !ok {
		return incident.Event{}, false
	}
	return rec.event.Clone(), true
}

// EvacuationRoute returns the best current route for location.
func (c *Coordinator) EvacuationRoute(location incident.Location) (evacuation.Route, error) {
	if !location.Valid() {
		return evacuation.Route{}, apperrors.New(apperrors.CodeInvalidLocation, "location is not finite")
	}
	return c.router.RouteFor(location)
}

// NearestExits ranks every exit by distance from location.
func (c *Coordinator) NearestExits(location incident.Location) ([]evacuation.ExitCandidate, error) {
	if !location.Valid() {
		return nil, apperrors.New(apperrors.CodeInvalidLocation, "location is not finite")
	}
	return c.router.FindNearestExits(location), nil
}

// AdjustRouteLoad changes the occupant count assigned to the (area, exit)
// route by delta and re-ranks the table, so a full exit stops being primary
// while another hazard-free exit of the area has room.
func (c *Coordinator) AdjustRouteLoad(area, exit string, delta int) (evacuation.Route, error) {
	route, err := c.router.AdjustLoad(area, exit, delta)
	if err != nil {
		return evacuation.Route{}, err
	}
	log.Printf("route %s load %+d: %d/%d", route.ID, delta, route.CurrentLoad, route.Capacity)
	return route, nil
}

// Routes returns the current route table.
func (c *Coordinator) Routes() []evacuation.Route {
	return c.router.Routes()
}

// EmergencyContacts returns the contact directory with live statuses.
func (c *Coordinator) EmergencyContacts() []escalation.Contact {
	return c.escalator.Contacts()
}

// MonitoringInterval returns the current monitor cadence.
func (c *Coordinator) MonitoringInterval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interval
}

// Settle blocks until background fan-out started so far has finished.
func (c *Coordinator) Settle(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.fanout.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the monitor, abandons in-flight recalculation and waits for
// outstanding fan-out. Later calls to HandleEvent and ClearEmergency fail.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.Stop()
	c.shutdown(errClosed)
	c.fanout.Wait()
}

func (c *Coordinator) blockedExits(event incident.Event) []string {
	var blocked []string
	for _, candidate := range c.router.FindNearestExits(event.Location) {
		if candidate.DistanceMeters > event.RadiusMeters {
			break
		}
		blocked = append(blocked, candidate.Exit)
	}
	return blocked
}

func (c *Coordinator) maxLevelLocked() incident.ThreatLevel {
	level := incident.ThreatNone
	for _, rec := range c.events {
		if rec.active {
			level = incident.Max(level, rec.level)
		}
	}
	return level
}

func (c *Coordinator) activeCountLocked() int {
	n := 0
	for _, rec := range c.events {
		if rec.active {
			n++
		}
	}
	return n
}

func (c *Coordinator) enterElevatedLocked() {
	if c.elevated {
		return
	}
	c.elevated = true
	c.setIntervalLocked(c.cfg.RouteRecalculationInterval)
}

func (c *Coordinator) leaveElevatedIfIdleLocked() {
	if c.activeCountLocked() > 0 {
		return
	}
	c.elevated = false
	c.level = incident.ThreatNone
	c.setIntervalLocked(c.cfg.MonitorInterval)
}

func (c *Coordinator) setIntervalLocked(interval time.Duration) {
	if c.interval == interval {
		return
	}
	c.interval = interval
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Coordinator) modeLocked() Mode {
	if c.elevated {
		return ModeElevated
	}
	return ModeNormal
}

func (c *Coordinator) outcomeLocked(rec *eventRecord) Outcome {
	return Outcome{
		EventID:     rec.event.ID,
		Level:       rec.level,
		Plan:        rec.plan,
		ZoneID:      hazard.ZoneID(rec.event.ID),
		Mode:        c.modeLocked(),
		SystemLevel: c.level,
	}
}

func (c *Coordinator) appendAuthority(eventID string, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rec, ok := c.events[eventID]; ok {
		rec.event = rec.event.WithAuthority(name)
	}
}
