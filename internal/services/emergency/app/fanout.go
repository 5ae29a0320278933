package app

import (
	"context"
	"errors"
	"log"
	"slices"

	"github.com/louisbranch/egress/internal/platform/timeouts"
	"github.com/louisbranch/egress/internal/services/emergency/domain/escalation"
	"github.com/louisbranch/egress/internal/services/emergency/domain/evacuation"
	"github.com/louisbranch/egress/internal/services/emergency/domain/hazard"
	"github.com/louisbranch/egress/internal/services/emergency/domain/incident"
	"github.com/louisbranch/egress/internal/services/emergency/domain/threat"
	"github.com/louisbranch/egress/internal/services/emergency/render"
	"github.com/louisbranch/egress/internal/services/emergency/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

type fanOutTask struct {
	event     incident.Event
	level     incident.ThreatLevel
	plan      threat.Plan
	zone      hazard.Zone
	triggered bool
	job       *recalcJob
}

// fanOut runs the side effects of one accepted event. Failures are logged
// and journaled; none of them roll back the state transition.
func (c *Coordinator) fanOut(ctx context.Context, task fanOutTask) {
	defer c.fanout.Done()

	c.journalEvent(ctx, task.event, task.level)
	if task.job != nil {
		c.runRecalc(task.job)
	}

	var g errgroup.Group
	if task.plan.PublicAnnouncement || task.triggered {
		g.Go(func() error {
			c.broadcast(ctx, task)
			return nil
		})
	}
	if task.plan.AuthorityNotification {
		for _, contactType := range escalation.RequiredContacts(task.event.Type, task.level) {
			g.Go(func() error {
				c.notify(ctx, contactType, task.event, task.level)
				return nil
			})
		}
	}
	_ = g.Wait()
}

type secondaryTarget struct {
	event incident.Event
	level incident.ThreatLevel
	areas []string
}

// afterCommit reconciles zones and escalation with the committed route
// table. Each active zone records the hazard-free routes left in the areas
// it touches, and each active event whose zone touches an area with no
// hazard-free exit escalates to the secondary contacts. It runs after every
// commit, whichever job made it.
func (c *Coordinator) afterCommit() {
	routes := c.router.Routes()
	compromised := evacuation.CompromisedAreas(routes)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	var targets []secondaryTarget
	for _, zone := range c.hazards.ActiveZones() {
		areas := c.router.AreasTouchedBy(zone)
		zone.AlternativeRouteIDs = evacuation.SafeRouteIDs(routes, areas)
		if err := c.hazards.Upsert(zone); err != nil {
			log.Printf("zone %s: record alternative routes: %v", zone.ID, err)
		}
		rec, ok := c.events[zone.EventID]
		if !ok || !rec.active {
			continue
		}
		trapped := slices.DeleteFunc(slices.Clone(areas), func(area string) bool {
			return !slices.Contains(compromised, area)
		})
		if len(trapped) == 0 || c.secondaryNotifiedLocked(rec.event.ID) {
			continue
		}
		targets = append(targets, secondaryTarget{event: rec.event.Clone(), level: rec.level, areas: trapped})
	}
	if len(targets) == 0 {
		c.mu.Unlock()
		return
	}
	c.fanout.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.fanout.Done()
		ctx := context.WithoutCancel(c.lifetime)
		var g errgroup.Group
		for _, target := range targets {
			log.Printf("event %s: no hazard-free exit for areas %v, escalating to secondary contacts", target.event.ID, target.areas)
			for _, contactType := range escalation.SecondaryContacts() {
				g.Go(func() error {
					c.notify(ctx, contactType, target.event, target.level)
					return nil
				})
			}
		}
		_ = g.Wait()
	}()
}

func (c *Coordinator) secondaryNotifiedLocked(eventID string) bool {
	for _, contactType := range escalation.SecondaryContacts() {
		if !c.escalator.Notified(eventID, contactType) {
			return false
		}
	}
	return true
}

func (c *Coordinator) broadcast(ctx context.Context, task fanOutTask) {
	messages := c.renderer.Announcements(render.Input{
		EventType: task.event.Type,
		Level:     task.level,
		Floor:     task.event.Location.Floor,
		Evacuate:  task.plan.EvacuationRequired,
	})
	zone := task.zone
	if current, ok := c.hazards.Get(zone.ID); ok {
		zone = current
	}
	alert := Alert{
		EventID:     task.event.ID,
		ThreatLevel: task.level,
		Message:     messages[render.DefaultLocale.String()],
		Messages:    messages,
		Zone:        zone,
		Evacuate:    task.plan.EvacuationRequired,
		IssuedAt:    c.clock().UTC(),
	}
	ctx, cancel := context.WithTimeout(ctx, timeouts.Broadcast)
	defer cancel()
	if err := c.broadcaster.BroadcastEvacuationAlert(ctx, alert); err != nil {
		log.Printf("event %s: broadcast evacuation alert: %v", task.event.ID, err)
	}
}

func (c *Coordinator) notify(ctx context.Context, contactType escalation.ContactType, event incident.Event, level incident.ThreatLevel) {
	dispatchCtx, cancel := context.WithTimeout(ctx, timeouts.Dispatch)
	defer cancel()
	result, err := c.escalator.Notify(dispatchCtx, contactType, event, level)
	attempt := storage.DispatchAttempt{
		EventID:     event.ID,
		ContactType: string(contactType),
		ThreatLevel: level.String(),
		CreatedAt:   c.clock().UTC(),
	}
	switch {
	case err != nil:
		log.Printf("event %s: notify %s: %v", event.ID, contactType, err)
		attempt.Outcome = storage.DispatchFailed
		attempt.LastError = err.Error()
	case result.Duplicate:
		return
	default:
		c.appendAuthority(event.ID, result.ContactName)
		attempt.Outcome = storage.DispatchDelivered
	}
	if c.journal == nil {
		return
	}
	if err := c.journal.RecordDispatchAttempt(ctx, attempt); err != nil {
		log.Printf("event %s: journal dispatch attempt: %v", event.ID, err)
	}
}

func (c *Coordinator) journalEvent(ctx context.Context, event incident.Event, level incident.ThreatLevel) {
	if c.journal == nil {
		return
	}
	err := c.journal.RecordEvent(ctx, storage.EventRecord{
		EventID:             event.ID,
		EventType:           string(event.Type),
		Severity:            string(event.Severity),
		ThreatLevel:         level.String(),
		X:                   event.Location.X,
		Y:                   event.Location.Y,
		Floor:               event.Location.Floor,
		RadiusMeters:        event.RadiusMeters,
		EvacuationRequested: event.EvacuationRequested,
		ReportedAt:          event.Timestamp,
		RecordedAt:          c.clock().UTC(),
	})
	if err != nil {
		log.Printf("event %s: journal event: %v", event.ID, err)
	}
}

func (c *Coordinator) journalCleared(ctx context.Context, eventID string, reason string) {
	if c.journal == nil {
		return
	}
	if err := c.journal.MarkCleared(ctx, eventID, reason, c.clock().UTC()); err != nil {
		log.Printf("event %s: journal clear: %v", eventID, err)
	}
}

// recalcJob is a recalculation snapshot taken under the state lock.
type recalcJob struct {
	generation uint64
	ctx        context.Context
	cancel     context.CancelCauseFunc
	routes     []evacuation.Route
	hazards    []hazard.Zone
}

// beginRecalcLocked supersedes any in-flight recalculation and snapshots
// routes and hazards under a fresh generation.
func (c *Coordinator) beginRecalcLocked() *recalcJob {
	if c.cancelRecalc != nil {
		c.cancelRecalc(errSuperseded)
	}
	c.generation++
	ctx, cancel := context.WithCancelCause(c.lifetime)
	c.cancelRecalc = cancel
	return &recalcJob{
		generation: c.generation,
		ctx:        ctx,
		cancel:     cancel,
		routes:     c.router.Routes(),
		hazards:    c.hazards.ActiveZones(),
	}
}

// runRecalc recomputes routes outside the state lock within the budget and
// reports whether the result was committed.
func (c *Coordinator) runRecalc(job *recalcJob) bool {
	defer job.cancel(nil)
	ctx, cancel := context.WithTimeoutCause(job.ctx, c.cfg.RecalculationBudget, errBudgetExceeded)
	defer cancel()
	ctx, span := c.tracer.Start(ctx, "coordinator.recalculate", trace.WithAttributes(
		attribute.Int64("recalculation.generation", int64(job.generation)),
		attribute.Int("recalculation.routes", len(job.routes)),
	))
	defer span.End()

	routes, err := c.router.RecalculateAll(ctx, job.routes, job.hazards)
	switch {
	case errors.Is(err, errBudgetExceeded):
		log.Printf("recalculation %d exceeded budget %s: committing %d of %d routes", job.generation, c.cfg.RecalculationBudget, len(routes), len(job.routes))
	case err != nil:
		log.Printf("recalculation %d abandoned: %v", job.generation, err)
		return false
	}
	if !c.router.Commit(job.generation, routes) {
		log.Printf("recalculation %d discarded: newer routes already committed", job.generation)
		return false
	}
	c.afterCommit()
	return true
}
