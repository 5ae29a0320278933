package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/louisbranch/egress/internal/platform/timeouts"
	"github.com/louisbranch/egress/internal/services/emergency/domain/hazard"
	"github.com/louisbranch/egress/internal/services/emergency/storage"
)

// Start launches the monitor loop and reports whether it started. It does
// nothing when monitoring is disabled or the loop is already running.
func (c *Coordinator) Start(ctx context.Context) bool {
	if !c.cfg.EmergencyMonitoring {
		log.Printf("emergency monitoring disabled: monitor loop not started")
		return false
	}
	c.monitorMu.Lock()
	defer c.monitorMu.Unlock()
	if c.monitorStop != nil {
		return false
	}
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.monitorStop = cancel
	c.monitorDone = done
	go c.monitor(loopCtx, done)
	return true
}

// Stop halts the monitor loop and waits for it to exit. No tick runs after
// Stop returns.
func (c *Coordinator) Stop() {
	c.monitorMu.Lock()
	cancel, done := c.monitorStop, c.monitorDone
	c.monitorStop, c.monitorDone = nil, nil
	c.monitorMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (c *Coordinator) monitoring() bool {
	c.monitorMu.Lock()
	defer c.monitorMu.Unlock()
	return c.monitorStop != nil
}

func (c *Coordinator) monitor(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	interval := c.MonitoringInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.wake:
		case <-ticker.C:
			c.Tick(ctx)
			// Ticks that came due while this one ran are skipped.
			select {
			case <-ticker.C:
			default:
			}
		}
		if next := c.MonitoringInterval(); next != interval {
			interval = next
			ticker.Reset(interval)
		}
	}
}

// Tick runs one monitor pass: hazard sweep always, then route recalculation
// and contact polling while Elevated. Each phase is isolated so one failing
// does not skip the others. Tick returns false without doing anything when
// another tick is still running.
func (c *Coordinator) Tick(ctx context.Context) bool {
	if !c.ticking.CompareAndSwap(false, true) {
		return false
	}
	defer c.ticking.Store(false)

	ctx, span := c.tracer.Start(ctx, "coordinator.tick")
	defer span.End()

	var swept bool
	c.runPhase("hazard sweep", func() error {
		swept = c.sweep(ctx)
		return nil
	})

	c.mu.Lock()
	elevated := c.elevated
	var job *recalcJob
	if (elevated || swept) && !c.closed {
		job = c.beginRecalcLocked()
	}
	c.mu.Unlock()

	if job != nil {
		c.runPhase("route recalculation", func() error {
			c.runRecalc(job)
			return nil
		})
	}
	if elevated {
		c.runPhase("contact poll", func() error {
			return c.pollContacts(ctx)
		})
	}
	return true
}

func (c *Coordinator) runPhase(name string, phase func() error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("monitor %s panicked: %v", name, r)
		}
	}()
	if err := phase(); err != nil {
		log.Printf("monitor %s: %v", name, err)
	}
}

// sweep expires stale hazard zones and deactivates their events. It reports
// whether any zone was removed.
func (c *Coordinator) sweep(ctx context.Context) bool {
	c.mu.Lock()
	removed := c.hazards.Sweep(c.clock())
	if len(removed) == 0 {
		c.mu.Unlock()
		return false
	}
	byZone := make(map[string]*eventRecord, len(c.events))
	for _, rec := range c.events {
		byZone[hazard.ZoneID(rec.event.ID)] = rec
	}
	var expired []string
	for _, zoneID := range removed {
		if rec, ok := byZone[zoneID]; ok && rec.active {
			rec.active = false
			expired = append(expired, rec.event.ID)
		}
	}
	c.level = c.maxLevelLocked()
	c.leaveElevatedIfIdleLocked()
	mode, level := c.modeLocked(), c.level
	c.mu.Unlock()

	log.Printf("hazard sweep expired %v: mode %s level %s", removed, mode, level)
	for _, eventID := range expired {
		c.journalCleared(ctx, eventID, storage.ClearReasonExpired)
	}
	return true
}

func (c *Coordinator) pollContacts(ctx context.Context) error {
	if c.statusFeed == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, timeouts.StatusPoll)
	defer cancel()
	statuses, err := c.statusFeed.ContactStatuses(ctx)
	if err != nil {
		return fmt.Errorf("poll contact statuses: %w", err)
	}
	c.mu.Lock()
	changed := c.escalator.ApplyStatuses(statuses)
	c.mu.Unlock()
	if len(changed) > 0 {
		log.Printf("contact statuses changed: %v", changed)
	}
	return nil
}
