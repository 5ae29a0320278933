// Package timeouts defines shared timeout constants used across the
// coordinator process. Centralizing these values keeps transport and
// monitor budgets consistent.
package timeouts

import "time"

// ReadHeader limits how long the operator HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long servers wait for in-flight requests during
// graceful shutdown.
const Shutdown = 5 * time.Second

// Dispatch caps one authority-dispatch request/reply round trip.
const Dispatch = 2 * time.Second

// Broadcast caps one evacuation alert publish.
const Broadcast = time.Second

// Recalculation bounds a full evacuation route recomputation pass.
const Recalculation = 400 * time.Millisecond

// StatusPoll caps one contact-availability poll against the status feed.
const StatusPoll = 300 * time.Millisecond
