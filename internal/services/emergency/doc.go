// Package emergency runs the terminal emergency-response coordinator.
//
// Classified incident reports arrive over HTTP or NATS and flow through
// app.Coordinator, which owns threat state, hazard zones, evacuation routes
// and responder escalation. The process also serves gRPC health so
// orchestrators can tell whether the monitor loop is live.
package emergency
