// Package httpapi exposes the coordinator to terminal operators over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/louisbranch/egress/internal/platform/errors"
	"github.com/louisbranch/egress/internal/services/emergency/app"
	"github.com/louisbranch/egress/internal/services/emergency/domain/escalation"
	"github.com/louisbranch/egress/internal/services/emergency/domain/evacuation"
	"github.com/louisbranch/egress/internal/services/emergency/domain/incident"
	"github.com/louisbranch/egress/internal/services/emergency/storage"
)

const (
	maxBodyBytes        = 64 << 10
	defaultJournalLimit = 50
	maxJournalLimit     = 500
)

// Coordinator is the operator-facing surface of app.Coordinator.
type Coordinator interface {
	HandleEvent(ctx context.Context, event incident.Event) (app.Outcome, error)
	ClearEmergency(ctx context.Context, eventID string) error
	ActivatePanicButton(ctx context.Context, location incident.Location) (app.Outcome, error)
	ContactStatusUpdate(contactType escalation.ContactType, status escalation.ContactStatus) error
	Status() app.Status
	Routes() []evacuation.Route
	EvacuationRoute(location incident.Location) (evacuation.Route, error)
	NearestExits(location incident.Location) ([]evacuation.ExitCandidate, error)
	EmergencyContacts() []escalation.Contact
	AdjustRouteLoad(area, exit string, delta int) (evacuation.Route, error)
}

// History reads the audit journal. It is optional.
type History interface {
	ListEvents(ctx context.Context, limit int) ([]storage.EventRecord, error)
	ListDispatchAttempts(ctx context.Context, eventID string, limit int) ([]storage.DispatchAttempt, error)
}

type handler struct {
	coordinator Coordinator
	history     History
	clock       func() time.Time
}

// NewHandler builds the operator API. history may be nil.
func NewHandler(coordinator Coordinator, history History) http.Handler {
	h := &handler{coordinator: coordinator, history: history, clock: time.Now}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.HandleFunc("POST /v1/events", h.reportEvent)
	mux.HandleFunc("DELETE /v1/events/{eventID}", h.clearEvent)
	mux.HandleFunc("POST /v1/panic", h.panicButton)
	mux.HandleFunc("PUT /v1/contacts/{contactType}/status", h.updateContactStatus)
	mux.HandleFunc("GET /v1/contacts", h.listContacts)
	mux.HandleFunc("GET /v1/status", h.status)
	mux.HandleFunc("GET /v1/routes", h.routes)
	mux.HandleFunc("POST /v1/routes/{area}/{exit}/load", h.adjustRouteLoad)
	mux.HandleFunc("GET /v1/exits", h.exits)
	mux.HandleFunc("GET /v1/journal/events", h.journalEvents)
	mux.HandleFunc("GET /v1/journal/events/{eventID}/dispatches", h.journalDispatches)
	return mux
}

func (h *handler) reportEvent(w http.ResponseWriter, r *http.Request) {
	var event incident.Event
	if err := decodeBody(r, &event); err != nil {
		writeError(w, apperrors.New(apperrors.CodeInvalidEvent, "malformed event body"))
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = h.clock().UTC()
	}
	out, err := h.coordinator.HandleEvent(r.Context(), event)
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusAccepted
	if out.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, out)
}

func (h *handler) clearEvent(w http.ResponseWriter, r *http.Request) {
	eventID := strings.TrimSpace(r.PathValue("eventID"))
	if err := h.coordinator.ClearEmergency(r.Context(), eventID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) panicButton(w http.ResponseWriter, r *http.Request) {
	var location incident.Location
	if err := decodeBody(r, &location); err != nil {
		writeError(w, apperrors.New(apperrors.CodeInvalidLocation, "malformed location body"))
		return
	}
	out, err := h.coordinator.ActivatePanicButton(r.Context(), location)
	if err != nil {
		writeError(w, err)
		return
	}
	if out.Ignored {
		writeJSON(w, out.Reason.HTTPStatus(), out)
		return
	}
	writeJSON(w, http.StatusAccepted, out)
}

type contactStatusRequest struct {
	Status escalation.ContactStatus `json:"status"`
}

func (h *handler) updateContactStatus(w http.ResponseWriter, r *http.Request) {
	var body contactStatusRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, apperrors.New(apperrors.CodeInvalidContact, "malformed status body"))
		return
	}
	contactType := escalation.ContactType(strings.TrimSpace(r.PathValue("contactType")))
	if err := h.coordinator.ContactStatusUpdate(contactType, body.Status); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) listContacts(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"contacts": h.coordinator.EmergencyContacts()})
}

func (h *handler) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.coordinator.Status())
}

// routes returns the whole table, or the route for one location when x and
// y are given.
func (h *handler) routes(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if !query.Has("x") && !query.Has("y") {
		writeJSON(w, http.StatusOK, map[string]any{"routes": h.coordinator.Routes()})
		return
	}
	location, err := parseLocation(query.Get("x"), query.Get("y"), query.Get("floor"))
	if err != nil {
		writeError(w, err)
		return
	}
	route, err := h.coordinator.EvacuationRoute(location)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, route)
}

type routeLoadRequest struct {
	Delta int `json:"delta"`
}

// adjustRouteLoad records occupants sent down (positive delta) or cleared
// from (negative delta) one route.
func (h *handler) adjustRouteLoad(w http.ResponseWriter, r *http.Request) {
	var body routeLoadRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, apperrors.New(apperrors.CodeInvalidRouteLoad, "malformed route load body"))
		return
	}
	if body.Delta == 0 {
		writeError(w, apperrors.New(apperrors.CodeInvalidRouteLoad, "delta must not be zero"))
		return
	}
	area := strings.TrimSpace(r.PathValue("area"))
	exit := strings.TrimSpace(r.PathValue("exit"))
	route, err := h.coordinator.AdjustRouteLoad(area, exit, body.Delta)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, route)
}

func (h *handler) exits(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	location, err := parseLocation(query.Get("x"), query.Get("y"), query.Get("floor"))
	if err != nil {
		writeError(w, err)
		return
	}
	exits, err := h.coordinator.NearestExits(location)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"exits": exits})
}

type journalEvent struct {
	EventID             string            `json:"event_id"`
	EventType           string            `json:"event_type"`
	Severity            string            `json:"severity"`
	ThreatLevel         string            `json:"threat_level"`
	Location            incident.Location `json:"location"`
	RadiusMeters        float64           `json:"radius_meters"`
	EvacuationRequested bool              `json:"evacuation_requested"`
	ReportedAt          time.Time         `json:"reported_at"`
	RecordedAt          time.Time         `json:"recorded_at"`
	ClearedAt           *time.Time        `json:"cleared_at,omitempty"`
	ClearReason         string            `json:"clear_reason,omitempty"`
}

type journalDispatch struct {
	ContactType string    `json:"contact_type"`
	ThreatLevel string    `json:"threat_level"`
	Outcome     string    `json:"outcome"`
	LastError   string    `json:"last_error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func (h *handler) journalEvents(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		http.Error(w, "journal is not configured", http.StatusServiceUnavailable)
		return
	}
	records, err := h.history.ListEvents(r.Context(), parseLimit(r.URL.Query().Get("limit")))
	if err != nil {
		log.Printf("httpapi: list journal events: %v", err)
		writeError(w, err)
		return
	}
	out := make([]journalEvent, 0, len(records))
	for _, record := range records {
		out = append(out, journalEvent{
			EventID:             record.EventID,
			EventType:           record.EventType,
			Severity:            record.Severity,
			ThreatLevel:         record.ThreatLevel,
			Location:            incident.Location{X: record.X, Y: record.Y, Floor: record.Floor},
			RadiusMeters:        record.RadiusMeters,
			EvacuationRequested: record.EvacuationRequested,
			ReportedAt:          record.ReportedAt,
			RecordedAt:          record.RecordedAt,
			ClearedAt:           record.ClearedAt,
			ClearReason:         record.ClearReason,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out})
}

func (h *handler) journalDispatches(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		http.Error(w, "journal is not configured", http.StatusServiceUnavailable)
		return
	}
	eventID := strings.TrimSpace(r.PathValue("eventID"))
	attempts, err := h.history.ListDispatchAttempts(r.Context(), eventID, parseLimit(r.URL.Query().Get("limit")))
	if err != nil {
		log.Printf("httpapi: list dispatch attempts for %s: %v", eventID, err)
		writeError(w, err)
		return
	}
	out := make([]journalDispatch, 0, len(attempts))
	for _, attempt := range attempts {
		out = append(out, journalDispatch{
			ContactType: attempt.ContactType,
			ThreatLevel: attempt.ThreatLevel,
			Outcome:     attempt.Outcome,
			LastError:   attempt.LastError,
			CreatedAt:   attempt.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"event_id": eventID, "dispatches": out})
}

func parseLocation(rawX, rawY, rawFloor string) (incident.Location, error) {
	x, errX := strconv.ParseFloat(strings.TrimSpace(rawX), 64)
	y, errY := strconv.ParseFloat(strings.TrimSpace(rawY), 64)
	if errX != nil || errY != nil {
		return incident.Location{}, apperrors.New(apperrors.CodeInvalidLocation, "x and y must be numbers")
	}
	floor := 0
	if strings.TrimSpace(rawFloor) != "" {
		parsed, err := strconv.Atoi(strings.TrimSpace(rawFloor))
		if err != nil {
			return incident.Location{}, apperrors.New(apperrors.CodeInvalidLocation, "floor must be an integer")
		}
		floor = parsed
	}
	location := incident.Location{X: x, Y: y, Floor: floor}
	if !location.Valid() {
		return incident.Location{}, apperrors.New(apperrors.CodeInvalidLocation, "location is not finite")
	}
	return location, nil
}

func parseLimit(raw string) int {
	limit, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || limit <= 0 {
		return defaultJournalLimit
	}
	return min(limit, maxJournalLimit)
}

func decodeBody(r *http.Request, target any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		return err
	}
	return nil
}

type errorResponse struct {
	Code     apperrors.Code    `json:"code"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func writeError(w http.ResponseWriter, err error) {
	code := apperrors.CodeOf(err)
	response := errorResponse{Code: code, Message: "internal error"}
	var domainErr *apperrors.Error
	if errors.As(err, &domainErr) {
		response.Message = domainErr.Message
		response.Metadata = domainErr.Metadata
	} else {
		log.Printf("httpapi: %v", err)
	}
	writeJSON(w, code.HTTPStatus(), response)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	_ = encoder.Encode(payload)
}
