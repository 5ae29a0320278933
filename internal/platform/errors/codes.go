// Package errors provides structured, coded errors for the coordinator.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Input errors
	CodeInvalidEvent        Code = "INVALID_EVENT"
	CodeInvalidZone         Code = "INVALID_ZONE"
	CodeInvalidContact      Code = "INVALID_CONTACT"
	CodeInvalidLocation     Code = "INVALID_LOCATION"
	CodePanicButtonDisabled Code = "PANIC_BUTTON_DISABLED"
	CodeInvalidRouteLoad    Code = "INVALID_ROUTE_LOAD"

	// Routing errors
	CodeRoutingUnreachable Code = "ROUTING_UNREACHABLE"

	// Escalation errors
	CodeNotificationFailure Code = "NOTIFICATION_FAILURE"

	// Configuration errors
	CodeConfigInvalid Code = "CONFIG_INVALID"

	// Lookup errors
	CodeNotFound Code = "NOT_FOUND"
)

// HTTPStatus maps domain codes to HTTP status codes for the operator API.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeInvalidEvent,
		CodeInvalidZone,
		CodeInvalidContact,
		CodeInvalidLocation,
		CodeInvalidRouteLoad:
		return http.StatusBadRequest
	case CodePanicButtonDisabled:
		return http.StatusConflict
	case CodeNotFound:
		return http.StatusNotFound
	case CodeRoutingUnreachable:
		return http.StatusUnprocessableEntity
	case CodeNotificationFailure:
		return http.StatusBadGateway
	case CodeConfigInvalid:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
