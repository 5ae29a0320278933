// Package escalation tracks the emergency contact directory and the
// per-event notification protocol used to reach it.
package escalation

import (
	"slices"
	"time"

	"github.com/louisbranch/egress/internal/services/emergency/domain/incident"
)

// ContactType identifies an emergency responder role.
type ContactType string

const (
	ContactFireDepartment   ContactType = "fire_department"
	ContactPolice           ContactType = "police"
	ContactMedical          ContactType = "medical"
	ContactSecurity         ContactType = "security"
	ContactAirportAuthority ContactType = "airport_authority"
)

// ContactTypes lists every responder role in directory order.
func ContactTypes() []ContactType {
	return []ContactType{
		ContactAirportAuthority,
		ContactFireDepartment,
		ContactPolice,
		ContactMedical,
		ContactSecurity,
	}
}

// Valid reports whether t is a known responder role.
func (t ContactType) Valid() bool {
	return slices.Contains(ContactTypes(), t)
}

// ContactStatus is the availability of a responder.
type ContactStatus string

const (
	StatusAvailable  ContactStatus = "available"
	StatusResponding ContactStatus = "responding"
	StatusOnSite     ContactStatus = "on_site"
)

// Valid reports whether s is a known status.
func (s ContactStatus) Valid() bool {
	switch s {
	case StatusAvailable, StatusResponding, StatusOnSite:
		return true
	default:
		return false
	}
}

// Contact is one entry in the emergency directory.
type Contact struct {
	Type         ContactType       `json:"type"`
	Name         string            `json:"name"`
	Phone        string            `json:"phone"`
	Location     incident.Location `json:"location"`
	ResponseTime time.Duration     `json:"response_time"`
	Status       ContactStatus     `json:"status"`
}

// DefaultDirectory is the built-in terminal contact directory.
func DefaultDirectory() []Contact {
	return []Contact{
		{
			Type:         ContactAirportAuthority,
			Name:         "Terminal Operations Center",
			Phone:        "+1-555-0100",
			Location:     incident.Location{X: 0, Y: 0, Floor: 1},
			ResponseTime: 2 * time.Minute,
			Status:       StatusAvailable,
		},
		{
			Type:         ContactFireDepartment,
			Name:         "Airport Fire Station 2",
			Phone:        "+1-555-0111",
			Location:     incident.Location{X: -120, Y: 40, Floor: 0},
			ResponseTime: 4 * time.Minute,
			Status:       StatusAvailable,
		},
		{
			Type:         ContactPolice,
			Name:         "Airport Police Precinct",
			Phone:        "+1-555-0122",
			Location:     incident.Location{X: 60, Y: -30, Floor: 1},
			ResponseTime: 5 * time.Minute,
			Status:       StatusAvailable,
		},
		{
			Type:         ContactMedical,
			Name:         "Terminal Medical Unit",
			Phone:        "+1-555-0133",
			Location:     incident.Location{X: 25, Y: 10, Floor: 1},
			ResponseTime: 3 * time.Minute,
			Status:       StatusAvailable,
		},
		{
			Type:         ContactSecurity,
			Name:         "Terminal Security Desk",
			Phone:        "+1-555-0144",
			Location:     incident.Location{X: 5, Y: 5, Floor: 1},
			ResponseTime: time.Minute,
			Status:       StatusAvailable,
		},
	}
}
