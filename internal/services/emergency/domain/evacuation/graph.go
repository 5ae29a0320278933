// Package evacuation computes hazard-aware evacuation routes over a facility
// graph and owns the live route table.
package evacuation

import "github.com/louisbranch/egress/internal/services/emergency/domain/incident"

// FacilityGraph is the read-only floor plan routing runs over.
type FacilityGraph interface {
	// Neighbors returns the nodes directly reachable from node.
	Neighbors(node string) []string
	// Exits returns the exit nodes serving area.
	Exits(area string) []string
	// Distance returns the walking distance in meters between adjacent nodes.
	Distance(a, b string) float64
	// Position locates node in the facility.
	Position(node string) (incident.Location, bool)
	// Areas lists the evacuation areas and their assembly nodes.
	Areas() []Area
}

// ExitCapacityProvider is optionally implemented by graphs that know how many
// occupants each exit can take.
type ExitCapacityProvider interface {
	ExitCapacity(exit string) int
}

// Area is one occupant region with a representative start node.
type Area struct {
	ID   string `json:"id" yaml:"id"`
	Node string `json:"node" yaml:"node"`
}
