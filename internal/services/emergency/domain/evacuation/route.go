package evacuation

import (
	"time"
)

// Priority ranks the routes of one area.
type Priority string

const (
	PriorityPrimary   Priority = "primary"
	PrioritySecondary Priority = "secondary"
	PriorityEmergency Priority = "emergency"
)

// Route is one (area, exit) evacuation path.
type Route struct {
	ID             string        `json:"id"`
	Area           string        `json:"area"`
	Start          string        `json:"start"`
	Exit           string        `json:"exit"`
	Path           []string      `json:"path"`
	DistanceMeters float64       `json:"distance_meters"`
	EstimatedTime  time.Duration `json:"estimated_time"`
	HazardFree     bool          `json:"hazard_free"`
	HazardExposure float64       `json:"hazard_exposure"`
	Priority       Priority      `json:"priority"`
	Capacity       int           `json:"capacity"`
	CurrentLoad    int           `json:"current_load"`
	UpdatedAt      time.Time     `json:"updated_at"`
	// Unreachable is set when the exit has no path from the area at all.
	Unreachable bool `json:"unreachable"`
}

// RouteID derives the identifier of the (area, exit) route.
func RouteID(area, exit string) string {
	return "route-" + area + "-" + exit
}

// Hops is the number of edges walked.
func (r Route) Hops() int {
	if len(r.Path) == 0 {
		return 0
	}
	return len(r.Path) - 1
}

// Full reports whether the exit has no remaining capacity.
func (r Route) Full() bool {
	return r.Capacity > 0 && r.CurrentLoad >= r.Capacity
}

// Clone returns a deep copy of r.
func (r Route) Clone() Route {
	if r.Path != nil {
		r.Path = append([]string(nil), r.Path...)
	}
	return r
}

type routeKey struct {
	area string
	exit string
}

func (r Route) key() routeKey {
	return routeKey{area: r.Area, exit: r.Exit}
}
