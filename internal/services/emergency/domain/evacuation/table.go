package evacuation

import (
	"cmp"
	"slices"
	"strings"

	apperrors "github.com/louisbranch/egress/internal/platform/errors"
	"github.com/louisbranch/egress/internal/services/emergency/domain/incident"
)

// Initialize fills the route table with the hazard-free baseline for every
// (area, exit) pair of the graph.
func (r *Router) Initialize() error {
	capacities, _ := r.graph.(ExitCapacityProvider)
	var routes []Route
	for _, area := range r.graph.Areas() {
		for _, exit := range r.graph.Exits(area.ID) {
			capacity := r.opts.DefaultCapacity
			if capacities != nil {
				if c := capacities.ExitCapacity(exit); c > 0 {
					capacity = c
				}
			}
			seed := Route{
				ID:       RouteID(area.ID, exit),
				Area:     area.ID,
				Start:    area.Node,
				Exit:     exit,
				Capacity: capacity,
			}
			routes = append(routes, r.recalculate(seed, nil))
		}
	}
	if len(routes) == 0 {
		return apperrors.New(apperrors.CodeConfigInvalid, "facility graph has no evacuation routes")
	}
	r.rank(routes)

	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.routes)
	clear(r.baseline)
	for _, route := range routes {
		r.routes[route.key()] = route
		r.baseline[route.key()] = slices.Clone(route.Path)
	}
	return nil
}

// Routes returns a snapshot of the table ordered by area then exit.
func (r *Router) Routes() []Route {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

func (r *Router) snapshotLocked() []Route {
	out := make([]Route, 0, len(r.routes))
	for _, route := range r.routes {
		out = append(out, route.Clone())
	}
	slices.SortFunc(out, compareRoutes)
	return out
}

// Generation returns the last committed recalculation generation.
func (r *Router) Generation() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.committed
}

// Commit writes recalculated routes into the table when generation is newer
// than the last commit and reports whether it did. Loads adjusted since the
// snapshot was taken are preserved, and priorities are re-ranked over the
// merged table.
func (r *Router) Commit(generation uint64, routes []Route) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if generation <= r.committed {
		return false
	}
	r.committed = generation
	for _, route := range routes {
		current, ok := r.routes[route.key()]
		if !ok {
			continue
		}
		route = route.Clone()
		route.CurrentLoad = current.CurrentLoad
		route.Capacity = current.Capacity
		r.routes[route.key()] = route
	}
	r.rerankLocked()
	return true
}

// NearestArea returns the area whose node is closest to location.
func (r *Router) NearestArea(location incident.Location) (Area, bool) {
	var (
		best     Area
		bestDist float64
		found    bool
	)
	for _, area := range r.graph.Areas() {
		pos, ok := r.graph.Position(area.Node)
		if !ok {
			continue
		}
		d := location.DistanceTo(pos)
		if !found || d < bestDist || (d == bestDist && area.ID < best.ID) {
			best, bestDist, found = area, d, true
		}
	}
	return best, found
}

// RouteFor returns the best current route for the area nearest location:
// the primary route when one exists, otherwise the least exposed reachable
// route. NOT_FOUND when the area has no usable route.
func (r *Router) RouteFor(location incident.Location) (Route, error) {
	area, ok := r.NearestArea(location)
	if !ok {
		return Route{}, apperrors.New(apperrors.CodeNotFound, "no evacuation area near location")
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var candidates []Route
	for _, route := range r.routes {
		if route.Area == area.ID && !route.Unreachable {
			candidates = append(candidates, route)
		}
	}
	if len(candidates) == 0 {
		return Route{}, apperrors.WithMetadata(apperrors.CodeNotFound, "no evacuation route for area", map[string]string{"area": area.ID})
	}
	slices.SortFunc(candidates, func(a, b Route) int {
		return cmp.Or(
			cmp.Compare(priorityRank(a.Priority), priorityRank(b.Priority)),
			cmp.Compare(a.HazardExposure, b.HazardExposure),
			cmp.Compare(a.DistanceMeters, b.DistanceMeters),
			strings.Compare(a.Exit, b.Exit),
		)
	})
	return candidates[0].Clone(), nil
}

// AdjustLoad changes the occupant load of a route by delta, never below
// zero, and re-ranks the table so full exits yield primary to open ones.
func (r *Router) AdjustLoad(area, exit string, delta int) (Route, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := routeKey{area: area, exit: exit}
	route, ok := r.routes[key]
	if !ok {
		return Route{}, apperrors.WithMetadata(apperrors.CodeNotFound, "route not found", map[string]string{"area": area, "exit": exit})
	}
	route.CurrentLoad = max(route.CurrentLoad+delta, 0)
	r.routes[key] = route
	r.rerankLocked()
	return r.routes[key].Clone(), nil
}

func (r *Router) rerankLocked() {
	merged := r.snapshotLocked()
	r.rank(merged)
	for _, route := range merged {
		r.routes[route.key()] = route
	}
}

func priorityRank(p Priority) int {
	switch p {
	case PriorityPrimary:
		return 0
	case PrioritySecondary:
		return 1
	default:
		return 2
	}
}
