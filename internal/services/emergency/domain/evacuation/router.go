package evacuation

import (
	"cmp"
	"container/heap"
	"context"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	apperrors "github.com/louisbranch/egress/internal/platform/errors"
	"github.com/louisbranch/egress/internal/services/emergency/domain/hazard"
	"github.com/louisbranch/egress/internal/services/emergency/domain/incident"
)

const (
	defaultWalkingSpeed     = 1.2 // meters per second
	defaultPerNodeCost      = 2 * time.Second
	defaultCongestionFactor = 1.5
	defaultExitCapacity     = 250
)

// Options tunes travel-time estimation. Zero values take defaults.
type Options struct {
	WalkingSpeed     float64
	PerNodeCost      time.Duration
	CongestionFactor float64
	DefaultCapacity  int
}

func (o Options) withDefaults() Options {
	if o.WalkingSpeed == 0 {
		o.WalkingSpeed = defaultWalkingSpeed
	}
	if o.PerNodeCost == 0 {
		o.PerNodeCost = defaultPerNodeCost
	}
	if o.CongestionFactor == 0 {
		o.CongestionFactor = defaultCongestionFactor
	}
	if o.DefaultCapacity == 0 {
		o.DefaultCapacity = defaultExitCapacity
	}
	return o
}

func (o Options) validate() error {
	switch {
	case o.WalkingSpeed <= 0 || math.IsNaN(o.WalkingSpeed):
		return apperrors.New(apperrors.CodeConfigInvalid, "walking speed must be positive")
	case o.PerNodeCost < 0:
		return apperrors.New(apperrors.CodeConfigInvalid, "per-node cost must not be negative")
	case o.CongestionFactor < 1 || math.IsNaN(o.CongestionFactor):
		return apperrors.New(apperrors.CodeConfigInvalid, "congestion factor must be at least 1")
	case o.DefaultCapacity < 0:
		return apperrors.New(apperrors.CodeConfigInvalid, "default exit capacity must not be negative")
	}
	return nil
}

// Router computes routes and owns the route table.
type Router struct {
	graph FacilityGraph
	opts  Options
	clock func() time.Time

	mu        sync.RWMutex
	routes    map[routeKey]Route
	baseline  map[routeKey][]string
	committed uint64
}

// NewRouter validates opts and returns a router with an empty table.
func NewRouter(graph FacilityGraph, opts Options, clock func() time.Time) (*Router, error) {
	if graph == nil {
		return nil, apperrors.New(apperrors.CodeConfigInvalid, "facility graph is required")
	}
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = time.Now
	}
	return &Router{
		graph:  graph,
		opts:   opts,
		clock:  clock,
		routes:   make(map[routeKey]Route),
		baseline: make(map[routeKey][]string),
	}, nil
}

// CalculateRoute finds the best path from start to exit. A path avoiding
// every hazard is preferred; otherwise the path with the least weighted
// exposure is returned with HazardFree unset. Only a disconnected pair fails.
func (r *Router) CalculateRoute(start, exit string, hazards []hazard.Zone) (Route, error) {
	route := Route{
		Start:     start,
		Exit:      exit,
		UpdatedAt: r.clock().UTC(),
	}
	if start == exit {
		route.Path = []string{start}
		route.HazardFree = true
		route.Priority = PriorityPrimary
		return route, nil
	}

	exposure := r.exposureFunc(hazards)
	avoid := func(node string) (float64, bool) {
		return 0, exposure(node) == 0
	}
	if path, cost, ok := r.search(start, exit, avoid); ok {
		route.Path = path
		route.DistanceMeters = cost.distance
		route.HazardFree = true
		route.Priority = PriorityPrimary
	} else if path, cost, ok := r.search(start, exit, func(node string) (float64, bool) { return exposure(node), true }); ok {
		route.Path = path
		route.DistanceMeters = cost.distance
		route.HazardExposure = cost.exposure
		route.Priority = PriorityEmergency
	} else {
		return Route{}, apperrors.WithMetadata(apperrors.CodeRoutingUnreachable, "no path between nodes", map[string]string{
			"start": start,
			"exit":  exit,
		})
	}
	route.EstimatedTime = r.estimate(route.DistanceMeters, route.Hops(), route.Priority)
	return route, nil
}

func (r *Router) estimate(distance float64, hops int, priority Priority) time.Duration {
	walk := time.Duration(distance / r.opts.WalkingSpeed * float64(time.Second))
	perNode := float64(r.opts.PerNodeCost)
	if priority == PriorityEmergency {
		perNode *= r.opts.CongestionFactor
	}
	return walk + time.Duration(float64(hops)*perNode)
}

// exposureFunc weighs a node by the severity of every zone covering it.
func (r *Router) exposureFunc(hazards []hazard.Zone) func(string) float64 {
	return func(node string) float64 {
		pos, located := r.graph.Position(node)
		var total float64
		for _, zone := range hazards {
			if !zone.Active {
				continue
			}
			if zone.Blocks(node) || (located && zone.Contains(pos)) {
				total += float64(max(zone.Severity.Score(), 1))
			}
		}
		return total
	}
}

// RecalculateAll recomputes every route in routes against hazards, checking
// ctx between routes. When ctx ends early the routes finished so far are
// returned with the context cause.
func (r *Router) RecalculateAll(ctx context.Context, routes []Route, hazards []hazard.Zone) ([]Route, error) {
	ordered := make([]Route, len(routes))
	copy(ordered, routes)
	slices.SortFunc(ordered, compareRoutes)

	out := make([]Route, 0, len(ordered))
	for _, existing := range ordered {
		if ctx.Err() != nil {
			r.rank(out)
			return out, context.Cause(ctx)
		}
		out = append(out, r.recalculate(existing, hazards))
	}
	r.rank(out)
	return out, nil
}

func (r *Router) recalculate(existing Route, hazards []hazard.Zone) Route {
	next, err := r.CalculateRoute(existing.Start, existing.Exit, hazards)
	if err != nil {
		next = Route{
			Start:       existing.Start,
			Exit:        existing.Exit,
			Priority:    PriorityEmergency,
			Unreachable: true,
			UpdatedAt:   r.clock().UTC(),
		}
	}
	next.ID = existing.ID
	next.Area = existing.Area
	next.Capacity = existing.Capacity
	next.CurrentLoad = existing.CurrentLoad
	return next
}

// CompromisedAreas returns the sorted areas where no route is hazard-free.
func CompromisedAreas(routes []Route) []string {
	safe := make(map[string]bool)
	for _, route := range routes {
		safe[route.Area] = safe[route.Area] || (route.HazardFree && !route.Unreachable)
	}
	var out []string
	for area, ok := range safe {
		if !ok {
			out = append(out, area)
		}
	}
	slices.Sort(out)
	return out
}

// AreasTouchedBy returns the sorted areas with a route whose current or
// hazard-free baseline path enters zone.
func (r *Router) AreasTouchedBy(zone hazard.Zone) []string {
	exposure := r.exposureFunc([]hazard.Zone{zone})
	enters := func(path []string) bool {
		return slices.ContainsFunc(path, func(node string) bool { return exposure(node) > 0 })
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	touched := make(map[string]bool)
	for key, route := range r.routes {
		if touched[route.Area] {
			continue
		}
		if exposure(route.Start) > 0 || exposure(route.Exit) > 0 || enters(route.Path) || enters(r.baseline[key]) {
			touched[route.Area] = true
		}
	}
	out := make([]string, 0, len(touched))
	for area := range touched {
		out = append(out, area)
	}
	slices.Sort(out)
	return out
}

// SafeRouteIDs returns the sorted ids of reachable hazard-free routes in areas.
func SafeRouteIDs(routes []Route, areas []string) []string {
	var out []string
	for _, route := range routes {
		if route.HazardFree && !route.Unreachable && slices.Contains(areas, route.Area) {
			out = append(out, route.ID)
		}
	}
	slices.Sort(out)
	return out
}

// rank assigns priorities per area in place. Hazard-free routes are ordered
// with free capacity first, then by distance and exit id; the best is primary
// and the rest secondary. Routes through a hazard are always emergency.
func (r *Router) rank(routes []Route) {
	byArea := make(map[string][]int)
	for i, route := range routes {
		if route.HazardFree && !route.Unreachable {
			byArea[route.Area] = append(byArea[route.Area], i)
			continue
		}
		routes[i].Priority = PriorityEmergency
		if !route.Unreachable {
			routes[i].EstimatedTime = r.estimate(route.DistanceMeters, route.Hops(), PriorityEmergency)
		}
	}
	for _, idx := range byArea {
		slices.SortFunc(idx, func(a, b int) int {
			ra, rb := routes[a], routes[b]
			if ra.Full() != rb.Full() {
				if ra.Full() {
					return 1
				}
				return -1
			}
			return cmp.Or(cmp.Compare(ra.DistanceMeters, rb.DistanceMeters), strings.Compare(ra.Exit, rb.Exit))
		})
		for rank, i := range idx {
			priority := PrioritySecondary
			if rank == 0 {
				priority = PriorityPrimary
			}
			routes[i].Priority = priority
			routes[i].EstimatedTime = r.estimate(routes[i].DistanceMeters, routes[i].Hops(), priority)
		}
	}
}

func compareRoutes(a, b Route) int {
	return cmp.Or(strings.Compare(a.Area, b.Area), strings.Compare(a.Exit, b.Exit))
}

type pathCost struct {
	exposure float64
	distance float64
}

func (c pathCost) less(o pathCost) bool {
	if c.exposure != o.exposure {
		return c.exposure < o.exposure
	}
	return c.distance < o.distance
}

// search runs Dijkstra from start to exit. weight returns the exposure of
// entering a node and whether the node may be entered at all.
func (r *Router) search(start, exit string, weight func(string) (float64, bool)) ([]string, pathCost, bool) {
	w0, ok := weight(start)
	if !ok {
		return nil, pathCost{}, false
	}
	best := map[string]pathCost{start: {exposure: w0}}
	prev := make(map[string]string)
	done := make(map[string]bool)
	queue := &nodeQueue{{node: start, cost: best[start]}}

	for queue.Len() > 0 {
		item := heap.Pop(queue).(queueItem)
		if done[item.node] {
			continue
		}
		done[item.node] = true
		if item.node == exit {
			break
		}
		neighbors := slices.Clone(r.graph.Neighbors(item.node))
		slices.Sort(neighbors)
		for _, next := range neighbors {
			if done[next] {
				continue
			}
			w, allowed := weight(next)
			if !allowed {
				continue
			}
			step := r.graph.Distance(item.node, next)
			if step < 0 || math.IsNaN(step) || math.IsInf(step, 0) {
				continue
			}
			candidate := pathCost{exposure: item.cost.exposure + w, distance: item.cost.distance + step}
			if current, seen := best[next]; seen && !candidate.less(current) {
				continue
			}
			best[next] = candidate
			prev[next] = item.node
			heap.Push(queue, queueItem{node: next, cost: candidate})
		}
	}
	if !done[exit] {
		return nil, pathCost{}, false
	}
	path := []string{exit}
	for node := exit; node != start; {
		node = prev[node]
		path = append(path, node)
	}
	slices.Reverse(path)
	return path, best[exit], true
}

type queueItem struct {
	node string
	cost pathCost
}

type nodeQueue []queueItem

func (q nodeQueue) Len() int { return len(q) }

func (q nodeQueue) Less(i, j int) bool {
	if q[i].cost != q[j].cost {
		return q[i].cost.less(q[j].cost)
	}
	return q[i].node < q[j].node
}

func (q nodeQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *nodeQueue) Push(x any) { *q = append(*q, x.(queueItem)) }

func (q *nodeQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// FindNearestExits orders every exit of the facility by straight-line
// distance from location, ties by exit id.
func (r *Router) FindNearestExits(location incident.Location) []ExitCandidate {
	seen := make(map[string]bool)
	var out []ExitCandidate
	for _, area := range r.graph.Areas() {
		for _, exit := range r.graph.Exits(area.ID) {
			if seen[exit] {
				continue
			}
			seen[exit] = true
			pos, ok := r.graph.Position(exit)
			if !ok {
				continue
			}
			out = append(out, ExitCandidate{Exit: exit, Location: pos, DistanceMeters: location.DistanceTo(pos)})
		}
	}
	slices.SortFunc(out, func(a, b ExitCandidate) int {
		return cmp.Or(cmp.Compare(a.DistanceMeters, b.DistanceMeters), strings.Compare(a.Exit, b.Exit))
	})
	return out
}

// ExitCandidate is one exit ranked by proximity.
type ExitCandidate struct {
	Exit           string            `json:"exit"`
	Location       incident.Location `json:"location"`
	DistanceMeters float64           `json:"distance_meters"`
}
