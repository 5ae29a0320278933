package facility

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/louisbranch/egress/internal/services/emergency/domain/evacuation"
	"github.com/louisbranch/egress/internal/services/emergency/domain/incident"
)

type edgeKey struct {
	a string
	b string
}

func newEdgeKey(a, b string) edgeKey {
	if b < a {
		a, b = b, a
	}
	return edgeKey{a: a, b: b}
}

// Graph is an immutable in-memory floor plan.
type Graph struct {
	plan      Plan
	nodes     map[string]Node
	neighbors map[string][]string
	distances map[edgeKey]float64
	exits     map[string][]string
	areas     []evacuation.Area
}

// NewGraph validates plan and indexes it for routing.
func NewGraph(plan Plan) (*Graph, error) {
	g := &Graph{
		plan:      plan,
		nodes:     make(map[string]Node, len(plan.Nodes)),
		neighbors: make(map[string][]string),
		distances: make(map[edgeKey]float64),
		exits:     make(map[string][]string),
	}
	for _, node := range plan.Nodes {
		node.ID = strings.TrimSpace(node.ID)
		if node.ID == "" {
			return nil, fmt.Errorf("node id is required")
		}
		if _, dup := g.nodes[node.ID]; dup {
			return nil, fmt.Errorf("duplicate node %q", node.ID)
		}
		if node.Capacity < 0 {
			return nil, fmt.Errorf("node %q: capacity must not be negative", node.ID)
		}
		g.nodes[node.ID] = node
	}
	for _, edge := range plan.Edges {
		from, okFrom := g.nodes[edge.From]
		to, okTo := g.nodes[edge.To]
		if !okFrom || !okTo {
			return nil, fmt.Errorf("edge %s-%s references unknown node", edge.From, edge.To)
		}
		if edge.From == edge.To {
			return nil, fmt.Errorf("edge %s-%s is a self loop", edge.From, edge.To)
		}
		distance := edge.Distance
		if distance < 0 {
			return nil, fmt.Errorf("edge %s-%s: distance must not be negative", edge.From, edge.To)
		}
		if distance == 0 {
			distance = location(from).DistanceTo(location(to))
		}
		key := newEdgeKey(edge.From, edge.To)
		if _, dup := g.distances[key]; dup {
			return nil, fmt.Errorf("duplicate edge %s-%s", edge.From, edge.To)
		}
		g.distances[key] = distance
		g.neighbors[edge.From] = append(g.neighbors[edge.From], edge.To)
		g.neighbors[edge.To] = append(g.neighbors[edge.To], edge.From)
	}
	for id := range g.neighbors {
		slices.Sort(g.neighbors[id])
	}
	seenAreas := make(map[string]bool)
	for _, area := range plan.Areas {
		if strings.TrimSpace(area.ID) == "" {
			return nil, fmt.Errorf("area id is required")
		}
		if seenAreas[area.ID] {
			return nil, fmt.Errorf("duplicate area %q", area.ID)
		}
		seenAreas[area.ID] = true
		if _, ok := g.nodes[area.Node]; !ok {
			return nil, fmt.Errorf("area %q: unknown node %q", area.ID, area.Node)
		}
		if len(area.Exits) == 0 {
			return nil, fmt.Errorf("area %q: at least one exit is required", area.ID)
		}
		for _, exit := range area.Exits {
			node, ok := g.nodes[exit]
			if !ok || !node.Exit {
				return nil, fmt.Errorf("area %q: %q is not an exit node", area.ID, exit)
			}
		}
		g.exits[area.ID] = slices.Clone(area.Exits)
		g.areas = append(g.areas, evacuation.Area{ID: area.ID, Node: area.Node})
	}
	if len(g.areas) == 0 {
		return nil, fmt.Errorf("floor plan has no areas")
	}
	if _, err := plan.Directory(); err != nil {
		return nil, err
	}
	return g, nil
}

func location(n Node) incident.Location {
	return incident.Location{X: n.X, Y: n.Y, Floor: n.Floor}
}

// Name returns the plan name.
func (g *Graph) Name() string { return g.plan.Name }

// Plan returns the source document.
func (g *Graph) Plan() Plan { return g.plan }

// Neighbors implements evacuation.FacilityGraph.
func (g *Graph) Neighbors(node string) []string {
	return slices.Clone(g.neighbors[node])
}

// Exits implements evacuation.FacilityGraph.
func (g *Graph) Exits(area string) []string {
	return slices.Clone(g.exits[area])
}

// Distance implements evacuation.FacilityGraph. Non-adjacent pairs are
// infinitely far apart.
func (g *Graph) Distance(a, b string) float64 {
	if d, ok := g.distances[newEdgeKey(a, b)]; ok {
		return d
	}
	return math.Inf(1)
}

// Position implements evacuation.FacilityGraph.
func (g *Graph) Position(node string) (incident.Location, bool) {
	n, ok := g.nodes[node]
	if !ok {
		return incident.Location{}, false
	}
	return location(n), true
}

// Areas implements evacuation.FacilityGraph.
func (g *Graph) Areas() []evacuation.Area {
	return slices.Clone(g.areas)
}

// ExitCapacity implements evacuation.ExitCapacityProvider.
func (g *Graph) ExitCapacity(exit string) int {
	return g.nodes[exit].Capacity
}
