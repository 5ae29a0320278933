// Package facility loads YAML floor plans into the routing graph the
// evacuation router runs over.
package facility

import (
	_ "embed"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/louisbranch/egress/internal/services/emergency/domain/escalation"
	"github.com/louisbranch/egress/internal/services/emergency/domain/evacuation"
	"github.com/louisbranch/egress/internal/services/emergency/domain/incident"
	"gopkg.in/yaml.v3"
)

//go:embed terminal.yaml
var sampleTerminal []byte

// Plan is the on-disk floor plan document.
type Plan struct {
	Name     string        `yaml:"name"`
	Nodes    []Node        `yaml:"nodes"`
	Edges    []Edge        `yaml:"edges"`
	Areas    []AreaSpec    `yaml:"areas"`
	Contacts []ContactSpec `yaml:"contacts"`
}

// Node is one walkable point.
type Node struct {
	ID       string  `yaml:"id"`
	X        float64 `yaml:"x"`
	Y        float64 `yaml:"y"`
	Floor    int     `yaml:"floor"`
	Exit     bool    `yaml:"exit"`
	Capacity int     `yaml:"capacity"`
}

// Edge connects two nodes in both directions. A zero distance is derived
// from node positions.
type Edge struct {
	From     string  `yaml:"from"`
	To       string  `yaml:"to"`
	Distance float64 `yaml:"distance"`
}

// AreaSpec is an evacuation area and the exits serving it.
type AreaSpec struct {
	ID    string   `yaml:"id"`
	Node  string   `yaml:"node"`
	Exits []string `yaml:"exits"`
}

// ContactSpec overrides one entry of the responder directory.
type ContactSpec struct {
	Type            string  `yaml:"type"`
	Name            string  `yaml:"name"`
	Phone           string  `yaml:"phone"`
	X               float64 `yaml:"x"`
	Y               float64 `yaml:"y"`
	Floor           int     `yaml:"floor"`
	ResponseMinutes int     `yaml:"response_minutes"`
}

// Load reads and parses a floor plan file.
func Load(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading floor plan: %w", err)
	}
	return Parse(data)
}

// Sample returns the embedded terminal floor plan.
func Sample() (*Graph, error) {
	return Parse(sampleTerminal)
}

// Parse decodes and validates a floor plan document.
func Parse(data []byte) (*Graph, error) {
	var plan Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("parsing floor plan YAML: %w", err)
	}
	return NewGraph(plan)
}

// Directory returns the responder directory: the built-in one with any
// plan contacts replacing entries of the same type.
func (p Plan) Directory() ([]escalation.Contact, error) {
	directory := escalation.DefaultDirectory()
	for _, spec := range p.Contacts {
		contactType := escalation.ContactType(strings.TrimSpace(spec.Type))
		if !contactType.Valid() {
			return nil, fmt.Errorf("contact %q: unknown type %q", spec.Name, spec.Type)
		}
		contact := escalation.Contact{
			Type:         contactType,
			Name:         spec.Name,
			Phone:        spec.Phone,
			Location:     incident.Location{X: spec.X, Y: spec.Y, Floor: spec.Floor},
			ResponseTime: time.Duration(spec.ResponseMinutes) * time.Minute,
			Status:       escalation.StatusAvailable,
		}
		idx := slices.IndexFunc(directory, func(c escalation.Contact) bool { return c.Type == contactType })
		if idx >= 0 {
			directory[idx] = contact
		} else {
			directory = append(directory, contact)
		}
	}
	return directory, nil
}

var _ evacuation.FacilityGraph = (*Graph)(nil)
var _ evacuation.ExitCapacityProvider = (*Graph)(nil)
