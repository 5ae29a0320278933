package app

import (
	"math"
	"time"

	apperrors "github.com/louisbranch/egress/internal/platform/errors"
	"github.com/louisbranch/egress/internal/platform/timeouts"
	"github.com/louisbranch/egress/internal/services/emergency/domain/incident"
)

// Detection sensitivities. The value is reported in status for the
// detection collaborator and does not change coordinator behavior.
const (
	SensitivityLow    = "low"
	SensitivityMedium = "medium"
	SensitivityHigh   = "high"
)

const (
	defaultMonitorInterval     = time.Second
	defaultRecalculateInterval = 500 * time.Millisecond
	defaultPanicRadiusMeters   = 10
)

// Config controls coordinator behavior.
type Config struct {
	// EmergencyMonitoring enables the background monitor loop.
	EmergencyMonitoring bool
	// AutoEvacuationThreshold is the lowest level that enters Elevated on its own.
	AutoEvacuationThreshold incident.ThreatLevel
	// RouteRecalculationInterval is the monitor cadence while Elevated.
	RouteRecalculationInterval time.Duration
	// MonitorInterval is the baseline monitor cadence.
	MonitorInterval            time.Duration
	HazardDetectionSensitivity string
	PanicButtonEnabled         bool
	// RecalculationBudget bounds one full route recalculation pass.
	RecalculationBudget time.Duration
	PanicRadiusMeters   float64
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		EmergencyMonitoring:        true,
		AutoEvacuationThreshold:    incident.ThreatHigh,
		RouteRecalculationInterval: defaultRecalculateInterval,
		MonitorInterval:            defaultMonitorInterval,
		HazardDetectionSensitivity: SensitivityMedium,
		PanicButtonEnabled:         true,
		RecalculationBudget:        timeouts.Recalculation,
		PanicRadiusMeters:          defaultPanicRadiusMeters,
	}
}

// Validate rejects configurations the coordinator cannot run with.
func (c Config) Validate() error {
	switch {
	case c.AutoEvacuationThreshold < incident.ThreatMedium || c.AutoEvacuationThreshold > incident.ThreatCritical:
		return invalidConfig("auto_evacuation_threshold", "threshold must be medium, high or critical")
	case c.RouteRecalculationInterval <= 0:
		return invalidConfig("route_recalculation_interval", "interval must be positive")
	case c.MonitorInterval <= 0:
		return invalidConfig("monitor_interval", "interval must be positive")
	case c.RecalculationBudget <= 0:
		return invalidConfig("recalculation_budget", "budget must be positive")
	case c.PanicRadiusMeters < 0 || math.IsNaN(c.PanicRadiusMeters):
		return invalidConfig("panic_radius_meters", "radius must not be negative")
	}
	switch c.HazardDetectionSensitivity {
	case SensitivityLow, SensitivityMedium, SensitivityHigh:
		return nil
	default:
		return invalidConfig("hazard_detection_sensitivity", "sensitivity must be low, medium or high")
	}
}

func invalidConfig(field string, message string) error {
	return apperrors.WithMetadata(apperrors.CodeConfigInvalid, message, map[string]string{"field": field})
}
