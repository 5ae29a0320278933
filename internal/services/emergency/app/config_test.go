package app

import (
	"errors"
	"math"
	"testing"
	"time"

	apperrors "github.com/louisbranch/egress/internal/platform/errors"
	"github.com/louisbranch/egress/internal/services/emergency/domain/incident"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.AutoEvacuationThreshold != incident.ThreatHigh {
		t.Fatalf("threshold = %v, want high", cfg.AutoEvacuationThreshold)
	}
	if cfg.RouteRecalculationInterval != 500*time.Millisecond || cfg.MonitorInterval != time.Second {
		t.Fatalf("intervals = %v/%v", cfg.RouteRecalculationInterval, cfg.MonitorInterval)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"threshold low", func(c *Config) { c.AutoEvacuationThreshold = incident.ThreatLow }, "auto_evacuation_threshold"},
		{"threshold out of range", func(c *Config) { c.AutoEvacuationThreshold = 9 }, "auto_evacuation_threshold"},
		{"zero recalculation interval", func(c *Config) { c.RouteRecalculationInterval = 0 }, "route_recalculation_interval"},
		{"negative monitor interval", func(c *Config) { c.MonitorInterval = -time.Second }, "monitor_interval"},
		{"zero budget", func(c *Config) { c.RecalculationBudget = 0 }, "recalculation_budget"},
		{"nan panic radius", func(c *Config) { c.PanicRadiusMeters = math.NaN() }, "panic_radius_meters"},
		{"unknown sensitivity", func(c *Config) { c.HazardDetectionSensitivity = "extreme" }, "hazard_detection_sensitivity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if !apperrors.HasCode(err, apperrors.CodeConfigInvalid) {
				t.Fatalf("error = %v, want config invalid", err)
			}
			var coded *apperrors.Error
			if !errors.As(err, &coded) || coded.Metadata["field"] != tt.field {
				t.Fatalf("field = %v, want %s", err, tt.field)
			}
		})
	}
}
