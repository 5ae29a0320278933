// Package coordinator parses coordinator command flags and composes the
// emergency runtime.
package coordinator

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"strings"
	"time"

	entrypoint "github.com/louisbranch/egress/internal/platform/cmd"
	platformgrpc "github.com/louisbranch/egress/internal/platform/grpc"
	"github.com/louisbranch/egress/internal/services/emergency"
	"github.com/louisbranch/egress/internal/services/emergency/app"
	"github.com/louisbranch/egress/internal/services/emergency/domain/incident"
	"github.com/louisbranch/egress/internal/services/emergency/integration/natsbus"
	"github.com/louisbranch/egress/internal/services/emergency/integration/redisfeed"
)

const probeTimeout = 3 * time.Second

// Config holds coordinator command configuration.
type Config struct {
	HTTPAddr     string `env:"EGRESS_COORDINATOR_HTTP_ADDR"     envDefault:":8090"`
	GRPCAddr     string `env:"EGRESS_COORDINATOR_GRPC_ADDR"     envDefault:":8091"`
	DBPath       string `env:"EGRESS_COORDINATOR_DB_PATH"       envDefault:"data/coordinator.db"`
	FacilityPath string `env:"EGRESS_COORDINATOR_FACILITY_PATH"`

	NATSURL       string `env:"EGRESS_COORDINATOR_NATS_URL"`
	RedisAddr     string `env:"EGRESS_COORDINATOR_REDIS_ADDR"`
	RedisPassword string `env:"EGRESS_COORDINATOR_REDIS_PASSWORD"`
	RedisDB       int    `env:"EGRESS_COORDINATOR_REDIS_DB"       envDefault:"0"`

	EmergencyMonitoring        bool          `env:"EGRESS_COORDINATOR_EMERGENCY_MONITORING"          envDefault:"true"`
	AutoEvacuationThreshold    string        `env:"EGRESS_COORDINATOR_AUTO_EVACUATION_THRESHOLD"     envDefault:"high"`
	RouteRecalculationInterval time.Duration `env:"EGRESS_COORDINATOR_ROUTE_RECALCULATION_INTERVAL"  envDefault:"500ms"`
	MonitorInterval            time.Duration `env:"EGRESS_COORDINATOR_MONITOR_INTERVAL"              envDefault:"1s"`
	HazardDetectionSensitivity string        `env:"EGRESS_COORDINATOR_HAZARD_DETECTION_SENSITIVITY"  envDefault:"medium"`
	PanicButtonEnabled         bool          `env:"EGRESS_COORDINATOR_PANIC_BUTTON_ENABLED"          envDefault:"true"`
	RecalculationBudget        time.Duration `env:"EGRESS_COORDINATOR_RECALCULATION_BUDGET"          envDefault:"400ms"`
	PanicRadiusMeters          float64       `env:"EGRESS_COORDINATOR_PANIC_RADIUS_METERS"           envDefault:"10"`

	// Probe checks a running coordinator's health and exits.
	Probe bool
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "operator API listen address")
	fs.StringVar(&cfg.GRPCAddr, "grpc-addr", cfg.GRPCAddr, "gRPC health listen address")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "journal sqlite path")
	fs.StringVar(&cfg.FacilityPath, "facility", cfg.FacilityPath, "floor plan YAML (empty uses the built-in terminal)")
	fs.StringVar(&cfg.NATSURL, "nats-url", cfg.NATSURL, "NATS server URL (empty logs alerts and dispatches)")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "Redis address for contact statuses")
	fs.BoolVar(&cfg.EmergencyMonitoring, "monitoring", cfg.EmergencyMonitoring, "run the background monitor loop")
	fs.StringVar(&cfg.AutoEvacuationThreshold, "threshold", cfg.AutoEvacuationThreshold, "auto-evacuation threshold: medium, high or critical")
	fs.DurationVar(&cfg.RouteRecalculationInterval, "recalc-interval", cfg.RouteRecalculationInterval, "monitor cadence while elevated")
	fs.DurationVar(&cfg.MonitorInterval, "monitor-interval", cfg.MonitorInterval, "baseline monitor cadence")
	fs.StringVar(&cfg.HazardDetectionSensitivity, "sensitivity", cfg.HazardDetectionSensitivity, "hazard detection sensitivity: low, medium or high")
	fs.BoolVar(&cfg.PanicButtonEnabled, "panic-button", cfg.PanicButtonEnabled, "accept panic button activations")
	fs.DurationVar(&cfg.RecalculationBudget, "recalc-budget", cfg.RecalculationBudget, "time budget for one route recalculation")
	fs.BoolVar(&cfg.Probe, "probe", false, "check the running coordinator's gRPC health and exit")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ServerConfig converts the command configuration into the runtime's.
func (c Config) ServerConfig() (emergency.Config, error) {
	threshold, err := incident.ParseThreatLevel(c.AutoEvacuationThreshold)
	if err != nil {
		return emergency.Config{}, fmt.Errorf("auto evacuation threshold: %w", err)
	}
	coordinator := app.Config{
		EmergencyMonitoring:        c.EmergencyMonitoring,
		AutoEvacuationThreshold:    threshold,
		RouteRecalculationInterval: c.RouteRecalculationInterval,
		MonitorInterval:            c.MonitorInterval,
		HazardDetectionSensitivity: strings.ToLower(strings.TrimSpace(c.HazardDetectionSensitivity)),
		PanicButtonEnabled:         c.PanicButtonEnabled,
		RecalculationBudget:        c.RecalculationBudget,
		PanicRadiusMeters:          c.PanicRadiusMeters,
	}
	if err := coordinator.Validate(); err != nil {
		return emergency.Config{}, err
	}
	return emergency.Config{
		HTTPAddr:     c.HTTPAddr,
		GRPCAddr:     c.GRPCAddr,
		DBPath:       c.DBPath,
		FacilityPath: c.FacilityPath,
		NATS: natsbus.Config{
			URL:  c.NATSURL,
			Name: "egress-" + entrypoint.ServiceCoordinator,
		},
		Redis: redisfeed.Config{
			Addr:     c.RedisAddr,
			Password: c.RedisPassword,
			DB:       c.RedisDB,
		},
		Coordinator: coordinator,
	}, nil
}

// Run builds the coordinator runtime and serves until ctx ends. With Probe
// set it only checks a running coordinator.
func Run(ctx context.Context, cfg Config) error {
	if cfg.Probe {
		return platformgrpc.Probe(ctx, probeAddr(cfg.GRPCAddr), emergency.HealthService, probeTimeout, log.Printf)
	}
	serverCfg, err := cfg.ServerConfig()
	if err != nil {
		return err
	}
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceCoordinator, func(ctx context.Context) error {
		if err := emergency.Run(ctx, serverCfg); err != nil {
			return fmt.Errorf("serve coordinator: %w", err)
		}
		return nil
	})
}

// probeAddr turns a listen address like ":8091" into a dialable one.
func probeAddr(listen string) string {
	host, port, err := net.SplitHostPort(strings.TrimSpace(listen))
	if err != nil {
		return listen
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return net.JoinHostPort(host, port)
}
