package config

import (
	"strings"
	"testing"
	"time"
)

type envTestConfig struct {
	Interval time.Duration `env:"EGRESS_TEST_INTERVAL" envDefault:"500ms"`
	Panic    bool          `env:"EGRESS_TEST_PANIC" envDefault:"true"`
}

type prefixedTestConfig struct {
	Threshold string `env:"THRESHOLD" envDefault:"high"`
}

func TestParseEnvDefaults(t *testing.T) {
	var cfg envTestConfig

	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Interval != 500*time.Millisecond {
		t.Fatalf("interval = %v, want 500ms", cfg.Interval)
	}
	if !cfg.Panic {
		t.Fatal("expected panic default true")
	}
}

func TestParseEnvError(t *testing.T) {
	var cfg envTestConfig
	t.Setenv("EGRESS_TEST_INTERVAL", "soon")

	err := ParseEnv(&cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}

func TestParseEnvWithPrefixReadsPrefixedNames(t *testing.T) {
	t.Setenv("EGRESS_T2_THRESHOLD", "critical")

	var cfg prefixedTestConfig
	if err := ParseEnvWithPrefix(&cfg, "EGRESS_T2_"); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Threshold != "critical" {
		t.Fatalf("threshold = %q, want critical", cfg.Threshold)
	}
}

func TestParseEnvRejectsNilTarget(t *testing.T) {
	if err := ParseEnv(nil); err == nil {
		t.Fatal("expected nil target error")
	}
}
