package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	return ParseEnvWithPrefix(target, "")
}

// ParseEnvWithPrefix loads configuration from environment variables whose
// names are prefixed with prefix. An empty prefix reads the tags verbatim.
func ParseEnvWithPrefix(target any, prefix string) error {
	if target == nil {
		return fmt.Errorf("parse env: target is required")
	}
	opts := env.Options{Prefix: strings.TrimSpace(prefix)}
	if err := env.ParseWithOptions(target, opts); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
