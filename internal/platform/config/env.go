// Package config loads process configuration from environment variables.
//
// Configuration is parsed exactly once at process start and the resulting
// value is passed explicitly into component constructors; nothing reads the
// environment after startup.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
