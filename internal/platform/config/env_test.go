package config

import (
	"strings"
	"testing"
)

type envTestConfig struct {
	Attempts int `env:"IDENTITYMESH_TEST_ATTEMPTS" envDefault:"3"`
}

func TestParseEnvDefaults(t *testing.T) {
	var cfg envTestConfig

	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Attempts != 3 {
		t.Fatalf("expected default attempts 3, got %d", cfg.Attempts)
	}
}

func TestParseEnvError(t *testing.T) {
	var cfg envTestConfig
	t.Setenv("IDENTITYMESH_TEST_ATTEMPTS", "not-an-int")

	err := ParseEnv(&cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}
