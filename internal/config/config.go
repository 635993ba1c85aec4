// Package config loads process configuration from the environment, with an
// optional .env file for development.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Addr        string `env:"ADDR" envDefault:":8080"`
	DatabaseURL string `env:"DATABASE_URL"` // empty selects the in-memory store

	HandSize      int           `env:"HAND_SIZE" envDefault:"5"`
	RoundsPerGame int           `env:"ROUNDS_PER_GAME" envDefault:"3"`
	RoundTimeout  time.Duration `env:"ROUND_TIMEOUT" envDefault:"90s"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"15s"`
}

func Load() (Config, error) {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.HandSize < 1 || cfg.RoundsPerGame < 1 {
		return Config{}, fmt.Errorf("HAND_SIZE and ROUNDS_PER_GAME must be positive")
	}
	return cfg, nil
}
