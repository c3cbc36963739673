package session

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config controls session token lifetime.
//
// The TTL is absolute, not sliding: a session only moves forward when a caller
// explicitly refreshes it.
type Config struct {
	TTL time.Duration `env:"VENUELINK_SESSION_TTL" envDefault:"720h"`
}

// LoadConfigFromEnv loads session configuration with defaults.
func LoadConfigFromEnv() Config {
	var cfg Config
	_ = env.Parse(&cfg)
	if cfg.TTL <= 0 {
		cfg.TTL = 720 * time.Hour
	}
	return cfg
}
