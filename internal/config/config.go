package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port              int    `env:"PORT" envDefault:"8080"`
	DatabaseURL       string `env:"DATABASE_URL,required"`
	RedisURL          string `env:"REDIS_URL,required"`
	WorkersServiceURL string `env:"WORKERS_SERVICE_URL,required"`
	RealtyServiceURL  string `env:"REALTY_SERVICE_URL,required"`
	AuthBrokerURL     string `env:"AUTH_BROKER_URL,required"`
	SessionsDir       string `env:"SESSIONS_DIR" envDefault:"./sessions"`

	StaleSessionMinutes   int `env:"STALE_SESSION_MINUTES" envDefault:"10"`
	EntitlementSweepHours int `env:"ENTITLEMENT_SWEEP_HOURS" envDefault:"24"`
	SessionSweepMinutes   int `env:"SESSION_SWEEP_MINUTES" envDefault:"5"`
	CooldownPruneMinutes  int `env:"COOLDOWN_PRUNE_MINUTES" envDefault:"10"`
	RateLimitPerMin       int `env:"RATE_LIMIT_PER_MINUTE" envDefault:"60"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) StaleSessionThreshold() time.Duration {
	return time.Duration(c.StaleSessionMinutes) * time.Minute
}

func (c *Config) EntitlementSweepInterval() time.Duration {
	return time.Duration(c.EntitlementSweepHours) * time.Hour
}

func (c *Config) SessionSweepInterval() time.Duration {
	return time.Duration(c.SessionSweepMinutes) * time.Minute
}

func (c *Config) CooldownPruneInterval() time.Duration {
	return time.Duration(c.CooldownPruneMinutes) * time.Minute
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
