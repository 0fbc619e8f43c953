package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Server
	Addr        string `envconfig:"ADDR" default:":8090"`
	Environment string `envconfig:"ENV" default:"development"`

	// Backplane
	NatsURL          string `envconfig:"NATS_URL" default:"nats://nats:4222"`
	BackplaneSubject string `envconfig:"BACKPLANE_SUBJECT" default:"gateway.events"`

	// Security
	JWTSecret      string   `envconfig:"JWT_SECRET" required:"true"`
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"*"`

	// Liveness
	HeartbeatInterval time.Duration `envconfig:"HEARTBEAT_INTERVAL" default:"30s"`
	AuthDeadline      time.Duration `envconfig:"AUTH_DEADLINE" default:"10s"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
