// Package config defines runtime defaults, environment loading, command-line
// overrides and validation for the groupchat service.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int           `env:"RATE_LIMIT_BURST" validate:"gte=1"`
	RefillInterval time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL" validate:"gt=0"`
}

// Config holds the server configuration settings.
type Config struct {
	Addr           string `env:"ADDR" validate:"required"`
	AllowedOrigins string `env:"ALLOWED_ORIGINS"`
	MaxMessageSize int64  `env:"MAX_MESSAGE_SIZE" validate:"gte=1"`
	RateLimit      RateLimitConfig

	SendTimeout     time.Duration `env:"SEND_TIMEOUT" validate:"gte=0"`
	SendBuffer      int           `env:"SEND_BUFFER" validate:"gte=1"`
	FanoutWorkers   int           `env:"FANOUT_WORKERS" validate:"gte=1"`
	DuplicatePolicy string        `env:"DUPLICATE_POLICY" validate:"oneof=replace reject"`

	LogLevel        string        `env:"LOG_LEVEL" validate:"oneof=DEBUG INFO WARN ERROR"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" validate:"gt=0"`
}

var validate = validator.New()

// Default returns a Config populated with default values for all settings.
func Default() Config {
	return Config{
		Addr:           ":8000",
		AllowedOrigins: "http://localhost:8000",
		MaxMessageSize: 4096,
		RateLimit: RateLimitConfig{
			Burst:          5,
			RefillInterval: time.Second,
		},
		SendTimeout:     5 * time.Second,
		SendBuffer:      256,
		FanoutWorkers:   1,
		DuplicatePolicy: "replace",
		LogLevel:        "INFO",
		ShutdownTimeout: 10 * time.Second,
	}
}

// Load builds the configuration from defaults, an optional .env file and
// the process environment. Variables that are not set keep their defaults.
func Load(envFiles ...string) (Config, error) {
	// A missing .env file is not an error.
	_ = godotenv.Load(envFiles...)

	cfg := Default()
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}
	cfg.normalize()
	return cfg, nil
}

// BindFlags registers command-line flags that override the loaded values.
func (c *Config) BindFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&c.Addr, "addr", c.Addr, "Address to listen on")
	flags.StringVar(&c.AllowedOrigins, "allowed-origins", c.AllowedOrigins, "Origins allowed to open a chat connection (comma separated, * for any)")
	flags.Int64Var(&c.MaxMessageSize, "max-message-size", c.MaxMessageSize, "Maximum size of an inbound message in bytes")
	flags.IntVar(&c.RateLimit.Burst, "rate-limit-burst", c.RateLimit.Burst, "Messages a participant may send per refill interval")
	flags.DurationVar(&c.RateLimit.RefillInterval, "rate-limit-interval", c.RateLimit.RefillInterval, "Rate limit refill interval")
	flags.DurationVar(&c.SendTimeout, "send-timeout", c.SendTimeout, "Per participant send timeout (0 disables)")
	flags.IntVar(&c.SendBuffer, "send-buffer", c.SendBuffer, "Outbound messages queued per connection")
	flags.IntVar(&c.FanoutWorkers, "fanout-workers", c.FanoutWorkers, "Participants served concurrently per broadcast")
	flags.StringVar(&c.DuplicatePolicy, "duplicate-policy", c.DuplicatePolicy, "What to do when a name is already taken (replace|reject)")
	flags.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level (DEBUG, INFO, WARN, ERROR)")
	flags.DurationVar(&c.ShutdownTimeout, "shutdown-timeout", c.ShutdownTimeout, "Graceful shutdown timeout")
}

// Validate normalizes the configuration and checks every field.
func (c *Config) Validate() error {
	c.normalize()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func (c *Config) normalize() {
	c.LogLevel = strings.ToUpper(strings.TrimSpace(c.LogLevel))
	c.DuplicatePolicy = strings.ToLower(strings.TrimSpace(c.DuplicatePolicy))
}

// Origins splits the comma separated AllowedOrigins setting.
func (c Config) Origins() []string {
	var out []string
	for _, part := range strings.Split(c.AllowedOrigins, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
