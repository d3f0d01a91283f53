// Package config loads the proxy's configuration from environment
// variables (with .env support), validates it, and layers the CLI's
// positional-argument contract on top.
package config

import (
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the proxy process.
type Config struct {
	Proxy struct {
		Port    int  `env:"PROXY_PORT" envDefault:"8992" validate:"min=1,max=65535"`
		Cached  bool `env:"PROXY_CACHED" envDefault:"true"`
		Verbose bool `env:"PROXY_VERBOSE" envDefault:"true"`
	}

	Cache struct {
		MaxItemSize  int64 `env:"CACHE_MAX_ITEM_SIZE" envDefault:"10485760" validate:"min=1"`   // 10MiB
		MaxTotalSize int64 `env:"CACHE_MAX_TOTAL_SIZE" envDefault:"104857600" validate:"min=1"` // 100MiB
	}

	WorkerPool struct {
		Size int `env:"WORKER_POOL_SIZE" envDefault:"50" validate:"min=1"`
	}

	Network struct {
		IOTimeout time.Duration `env:"IO_TIMEOUT" envDefault:"10s" validate:"min=1s"`
	}

	Admin struct {
		Port int `env:"ADMIN_PORT" envDefault:"9092"`
	}

	Logging struct {
		Level string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`
	}
}

// Load loads configuration from environment variables and .env files,
// then validates it.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate validates the configuration using struct tags plus the
// cross-field invariant the cache construction depends on.
func Validate(cfg *Config) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	if cfg.Cache.MaxItemSize > cfg.Cache.MaxTotalSize {
		return fmt.Errorf("cache max item size (%d) must not exceed max total size (%d)",
			cfg.Cache.MaxItemSize, cfg.Cache.MaxTotalSize)
	}
	return nil
}

// ApplyCLIArgs overlays the spec's positional CLI contract — port,
// cached, verbose, in that order, each optional — onto an
// environment-sourced Config. Absent positional args leave the
// corresponding field untouched; a non-integer port is an error, and
// cached/verbose are set to true only for the literal "true".
func (cfg *Config) ApplyCLIArgs(args []string) error {
	if len(args) > 0 {
		port, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid port argument %q: %w", args[0], err)
		}
		cfg.Proxy.Port = port
	}
	if len(args) > 1 {
		cfg.Proxy.Cached = args[1] == "true"
	}
	if len(args) > 2 {
		cfg.Proxy.Verbose = args[2] == "true"
	}
	return Validate(cfg)
}

// RegisterFlags wires named flags mirroring the positional CLI
// contract, for callers that prefer `-port`/`-cached`/`-verbose`/
// `-admin-port` over bare positional args.
func RegisterFlags(fs *flag.FlagSet, cfg *Config) {
	fs.IntVar(&cfg.Proxy.Port, "port", cfg.Proxy.Port, "proxy listen port")
	fs.BoolVar(&cfg.Proxy.Cached, "cached", cfg.Proxy.Cached, "enable the response cache")
	fs.BoolVar(&cfg.Proxy.Verbose, "verbose", cfg.Proxy.Verbose, "enable debug logging")
	fs.IntVar(&cfg.Admin.Port, "admin-port", cfg.Admin.Port, "admin API port (0 disables it)")
}

// formatValidationError formats validation errors into readable messages.
func formatValidationError(err error) error {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		var messages []string
		for _, e := range validationErrors {
			switch e.Tag() {
			case "min":
				messages = append(messages, fmt.Sprintf("%s must be at least %s", e.Field(), e.Param()))
			case "max":
				messages = append(messages, fmt.Sprintf("%s must be at most %s", e.Field(), e.Param()))
			case "oneof":
				messages = append(messages, fmt.Sprintf("%s must be one of: %s", e.Field(), e.Param()))
			default:
				messages = append(messages, fmt.Sprintf("%s failed validation: %s", e.Field(), e.Tag()))
			}
		}
		return fmt.Errorf("validation errors: %s", strings.Join(messages, "; "))
	}
	return err
}
