// Package config assembles process configuration from the environment,
// optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/signalsfoundry/rackplan/internal/logging"
	"github.com/signalsfoundry/rackplan/internal/observability"
)

// Config is the resolved configuration for rackplan-server and rackctl.
type Config struct {
	GRPCAddr    string // RACKPLAN_GRPC_ADDR
	MetricsAddr string // RACKPLAN_METRICS_ADDR; empty disables /metrics
	DBPath      string // RACKPLAN_DB_PATH; empty keeps the plan in memory
	PlanFile    string // RACKPLAN_PLAN_FILE; loaded at startup when set

	Logging logging.Config
	Tracing observability.TracingConfig
}

// Defaults for unset variables.
const (
	DefaultGRPCAddr    = ":50061"
	DefaultMetricsAddr = ":9091"
)

// LoadDotEnv loads the given .env files (".env" when none are named) into
// the process environment without overriding variables already set. Missing
// files are not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads .env files then the environment.
func Load(files ...string) (Config, error) {
	if err := LoadDotEnv(files...); err != nil {
		return Config{}, err
	}
	return FromEnv(), nil
}

// FromEnv reads configuration from the current environment only.
func FromEnv() Config {
	return Config{
		GRPCAddr:    getenv("RACKPLAN_GRPC_ADDR", DefaultGRPCAddr),
		MetricsAddr: getenv("RACKPLAN_METRICS_ADDR", DefaultMetricsAddr),
		DBPath:      os.Getenv("RACKPLAN_DB_PATH"),
		PlanFile:    os.Getenv("RACKPLAN_PLAN_FILE"),
		Logging: logging.Config{
			Level:  os.Getenv("LOG_LEVEL"),
			Format: os.Getenv("LOG_FORMAT"),
		},
		Tracing: observability.TracingConfigFromEnv(),
	}
}

func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}
