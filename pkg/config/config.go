// Package config provides layered configuration for the server process
// (env > file > defaults; the file path itself can come from the
// caller, e.g. cmd/server's --config flag), grounded on the teacher-pack's viper
// config layer (Siddhant-K-code-distill/pkg/config/config.go and
// cmd/root.go), generalized from the teacher's own env-var defaults
// (pkg/config/config.go) into file+env+flag precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full server configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig holds HTTP/gRPC/WebSocket transport settings.
type ServerConfig struct {
	HTTPPort     int           `mapstructure:"http_port"`
	GRPCPort     int           `mapstructure:"grpc_port"`
	Host         string        `mapstructure:"host"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// TelemetryConfig holds tracing settings.
type TelemetryConfig struct {
	Tracing TracingConfig `mapstructure:"tracing"`
}

// TracingConfig mirrors telemetry.Config's fields for file/env binding.
type TracingConfig struct {
	Enabled    bool    `mapstructure:"enabled"`
	Exporter   string  `mapstructure:"exporter"`
	Endpoint   string  `mapstructure:"endpoint"`
	SampleRate float64 `mapstructure:"sample_rate"`
	Insecure   bool    `mapstructure:"insecure"`
}

// DefaultConfig returns the baseline defaults, overridden in priority
// order by config file, then environment variables. No individual
// setting is bound to a command-line flag.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:     8080,
			GRPCPort:     8081,
			Host:         "0.0.0.0",
			PollInterval: 500 * time.Millisecond,
		},
		Telemetry: TelemetryConfig{
			Tracing: TracingConfig{
				Enabled:    false,
				Exporter:   "none",
				Endpoint:   "localhost:4317",
				SampleRate: 1.0,
				Insecure:   true,
			},
		},
	}
}

// Load builds a *viper.Viper bound to AMDINFER_-prefixed environment
// variables and an optional config file, then unmarshals it over
// DefaultConfig(). cfgFile may be empty, in which case ./amdinfer.yaml
// (if present in the working directory) is used.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName("amdinfer")
	}

	// Unmarshal only sees keys viper already knows, so every key gets a
	// default here; otherwise AutomaticEnv would be ignored for keys the
	// config file does not set.
	def := DefaultConfig()
	v.SetDefault("server.http_port", def.Server.HTTPPort)
	v.SetDefault("server.grpc_port", def.Server.GRPCPort)
	v.SetDefault("server.host", def.Server.Host)
	v.SetDefault("server.poll_interval", def.Server.PollInterval)
	v.SetDefault("telemetry.tracing.enabled", def.Telemetry.Tracing.Enabled)
	v.SetDefault("telemetry.tracing.exporter", def.Telemetry.Tracing.Exporter)
	v.SetDefault("telemetry.tracing.endpoint", def.Telemetry.Tracing.Endpoint)
	v.SetDefault("telemetry.tracing.sample_rate", def.Telemetry.Tracing.SampleRate)
	v.SetDefault("telemetry.tracing.insecure", def.Telemetry.Tracing.Insecure)

	v.SetEnvPrefix("AMDINFER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// RootDir resolves the optional AMDINFER_ROOT base directory for
// default asset paths in examples/tests (spec.md §6), falling back to
// the legacy PROTEUS_ROOT variable. It is not consumed by the core
// pipeline itself.
func RootDir() string {
	if v := os.Getenv("AMDINFER_ROOT"); v != "" {
		return v
	}
	return os.Getenv("PROTEUS_ROOT")
}
