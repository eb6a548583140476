package common

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config is the application configuration. Later config files override
// earlier ones; environment variables and CLI flags override files.
type Config struct {
	Environment string        `toml:"environment"` // "development" or "production"
	Server      ServerConfig  `toml:"server"`
	Logging     LoggingConfig `toml:"logging"`
	Engine      EngineConfig  `toml:"engine"`
	Limits      LimitsConfig  `toml:"limits"`
	// Programs are optional cron-scheduled entry threads.
	Programs []ProgramConfig `toml:"programs" validate:"dive"`
}

type ServerConfig struct {
	// ListenAddr is the TCP address workers connect to.
	ListenAddr string `toml:"listen_addr" validate:"required"`
	// AdminAddr serves /api/status and the /ws event feed; empty disables it.
	AdminAddr string `toml:"admin_addr"`
}

type LoggingConfig struct {
	Level      string   `toml:"level" validate:"oneof=debug info warn error"`
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // defaults to "15:04:05.000"
}

type EngineConfig struct {
	// EntryLabel is the label the run command starts a thread at.
	EntryLabel string `toml:"entry_label" validate:"required"`
}

type LimitsConfig struct {
	// AcceptPerSecond throttles worker connection accepts; 0 disables.
	AcceptPerSecond float64 `toml:"accept_per_second" validate:"gte=0"`
	AcceptBurst     int     `toml:"accept_burst" validate:"gte=0"`
}

// ProgramConfig schedules a program entry thread.
type ProgramConfig struct {
	File     string `toml:"file" validate:"required"`
	Entry    string `toml:"entry"` // defaults to engine.entry_label
	Schedule string `toml:"schedule" validate:"required"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			ListenAddr: "127.0.0.1:9910",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout"},
			TimeFormat: "15:04:05.000",
		},
		Engine: EngineConfig{
			EntryLabel: "ep",
		},
		Limits: LimitsConfig{
			AcceptPerSecond: 0,
			AcceptBurst:     8,
		},
	}
}

// LoadFromFiles layers defaults, then each file in order, then environment
// overrides, and validates the result. Passing no files is valid and yields
// the defaults.
func LoadFromFiles(paths ...string) (*Config, error) {
	cfg := DefaultConfig()

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides maps LOOM_* environment variables onto the config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOOM_LISTEN_ADDR"); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := os.Getenv("LOOM_ADMIN_ADDR"); v != "" {
		cfg.Server.AdminAddr = v
	}
	if v := os.Getenv("LOOM_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
}

// ApplyFlagOverrides applies CLI flag values; these win over everything.
func ApplyFlagOverrides(cfg *Config, listenAddr, adminAddr string) {
	if listenAddr != "" {
		cfg.Server.ListenAddr = listenAddr
	}
	if adminAddr != "" {
		cfg.Server.AdminAddr = adminAddr
	}
}

// Validate checks the config against its struct tags.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
