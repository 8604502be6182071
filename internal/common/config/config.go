// Package config provides configuration management for Bufo.
// It supports loading configuration from environment variables, config files, and defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections for Bufo.
type Config struct {
	Agent     AgentConfig     `mapstructure:"agent"`
	Shell     ShellConfig     `mapstructure:"shell"`
	Project   ProjectConfig   `mapstructure:"project"`
	Session   SessionConfig   `mapstructure:"session"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// AgentConfig holds ACP bridge configuration.
type AgentConfig struct {
	// ControlTimeout bounds initialize/session/mode/cancel calls, in seconds.
	// Prompt calls are unbounded; they end on response, cancel, or process exit.
	ControlTimeout int `mapstructure:"controlTimeout"`

	// StderrTailLines is how many trailing stderr lines are kept for the
	// diagnostic tail attached to process-exit errors.
	StderrTailLines int `mapstructure:"stderrTailLines"`

	// ForceSessionScope forces session-id decoration on session-scoped calls
	// even when the agent did not return a session id. Known-strict agents
	// reject undecorated calls.
	ForceSessionScope bool `mapstructure:"forceSessionScope"`

	// CatalogDir is an extra directory of agent definition overrides,
	// searched in addition to the user config directory.
	CatalogDir string `mapstructure:"catalogDir"`
}

// ShellConfig holds persistent shell configuration.
type ShellConfig struct {
	Program                string `mapstructure:"program"`
	MaxBufferLines         int    `mapstructure:"maxBufferLines"`
	WarnUnknown            bool   `mapstructure:"warnUnknown"`
	WarnDangerous          bool   `mapstructure:"warnDangerous"`
	EscalateOutsideProject bool   `mapstructure:"escalateOutsideProject"`
}

// ProjectConfig holds filesystem scanning and watching configuration.
type ProjectConfig struct {
	ScanTimeout   int `mapstructure:"scanTimeout"`   // in seconds
	ScanWorkers   int `mapstructure:"scanWorkers"`   // concurrent walkers
	WatchDebounce int `mapstructure:"watchDebounce"` // in milliseconds
}

// SessionConfig holds session persistence configuration.
type SessionConfig struct {
	// DBPath overrides the session database location. Empty means the
	// platform state directory.
	DBPath       string `mapstructure:"dbPath"`
	HistoryLimit int    `mapstructure:"historyLimit"`
}

// TelemetryConfig holds anonymous usage statistics configuration.
type TelemetryConfig struct {
	AllowCollect bool `mapstructure:"allowCollect"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// ControlTimeoutDuration returns the control-call timeout as a time.Duration.
func (a *AgentConfig) ControlTimeoutDuration() time.Duration {
	return time.Duration(a.ControlTimeout) * time.Second
}

// ScanTimeoutDuration returns the scan budget as a time.Duration.
func (p *ProjectConfig) ScanTimeoutDuration() time.Duration {
	return time.Duration(p.ScanTimeout) * time.Second
}

// WatchDebounceDuration returns the watcher debounce as a time.Duration.
func (p *ProjectConfig) WatchDebounceDuration() time.Duration {
	return time.Duration(p.WatchDebounce) * time.Millisecond
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	// Agent defaults
	v.SetDefault("agent.controlTimeout", 30)
	v.SetDefault("agent.stderrTailLines", 50)
	v.SetDefault("agent.forceSessionScope", false)
	v.SetDefault("agent.catalogDir", "")

	// Shell defaults
	v.SetDefault("shell.program", defaultShellProgram())
	v.SetDefault("shell.maxBufferLines", 4000)
	v.SetDefault("shell.warnUnknown", true)
	v.SetDefault("shell.warnDangerous", true)
	v.SetDefault("shell.escalateOutsideProject", true)

	// Project defaults
	v.SetDefault("project.scanTimeout", 4)
	v.SetDefault("project.scanWorkers", 8)
	v.SetDefault("project.watchDebounce", 250)

	// Session defaults - empty dbPath means use the platform state directory
	v.SetDefault("session.dbPath", "")
	v.SetDefault("session.historyLimit", 200)

	// Telemetry defaults - opt-in only
	v.SetDefault("telemetry.allowCollect", false)

	// Logging defaults - stderr keeps the stdout event stream clean
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.outputPath", "stderr")
}

func defaultShellProgram() string {
	if shell := os.Getenv("SHELL"); shell != "" {
		return shell
	}
	return "/bin/bash"
}

// Load reads configuration from environment variables, config file, and defaults.
// Environment variables use the prefix BUFO_ with snake_case naming.
// Config file should be named config.yaml and placed in the current directory
// or the user config directory (~/.config/bufo on Linux).
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults first
	setDefaults(v)

	// Configure environment variables
	v.SetEnvPrefix("BUFO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit bindings for snake_case env vars (camelCase config keys)
	// AutomaticEnv does not handle camelCase to SNAKE_CASE conversion,
	// so we explicitly bind keys where env var naming differs from config key naming.
	_ = v.BindEnv("agent.controlTimeout", "BUFO_AGENT_CONTROL_TIMEOUT")
	_ = v.BindEnv("agent.stderrTailLines", "BUFO_AGENT_STDERR_TAIL_LINES")
	_ = v.BindEnv("agent.forceSessionScope", "BUFO_AGENT_FORCE_SESSION_SCOPE")
	_ = v.BindEnv("session.dbPath", "BUFO_SESSION_DB_PATH")
	_ = v.BindEnv("logging.outputPath", "BUFO_LOGGING_OUTPUT_PATH")

	// Configure config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "bufo"))
	}

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks that all configuration fields hold usable values.
func validate(cfg *Config) error {
	var errs []string

	if cfg.Agent.ControlTimeout <= 0 {
		errs = append(errs, "agent.controlTimeout must be positive")
	}
	if cfg.Agent.StderrTailLines <= 0 {
		errs = append(errs, "agent.stderrTailLines must be positive")
	}

	if cfg.Shell.Program == "" {
		errs = append(errs, "shell.program is required")
	}
	if cfg.Shell.MaxBufferLines < 500 || cfg.Shell.MaxBufferLines > 100000 {
		errs = append(errs, "shell.maxBufferLines must be between 500 and 100000")
	}

	if cfg.Project.ScanTimeout <= 0 {
		errs = append(errs, "project.scanTimeout must be positive")
	}
	if cfg.Project.ScanWorkers <= 0 {
		errs = append(errs, "project.scanWorkers must be positive")
	}
	if cfg.Project.WatchDebounce < 0 {
		errs = append(errs, "project.watchDebounce must not be negative")
	}

	if cfg.Session.HistoryLimit <= 0 {
		errs = append(errs, "session.historyLimit must be positive")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	return nil
}
