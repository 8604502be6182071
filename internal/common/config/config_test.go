package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadWithPath(dir)
	if err != nil {
		t.Fatalf("LoadWithPath() failed: %v", err)
	}

	if cfg.Agent.ControlTimeout != 30 {
		t.Errorf("agent.controlTimeout = %d, want 30", cfg.Agent.ControlTimeout)
	}
	if cfg.Agent.ControlTimeoutDuration() != 30*time.Second {
		t.Errorf("ControlTimeoutDuration() = %v, want 30s", cfg.Agent.ControlTimeoutDuration())
	}
	if cfg.Agent.StderrTailLines != 50 {
		t.Errorf("agent.stderrTailLines = %d, want 50", cfg.Agent.StderrTailLines)
	}
	if cfg.Agent.ForceSessionScope {
		t.Error("agent.forceSessionScope should default to false")
	}
	if cfg.Shell.MaxBufferLines != 4000 {
		t.Errorf("shell.maxBufferLines = %d, want 4000", cfg.Shell.MaxBufferLines)
	}
	if cfg.Project.WatchDebounceDuration() != 250*time.Millisecond {
		t.Errorf("WatchDebounceDuration() = %v, want 250ms", cfg.Project.WatchDebounceDuration())
	}
	if cfg.Telemetry.AllowCollect {
		t.Error("telemetry.allowCollect should default to false")
	}
	if cfg.Logging.OutputPath != "stderr" {
		t.Errorf("logging.outputPath = %q, want stderr", cfg.Logging.OutputPath)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("BUFO_AGENT_CONTROL_TIMEOUT", "5")
	t.Setenv("BUFO_AGENT_FORCE_SESSION_SCOPE", "true")
	t.Setenv("BUFO_LOGGING_LEVEL", "debug")

	cfg, err := LoadWithPath(t.TempDir())
	if err != nil {
		t.Fatalf("LoadWithPath() failed: %v", err)
	}

	if cfg.Agent.ControlTimeout != 5 {
		t.Errorf("agent.controlTimeout = %d, want 5", cfg.Agent.ControlTimeout)
	}
	if !cfg.Agent.ForceSessionScope {
		t.Error("agent.forceSessionScope should be overridden to true")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("logging.level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	content := []byte("agent:\n  controlTimeout: 12\nshell:\n  maxBufferLines: 1000\n")
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), content, 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadWithPath(dir)
	if err != nil {
		t.Fatalf("LoadWithPath() failed: %v", err)
	}

	if cfg.Agent.ControlTimeout != 12 {
		t.Errorf("agent.controlTimeout = %d, want 12", cfg.Agent.ControlTimeout)
	}
	if cfg.Shell.MaxBufferLines != 1000 {
		t.Errorf("shell.maxBufferLines = %d, want 1000", cfg.Shell.MaxBufferLines)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	dir := t.TempDir()
	content := []byte("logging:\n  level: loud\n")
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), content, 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := LoadWithPath(dir); err == nil {
		t.Fatal("expected validation error for logging.level = loud")
	}
}

func TestValidateShellBufferRange(t *testing.T) {
	dir := t.TempDir()
	content := []byte("shell:\n  maxBufferLines: 10\n")
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), content, 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := LoadWithPath(dir); err == nil {
		t.Fatal("expected validation error for shell.maxBufferLines = 10")
	}
}
