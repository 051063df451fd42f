package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/maksimkurb/keen-netstate/src/internal/errors"
)

func TestLoadConfig_NonExistentFile(t *testing.T) {
	_, err := LoadConfig("/non/existent/file.toml")
	if err == nil {
		t.Fatal("Expected error for non-existent file")
	}
	if !errors.IsKind(err, errors.KindConfig) {
		t.Errorf("Expected ConfigError, got %v", err)
	}
}

func TestLoadConfig_InvalidTOML(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "invalid.toml")

	invalidTOML := `[general
	desired_state_file = "state.yml"`

	if err := os.WriteFile(configFile, []byte(invalidTOML), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	_, err := LoadConfig(configFile)
	if err == nil {
		t.Fatal("Expected error for invalid TOML")
	}
	if !errors.IsKind(err, errors.KindConfig) {
		t.Errorf("Expected ConfigError, got %v", err)
	}
}

func TestLoadConfig_ValidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "valid.toml")

	validTOML := `[general]
desired_state_file = "state.yml"
verbose = true

[apply]
retry_attempts = 3
checkpoint_backend = "none"

[verification]
ignored_interfaces = ["docker0"]
`

	if err := os.WriteFile(configFile, []byte(validTOML), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	cfg, err := LoadConfig(configFile)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if !cfg.General.Verbose {
		t.Error("Expected verbose to be true")
	}
	if got, want := cfg.GetAbsDesiredStatePath(), filepath.Join(tmpDir, "state.yml"); got != want {
		t.Errorf("Expected desired state path %s, got %s", want, got)
	}
	if cfg.Apply.RetryAttempts != 3 {
		t.Errorf("Expected retry_attempts 3, got %d", cfg.Apply.RetryAttempts)
	}
	if cfg.Apply.CheckpointBackend != CheckpointBackendNone {
		t.Errorf("Expected backend none, got %s", cfg.Apply.CheckpointBackend)
	}
	if cfg.Apply.RetryIntervalMs != DefaultRetryIntervalMs {
		t.Errorf("Expected default retry interval, got %d", cfg.Apply.RetryIntervalMs)
	}
	if len(cfg.Verification.IgnoredInterfaces) != 1 || cfg.Verification.IgnoredInterfaces[0] != "docker0" {
		t.Errorf("Unexpected ignored interfaces: %v", cfg.Verification.IgnoredInterfaces)
	}
	if err := cfg.ValidateConfig(); err != nil {
		t.Errorf("Expected valid config, got: %v", err)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{General: &GeneralConfig{DesiredStateFile: "/etc/state.yml"}}

	if !cfg.ApplyDefaults() {
		t.Fatal("Expected defaults to change an empty config")
	}

	if cfg.Apply.RetryAttempts != DefaultRetryAttempts {
		t.Errorf("Expected %d retry attempts, got %d", DefaultRetryAttempts, cfg.Apply.RetryAttempts)
	}
	if cfg.Apply.CheckpointTimeout().Seconds() != DefaultCheckpointTimeoutSeconds {
		t.Errorf("Unexpected checkpoint timeout %v", cfg.Apply.CheckpointTimeout())
	}
	if cfg.Apply.SettlePollInterval().Milliseconds() != DefaultSettlePollIntervalMs {
		t.Errorf("Unexpected settle poll interval %v", cfg.Apply.SettlePollInterval())
	}
	if !cfg.Apply.ShouldVerify() {
		t.Error("Expected verification to be enabled by default")
	}
	if cfg.API.ListenAddr != DefaultAPIListenAddr {
		t.Errorf("Unexpected listen address %s", cfg.API.ListenAddr)
	}
	if cfg.Output.PlanTemplate != DefaultPlanTemplate {
		t.Errorf("Unexpected plan template %s", cfg.Output.PlanTemplate)
	}

	if cfg.ApplyDefaults() {
		t.Error("Expected second ApplyDefaults to be a no-op")
	}
}

func TestApplyDefaults_KeepsExplicitVerifyFalse(t *testing.T) {
	cfg, err := ParseConfig([]byte(`[general]
desired_state_file = "/etc/state.yml"
[apply]
verify = false
`))
	if err != nil {
		t.Fatalf("Failed to parse config: %v", err)
	}
	if cfg.Apply.ShouldVerify() {
		t.Error("Expected verification to stay disabled")
	}
}

func TestSerializeConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(`[general]
desired_state_file = "/etc/state.yml"
`))
	if err != nil {
		t.Fatalf("Failed to parse config: %v", err)
	}

	buf, err := cfg.SerializeConfig()
	if err != nil {
		t.Fatalf("Failed to serialize config: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"desired_state_file = '/etc/state.yml'", "retry_attempts = 5", "checkpoint_backend = 'memory'"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected serialized config to contain %q, got:\n%s", want, out)
		}
	}
}

func TestWriteConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "out.toml")

	cfg, err := ParseConfig([]byte(`[general]
desired_state_file = "state.yml"
`))
	if err != nil {
		t.Fatalf("Failed to parse config: %v", err)
	}
	cfg.SetConfigFilePath(configFile)

	if err := cfg.WriteConfig(); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	loaded, err := LoadConfig(configFile)
	if err != nil {
		t.Fatalf("Failed to load written config: %v", err)
	}
	if loaded.General.DesiredStateFile != "state.yml" {
		t.Errorf("Unexpected desired state file %s", loaded.General.DesiredStateFile)
	}
}
