package config

import (
	"path/filepath"
	"time"

	"github.com/maksimkurb/keen-netstate/src/internal/utils"
)

type Config struct {
	// General holds general configuration.
	General *GeneralConfig `toml:"general"`
	// Apply controls how plans are applied to the system.
	Apply *ApplyConfig `toml:"apply"`
	// Verification controls post-apply verification.
	Verification *VerificationConfig `toml:"verification"`
	// API holds HTTP API settings.
	API *APIConfig `toml:"api"`
	// Output holds rendering settings of the CLI.
	Output *OutputConfig `toml:"output"`

	_absConfigFilePath string
}

type GeneralConfig struct {
	// DesiredStateFile is the YAML or JSON document describing the desired network state. Relative paths are resolved against the config file directory.
	DesiredStateFile string `toml:"desired_state_file" json:"desired_state_file" validate:"required"`
	// Verbose enables debug logging.
	Verbose bool `toml:"verbose" json:"verbose"`
	// JSONLogs switches log output to JSON lines.
	JSONLogs bool `toml:"json_logs" json:"json_logs"`
}

type ApplyConfig struct {
	// RetryAttempts is the number of times the activation step is attempted on transient failures (default: 5).
	RetryAttempts int `toml:"retry_attempts" json:"retry_attempts" validate:"min=1,max=20"`
	// RetryIntervalMs is the fixed delay between attempts in milliseconds (default: 1000).
	RetryIntervalMs int `toml:"retry_interval_ms" json:"retry_interval_ms" validate:"min=0"`
	// CheckpointTimeoutSeconds is the rollback timeout of a checkpoint (default: 60).
	CheckpointTimeoutSeconds int `toml:"checkpoint_timeout_seconds" json:"checkpoint_timeout_seconds" validate:"min=1"`
	// SettleTimeoutSeconds bounds the wait for devices to leave transitional states (default: 30).
	SettleTimeoutSeconds int `toml:"settle_timeout_seconds" json:"settle_timeout_seconds" validate:"min=1"`
	// SettlePollIntervalMs is the settle poll interval in milliseconds (default: 500).
	SettlePollIntervalMs int `toml:"settle_poll_interval_ms" json:"settle_poll_interval_ms" validate:"min=10"`
	// CheckpointBackend selects the checkpoint implementation: memory, networkmanager or none (default: memory).
	CheckpointBackend string `toml:"checkpoint_backend" json:"checkpoint_backend" validate:"oneof=memory networkmanager none"`
	// Verify enables verification after apply (default: true).
	Verify *bool `toml:"verify" json:"verify"`
}

type VerificationConfig struct {
	// IgnoredInterfaces are left out of route and rule verification.
	IgnoredInterfaces []string `toml:"ignored_interfaces" json:"ignored_interfaces" validate:"dive,ifname"`
}

type APIConfig struct {
	// Enabled starts the HTTP API in service mode.
	Enabled bool `toml:"enabled" json:"enabled"`
	// ListenAddr is the API listen address (default: 127.0.0.1:8089).
	ListenAddr string `toml:"listen_addr" json:"listen_addr" validate:"hostport_or_empty"`
}

type OutputConfig struct {
	// PlanTemplate renders one line per planned interface. Available variables: {{op}}, {{type}}, {{name}}, {{priority}}, {{controller}}.
	PlanTemplate string `toml:"plan_template" json:"plan_template" validate:"plan_template"`
}

func (c *Config) GetConfigDir() string {
	return filepath.Dir(c._absConfigFilePath)
}

// GetAbsDesiredStatePath resolves the desired state file against the config directory.
func (c *Config) GetAbsDesiredStatePath() string {
	return utils.GetAbsolutePath(c.General.DesiredStateFile, c.GetConfigDir())
}

func (a *ApplyConfig) RetryInterval() time.Duration {
	return time.Duration(a.RetryIntervalMs) * time.Millisecond
}

func (a *ApplyConfig) CheckpointTimeout() time.Duration {
	return time.Duration(a.CheckpointTimeoutSeconds) * time.Second
}

func (a *ApplyConfig) SettleTimeout() time.Duration {
	return time.Duration(a.SettleTimeoutSeconds) * time.Second
}

func (a *ApplyConfig) SettlePollInterval() time.Duration {
	return time.Duration(a.SettlePollIntervalMs) * time.Millisecond
}

// ShouldVerify treats an unset flag as enabled.
func (a *ApplyConfig) ShouldVerify() bool {
	return a.Verify == nil || *a.Verify
}
