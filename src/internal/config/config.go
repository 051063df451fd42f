package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/maksimkurb/keen-netstate/src/internal/errors"
	"github.com/maksimkurb/keen-netstate/src/internal/log"
)

const (
	PLAN_TMPL_OP         = "op"
	PLAN_TMPL_TYPE       = "type"
	PLAN_TMPL_NAME       = "name"
	PLAN_TMPL_PRIORITY   = "priority"
	PLAN_TMPL_CONTROLLER = "controller"
)

const (
	CheckpointBackendMemory         = "memory"
	CheckpointBackendNetworkManager = "networkmanager"
	CheckpointBackendNone           = "none"
)

const (
	DefaultRetryAttempts            = 5
	DefaultRetryIntervalMs          = 1000
	DefaultCheckpointTimeoutSeconds = 60
	DefaultSettleTimeoutSeconds     = 30
	DefaultSettlePollIntervalMs     = 500
	DefaultAPIListenAddr            = "127.0.0.1:8089"
	DefaultPlanTemplate             = "{{op}} {{type}} {{name}} (priority {{priority}})"
)

func LoadConfig(configPath string) (*Config, error) {
	configFile := filepath.Clean(configPath)

	if !filepath.IsAbs(configFile) {
		if path, err := filepath.Abs(configFile); err != nil {
			return nil, errors.NewConfigError("failed to get absolute path", err)
		} else {
			configFile = path
		}
	}

	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		log.Errorf("Configuration file not found: %s", configFile)
		return nil, errors.NewConfigError(fmt.Sprintf("configuration file not found: %s", configFile), nil)
	}

	content, err := os.ReadFile(configFile)
	if err != nil {
		return nil, errors.NewConfigError("failed to read config file", err)
	}

	config, err := ParseConfig(content)
	if err != nil {
		return nil, err
	}
	config._absConfigFilePath = configFile

	log.Debugf("Configuration file path: %s", configFile)
	log.Debugf("Desired state file: %s", config.GetAbsDesiredStatePath())

	return config, nil
}

// ParseConfig decodes a TOML document and fills in defaults. The result is
// not validated.
func ParseConfig(content []byte) (*Config, error) {
	var config Config
	if err := toml.Unmarshal(content, &config); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			log.Errorf("%s", derr.String())
			row, col := derr.Position()
			log.Errorf("Error at line %d, column %d", row, col)
			return nil, errors.NewConfigError(fmt.Sprintf("failed to parse config file at line %d, column %d", row, col), err)
		}
		return nil, errors.NewConfigError("failed to parse config file", err)
	}
	config.ApplyDefaults()
	return &config, nil
}

// SetConfigFilePath sets the path relative file names are resolved against.
func (c *Config) SetConfigFilePath(path string) {
	c._absConfigFilePath = path
}

func (c *Config) SerializeConfig() (*bytes.Buffer, error) {
	buf := bytes.Buffer{}
	enc := toml.NewEncoder(&buf)
	enc.SetIndentTables(true)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	return &buf, nil
}

func (c *Config) WriteConfig() error {
	config, err := c.SerializeConfig()
	if err != nil {
		return err
	}
	if err := os.WriteFile(c._absConfigFilePath, config.Bytes(), 0644); err != nil {
		return errors.NewConfigError("failed to write config file", err)
	}
	return nil
}

// ApplyDefaults fills in missing sections and unset values. It returns true
// when anything was changed.
func (c *Config) ApplyDefaults() bool {
	changed := false

	if c.General == nil {
		c.General = &GeneralConfig{}
		changed = true
	}
	if c.Apply == nil {
		c.Apply = &ApplyConfig{}
		changed = true
	}
	if c.Verification == nil {
		c.Verification = &VerificationConfig{}
		changed = true
	}
	if c.API == nil {
		c.API = &APIConfig{}
		changed = true
	}
	if c.Output == nil {
		c.Output = &OutputConfig{}
		changed = true
	}

	setInt := func(field *int, value int, name string) {
		if *field == 0 {
			*field = value
			log.Debugf("Using default %s = %d", name, value)
			changed = true
		}
	}
	setInt(&c.Apply.RetryAttempts, DefaultRetryAttempts, "apply.retry_attempts")
	setInt(&c.Apply.RetryIntervalMs, DefaultRetryIntervalMs, "apply.retry_interval_ms")
	setInt(&c.Apply.CheckpointTimeoutSeconds, DefaultCheckpointTimeoutSeconds, "apply.checkpoint_timeout_seconds")
	setInt(&c.Apply.SettleTimeoutSeconds, DefaultSettleTimeoutSeconds, "apply.settle_timeout_seconds")
	setInt(&c.Apply.SettlePollIntervalMs, DefaultSettlePollIntervalMs, "apply.settle_poll_interval_ms")

	if c.Apply.CheckpointBackend == "" {
		c.Apply.CheckpointBackend = CheckpointBackendMemory
		changed = true
	}
	if c.Apply.Verify == nil {
		verify := true
		c.Apply.Verify = &verify
		changed = true
	}
	if c.API.ListenAddr == "" {
		c.API.ListenAddr = DefaultAPIListenAddr
		changed = true
	}
	if c.Output.PlanTemplate == "" {
		c.Output.PlanTemplate = DefaultPlanTemplate
		changed = true
	}

	return changed
}
