package service

import (
	"time"

	"github.com/maksimkurb/keen-netstate/src/internal/config"
)

// ApplySettings controls the apply sequence.
type ApplySettings struct {
	// RetryAttempts is the total number of apply attempts on backend failures.
	RetryAttempts int
	// RetryInterval is the fixed delay between attempts.
	RetryInterval time.Duration
	// CheckpointTimeout is the rollback window of checkpoints.
	CheckpointTimeout time.Duration
	// SettleTimeout bounds the wait for interfaces to settle.
	SettleTimeout time.Duration
	// SettlePollInterval is the delay between settle polls.
	SettlePollInterval time.Duration
	// Verify enables verification after apply.
	Verify bool
	// IgnoredInterfaces are left out of verification.
	IgnoredInterfaces []string
}

// DefaultApplySettings returns the settings of an empty configuration.
func DefaultApplySettings() ApplySettings {
	return ApplySettings{
		RetryAttempts:      config.DefaultRetryAttempts,
		RetryInterval:      config.DefaultRetryIntervalMs * time.Millisecond,
		CheckpointTimeout:  config.DefaultCheckpointTimeoutSeconds * time.Second,
		SettleTimeout:      config.DefaultSettleTimeoutSeconds * time.Second,
		SettlePollInterval: config.DefaultSettlePollIntervalMs * time.Millisecond,
		Verify:             true,
	}
}

// SettingsFromConfig reads the apply and verification sections of cfg.
// Missing sections keep their defaults.
func SettingsFromConfig(cfg *config.Config) ApplySettings {
	s := DefaultApplySettings()
	if cfg == nil {
		return s
	}
	if a := cfg.Apply; a != nil {
		s.RetryAttempts = a.RetryAttempts
		s.RetryInterval = a.RetryInterval()
		s.CheckpointTimeout = a.CheckpointTimeout()
		s.SettleTimeout = a.SettleTimeout()
		s.SettlePollInterval = a.SettlePollInterval()
		s.Verify = a.ShouldVerify()
	}
	if v := cfg.Verification; v != nil {
		s.IgnoredInterfaces = v.IgnoredInterfaces
	}
	return s
}
