package service

import (
	"fmt"
	"os"

	"github.com/maksimkurb/keen-netstate/src/internal/config"
	"github.com/maksimkurb/keen-netstate/src/internal/errors"
	"github.com/maksimkurb/keen-netstate/src/internal/state"
)

// ValidationService provides centralized configuration validation.
//
// It validates:
//   - The application config structure
//   - The desired state document the config points to
//   - Ignored interfaces that the desired state configures anyway
type ValidationService struct {
	// No dependencies needed - validation is pure logic
}

// NewValidationService creates a new validation service.
func NewValidationService() *ValidationService {
	return &ValidationService{}
}

// ValidateConfig performs comprehensive configuration validation.
//
// This runs all validators and returns the first error encountered.
func (v *ValidationService) ValidateConfig(cfg *config.Config) error {
	if err := cfg.ValidateConfig(); err != nil {
		return err
	}

	desired, _, err := v.LoadDesiredState(cfg.GetAbsDesiredStatePath())
	if err != nil {
		return err
	}
	return v.validateIgnoredInterfaces(cfg, desired)
}

// LoadDesiredState reads, decodes and validates the desired state document
// at path. It also returns the MD5 hash of the document.
func (v *ValidationService) LoadDesiredState(path string) (*state.NetworkState, string, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, "", errors.NewConfigError(fmt.Sprintf("desired state file not found: %s", path), nil)
	}
	content, hash, err := config.ReadDocument(path)
	if err != nil {
		return nil, "", errors.NewConfigError("failed to read desired state", err)
	}
	desired, err := v.ParseDesiredState(content)
	if err != nil {
		return nil, "", err
	}
	return desired, hash, nil
}

// ParseDesiredState decodes and validates a desired state document.
func (v *ValidationService) ParseDesiredState(content []byte) (*state.NetworkState, error) {
	desired, err := state.Parse(content)
	if err != nil {
		return nil, err
	}
	if err := desired.Validate(); err != nil {
		return nil, err
	}
	return desired, nil
}

// validateIgnoredInterfaces rejects interfaces that are both ignored by
// verification and configured by the desired state: they could be changed
// but never verified.
func (v *ValidationService) validateIgnoredInterfaces(cfg *config.Config, desired *state.NetworkState) error {
	if cfg.Verification == nil {
		return nil
	}
	for _, name := range cfg.Verification.IgnoredInterfaces {
		iface := desired.Interfaces.Lookup(name)
		if iface == nil || iface.Base().State == state.InterfaceStateIgnore {
			continue
		}
		return errors.NewConfigError(
			fmt.Sprintf("interface %s is ignored by verification but configured by the desired state", name),
			nil,
		)
	}
	return nil
}
