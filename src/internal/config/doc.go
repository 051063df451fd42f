// Package config handles configuration file parsing and validation for keen-netstate.
//
// This package reads TOML configuration files and provides strongly-typed
// structures for accessing configuration data. Missing sections and unset
// values are filled in by ApplyDefaults.
//
// # Configuration Structure
//
// The configuration file defines:
//   - General settings (desired state document, log verbosity and format)
//   - Apply settings (retry policy, checkpoint backend and timeouts)
//   - Verification settings (interfaces left out of verification)
//   - HTTP API settings
//   - Output settings (plan rendering template)
//
// # Example Usage
//
//	cfg, err := config.LoadConfig("/etc/keen-netstate.conf")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.ValidateConfig(); err != nil {
//	    log.Fatal(err)
//	}
//
//	content, hash, err := config.ReadDocument(cfg.GetAbsDesiredStatePath())
//
// StateHasher tracks the MD5 of the desired state document so the service
// mode can skip documents that were already applied.
package config
