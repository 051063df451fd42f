package service

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/maksimkurb/keen-netstate/src/internal/config"
	"github.com/maksimkurb/keen-netstate/src/internal/errors"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

func testConfig(t *testing.T, dir string, ignored ...string) *config.Config {
	t.Helper()
	cfg, err := config.ParseConfig([]byte(`
[general]
desired_state_file = "state.yml"
`))
	if err != nil {
		t.Fatalf("ParseConfig() error = %v", err)
	}
	cfg.SetConfigFilePath(filepath.Join(dir, "config.toml"))
	cfg.Verification.IgnoredInterfaces = ignored
	return cfg
}

func TestValidationService_ValidateConfig(t *testing.T) {
	v := NewValidationService()

	t.Run("Valid", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "state.yml", desiredDummy)

		if err := v.ValidateConfig(testConfig(t, dir, "eth9")); err != nil {
			t.Errorf("Expected no error, got: %v", err)
		}
	})

	t.Run("Missing desired state", func(t *testing.T) {
		err := v.ValidateConfig(testConfig(t, t.TempDir()))
		if !errors.IsKind(err, errors.KindConfig) {
			t.Errorf("Expected ConfigError, got: %v", err)
		}
	})

	t.Run("Invalid desired state", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "state.yml", `
route-rules:
  config:
    - route-table: 500
`)
		err := v.ValidateConfig(testConfig(t, dir))
		if !errors.IsKind(err, errors.KindInvalidArgument) {
			t.Errorf("Expected InvalidArgument, got: %v", err)
		}
	})

	t.Run("Ignored interface configured", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "state.yml", desiredDummy)

		err := v.ValidateConfig(testConfig(t, dir, "dummy0"))
		if !errors.IsKind(err, errors.KindConfig) {
			t.Errorf("Expected ConfigError, got: %v", err)
		}
	})

	t.Run("Ignored interface marked ignore", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "state.yml", `
interfaces:
  - name: dummy0
    type: dummy
    state: ignore
`)
		if err := v.ValidateConfig(testConfig(t, dir, "dummy0")); err != nil {
			t.Errorf("Expected no error, got: %v", err)
		}
	})
}

func TestValidationService_LoadDesiredState(t *testing.T) {
	v := NewValidationService()
	dir := t.TempDir()
	path := writeFile(t, dir, "state.yml", desiredDummy)

	desired, hash, err := v.LoadDesiredState(path)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if desired.Interfaces.Lookup("dummy0") == nil {
		t.Error("Expected dummy0 in the desired state")
	}
	if len(hash) != 32 {
		t.Errorf("Expected an MD5 hex digest, got %q", hash)
	}

	_, again, err := v.LoadDesiredState(path)
	if err != nil || again != hash {
		t.Errorf("Expected a stable hash, got %q (%v)", again, err)
	}
}

func TestValidationService_ParseDesiredState(t *testing.T) {
	v := NewValidationService()

	if _, err := v.ParseDesiredState([]byte("interfaces: [")); !errors.IsKind(err, errors.KindInvalidArgument) {
		t.Errorf("Expected InvalidArgument for malformed YAML, got: %v", err)
	}
	if _, err := v.ParseDesiredState([]byte(`{"interfaces":[{"name":"dummy0","type":"dummy"}]}`)); err != nil {
		t.Errorf("Expected JSON documents to be accepted, got: %v", err)
	}
}
