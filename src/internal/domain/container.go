package domain

import (
	"github.com/maksimkurb/keen-netstate/src/internal/checkpoint"
	"github.com/maksimkurb/keen-netstate/src/internal/config"
	"github.com/maksimkurb/keen-netstate/src/internal/errors"
	"github.com/maksimkurb/keen-netstate/src/internal/log"
	"github.com/maksimkurb/keen-netstate/src/internal/networking"
	"github.com/maksimkurb/keen-netstate/src/internal/reconcile"
)

// AppDependencies is a dependency injection container that holds all application dependencies.
//
// This container provides a centralized place to manage dependencies and enables:
//   - Easy testing with mock implementations
//   - Configuration-driven dependency creation
//   - Explicit dependency management instead of global state
//
// Usage:
//
//	deps, err := domain.NewAppDependencies(domain.AppConfig{
//	    CheckpointBackend: config.CheckpointBackendMemory,
//	}, logger)
//	if err != nil {
//	    return err
//	}
//	defer deps.Close()
//	current, err := deps.StateProvider().CurrentState(ctx)
type AppDependencies struct {
	logger *log.Logger
	engine *reconcile.Engine

	provider     StateProvider
	applier      Applier
	settler      Settler
	checkpointer Checkpointer

	closers []func() error
}

// AppConfig holds configuration for creating application dependencies.
type AppConfig struct {
	// CheckpointBackend selects the checkpointer: "memory", "networkmanager"
	// or "none". Empty means "memory".
	CheckpointBackend string

	// Netlink overrides the netlink handle. When nil a handle is opened in
	// the current network namespace.
	Netlink networking.Netlink

	// Bus overrides the D-Bus connection of the NetworkManager backend.
	// When nil the system bus is used.
	Bus checkpoint.Bus
}

// AppConfigFrom builds the container configuration from the application config.
func AppConfigFrom(cfg *config.Config) AppConfig {
	out := AppConfig{}
	if cfg != nil && cfg.Apply != nil {
		out.CheckpointBackend = cfg.Apply.CheckpointBackend
	}
	return out
}

// NewAppDependencies creates a new dependency container with production implementations.
//
// The kernel provider always supplies the current state and the kernel
// applier always applies plans. The checkpoint backend decides who
// checkpoints and who reports unsettled devices: NetworkManager does both
// for its backend, otherwise the kernel provider reports dormant links.
func NewAppDependencies(cfg AppConfig, logger *log.Logger) (*AppDependencies, error) {
	if logger == nil {
		logger = log.Discard()
	}
	d := &AppDependencies{logger: logger, engine: reconcile.NewEngine(logger)}

	nl := cfg.Netlink
	if nl == nil {
		h, err := networking.NewNetlink()
		if err != nil {
			return nil, err
		}
		nl = h
		d.closers = append(d.closers, func() error {
			h.Close()
			return nil
		})
	}

	provider := networking.NewKernelStateProvider(nl, logger)
	d.provider = provider
	d.applier = networking.NewKernelApplier(nl, logger)
	d.settler = provider

	switch cfg.CheckpointBackend {
	case "", config.CheckpointBackendMemory:
		d.checkpointer = checkpoint.NewMemory(d.provider, d.applier, d.engine, logger)
	case config.CheckpointBackendNetworkManager:
		var nm *checkpoint.NetworkManager
		if cfg.Bus != nil {
			nm = checkpoint.NewNetworkManager(cfg.Bus, logger)
		} else {
			conn, closeConn, err := checkpoint.ConnectNetworkManager(logger)
			if err != nil {
				_ = d.Close()
				return nil, err
			}
			nm = conn
			d.closers = append(d.closers, closeConn)
		}
		d.checkpointer = nm
		d.settler = nm
	case config.CheckpointBackendNone:
		d.checkpointer = nil
	default:
		_ = d.Close()
		return nil, errors.NewConfigError("unknown checkpoint backend "+cfg.CheckpointBackend, nil)
	}

	return d, nil
}

// NewTestDependencies creates a dependency container with mock implementations.
//
// This is a convenience method for testing. Provide mock implementations for
// any dependencies you want to control in your tests. A nil checkpointer
// disables checkpoints and a nil settler reports everything as settled.
func NewTestDependencies(
	provider StateProvider,
	applier Applier,
	settler Settler,
	checkpointer Checkpointer,
) *AppDependencies {
	logger := log.Discard()
	return &AppDependencies{
		logger:       logger,
		engine:       reconcile.NewEngine(logger),
		provider:     provider,
		applier:      applier,
		settler:      settler,
		checkpointer: checkpointer,
	}
}

// Logger returns the application logger.
func (d *AppDependencies) Logger() *log.Logger {
	return d.logger
}

// Engine returns the reconciliation engine.
func (d *AppDependencies) Engine() *reconcile.Engine {
	return d.engine
}

// StateProvider returns the current state provider.
func (d *AppDependencies) StateProvider() StateProvider {
	return d.provider
}

// Applier returns the plan applier.
func (d *AppDependencies) Applier() Applier {
	return d.applier
}

// Settler returns the settle reporter, nil when none is configured.
func (d *AppDependencies) Settler() Settler {
	return d.settler
}

// Checkpointer returns the checkpointer, nil when checkpoints are disabled.
func (d *AppDependencies) Checkpointer() Checkpointer {
	return d.checkpointer
}

// Close releases the netlink handle and the D-Bus connection.
func (d *AppDependencies) Close() error {
	var first error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	d.closers = nil
	return first
}
