package commands

import (
	"os"

	"github.com/maksimkurb/keen-netstate/src/internal/config"
	"github.com/maksimkurb/keen-netstate/src/internal/domain"
	"github.com/maksimkurb/keen-netstate/src/internal/errors"
	"github.com/maksimkurb/keen-netstate/src/internal/log"
	"github.com/maksimkurb/keen-netstate/src/internal/metrics"
	"github.com/maksimkurb/keen-netstate/src/internal/service"
	"github.com/maksimkurb/keen-netstate/src/internal/state"
)

// DefaultConfigPath is used when --config is not given.
const DefaultConfigPath = "/etc/keen-netstate/keen-netstate.toml"

// AppContext holds the global flags shared by all commands.
type AppContext struct {
	ConfigPath string
	Verbose    bool
	JSONLogs   bool

	// configExplicit is set when --config was passed on the command line.
	configExplicit bool

	// NewDependencies builds the dependency container. Tests replace it.
	NewDependencies func(cfg *config.Config, logger *log.Logger) (*domain.AppDependencies, error)
}

// environment is what a command works with once the configuration is loaded.
type environment struct {
	cfg       *config.Config
	log       *log.Logger
	deps      *domain.AppDependencies
	service   *service.ReconcileService
	validator *service.ValidationService
	metrics   *metrics.Recorder
}

func defaultDependencies(cfg *config.Config, logger *log.Logger) (*domain.AppDependencies, error) {
	return domain.NewAppDependencies(domain.AppConfigFrom(cfg), logger)
}

// loadAndValidateConfigOrFail loads and validates the configuration file. A
// missing file at the default location yields the default configuration.
func (c *AppContext) loadAndValidateConfigOrFail() (*config.Config, error) {
	if _, err := os.Stat(c.ConfigPath); os.IsNotExist(err) && !c.configExplicit {
		cfg, err := config.ParseConfig(nil)
		if err != nil {
			return nil, err
		}
		return cfg, nil
	}

	cfg, err := config.LoadConfig(c.ConfigPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateConfig(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setup loads the configuration and builds the logger, the dependency
// container and the reconcile service.
func (c *AppContext) setup() (*environment, error) {
	cfg, err := c.loadAndValidateConfigOrFail()
	if err != nil {
		return nil, err
	}

	logger := log.New(log.Options{
		Verbose: c.Verbose || cfg.General.Verbose,
		JSON:    c.JSONLogs || cfg.General.JSONLogs,
	})
	log.SetDefault(logger)

	newDeps := c.NewDependencies
	if newDeps == nil {
		newDeps = defaultDependencies
	}
	deps, err := newDeps(cfg, logger)
	if err != nil {
		return nil, err
	}

	recorder := metrics.NewRecorder()
	return &environment{
		cfg:       cfg,
		log:       logger,
		deps:      deps,
		service:   service.NewReconcileService(deps, service.SettingsFromConfig(cfg), recorder),
		validator: service.NewValidationService(),
		metrics:   recorder,
	}, nil
}

func (e *environment) close() {
	if err := e.deps.Close(); err != nil {
		e.log.Warnf("Failed to release resources: %v", err)
	}
}

// desiredPath returns file when set, otherwise the desired state file of the
// configuration.
func (e *environment) desiredPath(file string) (string, error) {
	if file != "" {
		return file, nil
	}
	if e.cfg.General.DesiredStateFile == "" {
		return "", errors.NewInvalidArgument("no desired state: pass --file or set general.desired_state_file")
	}
	return e.cfg.GetAbsDesiredStatePath(), nil
}

func (e *environment) loadDesired(file string) (*state.NetworkState, error) {
	path, err := e.desiredPath(file)
	if err != nil {
		return nil, err
	}
	desired, _, err := e.validator.LoadDesiredState(path)
	return desired, err
}
