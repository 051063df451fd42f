package commands

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/maksimkurb/keen-netstate/src/internal/api"
	"github.com/maksimkurb/keen-netstate/src/internal/config"
	"github.com/maksimkurb/keen-netstate/src/internal/errors"
	"github.com/maksimkurb/keen-netstate/src/internal/log"
	"github.com/maksimkurb/keen-netstate/src/internal/service"
	"github.com/maksimkurb/keen-netstate/src/internal/state"
)

// watchDebounce coalesces the bursts of events editors produce on save.
const watchDebounce = 500 * time.Millisecond

func newServiceCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "service",
		Short: "Keep the system in the desired state",
		Long: `Apply the desired state file of the configuration, then re-apply it
whenever the file changes. The HTTP API is served when [api] enabled is set.

Send SIGHUP to re-apply the file even when it did not change.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := app.setup()
			if err != nil {
				return err
			}
			defer env.close()

			path, err := env.desiredPath("")
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			hup := make(chan os.Signal, 1)
			signal.Notify(hup, syscall.SIGHUP)
			defer signal.Stop(hup)

			return newServiceRunner(env, path).run(ctx, hup)
		},
	}
}

// serviceRunner applies the desired state file and follows its changes.
type serviceRunner struct {
	env    *environment
	path   string
	hasher *config.StateHasher
	log    *log.Logger

	debounce time.Duration
}

func newServiceRunner(env *environment, path string) *serviceRunner {
	return &serviceRunner{
		env:      env,
		path:     filepath.Clean(path),
		hasher:   config.NewStateHasher(path),
		log:      env.log.WithField("component", "service"),
		debounce: watchDebounce,
	}
}

func (s *serviceRunner) run(ctx context.Context, hup <-chan os.Signal) error {
	s.log.Infof("Starting keen-netstate service, desired state: %s", s.path)

	if err := s.reconcile(ctx, true); err != nil {
		s.log.Errorf("Initial apply failed: %v", err)
		s.log.Warnf("Service will keep running. Fix the desired state and save it again.")
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.watch(ctx, hup)
	})

	if apiCfg := s.env.cfg.API; apiCfg != nil && apiCfg.Enabled {
		server := api.NewServer(apiCfg.ListenAddr, api.Options{
			Reconciler:   s.env.service,
			Desired:      s.loadDesired,
			PlanTemplate: s.env.cfg.Output.PlanTemplate,
			Metrics:      s.env.metrics,
			Logger:       s.env.log,
		})
		runner := NewRestartableRunner(RunnerConfig{
			Name:           "api",
			RestartBackoff: 2 * time.Second,
			Logger:         s.env.log,
		}, server.Run)

		g.Go(func() error {
			if err := runner.Start(ctx); err != nil {
				return err
			}
			<-ctx.Done()
			return runner.Stop()
		})
	} else {
		s.log.Infof("HTTP API is disabled")
	}

	err := g.Wait()
	s.log.Infof("Service stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *serviceRunner) loadDesired() (*state.NetworkState, error) {
	desired, _, err := s.env.validator.LoadDesiredState(s.path)
	return desired, err
}

// reconcile applies the desired state file unless it is the one last
// applied. force applies it regardless.
func (s *serviceRunner) reconcile(ctx context.Context, force bool) error {
	s.hasher.Invalidate()
	if !force {
		if applied, err := s.hasher.IsApplied(); err == nil && applied {
			s.log.Debugf("Desired state did not change")
			return nil
		}
	}

	desired, hash, err := s.env.validator.LoadDesiredState(s.path)
	if err != nil {
		return err
	}
	result, err := s.env.service.Apply(ctx, desired, service.ApplyOptions{})
	if err != nil {
		return err
	}
	s.hasher.SetActiveHash(hash)

	if result.Applied {
		s.log.Infof("Desired state applied: %s", result.Plan.Summary())
	}
	return nil
}

// watch re-applies the desired state when its file changes or on SIGHUP. The
// directory is watched so that editors replacing the file are noticed.
func (s *serviceRunner) watch(ctx context.Context, hup <-chan os.Signal) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.NewBackendError("failed to create file watcher", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return errors.NewBackendError("failed to watch "+filepath.Dir(s.path), err)
	}

	timer := time.NewTimer(s.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != s.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			s.log.Debugf("Desired state file event: %s", event.Op)
			timer.Reset(s.debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.log.Warnf("File watcher error: %v", err)

		case <-timer.C:
			if err := s.reconcile(ctx, false); err != nil {
				s.log.Errorf("Apply failed: %v", err)
			}

		case <-hup:
			s.log.Infof("Received SIGHUP, re-applying desired state")
			if err := s.reconcile(ctx, true); err != nil {
				s.log.Errorf("Apply failed: %v", err)
			}
		}
	}
}
