// Package service provides business logic orchestration for keen-netstate.
//
// The service layer sits between the command layer (CLI/API) and the
// domain layer (state provider, applier, checkpointer, engine). It keeps
// commands thin: they load configuration, call a service and print.
//
// # Key Services
//
// ReconcileService: reads the current state, plans, applies a plan under a
// checkpoint and verifies the result.
//
// ValidationService: validates the application config and loads the
// desired state document.
//
// # Example Usage
//
//	deps, err := domain.NewAppDependencies(domain.AppConfigFrom(cfg), logger)
//	if err != nil {
//	    return err
//	}
//	defer deps.Close()
//
//	svc := service.NewReconcileService(deps, service.SettingsFromConfig(cfg), recorder)
//	result, err := svc.Apply(ctx, desired, service.ApplyOptions{})
//	if err != nil {
//	    return err
//	}
//	fmt.Println(service.RenderPlan(result.Plan, cfg.Output.PlanTemplate))
package service
