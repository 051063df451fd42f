package reconcile

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/maksimkurb/keen-netstate/src/internal/errors"
	"github.com/maksimkurb/keen-netstate/src/internal/log"
	"github.com/maksimkurb/keen-netstate/src/internal/state"
)

// Engine computes plans and verifies applied states. It holds no state
// between calls, so one Engine may serve concurrent reconciliations.
type Engine struct {
	log *log.Logger
}

// NewEngine creates an engine logging through logger. A nil logger discards
// output.
func NewEngine(logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Discard()
	}
	return &Engine{log: logger}
}

// Plan computes the changes that move current to desired. Neither argument
// is modified.
//
// All validation happens before any diffing: the desired document, ignored
// interfaces, types, port ownership, controller relations, up priorities and
// references. Only then are the interface diff and the route and rule deltas
// computed.
func (e *Engine) Plan(ctx context.Context, desired, current *state.NetworkState) (*Plan, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(errors.KindTimeout, "planning cancelled", err)
	}

	des := desired.Clone()
	cur := current.Clone()
	des.Sanitize()
	cur.Sanitize()

	if err := des.Validate(); err != nil {
		return nil, err
	}

	outside := filterIgnored(&des.Interfaces, &cur.Interfaces)
	if len(outside) > 0 {
		e.log.Debugf("Ignoring %d interface(s)", len(outside))
	}
	if err := resolveTypes(&des.Interfaces, &cur.Interfaces); err != nil {
		return nil, err
	}
	if err := CheckPortOwnership(&des.Interfaces, &cur.Interfaces); err != nil {
		return nil, err
	}
	if err := newRelations(&des.Interfaces, &cur.Interfaces, e.log).prepare(); err != nil {
		return nil, err
	}

	v := newView(&des.Interfaces, &cur.Interfaces)
	if err := ResolvePriorities(&v.merged, outside); err != nil {
		return nil, err
	}
	v.clearPortAddresses()
	if err := v.checkReferences(des.Routes.Config, outside); err != nil {
		return nil, err
	}
	priorities := currentPriorities(&cur.Interfaces, outside)
	desRoutes := managedRoutes(des.Routes.Config, outside)
	cur.Routes.Config = managedRoutes(cur.Routes.Config, outside)

	var (
		diff   *InterfaceDiff
		routes map[string][]state.RouteEntry
		rules  map[uint32][]state.RouteRuleEntry
	)
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		diff = diffInterfaces(v, priorities)
		return nil
	})
	g.Go(func() error {
		routes = RouteDelta(desRoutes, cur.Routes.Config)
		return nil
	})
	g.Go(func() error {
		rules = RuleDelta(des.Rules.Config, cur.Rules.Config)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	b := &planBuilder{view: v, current: cur}
	plan := b.build(diff, routes, rules)
	plan.Desired = des
	if err := checkPlan(plan, outside); err != nil {
		e.log.Errorf("Plan failed internal checks: %v", err)
		return nil, err
	}

	e.log.Debugf("Plan: %s", plan.Summary())
	return plan, nil
}

// managedRoutes drops routes of interfaces outside the managed scope.
func managedRoutes(routes []state.RouteEntry, outside map[string]bool) []state.RouteEntry {
	if len(outside) == 0 {
		return routes
	}
	out := make([]state.RouteEntry, 0, len(routes))
	for _, r := range routes {
		if !outside[r.Iface()] {
			out = append(out, r)
		}
	}
	return out
}
