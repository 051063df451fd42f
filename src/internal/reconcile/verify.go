package reconcile

import (
	"github.com/maksimkurb/keen-netstate/src/internal/errors"
	"github.com/maksimkurb/keen-netstate/src/internal/state"
)

// Verify checks that observed satisfies desired.
//
// Matching is partial: every field a desired entry specifies must be equal in
// the observed entry, unspecified fields match anything. Non-absent entries
// need an observed match. Absent entries must not have one, unless a
// non-absent desired entry matches the same observed entry.
//
// Interfaces in the ignore state and the names in ignored are left out of
// interface, route and rule verification.
func (e *Engine) Verify(desired, observed *state.NetworkState, ignored []string) error {
	des := desired.Clone()
	obs := observed.Clone()
	des.Sanitize()
	obs.Sanitize()

	outside := filterIgnored(&des.Interfaces, &obs.Interfaces)
	for _, name := range ignored {
		outside[name] = true
	}

	if err := verifyInterfaces(&des.Interfaces, &obs.Interfaces, outside); err != nil {
		return err
	}
	if err := verifyRoutes(des.Routes.Config, managedRoutes(obs.Routes.Config, outside), outside); err != nil {
		return err
	}
	if err := verifyRules(des.Rules.Config, obs.Rules.Config, outside); err != nil {
		return err
	}
	e.log.Debugf("Verification passed")
	return nil
}

func verifyInterfaces(desired, observed *state.Interfaces, outside map[string]bool) error {
	for _, d := range desired.List() {
		b := d.Base()
		if outside[b.Name] {
			continue
		}

		var o state.Interface
		if b.Type.IsResolved() {
			o = observed.Get(state.KeyOf(d))
		} else {
			o = observed.Lookup(b.Name)
		}

		if b.IsAbsent() {
			if o != nil && !o.Base().IsAbsent() {
				return errors.NewVerificationError("interface %s should be absent but still exists", b.Name)
			}
			continue
		}
		if o == nil {
			return errors.NewVerificationError("interface %s not found", b.Name)
		}

		if name := b.ControllerName(); name != "" {
			if ctrl := observed.FindController(name); ctrl != nil {
				b.ControllerType = ctrl.Base().Type
			}
			if !b.CanHaveIP() {
				b.IPv4 = nil
				b.IPv6 = nil
			}
		}

		if err := matchInterface(d, o); err != nil {
			return errors.NewVerificationError("interface %s: %v", b.Name, err)
		}
	}
	return nil
}

func verifyRoutes(desired, observed []state.RouteEntry, outside map[string]bool) error {
	var present []state.RouteEntry
	for _, d := range desired {
		if !d.IsAbsent() {
			present = append(present, d)
		}
	}

	for _, d := range desired {
		if outside[d.Iface()] && d.Iface() != "" {
			continue
		}
		if !d.IsAbsent() {
			if !anyRoute(observed, d.Matches) {
				return errors.NewVerificationError("route %s not found", d)
			}
			continue
		}
		for _, o := range observed {
			if !d.Matches(o) {
				continue
			}
			if !anyRoute(present, func(p state.RouteEntry) bool { return p.Matches(o) }) {
				return errors.NewVerificationError("route %s should be absent but %s still exists", d, o)
			}
		}
	}
	return nil
}

func verifyRules(desired, observed []state.RouteRuleEntry, outside map[string]bool) error {
	var present []state.RouteRuleEntry
	for _, d := range desired {
		if !d.IsAbsent() {
			present = append(present, d)
		}
	}
	var managed []state.RouteRuleEntry
	for _, o := range observed {
		if o.Iif == nil || !outside[*o.Iif] {
			managed = append(managed, o)
		}
	}

	for _, d := range desired {
		if d.Iif != nil && outside[*d.Iif] {
			continue
		}
		if !d.IsAbsent() {
			if !anyRule(managed, d.Matches) {
				return errors.NewVerificationError("route rule %s not found", d)
			}
			continue
		}
		for _, o := range managed {
			if !d.Matches(o) {
				continue
			}
			if !anyRule(present, func(p state.RouteRuleEntry) bool { return p.Matches(o) }) {
				return errors.NewVerificationError("route rule %s should be absent but %s still exists", d, o)
			}
		}
	}
	return nil
}

func anyRoute(list []state.RouteEntry, match func(state.RouteEntry) bool) bool {
	for _, r := range list {
		if match(r) {
			return true
		}
	}
	return false
}

func anyRule(list []state.RouteRuleEntry, match func(state.RouteRuleEntry) bool) bool {
	for _, r := range list {
		if match(r) {
			return true
		}
	}
	return false
}
