package reconcile

import (
	"github.com/maksimkurb/keen-netstate/src/internal/errors"
	"github.com/maksimkurb/keen-netstate/src/internal/state"
)

// checkPlan verifies properties every plan must have. A failure here is a
// defect in the engine, never a problem with the input.
func checkPlan(p *Plan, outside map[string]bool) error {
	seen := map[state.Key]string{}
	ops := []struct {
		name string
		list []state.Interface
	}{{"delete", p.Delete}, {"add", p.Add}, {"change", p.Change}}
	for _, op := range ops {
		for _, iface := range op.list {
			key := state.KeyOf(iface)
			prev, ok := seen[key]
			// Delete followed by add recreates an interface.
			if ok && !(prev == "delete" && op.name == "add") {
				return errors.NewBug("interface %s is planned for both %s and %s", key, prev, op.name)
			}
			seen[key] = op.name
		}
	}

	for _, iface := range p.Delete {
		b := iface.Base()
		if !b.IsAbsent() {
			return errors.NewBug("interface %s is planned for deletion but has state %s", b.Name, b.State)
		}
		if b.ControllerName() != "" {
			return errors.NewBug("interface %s is planned for deletion but still has controller %s", b.Name, b.ControllerName())
		}
	}

	for _, list := range [][]state.Interface{p.Add, p.Change} {
		var last uint32
		for _, iface := range list {
			b := iface.Base()
			if b.IsAbsent() {
				return errors.NewBug("absent interface %s is planned for activation", b.Name)
			}
			if name := b.ControllerName(); name != "" && !outside[name] && b.UpPriority == 0 {
				return errors.NewBug("interface %s has controller %s but no up priority", b.Name, name)
			}
			if b.UpPriority < last {
				return errors.NewBug("interface %s is out of up priority order", b.Name)
			}
			last = b.UpPriority
		}
	}
	return nil
}
