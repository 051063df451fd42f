package reconcile

import (
	"strings"

	"github.com/maksimkurb/keen-netstate/src/internal/errors"
	"github.com/maksimkurb/keen-netstate/src/internal/state"
)

// ResolvePriorities assigns UpPriority to every interface that is not absent:
// 0 without a controller, otherwise one more than its controller.
//
// Priorities are relaxed pass by pass. A pass only uses priorities that were
// known when it started, so an interface at nesting depth k is settled in pass
// k regardless of insertion order. At most one pass per interface is made;
// anything left after that is part of a cycle.
//
// Controllers listed in outside are managed elsewhere and count as resolved
// with priority 0 for their ports.
func ResolvePriorities(ifaces *state.Interfaces, outside map[string]bool) error {
	list := ifaces.List()
	resolved := make(map[state.Key]bool, len(list))
	controllers := make(map[state.Key]state.Interface, len(list))
	var pending []state.Interface

	for _, iface := range list {
		b := iface.Base()
		b.UpPriority = 0
		if b.IsAbsent() {
			continue
		}

		name := b.ControllerName()
		if name == "" || outside[name] {
			if name == "" {
				b.ControllerType = ""
			}
			resolved[state.KeyOf(iface)] = true
			continue
		}

		ctrl := ifaces.FindController(name)
		if ctrl == nil {
			if other := ifaces.Lookup(name); other != nil && !other.Base().IsAbsent() {
				return errors.NewInvalidArgument("interface %s uses %s as controller, but %s interfaces cannot have ports",
					b.Name, name, other.Base().Type)
			}
			return errors.NewInvalidArgument("controller %s of interface %s not found", name, b.Name)
		}
		if ctrl.Base().IsAbsent() {
			return errors.NewInvalidArgument("controller %s of interface %s is marked absent", name, b.Name)
		}
		if state.KeyOf(ctrl) == state.KeyOf(iface) {
			return errors.NewInvalidArgument("interface %s cannot be its own controller", b.Name)
		}

		b.ControllerType = ctrl.Base().Type
		controllers[state.KeyOf(iface)] = ctrl
		pending = append(pending, iface)
	}

	type update struct {
		iface    state.Interface
		priority uint32
	}

	for pass := 0; pass < len(list) && len(pending) > 0; pass++ {
		var updates []update
		var still []state.Interface
		for _, iface := range pending {
			ctrl := controllers[state.KeyOf(iface)]
			if !resolved[state.KeyOf(ctrl)] {
				still = append(still, iface)
				continue
			}
			updates = append(updates, update{iface: iface, priority: ctrl.Base().UpPriority + 1})
		}
		if len(updates) == 0 {
			break
		}
		for _, u := range updates {
			u.iface.Base().UpPriority = u.priority
			resolved[state.KeyOf(u.iface)] = true
		}
		pending = still
	}

	if len(pending) > 0 {
		names := make([]string, 0, len(pending))
		for _, iface := range pending {
			names = append(names, iface.Base().Name)
		}
		return errors.NewInvalidArgument("failed to resolve up priority of interface %s: controller reference cycle involving %s",
			pending[0].Base().Name, strings.Join(names, ", "))
	}
	return nil
}
