package reconcile

import (
	"github.com/maksimkurb/keen-netstate/src/internal/errors"
	"github.com/maksimkurb/keen-netstate/src/internal/state"
)

// portClaims maps a port name to the controller claiming it.
type portClaims map[string]string

func (c portClaims) claim(port, controller string) error {
	if owner, ok := c[port]; ok && owner != controller {
		return errors.NewInvalidArgument("port %s is overbooked: claimed by both %s and %s", port, owner, controller)
	}
	c[port] = controller
	return nil
}

// CheckPortOwnership rejects states where a port would be owned by two
// controllers at once.
//
// Claims come from desired controllers that list their ports and from ports
// naming their controller. Controllers the desired state does not mention, or
// mentions without a port list, keep claiming their current ports, except
// ports that are removed or given another controller in the desired state.
// Controllers marked absent claim nothing.
func CheckPortOwnership(desired, current *state.Interfaces) error {
	claims := portClaims{}

	for _, iface := range desired.List() {
		b := iface.Base()
		if b.IsAbsent() || !b.Type.IsController() {
			continue
		}
		for _, port := range iface.Ports() {
			if err := claims.claim(port, b.Name); err != nil {
				return err
			}
		}
	}

	// Ports that decide their own controller in the desired state.
	released := map[string]bool{}
	for _, iface := range desired.List() {
		b := iface.Base()
		if b.IsAbsent() {
			released[b.Name] = true
			continue
		}
		if !b.Specified("controller") || b.Controller == nil {
			continue
		}
		released[b.Name] = true
		if ctrl := b.ControllerName(); ctrl != "" {
			if err := claims.claim(b.Name, ctrl); err != nil {
				return err
			}
		}
	}

	for _, iface := range current.List() {
		b := iface.Base()
		if !b.Type.IsController() {
			continue
		}
		if d := desired.Get(state.KeyOf(iface)); d != nil {
			if d.Base().IsAbsent() || d.Ports() != nil {
				continue
			}
		}
		for _, port := range iface.Ports() {
			if released[port] {
				continue
			}
			if err := claims.claim(port, b.Name); err != nil {
				return err
			}
		}
	}

	return nil
}
