package reconcile

import (
	"sort"

	"github.com/maksimkurb/keen-netstate/src/internal/errors"
	"github.com/maksimkurb/keen-netstate/src/internal/log"
	"github.com/maksimkurb/keen-netstate/src/internal/state"
)

// filterIgnored drops interfaces in the ignore state from both views and
// removes them from every port list. It returns the ignored names.
func filterIgnored(desired, current *state.Interfaces) map[string]bool {
	keys := map[state.Key]bool{}
	for _, c := range []*state.Interfaces{desired, current} {
		for _, iface := range c.List() {
			if iface.Base().IsIgnore() {
				keys[state.KeyOf(iface)] = true
			}
		}
	}

	names := make(map[string]bool, len(keys))
	for key := range keys {
		names[key.Name] = true
		desired.Remove(key)
		current.Remove(key)
	}
	if len(names) == 0 {
		return names
	}

	for _, c := range []*state.Interfaces{desired, current} {
		for _, iface := range c.List() {
			ports := iface.Ports()
			if ports == nil {
				continue
			}
			kept := make([]string, 0, len(ports))
			for _, p := range ports {
				if !names[p] {
					kept = append(kept, p)
				}
			}
			if len(kept) != len(ports) {
				iface.SetPorts(kept)
			}
		}
	}
	return names
}

// resolveTypes gives untyped desired interfaces the type of the current
// interface with the same name and rejects type changes.
func resolveTypes(desired, current *state.Interfaces) error {
	for _, iface := range desired.List() {
		b := iface.Base()
		if b.Type != "" {
			cur := current.Get(state.KeyOf(iface))
			if cur == nil || b.IsAbsent() {
				continue
			}
			ct := cur.Base().Type
			if ct.IsResolved() && b.Type.IsResolved() && ct != b.Type {
				return errors.NewInvalidArgument("interface %s cannot change type from %s to %s, remove it first",
					b.Name, ct, b.Type)
			}
			continue
		}

		cur := current.Lookup(b.Name)
		if cur == nil {
			if b.IsAbsent() {
				continue
			}
			return errors.NewInvalidArgument("interface %s does not exist and has no type", b.Name)
		}
		resolved, err := state.ResolveType(iface, cur.Base().Type)
		if err != nil {
			return errors.Wrap(errors.KindInvalidArgument, "failed to decode interface "+b.Name, err)
		}
		desired.Replace(state.KeyOf(iface), resolved)
	}
	return nil
}

// relations rewrites the desired view so that controller/port links are
// stated on both ends, and adds the interfaces implied by the request:
// detached ports, OVS internal interfaces, veth peers and cascaded removals.
type relations struct {
	desired *state.Interfaces
	current *state.Interfaces
	log     *log.Logger

	// explicit holds ports whose controller property came from the document.
	explicit map[string]string
	// attached holds ports a desired controller lists.
	attached map[string]bool
}

func newRelations(desired, current *state.Interfaces, logger *log.Logger) *relations {
	r := &relations{
		desired:  desired,
		current:  current,
		log:      logger,
		explicit: map[string]string{},
		attached: map[string]bool{},
	}
	for _, iface := range desired.List() {
		b := iface.Base()
		if !b.IsAbsent() && b.Specified("controller") && b.Controller != nil {
			r.explicit[b.Name] = *b.Controller
		}
	}
	return r
}

func (r *relations) prepare() error {
	steps := []func() error{
		r.attachListedPorts,
		r.applyExplicitControllers,
		r.releasePortsOfDeleted,
		r.handleVethPeers,
		r.cascadeRemovals,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

// attachListedPorts points every port a desired controller lists at that
// controller and detaches the current ports it no longer lists.
func (r *relations) attachListedPorts() error {
	for _, ctrl := range r.desired.List() {
		cb := ctrl.Base()
		ports := ctrl.Ports()
		if cb.IsAbsent() || !cb.Type.IsController() || ports == nil {
			continue
		}

		listed := make(map[string]bool, len(ports))
		for _, port := range ports {
			listed[port] = true
			if port == cb.Name && !cb.Type.IsUserspace() {
				return errors.NewInvalidArgument("interface %s cannot be its own port", port)
			}
			if err := r.attach(ctrl, port); err != nil {
				return err
			}
		}

		cur := r.current.Get(state.KeyOf(ctrl))
		if cur == nil {
			continue
		}
		for _, port := range currentPorts(r.current, cur) {
			if !listed[port] {
				r.detach(ctrl, port)
			}
		}
	}
	return nil
}

func (r *relations) attach(ctrl state.Interface, port string) error {
	cb := ctrl.Base()
	r.attached[port] = true

	if d := r.desired.Kernel(port); d != nil {
		db := d.Base()
		if db.IsAbsent() {
			return errors.NewInvalidArgument("port %s of %s is marked absent", port, cb.Name)
		}
		if name, ok := r.explicit[port]; ok && name != cb.Name {
			return errors.NewInvalidArgument("interface %s has controller %q but is listed as a port of %s", port, name, cb.Name)
		}
		db.Controller = state.Ptr(cb.Name)
		db.ControllerType = cb.Type
		db.Specify("controller")
		return nil
	}

	if c := r.current.Kernel(port); c != nil {
		r.desired.Push(controllerStub(c, cb.Name, cb.Type))
		return nil
	}

	if cb.Type == state.InterfaceTypeOvsBridge {
		child := state.NewInterface(port, state.InterfaceTypeOvsInterface)
		b := child.Base()
		b.State = state.InterfaceStateUp
		b.Controller = state.Ptr(cb.Name)
		b.ControllerType = cb.Type
		b.Specify("name", "type", "state", "controller")
		r.desired.Push(child)
		r.log.WithIface(port).Debugf("Adding implied OVS internal interface of %s", cb.Name)
		return nil
	}

	return errors.NewInvalidArgument("port %s of %s not found", port, cb.Name)
}

func (r *relations) detach(ctrl state.Interface, port string) {
	if r.attached[port] {
		return
	}
	cb := ctrl.Base()
	cur := r.current.Kernel(port)

	if cb.Type == state.InterfaceTypeOvsBridge && cur != nil && cur.Base().Type == state.InterfaceTypeOvsInterface {
		if _, ok := r.explicit[port]; ok {
			return
		}
		r.markAbsent(port, cur)
		return
	}

	if d := r.desired.Kernel(port); d != nil {
		if _, ok := r.explicit[port]; ok || d.Base().IsAbsent() {
			return
		}
		d.Base().Controller = state.Ptr("")
		d.Base().Specify("controller")
		return
	}
	if cur != nil {
		r.desired.Push(controllerStub(cur, "", ""))
	}
}

// applyExplicitControllers updates controller port lists for ports that name
// their controller themselves. An empty controller detaches the port.
func (r *relations) applyExplicitControllers() error {
	names := make([]string, 0, len(r.explicit))
	for name := range r.explicit {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, port := range names {
		target := r.explicit[port]
		d := r.desired.Kernel(port)
		if d == nil {
			continue
		}

		if target != "" {
			ctrl, err := r.addPort(target, port)
			if err != nil {
				return err
			}
			d.Base().ControllerType = ctrl.Base().Type
		}

		old := ""
		if c := r.current.Kernel(port); c != nil {
			old = c.Base().ControllerName()
		}
		if old != "" && old != target {
			if err := r.removePort(old, port); err != nil {
				return err
			}
		}
	}
	return nil
}

// addPort makes sure the desired view of controller lists port.
func (r *relations) addPort(controller, port string) (state.Interface, error) {
	if ctrl := r.desired.FindController(controller); ctrl != nil {
		if ctrl.Base().IsAbsent() {
			return nil, errors.NewInvalidArgument("controller %s of interface %s is marked absent", controller, port)
		}
		ports := ctrl.Ports()
		if ports != nil {
			if !contains(ports, port) {
				return nil, errors.NewInvalidArgument("interface %s has controller %s, which does not list it as a port", port, controller)
			}
			return ctrl, nil
		}
		var base []string
		if cur := r.current.Get(state.KeyOf(ctrl)); cur != nil {
			base = currentPorts(r.current, cur)
		}
		ctrl.SetPorts(appendUnique(base, port))
		ctrl.Base().Specify(portsSection(ctrl.Base().Type))
		return ctrl, nil
	}

	if cur := r.current.FindController(controller); cur != nil {
		stub := portListStub(cur, appendUnique(currentPorts(r.current, cur), port))
		r.desired.Push(stub)
		return stub, nil
	}

	if r.desired.Lookup(controller) != nil || r.current.Lookup(controller) != nil {
		return nil, errors.NewInvalidArgument("interface %s uses %s as controller, which cannot have ports", port, controller)
	}
	return nil, errors.NewInvalidArgument("controller %s of interface %s not found", controller, port)
}

// removePort drops port from the desired view of controller.
func (r *relations) removePort(controller, port string) error {
	if ctrl := r.desired.FindController(controller); ctrl != nil {
		if ctrl.Base().IsAbsent() {
			return nil
		}
		if ports := ctrl.Ports(); ports != nil {
			if contains(ports, port) {
				return errors.NewInvalidArgument("interface %s leaves %s, but %s still lists it as a port", port, controller, controller)
			}
			return nil
		}
		var base []string
		if cur := r.current.Get(state.KeyOf(ctrl)); cur != nil {
			base = currentPorts(r.current, cur)
		}
		ctrl.SetPorts(without(base, port))
		ctrl.Base().Specify(portsSection(ctrl.Base().Type))
		return nil
	}

	if cur := r.current.FindController(controller); cur != nil {
		r.desired.Push(portListStub(cur, without(currentPorts(r.current, cur), port)))
	}
	return nil
}

// releasePortsOfDeleted detaches the ports of controllers marked absent and
// removes the OVS internal interfaces of deleted OVS bridges.
func (r *relations) releasePortsOfDeleted() error {
	for _, ctrl := range r.desired.List() {
		cb := ctrl.Base()
		if !cb.IsAbsent() {
			continue
		}
		cur := r.current.Get(state.KeyOf(ctrl))
		if cur == nil || !cur.Base().Type.IsController() {
			continue
		}
		for _, port := range currentPorts(r.current, cur) {
			r.detach(cur, port)
		}
	}
	return nil
}

// handleVethPeers adds the implied peer of new and re-peered veth pairs and
// removes the old peer when a veth is re-peered.
func (r *relations) handleVethPeers() error {
	for _, iface := range r.desired.List() {
		v, ok := iface.(*state.VethInterface)
		if !ok || v.IsAbsent() {
			continue
		}
		peer := v.PeerName()
		cur, _ := r.current.Kernel(v.Name).(*state.VethInterface)
		repeer := cur != nil && cur.PeerName() != "" && peer != "" && cur.PeerName() != peer

		if repeer {
			old := cur.PeerName()
			if r.current.Kernel(peer) != nil {
				return errors.NewInvalidArgument("veth %s cannot take existing interface %s as its new peer", v.Name, peer)
			}
			if d := r.desired.Kernel(old); d != nil && !d.Base().IsAbsent() {
				if dv, ok := d.(*state.VethInterface); !ok || dv.PeerName() == "" || dv.PeerName() == v.Name {
					return errors.NewInvalidArgument("veth %s changes peer from %s to %s, but %s is kept", v.Name, old, peer, old)
				}
			} else if c := r.current.Kernel(old); c != nil {
				r.markAbsent(old, c)
			}
		}

		if (cur == nil || repeer) && peer != "" && r.desired.Kernel(peer) == nil && r.current.Kernel(peer) == nil {
			implied := &state.VethInterface{
				BaseInterface: state.BaseInterface{
					Name:  peer,
					Type:  state.InterfaceTypeVeth,
					State: state.InterfaceStateUp,
				},
				Veth: &state.VethConfig{Peer: v.Name},
			}
			implied.Specify("name", "type", "state", "veth")
			r.desired.Push(implied)
			r.log.WithIface(peer).Debugf("Adding implied veth peer of %s", v.Name)
		}
	}
	return nil
}

// cascadeRemovals propagates absence: a deleted veth takes its peer with it
// and a deleted interface takes the VLAN, VXLAN, MAC-VLAN, MAC-VTAP and
// InfiniBand sub-interfaces stacked on it, unless they move to another base
// that stays.
func (r *relations) cascadeRemovals() error {
	done := map[state.Key]bool{}
	for changed := true; changed; {
		changed = false
		for _, iface := range r.desired.List() {
			key := state.KeyOf(iface)
			if !iface.Base().IsAbsent() || done[key] {
				continue
			}
			done[key] = true
			cur := r.current.Get(key)
			if cur == nil {
				continue
			}

			if v, ok := cur.(*state.VethInterface); ok && v.PeerName() != "" {
				grew, err := r.removeVethPeer(v)
				if err != nil {
					return err
				}
				changed = changed || grew
			}

			if key.Userspace {
				continue
			}
			for _, sub := range r.current.List() {
				if sub.Parent() != key.Name {
					continue
				}
				if r.removeChild(sub, key.Name) {
					changed = true
				}
			}
		}
	}
	return nil
}

func (r *relations) removeVethPeer(v *state.VethInterface) (bool, error) {
	peer := v.PeerName()
	if d := r.desired.Kernel(peer); d != nil {
		if d.Base().IsAbsent() {
			return false, nil
		}
		if dv, ok := d.(*state.VethInterface); ok && dv.PeerName() != "" && dv.PeerName() != v.Name {
			return false, nil
		}
		return false, errors.NewInvalidArgument("veth %s is removed, but its peer %s is kept", v.Name, peer)
	}
	c := r.current.Kernel(peer)
	if c == nil {
		return false, nil
	}
	r.markAbsent(peer, c)
	r.log.WithIface(peer).Debugf("Removing veth peer of %s", v.Name)
	return true, nil
}

func (r *relations) removeChild(sub state.Interface, parent string) bool {
	name := sub.Base().Name
	d := r.desired.Kernel(name)
	if d == nil {
		r.markAbsent(name, sub)
		r.log.WithIface(name).Debugf("Removing interface stacked on %s", parent)
		return true
	}
	if d.Base().IsAbsent() {
		return false
	}
	if next := d.Parent(); next != "" && next != parent && r.present(next) {
		return false
	}
	r.log.WithIface(name).Warnf("Removing interface stacked on %s although it is part of the desired state", parent)
	d.Base().State = state.InterfaceStateAbsent
	d.Base().Specify("state")
	return true
}

// present reports whether name exists after the desired state is applied.
func (r *relations) present(name string) bool {
	if d := r.desired.Kernel(name); d != nil {
		return !d.Base().IsAbsent()
	}
	return r.current.Kernel(name) != nil
}

func (r *relations) markAbsent(name string, cur state.Interface) {
	if d := r.desired.Kernel(name); d != nil && d.Base().Type == cur.Base().Type {
		d.Base().State = state.InterfaceStateAbsent
		d.Base().Specify("state")
		return
	}
	stub := state.NewInterface(name, cur.Base().Type)
	stub.Base().State = state.InterfaceStateAbsent
	stub.Base().Specify("name", "type", "state")
	r.desired.Push(stub)
}

// controllerStub is a desired entry that only changes the controller of cur.
func controllerStub(cur state.Interface, controller string, controllerType state.InterfaceType) state.Interface {
	stub := state.NewInterface(cur.Base().Name, cur.Base().Type)
	b := stub.Base()
	b.Controller = state.Ptr(controller)
	b.ControllerType = controllerType
	b.Specify("name", "type", "controller")
	return stub
}

// portListStub is a desired entry that only changes the port list of cur.
func portListStub(cur state.Interface, ports []string) state.Interface {
	stub := cur.Clone()
	stub.SetPorts(ports)
	b := stub.Base()
	b.PropList = nil
	b.Specify("name", "type", portsSection(b.Type))
	return stub
}

// currentPorts lists the ports of a current controller, using both its own
// port list and the controller property of its ports.
func currentPorts(current *state.Interfaces, ctrl state.Interface) []string {
	ports := append([]string(nil), ctrl.Ports()...)
	for _, p := range current.PortsOf(ctrl.Base().Name) {
		if current.FindController(ctrl.Base().Name) == ctrl {
			ports = appendUnique(ports, p)
		}
	}
	sort.Strings(ports)
	return ports
}

func portsSection(t state.InterfaceType) string {
	switch t {
	case state.InterfaceTypeBond:
		return "link-aggregation"
	case state.InterfaceTypeVrf:
		return "vrf"
	default:
		return "bridge"
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func appendUnique(list []string, s string) []string {
	if contains(list, s) {
		return list
	}
	return append(append([]string(nil), list...), s)
}

func without(list []string, s string) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
