package reconcile

import (
	"sort"

	"github.com/maksimkurb/keen-netstate/src/internal/errors"
	"github.com/maksimkurb/keen-netstate/src/internal/state"
)

// entry pairs the desired and current form of one interface with the result
// of merging them.
type entry struct {
	desired state.Interface
	current state.Interface
	merged  state.Interface
}

// view is the merged interface collection the resolver and the diff work on.
type view struct {
	entries map[state.Key]*entry
	merged  state.Interfaces
}

// newView merges desired on top of current. Interfaces only present in
// current are carried over unchanged; desired entries that are absent and do
// not exist are dropped.
func newView(desired, current *state.Interfaces) *view {
	v := &view{entries: map[state.Key]*entry{}}

	for _, cur := range current.List() {
		e := &entry{current: cur, merged: cur.Clone()}
		v.entries[state.KeyOf(cur)] = e
		v.merged.Push(e.merged)
	}

	for _, d := range desired.List() {
		key := state.KeyOf(d)
		e, ok := v.entries[key]
		if !ok {
			if d.Base().IsAbsent() {
				continue
			}
			e = &entry{}
			v.entries[key] = e
		}
		e.desired = d

		switch {
		case d.Base().IsAbsent():
			e.merged = e.current.Clone()
			b := e.merged.Base()
			b.State = state.InterfaceStateAbsent
			b.Controller = nil
			b.ControllerType = ""
		case e.current == nil:
			e.merged = d.Clone()
			if e.merged.Base().State == "" {
				e.merged.Base().State = state.InterfaceStateUp
			}
		default:
			e.merged = state.MergeInterface(e.current, d)
		}
		v.merged.Push(e.merged)
	}
	return v
}

// clearPortAddresses drops IP settings of interfaces that cannot carry
// addresses, both from the merged and from the desired entry.
func (v *view) clearPortAddresses() {
	for _, key := range v.merged.Keys() {
		e := v.entries[key]
		b := e.merged.Base()
		if b.IsAbsent() || b.CanHaveIP() {
			continue
		}
		b.IPv4 = nil
		b.IPv6 = nil
		if e.desired != nil {
			db := e.desired.Base()
			db.IPv4 = nil
			db.IPv6 = nil
			db.Unspecify("ipv4")
			db.Unspecify("ipv6")
		}
	}
}

// checkReferences validates cross references of the merged view that the
// document validation cannot see.
func (v *view) checkReferences(routes []state.RouteEntry, outside map[string]bool) error {
	for _, key := range v.merged.Keys() {
		e := v.entries[key]
		b := e.merged.Base()
		if b.IsAbsent() || e.desired == nil {
			continue
		}

		if e.current == nil {
			if !b.Type.IsResolved() {
				return errors.NewInvalidArgument("cannot create interface %s of type %q", b.Name, b.Type)
			}
			if veth, ok := e.merged.(*state.VethInterface); ok && veth.PeerName() == "" {
				return errors.NewInvalidArgument("new veth interface %s requires a peer", b.Name)
			}
			if vrf, ok := e.merged.(*state.VrfInterface); ok && (vrf.Vrf == nil || vrf.Vrf.TableID == 0) {
				return errors.NewInvalidArgument("new vrf interface %s requires route-table-id", b.Name)
			}
			if vlan, ok := e.merged.(*state.VlanInterface); ok && vlan.Vlan == nil {
				return errors.NewInvalidArgument("new vlan interface %s requires a vlan section", b.Name)
			}
		}

		if b.State == state.InterfaceStateDown && len(e.merged.Ports()) > 0 {
			return errors.NewInvalidArgument("controller %s is marked down but has ports %v", b.Name, e.merged.Ports())
		}
		if name := b.ControllerName(); name != "" && !outside[name] {
			if ctrl := v.merged.FindController(name); ctrl != nil && ctrl.Base().State == state.InterfaceStateDown {
				return errors.NewInvalidArgument("controller %s of interface %s is marked down", name, b.Name)
			}
		}

		if parent := e.merged.Parent(); parent != "" && !outside[parent] {
			p := v.merged.Kernel(parent)
			if p == nil || p.Base().IsAbsent() {
				return errors.NewInvalidArgument("interface %s is stacked on %s, which does not exist or is marked absent", b.Name, parent)
			}
		}

		if e.desired.Ports() != nil {
			for _, port := range e.desired.Ports() {
				p := v.merged.Kernel(port)
				if p != nil && p.Base().IsAbsent() {
					return errors.NewInvalidArgument("port %s of %s is marked absent", port, b.Name)
				}
			}
		}
	}

	for _, r := range routes {
		if r.IsAbsent() {
			continue
		}
		name := r.Iface()
		if outside[name] {
			continue
		}
		iface := v.merged.Kernel(name)
		if iface == nil || iface.Base().IsAbsent() {
			return errors.NewInvalidArgument("route %s uses interface %s, which does not exist or is marked absent", r, name)
		}
	}
	return nil
}

// InterfaceDiff is the result of diffing interfaces.
type InterfaceDiff struct {
	Add    []state.Interface
	Change []state.Interface
	Delete []state.Interface
}

// diffInterfaces emits Add for desired interfaces missing in current, Change
// for interfaces whose merged form differs from current and Delete for
// interfaces marked absent. A re-peered veth is both deleted and added. Interfaces the desired state does not mention
// are left alone.
//
// Delete entries take their priority from currentPriorities so that ports are
// torn down before their controllers.
func diffInterfaces(v *view, currentPriorities map[state.Key]uint32) *InterfaceDiff {
	out := &InterfaceDiff{}
	for _, key := range v.merged.Keys() {
		e := v.entries[key]
		if e.desired == nil {
			continue
		}

		switch {
		case e.desired.Base().IsAbsent():
			out.Delete = append(out.Delete, deletion(e.current, currentPriorities[key]))
		case e.current == nil:
			out.Add = append(out.Add, e.merged.Clone())
		case repeered(e):
			out.Delete = append(out.Delete, deletion(e.current, currentPriorities[key]))
			out.Add = append(out.Add, e.merged.Clone())
		default:
			if !equivalentInterface(e.merged, e.current) {
				out.Change = append(out.Change, e.merged.Clone())
			}
		}
	}

	sortAscending(out.Add)
	sortAscending(out.Change)
	sort.SliceStable(out.Delete, func(i, j int) bool {
		a, b := out.Delete[i].Base(), out.Delete[j].Base()
		if a.UpPriority != b.UpPriority {
			return a.UpPriority > b.UpPriority
		}
		return a.Name < b.Name
	})
	return out
}

// deletion is the Delete entry of cur.
func deletion(cur state.Interface, priority uint32) state.Interface {
	del := cur.Clone()
	b := del.Base()
	b.State = state.InterfaceStateAbsent
	b.Controller = nil
	b.ControllerType = ""
	b.PropList = nil
	b.UpPriority = priority
	return del
}

// repeered reports whether a veth moves to another peer. The kernel cannot
// re-peer a pair, so the veth is deleted and created again.
func repeered(e *entry) bool {
	merged, ok := e.merged.(*state.VethInterface)
	if !ok {
		return false
	}
	cur, ok := e.current.(*state.VethInterface)
	return ok && cur.PeerName() != "" && merged.PeerName() != cur.PeerName()
}

func sortAscending(list []state.Interface) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i].Base(), list[j].Base()
		if a.UpPriority != b.UpPriority {
			return a.UpPriority < b.UpPriority
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Type < b.Type
	})
}

// currentPriorities resolves priorities on a copy of the current state. A
// broken current hierarchy only degrades the delete order, so errors fall
// back to priority 0.
func currentPriorities(current *state.Interfaces, outside map[string]bool) map[state.Key]uint32 {
	c := current.Clone()
	out := make(map[state.Key]uint32, c.Len())
	if err := ResolvePriorities(&c, outside); err != nil {
		return out
	}
	for _, iface := range c.List() {
		out[state.KeyOf(iface)] = iface.Base().UpPriority
	}
	return out
}
