package networking

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"

	"github.com/maksimkurb/keen-netstate/src/internal/errors"
	"github.com/maksimkurb/keen-netstate/src/internal/log"
	"github.com/maksimkurb/keen-netstate/src/internal/reconcile"
	"github.com/maksimkurb/keen-netstate/src/internal/state"
	"github.com/maksimkurb/keen-netstate/src/internal/utils"
)

// KernelApplier applies plans through netlink.
//
// Every step is idempotent, so a partially applied plan can be applied
// again: existing links are reused, addresses and routes are replaced and
// missing links are skipped on delete.
type KernelApplier struct {
	nl  Netlink
	log *log.Logger
}

// NewKernelApplier creates an applier writing through nl.
func NewKernelApplier(nl Netlink, logger *log.Logger) *KernelApplier {
	if logger == nil {
		logger = log.Discard()
	}
	return &KernelApplier{nl: nl, log: logger}
}

// ApplyPlan applies the deletions in order, then the additions, then the
// changes, then the final route list of every interface and the final rule
// list of every table.
//
// Changes the kernel cannot make on an existing link are checked before
// anything is touched. Such links are recreated, or the plan is rejected with
// NotImplementedError when recreating would detach ports.
func (a *KernelApplier) ApplyPlan(ctx context.Context, plan *reconcile.Plan) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(errors.KindTimeout, "apply cancelled", err)
	}
	recreate, err := a.checkChanges(plan)
	if err != nil {
		return err
	}

	steps := []struct {
		op    string
		list  []state.Interface
		apply func(state.Interface) error
	}{
		{"delete", plan.Delete, a.deleteInterface},
		{"add", plan.Add, a.addInterface},
		{"change", plan.Change, func(iface state.Interface) error {
			return a.change(iface, recreate[iface.Base().Name])
		}},
	}
	for _, step := range steps {
		for _, iface := range step.list {
			if err := ctx.Err(); err != nil {
				return errors.Wrap(errors.KindTimeout, "apply cancelled", err)
			}
			a.log.WithIface(iface.Base().Name).WithField("op", step.op).Debugf("Applying %s", iface.Base().Type)
			if err := step.apply(iface); err != nil {
				return err
			}
		}
	}

	for _, name := range plan.RouteIfaces() {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(errors.KindTimeout, "apply cancelled", err)
		}
		if err := a.syncRoutes(name, plan.Routes[name]); err != nil {
			return err
		}
	}
	for _, table := range plan.RuleTables() {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(errors.KindTimeout, "apply cancelled", err)
		}
		if err := a.syncRules(table, plan.Rules[table]); err != nil {
			return err
		}
	}
	return nil
}

func (a *KernelApplier) deleteInterface(iface state.Interface) error {
	b := iface.Base()
	if isOvs(b.Type) {
		return errors.NewNotImplemented("deleting %s %s requires an OVS backend", b.Type, b.Name)
	}

	link, err := a.nl.LinkByName(b.Name)
	if err != nil {
		if isLinkNotFound(err) {
			a.log.WithIface(b.Name).Debugf("Already gone")
			return nil
		}
		return errors.NewBackendError(fmt.Sprintf("failed to find %s", b.Name), err)
	}

	if !isPhysical(iface) {
		if err := a.nl.LinkDel(link); err != nil {
			return errors.NewBackendError(fmt.Sprintf("failed to delete %s", b.Name), err)
		}
		return nil
	}

	// Physical interfaces stay; they are detached, flushed and brought down.
	if link.Attrs().MasterIndex != 0 {
		if err := a.nl.LinkSetNoMaster(link); err != nil {
			return errors.NewBackendError(fmt.Sprintf("failed to detach %s", b.Name), err)
		}
	}
	for _, family := range []int{netlink.FAMILY_V4, netlink.FAMILY_V6} {
		if err := a.syncAddrs(link, &state.InterfaceIP{Enabled: state.Ptr(false)}, family); err != nil {
			return err
		}
	}
	if err := a.nl.LinkSetDown(link); err != nil {
		return errors.NewBackendError(fmt.Sprintf("failed to bring %s down", b.Name), err)
	}
	return nil
}

func (a *KernelApplier) addInterface(iface state.Interface) error {
	b := iface.Base()
	link, err := a.newLink(iface)
	if err != nil {
		return err
	}

	if err := a.nl.LinkAdd(link); err != nil {
		existing, lookupErr := a.nl.LinkByName(b.Name)
		if lookupErr != nil || existing.Type() != link.Type() {
			return errors.NewBackendError(fmt.Sprintf("failed to create %s %s", b.Type, b.Name), err)
		}
		a.log.WithIface(b.Name).Debugf("Link already exists, reusing it")
	}
	return a.configure(iface)
}

// checkChanges returns the changed links that must be recreated, with the
// attributes that force it.
func (a *KernelApplier) checkChanges(plan *reconcile.Plan) (map[string][]string, error) {
	if len(plan.Change) == 0 {
		return nil, nil
	}
	links, err := a.nl.LinkList()
	if err != nil {
		return nil, errors.NewBackendError("failed to list links", err)
	}
	byIndex := indexLinks(links)
	byName := make(map[string]netlink.Link, len(links))
	for _, link := range links {
		byName[link.Attrs().Name] = link
	}

	deleted := map[string]bool{}
	for _, iface := range plan.Delete {
		deleted[iface.Base().Name] = true
	}
	ports := map[int][]string{}
	for _, link := range links {
		if idx := link.Attrs().MasterIndex; idx != 0 && !deleted[link.Attrs().Name] {
			ports[idx] = append(ports[idx], link.Attrs().Name)
		}
	}

	out := map[string][]string{}
	for _, iface := range plan.Change {
		b := iface.Base()
		link, ok := byName[b.Name]
		if !ok {
			continue
		}
		changed := immutableChanges(iface, link, byIndex)
		if len(changed) == 0 {
			continue
		}
		if isPhysical(iface) {
			return nil, errors.NewNotImplemented("cannot change %s of %s interface %s",
				strings.Join(changed, ", "), b.Type, b.Name)
		}
		if list := ports[link.Attrs().Index]; len(list) > 0 {
			return nil, errors.NewNotImplemented("changing %s of %s needs the link to be recreated, which would detach its ports %s",
				strings.Join(changed, ", "), b.Name, strings.Join(list, ", "))
		}
		out[b.Name] = changed
	}
	return out, nil
}

// immutableChanges lists the attributes of iface that differ from link and
// cannot be changed on an existing link.
func immutableChanges(iface state.Interface, link netlink.Link, byIndex map[int]netlink.Link) []string {
	var out []string
	differs := func(name string, changed bool) {
		if changed {
			out = append(out, name)
		}
	}
	parent := linkName(byIndex, link.Attrs().ParentIndex)

	switch v := iface.(type) {
	case *state.VlanInterface:
		l, ok := link.(*netlink.Vlan)
		if !ok || v.Vlan == nil {
			break
		}
		differs("vlan.id", int(v.Vlan.ID) != l.VlanId)
		differs("vlan.base-iface", v.Vlan.BaseIface != "" && v.Vlan.BaseIface != parent)
		if v.Vlan.Protocol != nil {
			differs("vlan.protocol", vlanProtocol(v.Vlan.Protocol) != l.VlanProtocol)
		}
	case *state.VxlanInterface:
		l, ok := link.(*netlink.Vxlan)
		if !ok || v.Vxlan == nil {
			break
		}
		differs("vxlan.id", int(v.Vxlan.ID) != l.VxlanId)
		differs("vxlan.base-iface", v.Vxlan.BaseIface != "" && v.Vxlan.BaseIface != linkName(byIndex, l.VtepDevIndex))
		differs("vxlan.remote", v.Vxlan.Remote != nil && !net.ParseIP(*v.Vxlan.Remote).Equal(l.Group))
		differs("vxlan.local", v.Vxlan.Local != nil && !net.ParseIP(*v.Vxlan.Local).Equal(l.SrcAddr))
		differs("vxlan.destination-port", v.Vxlan.DstPort != nil && int(*v.Vxlan.DstPort) != l.Port)
	case *state.VrfInterface:
		l, ok := link.(*netlink.Vrf)
		if ok && v.Vrf != nil {
			differs("vrf.route-table-id", v.Vrf.TableID != 0 && uint32(v.Vrf.TableID) != l.Table)
		}
	case *state.BondInterface:
		l, ok := link.(*netlink.Bond)
		if ok && v.Bond != nil && v.Bond.Mode != nil {
			differs("link-aggregation.mode", netlink.StringToBondMode(*v.Bond.Mode) != l.Mode)
		}
	case *state.MacVlanInterface:
		l, ok := link.(*netlink.Macvlan)
		if ok && v.MacVlan != nil {
			differs("mac-vlan.base-iface", v.MacVlan.BaseIface != "" && v.MacVlan.BaseIface != parent)
			differs("mac-vlan.mode", v.MacVlan.Mode != "" && macvlanModes[v.MacVlan.Mode] != l.Mode)
		}
	case *state.MacVtapInterface:
		l, ok := link.(*netlink.Macvtap)
		if ok && v.MacVtap != nil {
			differs("mac-vtap.base-iface", v.MacVtap.BaseIface != "" && v.MacVtap.BaseIface != parent)
			differs("mac-vtap.mode", v.MacVtap.Mode != "" && macvlanModes[v.MacVtap.Mode] != l.Mode)
		}
	case *state.InfiniBandInterface:
		l, ok := link.(*netlink.IPoIB)
		if ok && v.InfiniBand != nil {
			differs("infiniband.pkey", v.InfiniBand.Pkey != nil && uint16(*v.InfiniBand.Pkey) != l.Pkey)
			differs("infiniband.base-iface", v.InfiniBand.BaseIface != nil && *v.InfiniBand.BaseIface != parent)
		}
	}
	return out
}

// change configures iface, recreating its link first when changed lists
// attributes the kernel cannot update in place. The static routes of a
// recreated link are added back once it is configured.
func (a *KernelApplier) change(iface state.Interface, changed []string) error {
	if len(changed) == 0 {
		return a.configure(iface)
	}
	routes, err := a.recreate(iface, changed)
	if err != nil {
		return err
	}
	if err := a.configure(iface); err != nil {
		return err
	}
	return a.restoreRoutes(iface.Base().Name, routes)
}

func (a *KernelApplier) recreate(iface state.Interface, changed []string) ([]netlink.Route, error) {
	b := iface.Base()
	a.log.WithIface(b.Name).Infof("Recreating %s to change %s", b.Type, strings.Join(changed, ", "))

	link, err := a.nl.LinkByName(b.Name)
	if err != nil {
		return nil, errors.NewBackendError(fmt.Sprintf("failed to find %s", b.Name), err)
	}
	filter := &netlink.Route{LinkIndex: link.Attrs().Index, Table: unix.RT_TABLE_UNSPEC}
	existing, err := a.nl.RouteListFiltered(netlink.FAMILY_ALL, filter, netlink.RT_FILTER_OIF|netlink.RT_FILTER_TABLE)
	if err != nil {
		return nil, errors.NewBackendError(fmt.Sprintf("failed to list routes of %s", b.Name), err)
	}
	var routes []netlink.Route
	for _, r := range existing {
		if isManagedRoute(r) {
			routes = append(routes, r)
		}
	}

	replacement, err := a.newLink(iface)
	if err != nil {
		return nil, err
	}
	if err := a.nl.LinkDel(link); err != nil {
		return nil, errors.NewBackendError(fmt.Sprintf("failed to delete %s", b.Name), err)
	}
	if err := a.nl.LinkAdd(replacement); err != nil {
		return nil, errors.NewBackendError(fmt.Sprintf("failed to create %s %s", b.Type, b.Name), err)
	}
	return routes, nil
}

func (a *KernelApplier) restoreRoutes(name string, routes []netlink.Route) error {
	if len(routes) == 0 {
		return nil
	}
	link, err := a.nl.LinkByName(name)
	if err != nil {
		return errors.NewBackendError(fmt.Sprintf("failed to find %s", name), err)
	}
	for _, r := range routes {
		r := r
		r.LinkIndex = link.Attrs().Index
		if err := a.nl.RouteReplace(&r); err != nil {
			return errors.NewBackendError(fmt.Sprintf("failed to restore route %v", &IpRoute{Route: &r, linkName: name}), err)
		}
	}
	return nil
}

// configure applies the shared attributes: MTU, MAC address, controller,
// addresses and administrative state.
func (a *KernelApplier) configure(iface state.Interface) error {
	b := iface.Base()
	if b.Type == state.InterfaceTypeOvsBridge {
		return errors.NewNotImplemented("configuring %s %s requires an OVS backend", b.Type, b.Name)
	}

	link, err := a.nl.LinkByName(b.Name)
	if err != nil {
		return errors.NewBackendError(fmt.Sprintf("failed to find %s", b.Name), err)
	}
	attrs := link.Attrs()

	if b.MTU != nil && int(*b.MTU) != attrs.MTU {
		if err := a.nl.LinkSetMTU(link, int(*b.MTU)); err != nil {
			return errors.NewBackendError(fmt.Sprintf("failed to set mtu of %s", b.Name), err)
		}
	}
	if b.MacAddress != nil {
		mac, err := net.ParseMAC(*b.MacAddress)
		if err != nil {
			return errors.NewInvalidArgument("interface %s: invalid mac-address %s", b.Name, *b.MacAddress)
		}
		if mac.String() != attrs.HardwareAddr.String() {
			if err := a.nl.LinkSetHardwareAddr(link, mac); err != nil {
				return errors.NewBackendError(fmt.Sprintf("failed to set mac address of %s", b.Name), err)
			}
		}
	}

	if err := a.setController(link, b); err != nil {
		return err
	}

	if b.CanHaveIP() {
		if err := a.syncAddrs(link, b.IPv4, netlink.FAMILY_V4); err != nil {
			return err
		}
		if err := a.syncAddrs(link, b.IPv6, netlink.FAMILY_V6); err != nil {
			return err
		}
	}

	if b.State == state.InterfaceStateDown {
		if err := a.nl.LinkSetDown(link); err != nil {
			return errors.NewBackendError(fmt.Sprintf("failed to bring %s down", b.Name), err)
		}
	} else if b.IsUp() {
		if err := a.nl.LinkSetUp(link); err != nil {
			return errors.NewBackendError(fmt.Sprintf("failed to bring %s up", b.Name), err)
		}
	}
	return nil
}

// setController attaches or detaches link. A nil controller leaves the
// membership alone.
func (a *KernelApplier) setController(link netlink.Link, b *state.BaseInterface) error {
	if b.Controller == nil {
		return nil
	}
	attrs := link.Attrs()

	if *b.Controller == "" {
		if attrs.MasterIndex == 0 {
			return nil
		}
		if err := a.nl.LinkSetNoMaster(link); err != nil {
			return errors.NewBackendError(fmt.Sprintf("failed to detach %s", b.Name), err)
		}
		return nil
	}

	if b.ControllerType == state.InterfaceTypeOvsBridge {
		return errors.NewNotImplemented("attaching %s to OVS bridge %s requires an OVS backend", b.Name, *b.Controller)
	}
	master, err := a.nl.LinkByName(*b.Controller)
	if err != nil {
		return errors.NewBackendError(fmt.Sprintf("failed to find controller %s of %s", *b.Controller, b.Name), err)
	}
	if attrs.MasterIndex == master.Attrs().Index {
		return nil
	}
	if master.Type() == "bond" {
		// The kernel refuses to enslave an interface that is up.
		if err := a.nl.LinkSetDown(link); err != nil {
			return errors.NewBackendError(fmt.Sprintf("failed to bring %s down", b.Name), err)
		}
	}
	if err := a.nl.LinkSetMasterByIndex(link, master.Attrs().Index); err != nil {
		return errors.NewBackendError(fmt.Sprintf("failed to attach %s to %s", b.Name, *b.Controller), err)
	}
	return nil
}

// syncAddrs makes the static addresses of one family match ip. Dynamic and
// IPv6 link-local addresses are left alone. A nil ip means the family was
// not specified.
func (a *KernelApplier) syncAddrs(link netlink.Link, ip *state.InterfaceIP, family int) error {
	if ip == nil {
		return nil
	}
	name := link.Attrs().Name

	wanted := map[string]*net.IPNet{}
	if ip.IsEnabled() {
		for _, addr := range ip.Addresses {
			ipNet, err := utils.AddrToIPNet(addr.IP, addr.PrefixLength)
			if err != nil {
				return errors.NewInvalidArgument("interface %s: %v", name, err)
			}
			wanted[ipNet.String()] = ipNet
		}
	}

	existing, err := a.nl.AddrList(link, family)
	if err != nil {
		return errors.NewBackendError(fmt.Sprintf("failed to list addresses of %s", name), err)
	}
	for _, addr := range existing {
		if addr.IPNet == nil || addr.Flags&unix.IFA_F_PERMANENT == 0 {
			continue
		}
		if family == netlink.FAMILY_V6 && addr.IP.IsLinkLocalUnicast() {
			continue
		}
		if _, ok := wanted[addr.IPNet.String()]; ok {
			continue
		}
		addr := addr
		if err := a.nl.AddrDel(link, &addr); err != nil {
			return errors.NewBackendError(fmt.Sprintf("failed to remove %s from %s", addr.IPNet, name), err)
		}
	}

	for _, ipNet := range wanted {
		if (family == netlink.FAMILY_V6) != utils.IsIPv6(ipNet.IP) {
			continue
		}
		if err := a.nl.AddrReplace(link, &netlink.Addr{IPNet: ipNet}); err != nil {
			return errors.NewBackendError(fmt.Sprintf("failed to add %s to %s", ipNet, name), err)
		}
	}
	return nil
}

// syncRoutes makes the static routes of iface match routes.
func (a *KernelApplier) syncRoutes(iface string, routes []state.RouteEntry) error {
	logger := a.log.WithIface(iface)

	link, err := a.nl.LinkByName(iface)
	if err != nil {
		return errors.NewBackendError(fmt.Sprintf("failed to find %s", iface), err)
	}
	byIndex := map[int]netlink.Link{link.Attrs().Index: link}
	var kept []state.RouteEntry

	filter := &netlink.Route{LinkIndex: link.Attrs().Index, Table: unix.RT_TABLE_UNSPEC}
	existing, err := a.nl.RouteListFiltered(netlink.FAMILY_ALL, filter, netlink.RT_FILTER_OIF|netlink.RT_FILTER_TABLE)
	if err != nil {
		return errors.NewBackendError(fmt.Sprintf("failed to list routes of %s", iface), err)
	}
	for _, r := range existing {
		if !isManagedRoute(r) {
			continue
		}
		entry := routeEntry(r, byIndex)
		entry.Destination = state.Ptr(state.CanonicalPrefix(*entry.Destination))
		if anyRouteMatches(routes, entry) {
			kept = append(kept, entry)
			continue
		}
		r := r
		ipr := &IpRoute{Route: &r, linkName: iface}
		logger.Debugf("Deleting IP route [%v]", ipr)
		if err := a.nl.RouteDel(&r); err != nil {
			return errors.NewBackendError(fmt.Sprintf("failed to delete route %v", ipr), err)
		}
	}

	for _, entry := range routes {
		if anyRouteMatches([]state.RouteEntry{entry}, kept...) {
			continue
		}
		ipr, err := BuildRoute(entry, link)
		if err != nil {
			return errors.NewInvalidArgument("route %s: %v", entry, err)
		}
		logger.Debugf("Adding IP route [%v]", ipr)
		if err := a.nl.RouteReplace(ipr.Route); err != nil {
			return errors.NewBackendError(fmt.Sprintf("failed to add route %v", ipr), err)
		}
	}
	return nil
}

// syncRules makes the rules of table match rules.
func (a *KernelApplier) syncRules(table uint32, rules []state.RouteRuleEntry) error {
	logger := a.log.WithField("table", table)

	var kept []state.RouteRuleEntry
	for _, family := range []int{netlink.FAMILY_V4, netlink.FAMILY_V6} {
		existing, err := a.nl.RuleList(family)
		if err != nil {
			return errors.NewBackendError("failed to list rules", err)
		}
		for _, r := range existing {
			if uint32(r.Table) != table || isDefaultRule(r) {
				continue
			}
			entry := ruleEntry(r)
			if anyRuleMatches(rules, entry) {
				kept = append(kept, entry)
				continue
			}
			r := r
			ipr := &IpRule{&r}
			logger.Debugf("Deleting IP rule [%v]", ipr)
			if err := a.nl.RuleDel(&r); err != nil {
				return errors.NewBackendError(fmt.Sprintf("failed to delete rule %v", ipr), err)
			}
		}
	}

	for _, entry := range rules {
		if anyRuleMatches([]state.RouteRuleEntry{entry}, kept...) {
			continue
		}
		ipr, err := BuildRule(entry)
		if err != nil {
			return errors.NewInvalidArgument("rule %s: %v", entry, err)
		}
		logger.Debugf("Adding IP rule [%v]", ipr)
		if err := a.nl.RuleAdd(ipr.Rule); err != nil {
			return errors.NewBackendError(fmt.Sprintf("failed to add rule %v", ipr), err)
		}
	}
	return nil
}

// anyRouteMatches reports whether any wanted route matches one of routes.
func anyRouteMatches(wanted []state.RouteEntry, routes ...state.RouteEntry) bool {
	for _, w := range wanted {
		for _, r := range routes {
			if w.Matches(r) {
				return true
			}
		}
	}
	return false
}

// anyRuleMatches reports whether any wanted rule matches one of rules.
func anyRuleMatches(wanted []state.RouteRuleEntry, rules ...state.RouteRuleEntry) bool {
	for _, w := range wanted {
		for _, r := range rules {
			if w.Matches(r) {
				return true
			}
		}
	}
	return false
}

func isLinkNotFound(err error) bool {
	var nf netlink.LinkNotFoundError
	return errors.As(err, &nf)
}
