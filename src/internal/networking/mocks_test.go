package networking

import (
	"fmt"
	"net"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"

	"github.com/maksimkurb/keen-netstate/src/internal/utils"
)

// fakeNetlink is an in-memory Netlink. Every mutating call is recorded in
// calls as "Method name".
type fakeNetlink struct {
	links  []netlink.Link
	addrs  map[string][]netlink.Addr
	routes []netlink.Route
	rules  []netlink.Rule

	calls     []string
	failOn    map[string]error
	nextIndex int
}

func newFakeNetlink(links ...netlink.Link) *fakeNetlink {
	f := &fakeNetlink{addrs: map[string][]netlink.Addr{}, failOn: map[string]error{}, nextIndex: 100}
	f.links = append(f.links, links...)
	return f
}

func device(name string, index int, up bool) *netlink.Device {
	attrs := netlink.NewLinkAttrs()
	attrs.Name = name
	attrs.Index = index
	attrs.MTU = 1500
	if up {
		attrs.Flags |= net.FlagUp
	}
	return &netlink.Device{LinkAttrs: attrs}
}

func attrsOf(name string, index int) netlink.LinkAttrs {
	attrs := netlink.NewLinkAttrs()
	attrs.Name = name
	attrs.Index = index
	attrs.MTU = 1500
	return attrs
}

func staticAddr(cidr string) netlink.Addr {
	ip, ipNet, _ := net.ParseCIDR(cidr)
	ipNet.IP = ip
	return netlink.Addr{IPNet: ipNet, Flags: unix.IFA_F_PERMANENT}
}

func dynamicAddr(cidr string) netlink.Addr {
	a := staticAddr(cidr)
	a.Flags = 0
	return a
}

func (f *fakeNetlink) record(method, name string) error {
	f.calls = append(f.calls, method+" "+name)
	return f.failOn[method+" "+name]
}

func (f *fakeNetlink) find(name string) netlink.Link {
	for _, l := range f.links {
		if l.Attrs().Name == name {
			return l
		}
	}
	return nil
}

func (f *fakeNetlink) LinkList() ([]netlink.Link, error) {
	return append([]netlink.Link{}, f.links...), nil
}

func (f *fakeNetlink) LinkByName(name string) (netlink.Link, error) {
	if l := f.find(name); l != nil {
		return l, nil
	}
	return nil, netlink.LinkNotFoundError{}
}

func (f *fakeNetlink) LinkAdd(link netlink.Link) error {
	name := link.Attrs().Name
	if err := f.record("LinkAdd", name); err != nil {
		return err
	}
	if f.find(name) != nil {
		return fmt.Errorf("file exists")
	}
	f.nextIndex++
	link.Attrs().Index = f.nextIndex
	f.links = append(f.links, link)
	if veth, ok := link.(*netlink.Veth); ok {
		f.nextIndex++
		peer := &netlink.Veth{LinkAttrs: attrsOf(veth.PeerName, f.nextIndex), PeerName: name}
		f.links = append(f.links, peer)
	}
	return nil
}

func (f *fakeNetlink) LinkDel(link netlink.Link) error {
	name := link.Attrs().Name
	if err := f.record("LinkDel", name); err != nil {
		return err
	}
	// Deleting one end of a veth pair removes both.
	peer := ""
	if veth, ok := f.find(name).(*netlink.Veth); ok {
		peer = veth.PeerName
	}
	gone := map[int]bool{}
	out := f.links[:0]
	for _, l := range f.links {
		if n := l.Attrs().Name; n != name && (peer == "" || n != peer) {
			out = append(out, l)
		} else {
			gone[l.Attrs().Index] = true
		}
	}
	f.links = out

	routes := f.routes[:0]
	for _, r := range f.routes {
		if !gone[r.LinkIndex] {
			routes = append(routes, r)
		}
	}
	f.routes = routes
	return nil
}

func (f *fakeNetlink) LinkSetUp(link netlink.Link) error {
	if err := f.record("LinkSetUp", link.Attrs().Name); err != nil {
		return err
	}
	link.Attrs().Flags |= net.FlagUp
	return nil
}

func (f *fakeNetlink) LinkSetDown(link netlink.Link) error {
	if err := f.record("LinkSetDown", link.Attrs().Name); err != nil {
		return err
	}
	link.Attrs().Flags &^= net.FlagUp
	return nil
}

func (f *fakeNetlink) LinkSetMTU(link netlink.Link, mtu int) error {
	if err := f.record("LinkSetMTU", link.Attrs().Name); err != nil {
		return err
	}
	link.Attrs().MTU = mtu
	return nil
}

func (f *fakeNetlink) LinkSetHardwareAddr(link netlink.Link, hwaddr net.HardwareAddr) error {
	if err := f.record("LinkSetHardwareAddr", link.Attrs().Name); err != nil {
		return err
	}
	link.Attrs().HardwareAddr = hwaddr
	return nil
}

func (f *fakeNetlink) LinkSetMasterByIndex(link netlink.Link, masterIndex int) error {
	if err := f.record("LinkSetMasterByIndex", link.Attrs().Name); err != nil {
		return err
	}
	link.Attrs().MasterIndex = masterIndex
	return nil
}

func (f *fakeNetlink) LinkSetNoMaster(link netlink.Link) error {
	if err := f.record("LinkSetNoMaster", link.Attrs().Name); err != nil {
		return err
	}
	link.Attrs().MasterIndex = 0
	return nil
}

func (f *fakeNetlink) AddrList(link netlink.Link, family int) ([]netlink.Addr, error) {
	var out []netlink.Addr
	for _, a := range f.addrs[link.Attrs().Name] {
		if family == netlink.FAMILY_ALL || (family == netlink.FAMILY_V6) == utils.IsIPv6(a.IP) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeNetlink) AddrReplace(link netlink.Link, addr *netlink.Addr) error {
	name := link.Attrs().Name
	if err := f.record("AddrReplace", name+" "+addr.IPNet.String()); err != nil {
		return err
	}
	for _, a := range f.addrs[name] {
		if a.IPNet.String() == addr.IPNet.String() {
			return nil
		}
	}
	added := *addr
	added.Flags = unix.IFA_F_PERMANENT
	f.addrs[name] = append(f.addrs[name], added)
	return nil
}

func (f *fakeNetlink) AddrDel(link netlink.Link, addr *netlink.Addr) error {
	name := link.Attrs().Name
	if err := f.record("AddrDel", name+" "+addr.IPNet.String()); err != nil {
		return err
	}
	out := f.addrs[name][:0]
	for _, a := range f.addrs[name] {
		if a.IPNet.String() != addr.IPNet.String() {
			out = append(out, a)
		}
	}
	f.addrs[name] = out
	return nil
}

func (f *fakeNetlink) RouteListFiltered(family int, filter *netlink.Route, filterMask uint64) ([]netlink.Route, error) {
	var out []netlink.Route
	for _, r := range f.routes {
		if filterMask&netlink.RT_FILTER_OIF != 0 && r.LinkIndex != filter.LinkIndex {
			continue
		}
		if filterMask&netlink.RT_FILTER_TABLE != 0 && filter.Table != 0 && r.Table != filter.Table {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func sameRoute(a, b netlink.Route) bool {
	return a.LinkIndex == b.LinkIndex && a.Table == b.Table && a.Priority == b.Priority &&
		utils.DestinationString(a.Dst, false) == utils.DestinationString(b.Dst, false)
}

func (f *fakeNetlink) RouteReplace(route *netlink.Route) error {
	if err := f.record("RouteReplace", utils.DestinationString(route.Dst, false)); err != nil {
		return err
	}
	for i, r := range f.routes {
		if sameRoute(r, *route) {
			f.routes[i] = *route
			return nil
		}
	}
	f.routes = append(f.routes, *route)
	return nil
}

func (f *fakeNetlink) RouteDel(route *netlink.Route) error {
	if err := f.record("RouteDel", utils.DestinationString(route.Dst, false)); err != nil {
		return err
	}
	out := f.routes[:0]
	for _, r := range f.routes {
		if !sameRoute(r, *route) {
			out = append(out, r)
		}
	}
	f.routes = out
	return nil
}

func (f *fakeNetlink) RuleList(family int) ([]netlink.Rule, error) {
	var out []netlink.Rule
	for _, r := range f.rules {
		if family == netlink.FAMILY_ALL || r.Family == family {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeNetlink) RuleAdd(rule *netlink.Rule) error {
	if err := f.record("RuleAdd", fmt.Sprintf("%d", rule.Priority)); err != nil {
		return err
	}
	f.rules = append(f.rules, *rule)
	return nil
}

func (f *fakeNetlink) RuleDel(rule *netlink.Rule) error {
	if err := f.record("RuleDel", fmt.Sprintf("%d", rule.Priority)); err != nil {
		return err
	}
	out := f.rules[:0]
	for _, r := range f.rules {
		if r.Priority != rule.Priority || r.Table != rule.Table {
			out = append(out, r)
		}
	}
	f.rules = out
	return nil
}
