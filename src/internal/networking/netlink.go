package networking

import (
	"net"

	"github.com/vishvananda/netlink"

	"github.com/maksimkurb/keen-netstate/src/internal/errors"
)

// Netlink is the subset of *netlink.Handle used by the provider and the
// applier. Tests substitute an in-memory fake.
type Netlink interface {
	LinkList() ([]netlink.Link, error)
	LinkByName(name string) (netlink.Link, error)
	LinkAdd(link netlink.Link) error
	LinkDel(link netlink.Link) error
	LinkSetUp(link netlink.Link) error
	LinkSetDown(link netlink.Link) error
	LinkSetMTU(link netlink.Link, mtu int) error
	LinkSetHardwareAddr(link netlink.Link, hwaddr net.HardwareAddr) error
	LinkSetMasterByIndex(link netlink.Link, masterIndex int) error
	LinkSetNoMaster(link netlink.Link) error

	AddrList(link netlink.Link, family int) ([]netlink.Addr, error)
	AddrReplace(link netlink.Link, addr *netlink.Addr) error
	AddrDel(link netlink.Link, addr *netlink.Addr) error

	RouteListFiltered(family int, filter *netlink.Route, filterMask uint64) ([]netlink.Route, error)
	RouteReplace(route *netlink.Route) error
	RouteDel(route *netlink.Route) error

	RuleList(family int) ([]netlink.Rule, error)
	RuleAdd(rule *netlink.Rule) error
	RuleDel(rule *netlink.Rule) error
}

// VethPeerIndexFunc resolves the peer interface index of a veth.
type VethPeerIndexFunc func(link *netlink.Veth) (int, error)

// NewNetlink opens a netlink handle in the current network namespace.
func NewNetlink() (*netlink.Handle, error) {
	h, err := netlink.NewHandle()
	if err != nil {
		return nil, errors.NewBackendError("failed to open netlink handle", err)
	}
	return h, nil
}

func linkName(links map[int]netlink.Link, index int) string {
	if link, ok := links[index]; ok {
		return link.Attrs().Name
	}
	return ""
}

func indexLinks(links []netlink.Link) map[int]netlink.Link {
	out := make(map[int]netlink.Link, len(links))
	for _, link := range links {
		out[link.Attrs().Index] = link
	}
	return out
}
