package networking

import (
	"fmt"
	"net"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"

	"github.com/maksimkurb/keen-netstate/src/internal/state"
	"github.com/maksimkurb/keen-netstate/src/internal/utils"
)

type IpRoute struct {
	*netlink.Route
	linkName string
}

func (r *IpRoute) String() string {
	to := "default"
	if r.Dst != nil {
		if ones, _ := r.Dst.Mask.Size(); ones > 0 {
			to = r.Dst.String()
		}
	}

	via := ""
	if r.Gw != nil {
		via = " via " + r.Gw.String()
	}

	return fmt.Sprintf("table %d: %s%s dev %s (idx=%d) [metric:%d]",
		r.Table, to, via, r.linkName, r.LinkIndex, r.Priority)
}

// isManagedRoute reports whether a kernel route is a static route this tool
// may report and replace. Connected, RA and DHCP routes belong to the kernel
// or to other daemons.
func isManagedRoute(r netlink.Route) bool {
	if r.Table == unix.RT_TABLE_LOCAL || r.Type != unix.RTN_UNICAST || len(r.MultiPath) > 0 {
		return false
	}
	return r.Protocol == unix.RTPROT_BOOT || r.Protocol == unix.RTPROT_STATIC
}

// routeEntry describes a kernel route.
func routeEntry(r netlink.Route, byIndex map[int]netlink.Link) state.RouteEntry {
	ipv6 := r.Family == netlink.FAMILY_V6 || utils.IsIPv6(r.Gw) || (r.Dst != nil && utils.IsIPv6(r.Dst.IP))

	entry := state.RouteEntry{
		Destination: state.Ptr(utils.DestinationString(r.Dst, ipv6)),
		Metric:      state.Ptr(state.Int64(r.Priority)),
		TableID:     state.Ptr(state.Uint32(r.Table)),
	}
	if name := linkName(byIndex, r.LinkIndex); name != "" {
		entry.NextHopIface = state.Ptr(name)
	}
	if r.Gw != nil {
		entry.NextHopAddr = state.Ptr(r.Gw.String())
	}
	return entry
}

// BuildRoute converts a route entry into a static kernel route on link.
func BuildRoute(entry state.RouteEntry, link netlink.Link) (*IpRoute, error) {
	ipr := netlink.Route{}

	ipr.Table = int(entry.Table())
	ipr.LinkIndex = link.Attrs().Index
	ipr.Protocol = unix.RTPROT_STATIC
	ipr.Type = unix.RTN_UNICAST
	if m := entry.MetricValue(); m != state.UseDefaultMetric {
		ipr.Priority = int(m)
	}

	dst, err := utils.ParseDestination(deref(entry.Destination))
	if err != nil {
		return nil, err
	}
	if entry.IsIPv6() {
		ipr.Family = netlink.FAMILY_V6
		if dst == nil {
			dst = &net.IPNet{IP: net.IPv6zero, Mask: net.CIDRMask(0, 128)}
		}
	} else {
		ipr.Family = netlink.FAMILY_V4
		if dst == nil {
			dst = &net.IPNet{IP: net.IPv4zero, Mask: net.CIDRMask(0, 32)}
		}
	}
	ipr.Dst = dst

	if entry.NextHopAddr != nil {
		gw := net.ParseIP(*entry.NextHopAddr)
		if gw == nil {
			return nil, fmt.Errorf("invalid next-hop-address %s", *entry.NextHopAddr)
		}
		ipr.Gw = gw
	} else {
		ipr.Scope = netlink.SCOPE_LINK
	}

	return &IpRoute{Route: &ipr, linkName: link.Attrs().Name}, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
