package networking

import (
	"context"
	"fmt"
	"net"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"

	"github.com/maksimkurb/keen-netstate/src/internal/errors"
	"github.com/maksimkurb/keen-netstate/src/internal/log"
	"github.com/maksimkurb/keen-netstate/src/internal/state"
)

// KernelStateProvider reads the current network state from the kernel.
type KernelStateProvider struct {
	nl            Netlink
	vethPeerIndex VethPeerIndexFunc
	log           *log.Logger
}

// NewKernelStateProvider creates a provider reading through nl.
func NewKernelStateProvider(nl Netlink, logger *log.Logger) *KernelStateProvider {
	if logger == nil {
		logger = log.Discard()
	}
	return &KernelStateProvider{
		nl:            nl,
		vethPeerIndex: netlink.VethPeerIndex,
		log:           logger,
	}
}

// WithVethPeerIndex replaces the veth peer lookup, which needs ethtool
// access that tests do not have.
func (p *KernelStateProvider) WithVethPeerIndex(fn VethPeerIndexFunc) *KernelStateProvider {
	p.vethPeerIndex = fn
	return p
}

// CurrentState returns interfaces, static routes and policy rules as the
// kernel reports them. Connected and dynamic routes are not included, and
// neither are the default rules.
func (p *KernelStateProvider) CurrentState(ctx context.Context) (*state.NetworkState, error) {
	links, err := p.nl.LinkList()
	if err != nil {
		return nil, errors.NewBackendError("failed to list links", err)
	}
	byIndex := indexLinks(links)

	s := state.New()
	ports := map[string][]string{}
	for _, link := range links {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(errors.KindTimeout, "reading current state cancelled", err)
		}

		iface := p.toInterface(link, byIndex)
		if err := p.readAddresses(link, iface.Base()); err != nil {
			return nil, err
		}
		if ctrl := iface.Base().ControllerName(); ctrl != "" {
			ports[ctrl] = append(ports[ctrl], iface.Base().Name)
		}
		s.Interfaces.Push(iface)
	}

	for _, iface := range s.Interfaces.List() {
		if iface.Base().Type.IsController() {
			list := ports[iface.Base().Name]
			if list == nil {
				list = []string{}
			}
			iface.SetPorts(list)
		}
		state.MarkAllSpecified(iface)
	}

	routes, err := p.nl.RouteListFiltered(netlink.FAMILY_ALL, &netlink.Route{Table: unix.RT_TABLE_UNSPEC}, netlink.RT_FILTER_TABLE)
	if err != nil {
		return nil, errors.NewBackendError("failed to list routes", err)
	}
	for _, r := range routes {
		if isManagedRoute(r) {
			s.Routes.Config = append(s.Routes.Config, routeEntry(r, byIndex))
		}
	}

	for _, family := range []int{netlink.FAMILY_V4, netlink.FAMILY_V6} {
		rules, err := p.nl.RuleList(family)
		if err != nil {
			return nil, errors.NewBackendError("failed to list rules", err)
		}
		for _, r := range rules {
			if !isDefaultRule(r) {
				s.Rules.Config = append(s.Rules.Config, ruleEntry(r))
			}
		}
	}

	s.Sanitize()
	p.log.Debugf("Read %d interface(s), %d route(s), %d rule(s) from the kernel",
		s.Interfaces.Len(), len(s.Routes.Config), len(s.Rules.Config))
	return s, nil
}

// readAddresses fills the IPv4 and IPv6 sections from the addresses of link.
// Permanent addresses are reported as static; dynamic ones mark the family
// as DHCP or autoconf managed.
func (p *KernelStateProvider) readAddresses(link netlink.Link, b *state.BaseInterface) error {
	for _, family := range []int{netlink.FAMILY_V4, netlink.FAMILY_V6} {
		addrs, err := p.nl.AddrList(link, family)
		if err != nil {
			return errors.NewBackendError(fmt.Sprintf("failed to list addresses of %s", link.Attrs().Name), err)
		}
		ipv6 := family == netlink.FAMILY_V6

		ip := &state.InterfaceIP{}
		dynamic := false
		for _, a := range addrs {
			if a.IPNet == nil || (ipv6 && a.IP.IsLinkLocalUnicast()) {
				continue
			}
			if a.Flags&unix.IFA_F_PERMANENT == 0 {
				dynamic = true
				continue
			}
			ones, _ := a.Mask.Size()
			ip.Addresses = append(ip.Addresses, state.InterfaceIPAddr{IP: a.IP.String(), PrefixLength: uint8(ones)})
		}
		ip.Enabled = state.Ptr(len(ip.Addresses) > 0 || dynamic)
		if dynamic {
			ip.DHCP = state.Ptr(true)
			if ipv6 {
				ip.Autoconf = state.Ptr(true)
			}
		}

		if ipv6 {
			b.IPv6 = ip
		} else {
			b.IPv4 = ip
		}
	}
	return nil
}

// Pending returns administratively up links that are still negotiating:
// dormant or in testing mode.
func (p *KernelStateProvider) Pending(ctx context.Context) ([]string, error) {
	links, err := p.nl.LinkList()
	if err != nil {
		return nil, errors.NewBackendError("failed to list links", err)
	}
	var pending []string
	for _, link := range links {
		attrs := link.Attrs()
		if attrs.Flags&net.FlagUp == 0 {
			continue
		}
		if attrs.OperState == netlink.OperDormant || attrs.OperState == netlink.OperTesting {
			pending = append(pending, attrs.Name)
		}
	}
	return pending, nil
}
