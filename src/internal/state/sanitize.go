package state

import (
	"net/netip"
	"sort"
	"strings"
)

// Sanitize normalizes textual fields in place so that equal values compare
// equal: MAC addresses are upper-cased, addresses and prefixes are written in
// canonical form and port and address lists are sorted.
func (s *NetworkState) Sanitize() {
	for _, iface := range s.Interfaces.List() {
		sanitizeInterface(iface)
	}
	for i := range s.Routes.Config {
		r := &s.Routes.Config[i]
		r.Destination = canonicalPrefixPtr(r.Destination)
		r.NextHopAddr = canonicalAddrPtr(r.NextHopAddr)
	}
	for i := range s.Rules.Config {
		r := &s.Rules.Config[i]
		r.IPFrom = canonicalPrefixPtr(r.IPFrom)
		r.IPTo = canonicalPrefixPtr(r.IPTo)
	}
}

func sanitizeInterface(iface Interface) {
	b := iface.Base()
	if b.MacAddress != nil {
		mac := strings.ToUpper(*b.MacAddress)
		b.MacAddress = &mac
	}
	sanitizeIP(b.IPv4)
	sanitizeIP(b.IPv6)
	if ports := iface.Ports(); ports != nil {
		iface.SetPorts(ports)
	}
}

func sanitizeIP(ip *InterfaceIP) {
	if ip == nil || ip.Addresses == nil {
		return
	}
	seen := map[InterfaceIPAddr]bool{}
	out := make([]InterfaceIPAddr, 0, len(ip.Addresses))
	for _, a := range ip.Addresses {
		a.IP = CanonicalAddr(a.IP)
		if seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IP != out[j].IP {
			return out[i].IP < out[j].IP
		}
		return out[i].PrefixLength < out[j].PrefixLength
	})
	ip.Addresses = out
}

// CanonicalAddr rewrites an IP address in its shortest form. Unparsable input
// is returned unchanged and left for validation to reject.
func CanonicalAddr(s string) string {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return s
	}
	return addr.Unmap().String()
}

// CanonicalPrefix rewrites a prefix in masked canonical form. A bare address
// becomes a host prefix.
func CanonicalPrefix(s string) string {
	if !strings.Contains(s, "/") {
		addr, err := netip.ParseAddr(s)
		if err != nil {
			return s
		}
		addr = addr.Unmap()
		return netip.PrefixFrom(addr, addr.BitLen()).String()
	}
	p, err := netip.ParsePrefix(s)
	if err != nil {
		return s
	}
	return p.Masked().String()
}

func canonicalPrefixPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := CanonicalPrefix(*s)
	return &v
}

func canonicalAddrPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := CanonicalAddr(*s)
	return &v
}
