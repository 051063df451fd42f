package utils

import (
	"fmt"
	"net"
)

const (
	DefaultRouteV4 = "0.0.0.0/0"
	DefaultRouteV6 = "::/0"
)

// AddrToIPNet builds an interface address. Host bits are kept, so
// "192.0.2.1"/24 stays 192.0.2.1/24.
func AddrToIPNet(ipStr string, prefixLen uint8) (*net.IPNet, error) {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return nil, fmt.Errorf("invalid IP address: %s", ipStr)
	}

	bits := 128
	if v4 := ip.To4(); v4 != nil {
		ip = v4
		bits = 32
	}
	if int(prefixLen) > bits {
		return nil, fmt.Errorf("invalid prefix length %d for %s", prefixLen, ipStr)
	}

	return &net.IPNet{IP: ip, Mask: net.CIDRMask(int(prefixLen), bits)}, nil
}

// ParseDestination parses a route destination. Default routes yield nil,
// which is how netlink represents them.
func ParseDestination(cidr string) (*net.IPNet, error) {
	if cidr == "" || cidr == DefaultRouteV4 || cidr == DefaultRouteV6 {
		return nil, nil
	}
	_, ipNet, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, fmt.Errorf("invalid destination %s: %w", cidr, err)
	}
	return ipNet, nil
}

// DestinationString renders a route destination, mapping nil to the default
// route of the given family.
func DestinationString(dst *net.IPNet, ipv6 bool) string {
	if dst == nil {
		if ipv6 {
			return DefaultRouteV6
		}
		return DefaultRouteV4
	}
	ones, _ := dst.Mask.Size()
	if ones == 0 {
		if dst.IP.To4() == nil {
			return DefaultRouteV6
		}
		return DefaultRouteV4
	}
	return dst.String()
}

// ParsePrefix parses a rule selector. An empty string yields nil.
func ParsePrefix(cidr string) (*net.IPNet, error) {
	if cidr == "" {
		return nil, nil
	}
	_, ipNet, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, fmt.Errorf("invalid prefix %s: %w", cidr, err)
	}
	return ipNet, nil
}

// IsIPv6 reports whether ip is an IPv6 address that is not IPv4-mapped.
func IsIPv6(ip net.IP) bool {
	return ip != nil && ip.To4() == nil
}
