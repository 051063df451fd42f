// Package utils provides small helpers shared across packages.
//
// Address helpers convert document addresses and prefixes into the
// net.IPNet values netlink expects, and back. Path helpers resolve files
// relative to the configuration directory. CloseOrWarn closes resources and
// logs failures.
//
//	ipNet, err := utils.AddrToIPNet("192.0.2.1", 24)
//	dst, err := utils.ParseDestination("0.0.0.0/0") // nil: default route
package utils
