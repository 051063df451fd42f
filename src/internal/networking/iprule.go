package networking

import (
	"fmt"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"

	"github.com/maksimkurb/keen-netstate/src/internal/state"
	"github.com/maksimkurb/keen-netstate/src/internal/utils"
)

const fullMask = 0xffffffff

type IpRule struct {
	*netlink.Rule
}

func (r *IpRule) String() string {
	from := "all"
	if r.Src != nil {
		from = r.Src.String()
	}

	to := "all"
	if r.Dst != nil {
		to = r.Dst.String()
	}

	iif := ""
	if r.IifName != "" {
		iif = " iif " + r.IifName
	}

	return fmt.Sprintf("rule %d: from %s to %s%s fwmark=%#x -> table %d",
		r.Priority, from, to, iif, r.Mark, r.Table)
}

// isDefaultRule reports whether r is one of the three rules every namespace
// starts with.
func isDefaultRule(r netlink.Rule) bool {
	if r.Src != nil || r.Dst != nil || r.IifName != "" || r.Mark != 0 {
		return false
	}
	switch {
	case r.Priority == 0 && r.Table == unix.RT_TABLE_LOCAL:
		return true
	case r.Priority == 32766 && r.Table == unix.RT_TABLE_MAIN:
		return true
	case r.Priority == 32767 && r.Table == unix.RT_TABLE_DEFAULT:
		return true
	}
	return false
}

// ruleEntry describes a kernel rule.
func ruleEntry(r netlink.Rule) state.RouteRuleEntry {
	entry := state.RouteRuleEntry{
		Priority: state.Ptr(state.Int64(r.Priority)),
		TableID:  state.Ptr(state.Uint32(r.Table)),
	}
	if r.Src != nil {
		entry.IPFrom = state.Ptr(r.Src.String())
	}
	if r.Dst != nil {
		entry.IPTo = state.Ptr(r.Dst.String())
	}
	if r.IifName != "" {
		entry.Iif = state.Ptr(r.IifName)
	}
	if r.Mark != 0 {
		entry.Fwmark = state.Ptr(state.Uint32(r.Mark))
		if r.Mask != nil && *r.Mask != fullMask {
			entry.Fwmask = state.Ptr(state.Uint32(*r.Mask))
		}
	}
	return entry
}

// BuildRule converts a rule entry into a kernel rule.
func BuildRule(entry state.RouteRuleEntry) (*IpRule, error) {
	ipr := netlink.NewRule()

	ipr.Table = int(entry.Table())
	if p := entry.PriorityValue(); p != state.UseDefaultRulePriority {
		ipr.Priority = int(p)
	}
	if entry.IsIPv6() {
		ipr.Family = netlink.FAMILY_V6
	} else {
		ipr.Family = netlink.FAMILY_V4
	}

	src, err := utils.ParsePrefix(deref(entry.IPFrom))
	if err != nil {
		return nil, err
	}
	dst, err := utils.ParsePrefix(deref(entry.IPTo))
	if err != nil {
		return nil, err
	}
	ipr.Src = src
	ipr.Dst = dst
	ipr.IifName = deref(entry.Iif)

	if entry.Fwmark != nil {
		ipr.Mark = uint32(*entry.Fwmark)
	}
	if entry.Fwmask != nil {
		mask := uint32(*entry.Fwmask)
		ipr.Mask = &mask
	}
	return &IpRule{ipr}, nil
}
