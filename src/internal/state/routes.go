package state

import (
	"fmt"
	"strings"
)

const (
	// UseDefaultMetric lets the kernel pick the route metric.
	UseDefaultMetric int64 = -1
	// UseDefaultRouteTable lets the entry fall into the main table.
	UseDefaultRouteTable uint32 = 0
	// DefaultRouteTable is the kernel main table.
	DefaultRouteTable uint32 = 254
	// UseDefaultRulePriority lets the kernel pick the rule priority.
	UseDefaultRulePriority int64 = -1
)

// EntryState is the state of a route or rule entry. Empty means present.
type EntryState string

const EntryStateAbsent EntryState = "absent"

// Routes is the top level "routes" section.
type Routes struct {
	Config []RouteEntry `json:"config,omitempty" validate:"omitempty,dive"`
}

// RouteRules is the top level "route-rules" section.
type RouteRules struct {
	Config []RouteRuleEntry `json:"config,omitempty" validate:"omitempty,dive"`
}

// RouteEntry is a static route. Unset fields act as wildcards when the entry
// is used for matching.
type RouteEntry struct {
	State        EntryState `json:"state,omitempty" validate:"omitempty,oneof=absent"`
	Destination  *string    `json:"destination,omitempty" validate:"omitempty,cidr"`
	NextHopIface *string    `json:"next-hop-interface,omitempty"`
	NextHopAddr  *string    `json:"next-hop-address,omitempty" validate:"omitempty,ip"`
	Metric       *Int64     `json:"metric,omitempty"`
	TableID      *Uint32    `json:"table-id,omitempty"`
}

func (r RouteEntry) IsAbsent() bool {
	return r.State == EntryStateAbsent
}

// Iface returns the next hop interface, "" when unset.
func (r RouteEntry) Iface() string {
	return deref(r.NextHopIface)
}

// Table returns the effective table, mapping "unset" to the main table.
func (r RouteEntry) Table() uint32 {
	if r.TableID == nil || uint32(*r.TableID) == UseDefaultRouteTable {
		return DefaultRouteTable
	}
	return uint32(*r.TableID)
}

// MetricValue returns the metric or UseDefaultMetric.
func (r RouteEntry) MetricValue() int64 {
	if r.Metric == nil {
		return UseDefaultMetric
	}
	return int64(*r.Metric)
}

func (r RouteEntry) IsIPv6() bool {
	if r.Destination != nil {
		return strings.Contains(*r.Destination, ":")
	}
	return strings.Contains(deref(r.NextHopAddr), ":")
}

// Matches reports whether every field r specifies equals the field of other.
// A metric of UseDefaultMetric and a table of UseDefaultRouteTable match anything.
func (r RouteEntry) Matches(other RouteEntry) bool {
	if r.Destination != nil && *r.Destination != deref(other.Destination) {
		return false
	}
	if r.NextHopIface != nil && *r.NextHopIface != deref(other.NextHopIface) {
		return false
	}
	if r.NextHopAddr != nil && *r.NextHopAddr != deref(other.NextHopAddr) {
		return false
	}
	if m := r.MetricValue(); m != UseDefaultMetric && m != other.MetricValue() {
		return false
	}
	if r.TableID != nil && uint32(*r.TableID) != UseDefaultRouteTable && r.Table() != other.Table() {
		return false
	}
	return true
}

// Key identifies the logical route. The metric is not part of it, so the same
// route with a different metric collapses into one entry.
func (r RouteEntry) Key() string {
	return fmt.Sprintf("%t|%t|%010d|%s|%s|%s",
		r.IsAbsent(), r.IsIPv6(), r.Table(), r.Iface(), deref(r.Destination), deref(r.NextHopAddr))
}

// Less orders routes: present before absent, IPv4 before IPv6, then by table,
// interface, destination, next hop and metric.
func (r RouteEntry) Less(other RouteEntry) bool {
	if r.IsAbsent() != other.IsAbsent() {
		return !r.IsAbsent()
	}
	if r.IsIPv6() != other.IsIPv6() {
		return !r.IsIPv6()
	}
	if r.Table() != other.Table() {
		return r.Table() < other.Table()
	}
	if r.Iface() != other.Iface() {
		return r.Iface() < other.Iface()
	}
	if a, b := deref(r.Destination), deref(other.Destination); a != b {
		return a < b
	}
	if a, b := deref(r.NextHopAddr), deref(other.NextHopAddr); a != b {
		return a < b
	}
	return r.MetricValue() < other.MetricValue()
}

func (r RouteEntry) String() string {
	var parts []string
	if r.IsAbsent() {
		parts = append(parts, "absent")
	}
	if r.Destination != nil {
		parts = append(parts, "dst="+*r.Destination)
	}
	if r.NextHopIface != nil {
		parts = append(parts, "dev="+*r.NextHopIface)
	}
	if r.NextHopAddr != nil {
		parts = append(parts, "via="+*r.NextHopAddr)
	}
	if r.Metric != nil {
		parts = append(parts, fmt.Sprintf("metric=%d", *r.Metric))
	}
	if r.TableID != nil {
		parts = append(parts, fmt.Sprintf("table=%d", *r.TableID))
	}
	return "{" + strings.Join(parts, " ") + "}"
}

// RouteRuleEntry is a policy routing rule.
type RouteRuleEntry struct {
	State    EntryState `json:"state,omitempty" validate:"omitempty,oneof=absent"`
	IPFrom   *string    `json:"ip-from,omitempty" validate:"omitempty,cidr"`
	IPTo     *string    `json:"ip-to,omitempty" validate:"omitempty,cidr"`
	Priority *Int64     `json:"priority,omitempty"`
	TableID  *Uint32    `json:"route-table,omitempty"`
	Iif      *string    `json:"iif,omitempty"`
	Fwmark   *Uint32    `json:"fwmark,omitempty"`
	Fwmask   *Uint32    `json:"fwmask,omitempty"`
}

func (r RouteRuleEntry) IsAbsent() bool {
	return r.State == EntryStateAbsent
}

// Table returns the effective table, mapping "unset" to the main table.
func (r RouteRuleEntry) Table() uint32 {
	if r.TableID == nil || uint32(*r.TableID) == UseDefaultRouteTable {
		return DefaultRouteTable
	}
	return uint32(*r.TableID)
}

// HasTable reports whether the entry names a concrete table.
func (r RouteRuleEntry) HasTable() bool {
	return r.TableID != nil && uint32(*r.TableID) != UseDefaultRouteTable
}

// PriorityValue returns the priority or UseDefaultRulePriority.
func (r RouteRuleEntry) PriorityValue() int64 {
	if r.Priority == nil {
		return UseDefaultRulePriority
	}
	return int64(*r.Priority)
}

func (r RouteRuleEntry) IsIPv6() bool {
	return strings.Contains(deref(r.IPFrom), ":") || strings.Contains(deref(r.IPTo), ":")
}

// Matches reports whether every field r specifies equals the field of other.
// A priority of UseDefaultRulePriority and a table of UseDefaultRouteTable match anything.
func (r RouteRuleEntry) Matches(other RouteRuleEntry) bool {
	if r.IPFrom != nil && *r.IPFrom != deref(other.IPFrom) {
		return false
	}
	if r.IPTo != nil && *r.IPTo != deref(other.IPTo) {
		return false
	}
	if p := r.PriorityValue(); p != UseDefaultRulePriority && p != other.PriorityValue() {
		return false
	}
	if r.HasTable() && r.Table() != other.Table() {
		return false
	}
	if r.Iif != nil && *r.Iif != deref(other.Iif) {
		return false
	}
	if r.Fwmark != nil && (other.Fwmark == nil || *r.Fwmark != *other.Fwmark) {
		return false
	}
	if r.Fwmask != nil && (other.Fwmask == nil || *r.Fwmask != *other.Fwmask) {
		return false
	}
	return true
}

// SelectorKey identifies the rule without its priority.
func (r RouteRuleEntry) SelectorKey() string {
	return fmt.Sprintf("%t|%t|%010d|%s|%s|%s|%d/%d",
		r.IsAbsent(), r.IsIPv6(), r.Table(),
		deref(r.IPFrom), deref(r.IPTo), deref(r.Iif), derefU32(r.Fwmark), derefU32(r.Fwmask))
}

// Key identifies the logical rule. Rules that only differ in priority are
// distinct, so the priority is part of it.
func (r RouteRuleEntry) Key() string {
	return fmt.Sprintf("%s|%d", r.SelectorKey(), r.PriorityValue())
}

// Less orders rules: present before absent, IPv4 before IPv6, then by table,
// priority and selectors.
func (r RouteRuleEntry) Less(other RouteRuleEntry) bool {
	if r.IsAbsent() != other.IsAbsent() {
		return !r.IsAbsent()
	}
	if r.IsIPv6() != other.IsIPv6() {
		return !r.IsIPv6()
	}
	if r.Table() != other.Table() {
		return r.Table() < other.Table()
	}
	if r.PriorityValue() != other.PriorityValue() {
		return r.PriorityValue() < other.PriorityValue()
	}
	if a, b := deref(r.IPFrom), deref(other.IPFrom); a != b {
		return a < b
	}
	if a, b := deref(r.IPTo), deref(other.IPTo); a != b {
		return a < b
	}
	return deref(r.Iif) < deref(other.Iif)
}

func (r RouteRuleEntry) String() string {
	var parts []string
	if r.IsAbsent() {
		parts = append(parts, "absent")
	}
	if r.Priority != nil {
		parts = append(parts, fmt.Sprintf("priority=%d", *r.Priority))
	}
	if r.IPFrom != nil {
		parts = append(parts, "from="+*r.IPFrom)
	}
	if r.IPTo != nil {
		parts = append(parts, "to="+*r.IPTo)
	}
	if r.Iif != nil {
		parts = append(parts, "iif="+*r.Iif)
	}
	if r.Fwmark != nil {
		parts = append(parts, fmt.Sprintf("fwmark=%#x", *r.Fwmark))
	}
	if r.TableID != nil {
		parts = append(parts, fmt.Sprintf("table=%d", *r.TableID))
	}
	return "{" + strings.Join(parts, " ") + "}"
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefU32(v *Uint32) uint32 {
	if v == nil {
		return 0
	}
	return uint32(*v)
}
