package reconcile

import (
	"fmt"
	"sort"
	"strings"

	"github.com/maksimkurb/keen-netstate/src/internal/state"
)

// Plan is the ordered set of changes that moves the current state to the
// desired one. Add and Change are sorted by ascending up priority and Delete
// by descending priority.
//
// Routes holds the final route list of every interface whose routes change,
// Rules the final rule list of every table whose rules change.
type Plan struct {
	Add    []state.Interface                 `json:"add"`
	Change []state.Interface                 `json:"change"`
	Delete []state.Interface                 `json:"delete"`
	Routes map[string][]state.RouteEntry     `json:"routes,omitempty"`
	Rules  map[uint32][]state.RouteRuleEntry `json:"rules,omitempty"`

	// Desired is the sanitized desired state the plan was built from.
	Desired *state.NetworkState `json:"-"`
}

// Empty reports whether applying the plan would change nothing.
func (p *Plan) Empty() bool {
	return len(p.Add) == 0 && len(p.Change) == 0 && len(p.Delete) == 0 &&
		len(p.Routes) == 0 && len(p.Rules) == 0
}

// Summary returns a one line description of the plan.
func (p *Plan) Summary() string {
	if p.Empty() {
		return "nothing to do"
	}
	return fmt.Sprintf("%d to add, %d to change, %d to delete, routes of %d interface(s), rules of %d table(s)",
		len(p.Add), len(p.Change), len(p.Delete), len(p.Routes), len(p.Rules))
}

// RouteIfaces returns the interfaces with route changes in name order.
func (p *Plan) RouteIfaces() []string {
	names := make([]string, 0, len(p.Routes))
	for name := range p.Routes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RuleTables returns the tables with rule changes in ascending order.
func (p *Plan) RuleTables() []uint32 {
	tables := make([]uint32, 0, len(p.Rules))
	for t := range p.Rules {
		tables = append(tables, t)
	}
	sort.Slice(tables, func(i, j int) bool { return tables[i] < tables[j] })
	return tables
}

// planBuilder assembles a Plan from the interface diff and the route and rule
// deltas.
type planBuilder struct {
	view    *view
	current *state.NetworkState
	plan    *Plan
}

func (b *planBuilder) build(diff *InterfaceDiff, routes map[string][]state.RouteEntry, rules map[uint32][]state.RouteRuleEntry) *Plan {
	b.plan = &Plan{
		Add:    diff.Add,
		Change: diff.Change,
		Delete: diff.Delete,
		Routes: map[string][]state.RouteEntry{},
		Rules:  map[uint32][]state.RouteRuleEntry{},
	}

	deleted := map[string]bool{}
	recreated := map[string]bool{}
	for _, iface := range diff.Delete {
		if iface.Base().Type.IsUserspace() {
			continue
		}
		if findKernel(diff.Add, iface.Base().Name) != nil {
			recreated[iface.Base().Name] = true
			continue
		}
		deleted[iface.Base().Name] = true
	}

	currentRoutes := map[string][]state.RouteEntry{}
	for _, r := range b.current.Routes.Config {
		currentRoutes[r.Iface()] = append(currentRoutes[r.Iface()], r)
	}
	for iface, list := range routes {
		if deleted[iface] || (!recreated[iface] && matchRouteSet(list, currentRoutes[iface])) {
			continue
		}
		b.plan.Routes[iface] = list
	}
	// A recreated link loses its routes, so they are pushed again.
	for iface := range recreated {
		if _, ok := b.plan.Routes[iface]; ok || len(currentRoutes[iface]) == 0 {
			continue
		}
		b.plan.Routes[iface] = CanonicalRoutes(currentRoutes[iface])
	}

	currentRules := map[uint32][]state.RouteRuleEntry{}
	for _, r := range b.current.Rules.Config {
		currentRules[r.Table()] = append(currentRules[r.Table()], r)
	}
	for table, list := range rules {
		if matchRuleSet(list, currentRules[table]) {
			continue
		}
		b.plan.Rules[table] = list
	}

	b.attachRoutes()
	b.attachRules()
	return b.plan
}

// attachRoutes stores the final routes on the Add or Change entry of their
// interface. Interfaces that only change routes join Change.
func (b *planBuilder) attachRoutes() {
	grown := false
	for _, name := range b.plan.RouteIfaces() {
		iface := findKernel(b.plan.Add, name)
		if iface == nil {
			iface = findKernel(b.plan.Change, name)
		}
		if iface == nil {
			merged := b.view.merged.Kernel(name)
			if merged == nil || merged.Base().IsAbsent() {
				continue
			}
			iface = merged.Clone()
			b.plan.Change = append(b.plan.Change, iface)
			grown = true
		}
		iface.Base().Routes = b.plan.Routes[name]
	}
	if grown {
		sortAscending(b.plan.Change)
	}
}

// attachRules stores the final rules of a table on every planned interface
// that routes through it.
func (b *planBuilder) attachRules() {
	for _, table := range b.plan.RuleTables() {
		for _, iface := range append(append([]state.Interface{}, b.plan.Add...), b.plan.Change...) {
			if usesTable(iface, table) {
				iface.Base().Rules = b.plan.Rules[table]
			}
		}
	}
}

func usesTable(iface state.Interface, table uint32) bool {
	b := iface.Base()
	for _, r := range b.Routes {
		if r.Table() == table {
			return true
		}
	}
	for _, ip := range []*state.InterfaceIP{b.IPv4, b.IPv6} {
		if ip != nil && ip.AutoRouteTableID != nil && uint32(*ip.AutoRouteTableID) == table {
			return true
		}
	}
	if vrf, ok := iface.(*state.VrfInterface); ok && vrf.Vrf != nil && uint32(vrf.Vrf.TableID) == table {
		return true
	}
	return false
}

func findKernel(list []state.Interface, name string) state.Interface {
	for _, iface := range list {
		if iface.Base().Name == name && !iface.Base().Type.IsUserspace() {
			return iface
		}
	}
	return nil
}

// String renders the plan as a human readable listing.
func (p *Plan) String() string {
	var sb strings.Builder
	write := func(op string, list []state.Interface) {
		for _, iface := range list {
			b := iface.Base()
			fmt.Fprintf(&sb, "%-6s %-13s %s (priority %d)\n", op, b.Type, b.Name, b.UpPriority)
		}
	}
	write("delete", p.Delete)
	write("add", p.Add)
	write("change", p.Change)
	for _, name := range p.RouteIfaces() {
		fmt.Fprintf(&sb, "routes %s: %d\n", name, len(p.Routes[name]))
	}
	for _, table := range p.RuleTables() {
		fmt.Fprintf(&sb, "rules  table %d: %d\n", table, len(p.Rules[table]))
	}
	return sb.String()
}
