package reconcile

import (
	"sort"

	"github.com/maksimkurb/keen-netstate/src/internal/state"
)

// RouteDelta computes the final route list of every interface the desired
// routes touch.
//
// An absent entry without next-hop-interface is a wildcard: it is expanded
// into one interface-bound absent entry per current route it matches. For
// each affected interface the result is its current routes minus those an
// absent entry matches, plus the desired routes, sorted and deduplicated.
func RouteDelta(desired, current []state.RouteEntry) map[string][]state.RouteEntry {
	currentByIface := map[string][]state.RouteEntry{}
	for _, r := range current {
		if r.Iface() != "" {
			currentByIface[r.Iface()] = append(currentByIface[r.Iface()], r)
		}
	}

	affected := map[string]bool{}
	absentByIface := map[string][]state.RouteEntry{}
	presentByIface := map[string][]state.RouteEntry{}

	for _, d := range desired {
		if !d.IsAbsent() {
			presentByIface[d.Iface()] = append(presentByIface[d.Iface()], d)
			affected[d.Iface()] = true
			continue
		}
		if d.Iface() != "" {
			absentByIface[d.Iface()] = append(absentByIface[d.Iface()], d)
			affected[d.Iface()] = true
			continue
		}
		for _, c := range current {
			if c.Iface() == "" || !d.Matches(c) {
				continue
			}
			expanded := c
			expanded.State = state.EntryStateAbsent
			absentByIface[c.Iface()] = append(absentByIface[c.Iface()], expanded)
			affected[c.Iface()] = true
		}
	}

	out := make(map[string][]state.RouteEntry, len(affected))
	for iface := range affected {
		var list []state.RouteEntry
		for _, c := range currentByIface[iface] {
			if !routeMatchedByAny(absentByIface[iface], c) {
				list = append(list, c)
			}
		}
		list = append(list, presentByIface[iface]...)
		out[iface] = CanonicalRoutes(list)
	}
	return out
}

func routeMatchedByAny(absent []state.RouteEntry, r state.RouteEntry) bool {
	for _, a := range absent {
		if a.Matches(r) {
			return true
		}
	}
	return false
}

// CanonicalRoutes sorts routes and drops duplicates. Entries with the same
// key collapse into the last one, so a desired route replaces the current
// route it only differs from by metric. Absent entries are dropped.
func CanonicalRoutes(list []state.RouteEntry) []state.RouteEntry {
	last := make(map[string]int, len(list))
	for i, r := range list {
		last[r.Key()] = i
	}
	out := make([]state.RouteEntry, 0, len(last))
	for i, r := range list {
		if r.IsAbsent() || last[r.Key()] != i {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// FlattenRoutes joins per-interface route lists into one canonical list.
func FlattenRoutes(byIface map[string][]state.RouteEntry) []state.RouteEntry {
	var all []state.RouteEntry
	for _, list := range byIface {
		all = append(all, list...)
	}
	return CanonicalRoutes(all)
}
