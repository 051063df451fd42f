package reconcile

import (
	"sort"

	"github.com/maksimkurb/keen-netstate/src/internal/state"
)

// RuleDelta computes the final rule list of every routing table the desired
// rules touch. It mirrors RouteDelta with the table as scope: rules without a
// table go to the main table, and an absent rule without a table is expanded
// against the current rules of every table.
func RuleDelta(desired, current []state.RouteRuleEntry) map[uint32][]state.RouteRuleEntry {
	currentByTable := map[uint32][]state.RouteRuleEntry{}
	for _, r := range current {
		currentByTable[r.Table()] = append(currentByTable[r.Table()], r)
	}

	affected := map[uint32]bool{}
	absentByTable := map[uint32][]state.RouteRuleEntry{}
	presentByTable := map[uint32][]state.RouteRuleEntry{}

	for _, d := range desired {
		if !d.IsAbsent() {
			presentByTable[d.Table()] = append(presentByTable[d.Table()], d)
			affected[d.Table()] = true
			continue
		}
		if d.HasTable() {
			absentByTable[d.Table()] = append(absentByTable[d.Table()], d)
			affected[d.Table()] = true
			continue
		}
		for _, c := range current {
			if !d.Matches(c) {
				continue
			}
			expanded := c
			expanded.State = state.EntryStateAbsent
			expanded.TableID = state.Ptr(state.Uint32(c.Table()))
			absentByTable[c.Table()] = append(absentByTable[c.Table()], expanded)
			affected[c.Table()] = true
		}
	}

	out := make(map[uint32][]state.RouteRuleEntry, len(affected))
	for table := range affected {
		var list []state.RouteRuleEntry
		for _, c := range currentByTable[table] {
			if !ruleMatchedByAny(absentByTable[table], c) {
				list = append(list, c)
			}
		}
		list = append(list, presentByTable[table]...)
		out[table] = CanonicalRules(list)
	}
	return out
}

func ruleMatchedByAny(absent []state.RouteRuleEntry, r state.RouteRuleEntry) bool {
	for _, a := range absent {
		if a.Matches(r) {
			return true
		}
	}
	return false
}

// CanonicalRules sorts rules and drops duplicates, keeping the last entry of
// each key. Absent entries are dropped, and so is a rule without priority
// when the same rule is present with one.
func CanonicalRules(list []state.RouteRuleEntry) []state.RouteRuleEntry {
	last := make(map[string]int, len(list))
	prioritized := map[string]bool{}
	for i, r := range list {
		last[r.Key()] = i
		if r.Priority != nil {
			prioritized[r.SelectorKey()] = true
		}
	}
	out := make([]state.RouteRuleEntry, 0, len(last))
	for i, r := range list {
		if r.IsAbsent() || last[r.Key()] != i {
			continue
		}
		if r.Priority == nil && prioritized[r.SelectorKey()] {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}
