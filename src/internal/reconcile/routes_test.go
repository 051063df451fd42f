package reconcile

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/maksimkurb/keen-netstate/src/internal/state"
)

func TestRouteDelta_WildcardAbsent(t *testing.T) {
	current := []state.RouteEntry{
		route("0.0.0.0/0", "eth1", "192.0.2.3"),
		route("198.51.100.0/24", "eth1", "192.0.2.2"),
		route("203.0.113.0/24", "eth2", "192.0.2.9"),
	}
	absent := route("", "", "192.0.2.3")
	absent.State = state.EntryStateAbsent

	got := RouteDelta([]state.RouteEntry{absent}, current)

	want := map[string][]state.RouteEntry{
		"eth1": {route("198.51.100.0/24", "eth1", "192.0.2.2")},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("RouteDelta() mismatch (-want +got):\n%s", diff)
	}
}

func TestRouteDelta_AbsentWithInterface(t *testing.T) {
	current := []state.RouteEntry{
		route("198.51.100.0/24", "eth1", "192.0.2.2"),
		route("198.51.100.0/24", "eth2", "192.0.2.2"),
	}
	absent := route("198.51.100.0/24", "eth1", "")
	absent.State = state.EntryStateAbsent

	got := RouteDelta([]state.RouteEntry{absent}, current)

	if len(got) != 1 {
		t.Fatalf("expected one affected interface, got %v", got)
	}
	if list, ok := got["eth1"]; !ok || len(list) != 0 {
		t.Errorf("eth1 routes = %v, want empty list", list)
	}
}

func TestRouteDelta_CanonicalOrder(t *testing.T) {
	v6 := route("2001:db8::/64", "eth1", "")
	old := route("198.51.100.0/24", "eth1", "192.0.2.1")
	old.Metric = state.Ptr(state.Int64(200))
	table100 := route("203.0.113.0/24", "eth1", "")
	table100.TableID = state.Ptr(state.Uint32(100))

	desired := route("198.51.100.0/24", "eth1", "192.0.2.1")
	desired.Metric = state.Ptr(state.Int64(100))

	got := RouteDelta([]state.RouteEntry{desired}, []state.RouteEntry{v6, old, table100})

	want := []state.RouteEntry{table100, desired, v6}
	if diff := cmp.Diff(want, got["eth1"]); diff != "" {
		t.Errorf("eth1 routes mismatch (-want +got):\n%s", diff)
	}
}

func TestCanonicalRoutes_Dedup(t *testing.T) {
	low := route("198.51.100.0/24", "eth1", "192.0.2.1")
	low.Metric = state.Ptr(state.Int64(100))
	high := route("198.51.100.0/24", "eth1", "192.0.2.1")
	high.Metric = state.Ptr(state.Int64(200))

	got := CanonicalRoutes([]state.RouteEntry{high, low})
	if len(got) != 1 {
		t.Fatalf("expected a single route, got %v", got)
	}
	if got[0].MetricValue() != 100 {
		t.Errorf("kept metric %d, want the later entry (100)", got[0].MetricValue())
	}
}

func TestRuleDelta(t *testing.T) {
	rule := func(to string, table, priority uint32) state.RouteRuleEntry {
		r := state.RouteRuleEntry{IPTo: state.Ptr(to), Priority: state.Ptr(state.Int64(priority))}
		if table != 0 {
			r.TableID = state.Ptr(state.Uint32(table))
		}
		return r
	}

	current := []state.RouteRuleEntry{
		rule("192.0.3.0/24", 500, 3200),
		rule("192.0.4.0/24", 500, 3201),
		rule("192.0.5.0/24", 0, 3300),
	}

	t.Run("wildcard absent", func(t *testing.T) {
		absent := state.RouteRuleEntry{State: state.EntryStateAbsent, IPTo: state.Ptr("192.0.4.0/24")}
		got := RuleDelta([]state.RouteRuleEntry{absent}, current)
		want := map[uint32][]state.RouteRuleEntry{
			500: {rule("192.0.3.0/24", 500, 3200)},
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("RuleDelta() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("default table bucket", func(t *testing.T) {
		added := state.RouteRuleEntry{IPFrom: state.Ptr("10.0.0.0/8")}
		got := RuleDelta([]state.RouteRuleEntry{added}, current)
		list, ok := got[state.DefaultRouteTable]
		if !ok || len(got) != 1 {
			t.Fatalf("expected only table %d to be affected, got %v", state.DefaultRouteTable, got)
		}
		if len(list) != 2 {
			t.Errorf("expected current and added rule in main table, got %v", list)
		}
	})

	t.Run("rules differing in priority are distinct", func(t *testing.T) {
		got := RuleDelta([]state.RouteRuleEntry{rule("192.0.3.0/24", 500, 3250)}, current)
		want := []state.RouteRuleEntry{
			rule("192.0.3.0/24", 500, 3200),
			rule("192.0.4.0/24", 500, 3201),
			rule("192.0.3.0/24", 500, 3250),
		}
		if diff := cmp.Diff(want, got[500]); diff != "" {
			t.Errorf("table 500 mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("priority change with absent old rule", func(t *testing.T) {
		old := rule("192.0.3.0/24", 500, 3200)
		old.State = state.EntryStateAbsent
		got := RuleDelta([]state.RouteRuleEntry{old, rule("192.0.3.0/24", 500, 3250)}, current)
		want := []state.RouteRuleEntry{
			rule("192.0.4.0/24", 500, 3201),
			rule("192.0.3.0/24", 500, 3250),
		}
		if diff := cmp.Diff(want, got[500]); diff != "" {
			t.Errorf("table 500 mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("rule without priority matches current rule", func(t *testing.T) {
		unset := state.RouteRuleEntry{IPTo: state.Ptr("192.0.3.0/24"), TableID: state.Ptr(state.Uint32(500))}
		got := RuleDelta([]state.RouteRuleEntry{unset}, current)
		want := []state.RouteRuleEntry{
			rule("192.0.3.0/24", 500, 3200),
			rule("192.0.4.0/24", 500, 3201),
		}
		if diff := cmp.Diff(want, got[500]); diff != "" {
			t.Errorf("table 500 mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestCanonicalRules_PriorityIsPartOfKey(t *testing.T) {
	a := state.RouteRuleEntry{IPFrom: state.Ptr("10.0.0.0/8"), Priority: state.Ptr(state.Int64(100)), TableID: state.Ptr(state.Uint32(500))}
	b := a
	b.Priority = state.Ptr(state.Int64(200))

	got := CanonicalRules([]state.RouteRuleEntry{b, a, a})
	if diff := cmp.Diff([]state.RouteRuleEntry{a, b}, got); diff != "" {
		t.Errorf("CanonicalRules() mismatch (-want +got):\n%s", diff)
	}
}
