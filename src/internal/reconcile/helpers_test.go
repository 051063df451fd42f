package reconcile

import (
	"context"
	"testing"

	"github.com/maksimkurb/keen-netstate/src/internal/log"
	"github.com/maksimkurb/keen-netstate/src/internal/state"
)

func mustParse(t *testing.T, doc string) *state.NetworkState {
	t.Helper()
	s, err := state.Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return s
}

func mustPlan(t *testing.T, desired, current string) *Plan {
	t.Helper()
	plan, err := NewEngine(log.Discard()).Plan(context.Background(), mustParse(t, desired), mustParse(t, current))
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	return plan
}

func names(list []state.Interface) []string {
	out := make([]string, 0, len(list))
	for _, iface := range list {
		out = append(out, iface.Base().Name)
	}
	return out
}

func find(list []state.Interface, name string) state.Interface {
	for _, iface := range list {
		if iface.Base().Name == name {
			return iface
		}
	}
	return nil
}

func route(dst, iface, via string) state.RouteEntry {
	r := state.RouteEntry{}
	if dst != "" {
		r.Destination = state.Ptr(dst)
	}
	if iface != "" {
		r.NextHopIface = state.Ptr(iface)
	}
	if via != "" {
		r.NextHopAddr = state.Ptr(via)
	}
	return r
}
