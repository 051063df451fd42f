package networking

import (
	"context"
	"net"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"

	"github.com/maksimkurb/keen-netstate/src/internal/errors"
	"github.com/maksimkurb/keen-netstate/src/internal/reconcile"
	"github.com/maksimkurb/keen-netstate/src/internal/state"
)

func iface(name string, t state.InterfaceType) state.Interface {
	return state.NewInterface(name, t)
}

func indexOf(calls []string, call string) int {
	for i, c := range calls {
		if c == call {
			return i
		}
	}
	return -1
}

func TestApplyPlan_Order(t *testing.T) {
	vlan := &netlink.Vlan{LinkAttrs: attrsOf("eth0.10", 3), VlanId: 10}
	nl := newFakeNetlink(device("eth0", 2, true), vlan)

	dummy := iface("dummy0", state.InterfaceTypeDummy)
	eth0 := iface("eth0", state.InterfaceTypeEthernet)
	eth0.Base().MTU = state.Ptr(state.Uint64(9000))
	eth0.Base().IPv4 = &state.InterfaceIP{Addresses: []state.InterfaceIPAddr{{IP: "192.0.2.1", PrefixLength: 24}}}

	plan := &reconcile.Plan{
		Delete: []state.Interface{iface("eth0.10", state.InterfaceTypeVlan)},
		Add:    []state.Interface{dummy},
		Change: []state.Interface{eth0},
	}

	if err := NewKernelApplier(nl, nil).ApplyPlan(context.Background(), plan); err != nil {
		t.Fatalf("ApplyPlan failed: %v", err)
	}

	del, add, mtu := indexOf(nl.calls, "LinkDel eth0.10"), indexOf(nl.calls, "LinkAdd dummy0"), indexOf(nl.calls, "LinkSetMTU eth0")
	if del < 0 || add < 0 || mtu < 0 || !(del < add && add < mtu) {
		t.Errorf("expected delete, add, change order, got %v", nl.calls)
	}
	if indexOf(nl.calls, "AddrReplace eth0 192.0.2.1/24") < 0 {
		t.Errorf("expected address to be added, got %v", nl.calls)
	}
	if nl.find("dummy0") == nil || nl.find("dummy0").Attrs().Flags&net.FlagUp == 0 {
		t.Error("expected dummy0 to exist and be up")
	}
}

func TestApplyPlan_Idempotent(t *testing.T) {
	nl := newFakeNetlink(device("eth0", 2, true))
	bridge := iface("br0", state.InterfaceTypeLinuxBridge)
	port := iface("eth0", state.InterfaceTypeEthernet)
	port.Base().Controller = state.Ptr("br0")
	port.Base().ControllerType = state.InterfaceTypeLinuxBridge

	plan := &reconcile.Plan{Add: []state.Interface{bridge}, Change: []state.Interface{port}}
	a := NewKernelApplier(nl, nil)

	for i := 0; i < 2; i++ {
		if err := a.ApplyPlan(context.Background(), plan); err != nil {
			t.Fatalf("ApplyPlan attempt %d failed: %v", i+1, err)
		}
	}
	if nl.find("eth0").Attrs().MasterIndex != nl.find("br0").Attrs().Index {
		t.Error("expected eth0 to be attached to br0")
	}
	if got := len(nl.links); got != 2 {
		t.Errorf("expected bridge to be reused, got %d links", got)
	}
}

func TestApplyPlan_BondPortGoesDownFirst(t *testing.T) {
	bond := netlink.NewLinkBond(attrsOf("bond0", 3))
	nl := newFakeNetlink(device("eth0", 2, true), bond)

	port := iface("eth0", state.InterfaceTypeEthernet)
	port.Base().Controller = state.Ptr("bond0")
	port.Base().ControllerType = state.InterfaceTypeBond

	if err := NewKernelApplier(nl, nil).ApplyPlan(context.Background(), &reconcile.Plan{Change: []state.Interface{port}}); err != nil {
		t.Fatalf("ApplyPlan failed: %v", err)
	}
	down, attach := indexOf(nl.calls, "LinkSetDown eth0"), indexOf(nl.calls, "LinkSetMasterByIndex eth0")
	if down < 0 || attach < 0 || down > attach {
		t.Errorf("expected port to go down before enslaving, got %v", nl.calls)
	}
}

func TestApplyPlan_Detach(t *testing.T) {
	eth0 := device("eth0", 2, true)
	eth0.MasterIndex = 3
	nl := newFakeNetlink(eth0, &netlink.Bridge{LinkAttrs: attrsOf("br0", 3)})

	port := iface("eth0", state.InterfaceTypeEthernet)
	port.Base().Controller = state.Ptr("")

	if err := NewKernelApplier(nl, nil).ApplyPlan(context.Background(), &reconcile.Plan{Change: []state.Interface{port}}); err != nil {
		t.Fatalf("ApplyPlan failed: %v", err)
	}
	if eth0.MasterIndex != 0 {
		t.Error("expected eth0 to be detached")
	}
}

func TestApplyPlan_NotImplemented(t *testing.T) {
	tests := []struct {
		name string
		plan *reconcile.Plan
	}{
		{"add ovs bridge", &reconcile.Plan{Add: []state.Interface{iface("br-ovs", state.InterfaceTypeOvsBridge)}}},
		{"delete ovs interface", &reconcile.Plan{Delete: []state.Interface{iface("ovs0", state.InterfaceTypeOvsInterface)}}},
		{"create ethernet", &reconcile.Plan{Add: []state.Interface{iface("eth9", state.InterfaceTypeEthernet)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewKernelApplier(newFakeNetlink(), nil).ApplyPlan(context.Background(), tt.plan)
			if !errors.IsKind(err, errors.KindNotImplemented) {
				t.Errorf("expected NotImplementedError, got %v", err)
			}
		})
	}
}

func TestApplyPlan_DeleteMissingAndPhysical(t *testing.T) {
	nl := newFakeNetlink(device("eth1", 2, true))
	nl.addrs["eth1"] = []netlink.Addr{staticAddr("192.0.2.5/24"), dynamicAddr("198.51.100.9/24")}

	plan := &reconcile.Plan{Delete: []state.Interface{
		iface("gone0", state.InterfaceTypeDummy),
		iface("eth1", state.InterfaceTypeEthernet),
	}}
	if err := NewKernelApplier(nl, nil).ApplyPlan(context.Background(), plan); err != nil {
		t.Fatalf("ApplyPlan failed: %v", err)
	}

	if nl.find("eth1") == nil {
		t.Fatal("physical interface must not be deleted")
	}
	if nl.find("eth1").Attrs().Flags&net.FlagUp != 0 {
		t.Error("expected eth1 to be brought down")
	}
	if got := len(nl.addrs["eth1"]); got != 1 {
		t.Errorf("expected only the dynamic address to remain, got %v", nl.addrs["eth1"])
	}
}

func TestApplyPlan_Routes(t *testing.T) {
	nl := newFakeNetlink(device("eth0", 2, true))
	_, stale, _ := net.ParseCIDR("198.51.100.0/24")
	_, connected, _ := net.ParseCIDR("192.0.2.0/24")
	nl.routes = []netlink.Route{
		{LinkIndex: 2, Dst: stale, Table: 254, Protocol: unix.RTPROT_STATIC, Type: unix.RTN_UNICAST, Family: netlink.FAMILY_V4},
		{LinkIndex: 2, Dst: connected, Table: 254, Protocol: unix.RTPROT_KERNEL, Type: unix.RTN_UNICAST, Family: netlink.FAMILY_V4},
	}

	plan := &reconcile.Plan{Routes: map[string][]state.RouteEntry{
		"eth0": {{
			Destination:  state.Ptr("203.0.113.0/24"),
			NextHopIface: state.Ptr("eth0"),
			NextHopAddr:  state.Ptr("192.0.2.254"),
			TableID:      state.Ptr(state.Uint32(100)),
		}},
	}}

	if err := NewKernelApplier(nl, nil).ApplyPlan(context.Background(), plan); err != nil {
		t.Fatalf("ApplyPlan failed: %v", err)
	}

	want := []string{"RouteDel 198.51.100.0/24", "RouteReplace 203.0.113.0/24"}
	if diff := cmp.Diff(want, nl.calls); diff != "" {
		t.Errorf("route calls mismatch (-want +got):\n%s", diff)
	}
	if len(nl.routes) != 2 {
		t.Fatalf("expected connected and new route, got %v", nl.routes)
	}
	added := nl.routes[1]
	if added.Table != 100 || added.Protocol != unix.RTPROT_STATIC || !added.Gw.Equal(net.ParseIP("192.0.2.254")) {
		t.Errorf("unexpected route %+v", added)
	}

	nl.calls = nil
	if err := NewKernelApplier(nl, nil).ApplyPlan(context.Background(), plan); err != nil {
		t.Fatalf("second ApplyPlan failed: %v", err)
	}
	if len(nl.calls) != 0 {
		t.Errorf("expected no calls for an applied route list, got %v", nl.calls)
	}
}

func TestApplyPlan_Rules(t *testing.T) {
	nl := newFakeNetlink()
	_, from, _ := net.ParseCIDR("10.0.0.0/8")
	nl.rules = []netlink.Rule{
		{Priority: 3000, Table: 100, Src: from, Family: netlink.FAMILY_V4},
		{Priority: 3100, Table: 100, Mark: 0x1, Family: netlink.FAMILY_V4},
		{Priority: 3200, Table: 200, Mark: 0x2, Family: netlink.FAMILY_V4},
	}

	plan := &reconcile.Plan{Rules: map[uint32][]state.RouteRuleEntry{
		100: {
			{IPFrom: state.Ptr("10.0.0.0/8"), Priority: state.Ptr(state.Int64(3000)), TableID: state.Ptr(state.Uint32(100))},
			{IPTo: state.Ptr("172.16.0.0/12"), Priority: state.Ptr(state.Int64(3050)), TableID: state.Ptr(state.Uint32(100))},
		},
	}}

	if err := NewKernelApplier(nl, nil).ApplyPlan(context.Background(), plan); err != nil {
		t.Fatalf("ApplyPlan failed: %v", err)
	}

	want := []string{"RuleDel 3100", "RuleAdd 3050"}
	if diff := cmp.Diff(want, nl.calls); diff != "" {
		t.Errorf("rule calls mismatch (-want +got):\n%s", diff)
	}
	if len(nl.rules) != 3 {
		t.Errorf("expected rule of table 200 to stay, got %v", nl.rules)
	}
}

func TestApplyPlan_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	plan := &reconcile.Plan{Add: []state.Interface{iface("dummy0", state.InterfaceTypeDummy)}}
	err := NewKernelApplier(newFakeNetlink(), nil).ApplyPlan(ctx, plan)
	if !errors.IsKind(err, errors.KindTimeout) {
		t.Errorf("expected Timeout, got %v", err)
	}
}

func TestApplyPlan_BackendError(t *testing.T) {
	nl := newFakeNetlink(device("eth0", 2, false))
	nl.failOn["LinkSetUp eth0"] = unix.EBUSY

	err := NewKernelApplier(nl, nil).ApplyPlan(context.Background(), &reconcile.Plan{Change: []state.Interface{iface("eth0", state.InterfaceTypeEthernet)}})
	if !errors.IsKind(err, errors.KindBackend) {
		t.Errorf("expected BackendError, got %v", err)
	}
}

func TestApplyPlan_RecreatesLinkOnImmutableChange(t *testing.T) {
	vlanAttrs := attrsOf("vlan10", 3)
	vlanAttrs.ParentIndex = 2
	vlanAttrs.Flags |= net.FlagUp
	nl := newFakeNetlink(device("eth0", 2, true), &netlink.Vlan{LinkAttrs: vlanAttrs, VlanId: 10})
	_, dst, _ := net.ParseCIDR("198.51.100.0/24")
	nl.routes = []netlink.Route{
		{LinkIndex: 3, Dst: dst, Table: 254, Protocol: unix.RTPROT_STATIC, Type: unix.RTN_UNICAST, Family: netlink.FAMILY_V4},
	}

	vlan := &state.VlanInterface{
		BaseInterface: state.BaseInterface{Name: "vlan10", Type: state.InterfaceTypeVlan, State: state.InterfaceStateUp},
		Vlan:          &state.VlanConfig{BaseIface: "eth0", ID: 20},
	}
	if err := NewKernelApplier(nl, nil).ApplyPlan(context.Background(), &reconcile.Plan{Change: []state.Interface{vlan}}); err != nil {
		t.Fatalf("ApplyPlan failed: %v", err)
	}

	del, add := indexOf(nl.calls, "LinkDel vlan10"), indexOf(nl.calls, "LinkAdd vlan10")
	if del < 0 || add < 0 || del > add {
		t.Fatalf("expected vlan10 to be deleted and created again, got %v", nl.calls)
	}
	link, ok := nl.find("vlan10").(*netlink.Vlan)
	if !ok || link.VlanId != 20 || link.ParentIndex != 2 {
		t.Fatalf("unexpected link after recreate: %#v", nl.find("vlan10"))
	}
	if link.Flags&net.FlagUp == 0 {
		t.Error("expected vlan10 to be up")
	}
	if len(nl.routes) != 1 || nl.routes[0].LinkIndex != link.Index {
		t.Errorf("expected the static route to follow the new link, got %+v", nl.routes)
	}
}

func TestApplyPlan_ImmutableChanges(t *testing.T) {
	vrf := &state.VrfInterface{
		BaseInterface: state.BaseInterface{Name: "vrf0", Type: state.InterfaceTypeVrf},
		Vrf:           &state.VrfConfig{TableID: 200},
	}
	bond := &state.BondInterface{
		BaseInterface: state.BaseInterface{Name: "bond0", Type: state.InterfaceTypeBond},
		Bond:          &state.BondConfig{Mode: state.Ptr("802.3ad")},
	}
	vxlan := &state.VxlanInterface{
		BaseInterface: state.BaseInterface{Name: "vx0", Type: state.InterfaceTypeVxlan},
		Vxlan:         &state.VxlanConfig{ID: 200},
	}

	tests := []struct {
		name     string
		links    func() []netlink.Link
		change   state.Interface
		wantKind errors.Kind
	}{
		{
			name: "vrf table is recreated",
			links: func() []netlink.Link {
				return []netlink.Link{&netlink.Vrf{LinkAttrs: attrsOf("vrf0", 3), Table: 100}}
			},
			change: vrf,
		},
		{
			name: "vxlan id is recreated",
			links: func() []netlink.Link {
				return []netlink.Link{&netlink.Vxlan{LinkAttrs: attrsOf("vx0", 3), VxlanId: 100}}
			},
			change: vxlan,
		},
		{
			name: "vrf with ports",
			links: func() []netlink.Link {
				port := device("eth0", 2, true)
				port.MasterIndex = 3
				return []netlink.Link{port, &netlink.Vrf{LinkAttrs: attrsOf("vrf0", 3), Table: 100}}
			},
			change:   vrf,
			wantKind: errors.KindNotImplemented,
		},
		{
			name: "bond mode with ports",
			links: func() []netlink.Link {
				port := device("eth0", 2, true)
				port.MasterIndex = 3
				b := netlink.NewLinkBond(attrsOf("bond0", 3))
				b.Mode = netlink.BOND_MODE_ACTIVE_BACKUP
				return []netlink.Link{port, b}
			},
			change:   bond,
			wantKind: errors.KindNotImplemented,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nl := newFakeNetlink(tt.links()...)
			err := NewKernelApplier(nl, nil).ApplyPlan(context.Background(), &reconcile.Plan{Change: []state.Interface{tt.change}})
			if tt.wantKind != "" {
				if !errors.IsKind(err, tt.wantKind) {
					t.Fatalf("expected %s, got %v", tt.wantKind, err)
				}
				if len(nl.calls) != 0 {
					t.Errorf("expected nothing to be touched, got %v", nl.calls)
				}
				return
			}
			if err != nil {
				t.Fatalf("ApplyPlan failed: %v", err)
			}
			name := tt.change.Base().Name
			if indexOf(nl.calls, "LinkDel "+name) < 0 || indexOf(nl.calls, "LinkAdd "+name) < 0 {
				t.Errorf("expected %s to be recreated, got %v", name, nl.calls)
			}
		})
	}
}

func TestApplyPlan_VethRepeer(t *testing.T) {
	nl := newFakeNetlink(
		&netlink.Veth{LinkAttrs: attrsOf("veth1", 2), PeerName: "veth1.ep"},
		&netlink.Veth{LinkAttrs: attrsOf("veth1.ep", 3), PeerName: "veth1"},
	)
	repeered := &state.VethInterface{
		BaseInterface: state.BaseInterface{Name: "veth1", Type: state.InterfaceTypeVeth},
		Veth:          &state.VethConfig{Peer: "veth1.new"},
	}
	peer := &state.VethInterface{
		BaseInterface: state.BaseInterface{Name: "veth1.new", Type: state.InterfaceTypeVeth},
		Veth:          &state.VethConfig{Peer: "veth1"},
	}
	plan := &reconcile.Plan{
		Delete: []state.Interface{iface("veth1", state.InterfaceTypeVeth), iface("veth1.ep", state.InterfaceTypeVeth)},
		Add:    []state.Interface{repeered, peer},
	}

	if err := NewKernelApplier(nl, nil).ApplyPlan(context.Background(), plan); err != nil {
		t.Fatalf("ApplyPlan failed: %v", err)
	}
	if nl.find("veth1.ep") != nil {
		t.Error("expected the old peer to be gone")
	}
	link, ok := nl.find("veth1").(*netlink.Veth)
	if !ok || link.PeerName != "veth1.new" || nl.find("veth1.new") == nil {
		t.Errorf("expected veth1 to be paired with veth1.new, got %v", nl.links)
	}
}
