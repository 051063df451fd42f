package reconcile

import (
	"fmt"
	"strings"
	"testing"

	"github.com/maksimkurb/keen-netstate/src/internal/errors"
	"github.com/maksimkurb/keen-netstate/src/internal/state"
)

func bridge(name, controller string) state.Interface {
	iface := state.NewInterface(name, state.InterfaceTypeLinuxBridge)
	if controller != "" {
		iface.Base().Controller = state.Ptr(controller)
	}
	return iface
}

func TestResolvePriorities_NestedReverseOrder(t *testing.T) {
	const depth = 6

	// br0 <- br1 <- ... <- br5 <- eth0, pushed leaves first.
	var list []state.Interface
	eth := state.NewInterface("eth0", state.InterfaceTypeEthernet)
	eth.Base().Controller = state.Ptr(fmt.Sprintf("br%d", depth-1))
	list = append(list, eth)
	for i := depth - 1; i >= 0; i-- {
		controller := ""
		if i > 0 {
			controller = fmt.Sprintf("br%d", i-1)
		}
		list = append(list, bridge(fmt.Sprintf("br%d", i), controller))
	}
	ifaces := state.NewInterfaces(list...)

	if err := ResolvePriorities(&ifaces, nil); err != nil {
		t.Fatalf("ResolvePriorities() error = %v", err)
	}

	for i := 0; i < depth; i++ {
		b := ifaces.Kernel(fmt.Sprintf("br%d", i)).Base()
		if b.UpPriority != uint32(i) {
			t.Errorf("%s priority = %d, want %d", b.Name, b.UpPriority, i)
		}
	}
	eb := ifaces.Kernel("eth0").Base()
	if eb.UpPriority != depth {
		t.Errorf("eth0 priority = %d, want %d", eb.UpPriority, depth)
	}
	if eb.ControllerType != state.InterfaceTypeLinuxBridge {
		t.Errorf("eth0 controller type = %q", eb.ControllerType)
	}
}

func TestResolvePriorities_Errors(t *testing.T) {
	tests := []struct {
		name    string
		ifaces  []state.Interface
		wantMsg string
	}{
		{
			name:    "cycle",
			ifaces:  []state.Interface{bridge("br0", "br1"), bridge("br1", "br0")},
			wantMsg: "cycle",
		},
		{
			name:    "self",
			ifaces:  []state.Interface{bridge("br0", "br0")},
			wantMsg: "its own controller",
		},
		{
			name:    "missing controller",
			ifaces:  []state.Interface{bridge("br0", "br9")},
			wantMsg: "not found",
		},
		{
			name: "controller cannot have ports",
			ifaces: []state.Interface{
				bridge("br0", "eth1"),
				state.NewInterface("eth1", state.InterfaceTypeEthernet),
			},
			wantMsg: "cannot have ports",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ifaces := state.NewInterfaces(tt.ifaces...)
			err := ResolvePriorities(&ifaces, nil)
			if !errors.IsKind(err, errors.KindInvalidArgument) {
				t.Fatalf("expected InvalidArgument, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not mention %q", err, tt.wantMsg)
			}
		})
	}
}

func TestResolvePriorities_OutsideController(t *testing.T) {
	ifaces := state.NewInterfaces(bridge("br0", "ext0"))
	if err := ResolvePriorities(&ifaces, map[string]bool{"ext0": true}); err != nil {
		t.Fatalf("ResolvePriorities() error = %v", err)
	}
	if p := ifaces.Kernel("br0").Base().UpPriority; p != 0 {
		t.Errorf("priority = %d, want 0", p)
	}
}

func TestResolvePriorities_AbsentSkipped(t *testing.T) {
	gone := bridge("br1", "br0")
	gone.Base().State = state.InterfaceStateAbsent
	ifaces := state.NewInterfaces(gone)

	if err := ResolvePriorities(&ifaces, nil); err != nil {
		t.Fatalf("ResolvePriorities() error = %v", err)
	}
}
