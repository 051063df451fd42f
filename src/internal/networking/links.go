package networking

import (
	"fmt"
	"net"
	"strings"

	"github.com/vishvananda/netlink"

	"github.com/maksimkurb/keen-netstate/src/internal/errors"
	"github.com/maksimkurb/keen-netstate/src/internal/state"
)

// kernelType maps a netlink link kind onto an interface type.
func kernelType(link netlink.Link) state.InterfaceType {
	switch link.Type() {
	case "device":
		if link.Attrs().Flags&net.FlagLoopback != 0 {
			return state.InterfaceTypeLoopback
		}
		return state.InterfaceTypeEthernet
	case "veth":
		return state.InterfaceTypeVeth
	case "bond":
		return state.InterfaceTypeBond
	case "bridge":
		return state.InterfaceTypeLinuxBridge
	case "openvswitch":
		return state.InterfaceTypeOvsInterface
	case "vlan":
		return state.InterfaceTypeVlan
	case "vxlan":
		return state.InterfaceTypeVxlan
	case "vrf":
		return state.InterfaceTypeVrf
	case "macvlan":
		return state.InterfaceTypeMacVlan
	case "macvtap":
		return state.InterfaceTypeMacVtap
	case "dummy":
		return state.InterfaceTypeDummy
	case "ipoib":
		return state.InterfaceTypeInfiniBand
	}
	return state.InterfaceTypeUnknown
}

// isPhysical reports whether the interface cannot be created or deleted
// through netlink.
func isPhysical(iface state.Interface) bool {
	switch iface.Base().Type {
	case state.InterfaceTypeEthernet, state.InterfaceTypeLoopback, state.InterfaceTypeUnknown:
		return true
	case state.InterfaceTypeInfiniBand:
		return iface.Parent() == ""
	}
	return false
}

func isOvs(t state.InterfaceType) bool {
	return t == state.InterfaceTypeOvsBridge || t == state.InterfaceTypeOvsInterface
}

var macvlanModes = map[string]netlink.MacvlanMode{
	"vepa":     netlink.MACVLAN_MODE_VEPA,
	"bridge":   netlink.MACVLAN_MODE_BRIDGE,
	"private":  netlink.MACVLAN_MODE_PRIVATE,
	"passthru": netlink.MACVLAN_MODE_PASSTHRU,
	"source":   netlink.MACVLAN_MODE_SOURCE,
}

// vlanProtocol defaults to 802.1q.
func vlanProtocol(name *string) netlink.VlanProtocol {
	if name != nil && strings.EqualFold(*name, "802.1ad") {
		return netlink.VLAN_PROTOCOL_8021AD
	}
	return netlink.VLAN_PROTOCOL_8021Q
}

func macvlanModeName(mode netlink.MacvlanMode) string {
	for name, m := range macvlanModes {
		if m == mode {
			return name
		}
	}
	return ""
}

// toInterface describes a kernel link. Ports of controllers are filled in
// by the caller once every link is known.
func (p *KernelStateProvider) toInterface(link netlink.Link, byIndex map[int]netlink.Link) state.Interface {
	attrs := link.Attrs()
	iface := state.NewInterface(attrs.Name, kernelType(link))
	b := iface.Base()

	b.State = state.InterfaceStateDown
	if attrs.Flags&net.FlagUp != 0 {
		b.State = state.InterfaceStateUp
	}
	if attrs.MTU > 0 {
		b.MTU = state.Ptr(state.Uint64(attrs.MTU))
	}
	if len(attrs.HardwareAddr) == 6 {
		b.MacAddress = state.Ptr(attrs.HardwareAddr.String())
	}
	if attrs.MasterIndex != 0 {
		if master, ok := byIndex[attrs.MasterIndex]; ok {
			b.Controller = state.Ptr(master.Attrs().Name)
			b.ControllerType = kernelType(master)
		}
	}

	switch v := iface.(type) {
	case *state.VethInterface:
		if veth, ok := link.(*netlink.Veth); ok {
			if idx, err := p.vethPeerIndex(veth); err != nil {
				p.log.WithIface(attrs.Name).Debugf("Failed to resolve veth peer: %v", err)
			} else if peer := linkName(byIndex, idx); peer != "" {
				v.Veth = &state.VethConfig{Peer: peer}
			}
		}
	case *state.BondInterface:
		if bond, ok := link.(*netlink.Bond); ok {
			cfg := &state.BondConfig{Options: &state.BondOptions{}}
			if bond.Mode != netlink.BOND_MODE_UNKNOWN {
				cfg.Mode = state.Ptr(bond.Mode.String())
			}
			if bond.Miimon >= 0 {
				cfg.Options.Miimon = state.Ptr(state.Uint32(bond.Miimon))
			}
			v.Bond = cfg
		}
	case *state.LinuxBridgeInterface:
		v.Bridge = &state.LinuxBridgeConfig{}
		if br, ok := link.(*netlink.Bridge); ok && br.VlanFiltering != nil {
			v.Bridge.Options = &state.LinuxBridgeOptions{VlanFiltering: state.Ptr(*br.VlanFiltering)}
		}
	case *state.VlanInterface:
		if vlan, ok := link.(*netlink.Vlan); ok {
			v.Vlan = &state.VlanConfig{
				BaseIface: linkName(byIndex, attrs.ParentIndex),
				ID:        state.Uint16(vlan.VlanId),
			}
			switch vlan.VlanProtocol {
			case netlink.VLAN_PROTOCOL_8021Q:
				v.Vlan.Protocol = state.Ptr("802.1q")
			case netlink.VLAN_PROTOCOL_8021AD:
				v.Vlan.Protocol = state.Ptr("802.1ad")
			}
		}
	case *state.VxlanInterface:
		if vx, ok := link.(*netlink.Vxlan); ok {
			v.Vxlan = &state.VxlanConfig{
				BaseIface: linkName(byIndex, vx.VtepDevIndex),
				ID:        state.Uint32(vx.VxlanId),
			}
			if vx.Group != nil {
				v.Vxlan.Remote = state.Ptr(vx.Group.String())
			}
			if vx.SrcAddr != nil {
				v.Vxlan.Local = state.Ptr(vx.SrcAddr.String())
			}
			if vx.Port > 0 {
				v.Vxlan.DstPort = state.Ptr(state.Uint16(vx.Port))
			}
		}
	case *state.VrfInterface:
		v.Vrf = &state.VrfConfig{}
		if vrf, ok := link.(*netlink.Vrf); ok {
			v.Vrf.TableID = state.Uint32(vrf.Table)
		}
	case *state.MacVlanInterface:
		if mv, ok := link.(*netlink.Macvlan); ok {
			v.MacVlan = &state.MacVlanConfig{
				BaseIface: linkName(byIndex, attrs.ParentIndex),
				Mode:      macvlanModeName(mv.Mode),
			}
		}
	case *state.MacVtapInterface:
		if mv, ok := link.(*netlink.Macvtap); ok {
			v.MacVtap = &state.MacVlanConfig{
				BaseIface: linkName(byIndex, attrs.ParentIndex),
				Mode:      macvlanModeName(mv.Mode),
			}
		}
	case *state.InfiniBandInterface:
		if ib, ok := link.(*netlink.IPoIB); ok {
			cfg := &state.InfiniBandConfig{}
			switch ib.Mode {
			case netlink.IPOIB_MODE_DATAGRAM:
				cfg.Mode = state.Ptr("datagram")
			case netlink.IPOIB_MODE_CONNECTED:
				cfg.Mode = state.Ptr("connected")
			}
			if parent := linkName(byIndex, attrs.ParentIndex); parent != "" {
				cfg.BaseIface = state.Ptr(parent)
				cfg.Pkey = state.Ptr(state.Uint16(ib.Pkey))
			}
			v.InfiniBand = cfg
		}
	}

	return iface
}

// newLink builds the netlink link that creates iface.
func (a *KernelApplier) newLink(iface state.Interface) (netlink.Link, error) {
	b := iface.Base()
	if isOvs(b.Type) {
		return nil, errors.NewNotImplemented("creating %s %s requires an OVS backend", b.Type, b.Name)
	}
	if isPhysical(iface) {
		return nil, errors.NewNotImplemented("cannot create %s interface %s", b.Type, b.Name)
	}

	attrs := netlink.NewLinkAttrs()
	attrs.Name = b.Name
	if b.MTU != nil {
		attrs.MTU = int(*b.MTU)
	}
	if b.MacAddress != nil {
		mac, err := net.ParseMAC(*b.MacAddress)
		if err != nil {
			return nil, errors.NewInvalidArgument("interface %s: invalid mac-address %s", b.Name, *b.MacAddress)
		}
		attrs.HardwareAddr = mac
	}
	if parent := iface.Parent(); parent != "" {
		link, err := a.nl.LinkByName(parent)
		if err != nil {
			return nil, errors.NewBackendError(fmt.Sprintf("failed to find parent %s of %s", parent, b.Name), err)
		}
		attrs.ParentIndex = link.Attrs().Index
	}

	switch v := iface.(type) {
	case *state.VethInterface:
		if v.PeerName() == "" {
			return nil, errors.NewInvalidArgument("veth %s has no peer", b.Name)
		}
		return &netlink.Veth{LinkAttrs: attrs, PeerName: v.PeerName()}, nil
	case *state.BondInterface:
		bond := netlink.NewLinkBond(attrs)
		if v.Bond != nil {
			if v.Bond.Mode != nil {
				bond.Mode = netlink.StringToBondMode(*v.Bond.Mode)
			}
			if o := v.Bond.Options; o != nil {
				if o.Miimon != nil {
					bond.Miimon = int(*o.Miimon)
				}
				if o.UpDelay != nil {
					bond.UpDelay = int(*o.UpDelay)
				}
				if o.DownDelay != nil {
					bond.DownDelay = int(*o.DownDelay)
				}
				if o.XmitHashPolicy != nil {
					bond.XmitHashPolicy = netlink.StringToBondXmitHashPolicy(*o.XmitHashPolicy)
				}
				if o.LacpRate != nil {
					bond.LacpRate = netlink.StringToBondLacpRate(*o.LacpRate)
				}
			}
		}
		return bond, nil
	case *state.LinuxBridgeInterface:
		br := &netlink.Bridge{LinkAttrs: attrs}
		if v.Bridge != nil && v.Bridge.Options != nil && v.Bridge.Options.VlanFiltering != nil {
			br.VlanFiltering = state.Ptr(*v.Bridge.Options.VlanFiltering)
		}
		return br, nil
	case *state.VlanInterface:
		if v.Vlan == nil {
			return nil, errors.NewInvalidArgument("vlan %s has no vlan section", b.Name)
		}
		return &netlink.Vlan{LinkAttrs: attrs, VlanId: int(v.Vlan.ID), VlanProtocol: vlanProtocol(v.Vlan.Protocol)}, nil
	case *state.VxlanInterface:
		if v.Vxlan == nil {
			return nil, errors.NewInvalidArgument("vxlan %s has no vxlan section", b.Name)
		}
		vx := &netlink.Vxlan{LinkAttrs: attrs, VxlanId: int(v.Vxlan.ID), VtepDevIndex: attrs.ParentIndex}
		vx.LinkAttrs.ParentIndex = 0
		if v.Vxlan.Remote != nil {
			vx.Group = net.ParseIP(*v.Vxlan.Remote)
		}
		if v.Vxlan.Local != nil {
			vx.SrcAddr = net.ParseIP(*v.Vxlan.Local)
		}
		if v.Vxlan.DstPort != nil {
			vx.Port = int(*v.Vxlan.DstPort)
		}
		return vx, nil
	case *state.VrfInterface:
		if v.Vrf == nil || v.Vrf.TableID == 0 {
			return nil, errors.NewInvalidArgument("vrf %s has no route-table-id", b.Name)
		}
		return &netlink.Vrf{LinkAttrs: attrs, Table: uint32(v.Vrf.TableID)}, nil
	case *state.MacVlanInterface:
		mv := &netlink.Macvlan{LinkAttrs: attrs}
		if v.MacVlan != nil {
			mv.Mode = macvlanModes[v.MacVlan.Mode]
		}
		return mv, nil
	case *state.MacVtapInterface:
		mv := netlink.Macvlan{LinkAttrs: attrs}
		if v.MacVtap != nil {
			mv.Mode = macvlanModes[v.MacVtap.Mode]
		}
		return &netlink.Macvtap{Macvlan: mv}, nil
	case *state.InfiniBandInterface:
		ib := &netlink.IPoIB{LinkAttrs: attrs}
		if v.InfiniBand != nil {
			if v.InfiniBand.Pkey != nil {
				ib.Pkey = uint16(*v.InfiniBand.Pkey)
			}
			if v.InfiniBand.Mode != nil && *v.InfiniBand.Mode == "connected" {
				ib.Mode = netlink.IPOIB_MODE_CONNECTED
			}
		}
		return ib, nil
	}

	if b.Type == state.InterfaceTypeDummy {
		return &netlink.Dummy{LinkAttrs: attrs}, nil
	}
	return nil, errors.NewNotImplemented("cannot create %s interface %s", b.Type, b.Name)
}
