package state

import (
	"sort"
)

// Interface is implemented by every interface variant.
//
// Shared attributes live in the BaseInterface returned by Base; the methods
// below expose the variant-specific bits the engine needs without a type switch.
type Interface interface {
	Base() *BaseInterface
	// Ports lists port names of a controller. nil means "not specified",
	// an empty non-nil slice means "no ports".
	Ports() []string
	SetPorts(ports []string)
	// Parent names the interface this one is stacked on (VLAN base, etc).
	Parent() string
	// MergeSection overlays the variant section stored under key in desired.
	// It returns false when key is not a section of this variant.
	MergeSection(key string, desired Interface) bool
	Clone() Interface
}

// NewInterface returns an empty interface of the given type.
func NewInterface(name string, t InterfaceType) Interface {
	var iface Interface
	switch t {
	case InterfaceTypeEthernet:
		iface = &EthernetInterface{}
	case InterfaceTypeVeth:
		iface = &VethInterface{}
	case InterfaceTypeBond:
		iface = &BondInterface{}
	case InterfaceTypeLinuxBridge:
		iface = &LinuxBridgeInterface{}
	case InterfaceTypeOvsBridge:
		iface = &OvsBridgeInterface{}
	case InterfaceTypeOvsInterface:
		iface = &OvsInterface{}
	case InterfaceTypeVlan:
		iface = &VlanInterface{}
	case InterfaceTypeVxlan:
		iface = &VxlanInterface{}
	case InterfaceTypeVrf:
		iface = &VrfInterface{}
	case InterfaceTypeMacVlan:
		iface = &MacVlanInterface{}
	case InterfaceTypeMacVtap:
		iface = &MacVtapInterface{}
	case InterfaceTypeInfiniBand:
		iface = &InfiniBandInterface{}
	default:
		iface = &GenericInterface{}
	}
	iface.Base().Name = name
	iface.Base().Type = t
	return iface
}

// EthernetConfig holds link settings of physical and veth interfaces.
type EthernetConfig struct {
	AutoNegotiation *bool   `json:"auto-negotiation,omitempty"`
	Speed           *Uint32 `json:"speed,omitempty"`
	Duplex          *string `json:"duplex,omitempty" validate:"omitempty,oneof=full half"`
}

type EthernetInterface struct {
	BaseInterface
	Ethernet *EthernetConfig `json:"ethernet,omitempty"`
}

func (i *EthernetInterface) MergeSection(key string, desired Interface) bool {
	d, ok := desired.(*EthernetInterface)
	if !ok || key != "ethernet" {
		return false
	}
	mergeSection(&i.Ethernet, d.Ethernet)
	return true
}

func (i *EthernetInterface) Clone() Interface { return cloneOf(i) }

type VethConfig struct {
	Peer string `json:"peer" validate:"required"`
}

type VethInterface struct {
	BaseInterface
	Ethernet *EthernetConfig `json:"ethernet,omitempty"`
	Veth     *VethConfig     `json:"veth,omitempty"`
}

// PeerName returns the declared peer, "" when unknown.
func (i *VethInterface) PeerName() string {
	if i.Veth == nil {
		return ""
	}
	return i.Veth.Peer
}

func (i *VethInterface) MergeSection(key string, desired Interface) bool {
	d, ok := desired.(*VethInterface)
	if !ok {
		return false
	}
	switch key {
	case "ethernet":
		mergeSection(&i.Ethernet, d.Ethernet)
	case "veth":
		mergeSection(&i.Veth, d.Veth)
	default:
		return false
	}
	return true
}

func (i *VethInterface) Clone() Interface { return cloneOf(i) }

type BondOptions struct {
	Miimon          *Uint32 `json:"miimon,omitempty"`
	UpDelay         *Uint32 `json:"updelay,omitempty"`
	DownDelay       *Uint32 `json:"downdelay,omitempty"`
	XmitHashPolicy  *string `json:"xmit_hash_policy,omitempty"`
	LacpRate        *string `json:"lacp_rate,omitempty" validate:"omitempty,oneof=slow fast"`
	AllSlavesActive *string `json:"all_slaves_active,omitempty"`
}

type BondConfig struct {
	Mode    *string      `json:"mode,omitempty" validate:"omitempty,oneof=balance-rr active-backup balance-xor broadcast 802.3ad balance-tlb balance-alb"`
	Ports   []string     `json:"port,omitempty"`
	Options *BondOptions `json:"options,omitempty"`
}

type BondInterface struct {
	BaseInterface
	Bond *BondConfig `json:"link-aggregation,omitempty"`
}

func (i *BondInterface) Ports() []string {
	if i.Bond == nil {
		return nil
	}
	return i.Bond.Ports
}

func (i *BondInterface) SetPorts(ports []string) {
	if i.Bond == nil {
		i.Bond = &BondConfig{}
	}
	i.Bond.Ports = sortedCopy(ports)
}

func (i *BondInterface) MergeSection(key string, desired Interface) bool {
	d, ok := desired.(*BondInterface)
	if !ok || key != "link-aggregation" {
		return false
	}
	mergeSection(&i.Bond, d.Bond)
	return true
}

func (i *BondInterface) Clone() Interface { return cloneOf(i) }

type StpOptions struct {
	Enabled      *bool   `json:"enabled,omitempty"`
	ForwardDelay *Uint16 `json:"forward-delay,omitempty"`
	HelloTime    *Uint16 `json:"hello-time,omitempty"`
	MaxAge       *Uint16 `json:"max-age,omitempty"`
	Priority     *Uint16 `json:"priority,omitempty"`
}

type LinuxBridgeOptions struct {
	Stp           *StpOptions `json:"stp,omitempty"`
	MacAgeingTime *Uint32     `json:"mac-ageing-time,omitempty"`
	VlanFiltering *bool       `json:"vlan-filtering,omitempty"`
}

type LinuxBridgePortConfig struct {
	Name           string  `json:"name" validate:"required"`
	StpHairpinMode *bool   `json:"stp-hairpin-mode,omitempty"`
	StpPathCost    *Uint32 `json:"stp-path-cost,omitempty"`
	StpPriority    *Uint16 `json:"stp-priority,omitempty"`
}

type LinuxBridgeConfig struct {
	Options *LinuxBridgeOptions     `json:"options,omitempty"`
	Ports   []LinuxBridgePortConfig `json:"port,omitempty" validate:"omitempty,dive"`
}

type LinuxBridgeInterface struct {
	BaseInterface
	Bridge *LinuxBridgeConfig `json:"bridge,omitempty"`
}

func (i *LinuxBridgeInterface) Ports() []string {
	if i.Bridge == nil || i.Bridge.Ports == nil {
		return nil
	}
	names := make([]string, 0, len(i.Bridge.Ports))
	for _, p := range i.Bridge.Ports {
		names = append(names, p.Name)
	}
	return names
}

// SetPorts keeps per-port settings of ports that stay attached.
func (i *LinuxBridgeInterface) SetPorts(ports []string) {
	if i.Bridge == nil {
		i.Bridge = &LinuxBridgeConfig{}
	}
	existing := make(map[string]LinuxBridgePortConfig, len(i.Bridge.Ports))
	for _, p := range i.Bridge.Ports {
		existing[p.Name] = p
	}
	out := make([]LinuxBridgePortConfig, 0, len(ports))
	for _, name := range sortedCopy(ports) {
		if p, ok := existing[name]; ok {
			out = append(out, p)
		} else {
			out = append(out, LinuxBridgePortConfig{Name: name})
		}
	}
	i.Bridge.Ports = out
}

func (i *LinuxBridgeInterface) MergeSection(key string, desired Interface) bool {
	d, ok := desired.(*LinuxBridgeInterface)
	if !ok || key != "bridge" {
		return false
	}
	mergeSection(&i.Bridge, d.Bridge)
	return true
}

func (i *LinuxBridgeInterface) Clone() Interface { return cloneOf(i) }

type OvsBridgeOptions struct {
	Stp                 *StpOptions `json:"stp,omitempty"`
	Rstp                *bool       `json:"rstp,omitempty"`
	McastSnoopingEnable *bool       `json:"mcast-snooping-enable,omitempty"`
	FailMode            *string     `json:"fail-mode,omitempty" validate:"omitempty,oneof=secure standalone"`
}

type OvsBondPortConfig struct {
	Name string `json:"name" validate:"required"`
}

type OvsBondConfig struct {
	Mode  *string             `json:"mode,omitempty" validate:"omitempty,oneof=active-backup balance-slb balance-tcp lacp"`
	Ports []OvsBondPortConfig `json:"port,omitempty" validate:"omitempty,dive"`
}

// OvsBridgePortConfig is either a plain port or, with Bond set, a bonded port
// whose members are system interfaces.
type OvsBridgePortConfig struct {
	Name string         `json:"name" validate:"required"`
	Bond *OvsBondConfig `json:"link-aggregation,omitempty"`
}

type OvsBridgeConfig struct {
	Options *OvsBridgeOptions     `json:"options,omitempty"`
	Ports   []OvsBridgePortConfig `json:"port,omitempty" validate:"omitempty,dive"`
}

type OvsBridgeInterface struct {
	BaseInterface
	Bridge *OvsBridgeConfig `json:"bridge,omitempty"`
}

// Ports flattens bonded ports into their members.
func (i *OvsBridgeInterface) Ports() []string {
	if i.Bridge == nil || i.Bridge.Ports == nil {
		return nil
	}
	names := make([]string, 0, len(i.Bridge.Ports))
	for _, p := range i.Bridge.Ports {
		if p.Bond != nil {
			for _, m := range p.Bond.Ports {
				names = append(names, m.Name)
			}
			continue
		}
		names = append(names, p.Name)
	}
	return names
}

func (i *OvsBridgeInterface) SetPorts(ports []string) {
	if i.Bridge == nil {
		i.Bridge = &OvsBridgeConfig{}
	}
	wanted := make(map[string]bool, len(ports))
	for _, p := range ports {
		wanted[p] = true
	}

	out := make([]OvsBridgePortConfig, 0, len(ports))
	covered := map[string]bool{}
	for _, p := range i.Bridge.Ports {
		if p.Bond == nil {
			if wanted[p.Name] {
				out = append(out, p)
				covered[p.Name] = true
			}
			continue
		}
		members := make([]OvsBondPortConfig, 0, len(p.Bond.Ports))
		for _, m := range p.Bond.Ports {
			if wanted[m.Name] {
				members = append(members, m)
				covered[m.Name] = true
			}
		}
		if len(members) > 0 {
			bond := *p.Bond
			bond.Ports = members
			out = append(out, OvsBridgePortConfig{Name: p.Name, Bond: &bond})
		}
	}
	for _, name := range sortedCopy(ports) {
		if !covered[name] {
			out = append(out, OvsBridgePortConfig{Name: name})
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	i.Bridge.Ports = out
}

func (i *OvsBridgeInterface) MergeSection(key string, desired Interface) bool {
	d, ok := desired.(*OvsBridgeInterface)
	if !ok || key != "bridge" {
		return false
	}
	mergeSection(&i.Bridge, d.Bridge)
	return true
}

func (i *OvsBridgeInterface) Clone() Interface { return cloneOf(i) }

type OvsPatchConfig struct {
	Peer string `json:"peer" validate:"required"`
}

// OvsInterface is an OVS internal interface, usually implied by a bridge port.
type OvsInterface struct {
	BaseInterface
	Patch *OvsPatchConfig `json:"patch,omitempty"`
}

func (i *OvsInterface) MergeSection(key string, desired Interface) bool {
	d, ok := desired.(*OvsInterface)
	if !ok || key != "patch" {
		return false
	}
	mergeSection(&i.Patch, d.Patch)
	return true
}

func (i *OvsInterface) Clone() Interface { return cloneOf(i) }

type VlanConfig struct {
	BaseIface string  `json:"base-iface" validate:"required"`
	ID        Uint16  `json:"id" validate:"lte=4094"`
	Protocol  *string `json:"protocol,omitempty" validate:"omitempty,oneof=802.1q 802.1ad"`
}

type VlanInterface struct {
	BaseInterface
	Vlan *VlanConfig `json:"vlan,omitempty"`
}

func (i *VlanInterface) Parent() string {
	if i.Vlan == nil {
		return ""
	}
	return i.Vlan.BaseIface
}

func (i *VlanInterface) MergeSection(key string, desired Interface) bool {
	d, ok := desired.(*VlanInterface)
	if !ok || key != "vlan" {
		return false
	}
	mergeSection(&i.Vlan, d.Vlan)
	return true
}

func (i *VlanInterface) Clone() Interface { return cloneOf(i) }

type VxlanConfig struct {
	BaseIface string  `json:"base-iface,omitempty"`
	ID        Uint32  `json:"id" validate:"lte=16777215"`
	Remote    *string `json:"remote,omitempty" validate:"omitempty,ip"`
	Local     *string `json:"local,omitempty" validate:"omitempty,ip"`
	DstPort   *Uint16 `json:"destination-port,omitempty"`
}

type VxlanInterface struct {
	BaseInterface
	Vxlan *VxlanConfig `json:"vxlan,omitempty"`
}

func (i *VxlanInterface) Parent() string {
	if i.Vxlan == nil {
		return ""
	}
	return i.Vxlan.BaseIface
}

func (i *VxlanInterface) MergeSection(key string, desired Interface) bool {
	d, ok := desired.(*VxlanInterface)
	if !ok || key != "vxlan" {
		return false
	}
	mergeSection(&i.Vxlan, d.Vxlan)
	return true
}

func (i *VxlanInterface) Clone() Interface { return cloneOf(i) }

type VrfConfig struct {
	Ports   []string `json:"port,omitempty"`
	TableID Uint32   `json:"route-table-id,omitempty"`
}

type VrfInterface struct {
	BaseInterface
	Vrf *VrfConfig `json:"vrf,omitempty"`
}

func (i *VrfInterface) Ports() []string {
	if i.Vrf == nil {
		return nil
	}
	return i.Vrf.Ports
}

func (i *VrfInterface) SetPorts(ports []string) {
	if i.Vrf == nil {
		i.Vrf = &VrfConfig{}
	}
	i.Vrf.Ports = sortedCopy(ports)
}

func (i *VrfInterface) MergeSection(key string, desired Interface) bool {
	d, ok := desired.(*VrfInterface)
	if !ok || key != "vrf" {
		return false
	}
	mergeSection(&i.Vrf, d.Vrf)
	return true
}

func (i *VrfInterface) Clone() Interface { return cloneOf(i) }

type MacVlanConfig struct {
	BaseIface   string `json:"base-iface" validate:"required"`
	Mode        string `json:"mode,omitempty" validate:"omitempty,oneof=vepa bridge private passthru source"`
	Promiscuous *bool  `json:"promiscuous,omitempty"`
}

type MacVlanInterface struct {
	BaseInterface
	MacVlan *MacVlanConfig `json:"mac-vlan,omitempty"`
}

func (i *MacVlanInterface) Parent() string {
	if i.MacVlan == nil {
		return ""
	}
	return i.MacVlan.BaseIface
}

func (i *MacVlanInterface) MergeSection(key string, desired Interface) bool {
	d, ok := desired.(*MacVlanInterface)
	if !ok || key != "mac-vlan" {
		return false
	}
	mergeSection(&i.MacVlan, d.MacVlan)
	return true
}

func (i *MacVlanInterface) Clone() Interface { return cloneOf(i) }

type MacVtapInterface struct {
	BaseInterface
	MacVtap *MacVlanConfig `json:"mac-vtap,omitempty"`
}

func (i *MacVtapInterface) Parent() string {
	if i.MacVtap == nil {
		return ""
	}
	return i.MacVtap.BaseIface
}

func (i *MacVtapInterface) MergeSection(key string, desired Interface) bool {
	d, ok := desired.(*MacVtapInterface)
	if !ok || key != "mac-vtap" {
		return false
	}
	mergeSection(&i.MacVtap, d.MacVtap)
	return true
}

func (i *MacVtapInterface) Clone() Interface { return cloneOf(i) }

type InfiniBandConfig struct {
	BaseIface *string `json:"base-iface,omitempty"`
	Pkey      *Uint16 `json:"pkey,omitempty"`
	Mode      *string `json:"mode,omitempty" validate:"omitempty,oneof=datagram connected"`
}

type InfiniBandInterface struct {
	BaseInterface
	InfiniBand *InfiniBandConfig `json:"infiniband,omitempty"`
}

// Parent is only set for pkey sub-interfaces.
func (i *InfiniBandInterface) Parent() string {
	if i.InfiniBand == nil || i.InfiniBand.BaseIface == nil || i.InfiniBand.Pkey == nil {
		return ""
	}
	return *i.InfiniBand.BaseIface
}

func (i *InfiniBandInterface) MergeSection(key string, desired Interface) bool {
	d, ok := desired.(*InfiniBandInterface)
	if !ok || key != "infiniband" {
		return false
	}
	mergeSection(&i.InfiniBand, d.InfiniBand)
	return true
}

func (i *InfiniBandInterface) Clone() Interface { return cloneOf(i) }

// GenericInterface covers dummy, loopback and unknown interfaces, and desired
// entries that did not name a type yet.
type GenericInterface struct {
	BaseInterface

	// raw keeps the source document so the entry can be decoded again once the
	// type is known from the current state.
	raw []byte
}

func (i *GenericInterface) Clone() Interface { return cloneOf(i) }

func sortedCopy(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	return out
}
