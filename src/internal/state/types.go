package state

// InterfaceType is the resolved kind of an interface.
type InterfaceType string

const (
	InterfaceTypeEthernet     InterfaceType = "ethernet"
	InterfaceTypeVeth         InterfaceType = "veth"
	InterfaceTypeBond         InterfaceType = "bond"
	InterfaceTypeLinuxBridge  InterfaceType = "linux-bridge"
	InterfaceTypeOvsBridge    InterfaceType = "ovs-bridge"
	InterfaceTypeOvsInterface InterfaceType = "ovs-interface"
	InterfaceTypeVlan         InterfaceType = "vlan"
	InterfaceTypeVxlan        InterfaceType = "vxlan"
	InterfaceTypeVrf          InterfaceType = "vrf"
	InterfaceTypeMacVlan      InterfaceType = "mac-vlan"
	InterfaceTypeMacVtap      InterfaceType = "mac-vtap"
	InterfaceTypeInfiniBand   InterfaceType = "infiniband"
	InterfaceTypeDummy        InterfaceType = "dummy"
	InterfaceTypeLoopback     InterfaceType = "loopback"
	InterfaceTypeUnknown      InterfaceType = "unknown"
)

// IsController reports whether interfaces of this type own ports.
func (t InterfaceType) IsController() bool {
	switch t {
	case InterfaceTypeBond, InterfaceTypeLinuxBridge, InterfaceTypeOvsBridge, InterfaceTypeVrf:
		return true
	}
	return false
}

// IsUserspace reports whether the interface lives outside the kernel
// namespace, so its name may collide with a kernel interface.
func (t InterfaceType) IsUserspace() bool {
	return t == InterfaceTypeOvsBridge
}

// IsResolved reports whether the type is concrete enough to create an interface.
func (t InterfaceType) IsResolved() bool {
	return t != "" && t != InterfaceTypeUnknown
}

// InterfaceState is the administrative state requested for an interface.
type InterfaceState string

const (
	InterfaceStateUp     InterfaceState = "up"
	InterfaceStateDown   InterfaceState = "down"
	InterfaceStateAbsent InterfaceState = "absent"
	InterfaceStateIgnore InterfaceState = "ignore"
)

// BaseInterface holds the attributes shared by every interface variant.
//
// Fields tagged json:"-" are derived by the engine and never read from a document.
type BaseInterface struct {
	Name       string         `json:"name" validate:"required,max=15"`
	Type       InterfaceType  `json:"type,omitempty"`
	State      InterfaceState `json:"state,omitempty" validate:"omitempty,oneof=up down absent ignore"`
	MTU        *Uint64        `json:"mtu,omitempty" validate:"omitempty,min=68"`
	MacAddress *string        `json:"mac-address,omitempty" validate:"omitempty,mac"`
	Controller *string        `json:"controller,omitempty"`
	IPv4       *InterfaceIP   `json:"ipv4,omitempty"`
	IPv6       *InterfaceIP   `json:"ipv6,omitempty"`

	ControllerType InterfaceType    `json:"-"`
	UpPriority     uint32           `json:"-"`
	Routes         []RouteEntry     `json:"-"`
	Rules          []RouteRuleEntry `json:"-"`
	// PropList holds the top level keys the document specified for this interface.
	PropList []string `json:"-"`
}

// Base gives variants access to their shared record.
func (b *BaseInterface) Base() *BaseInterface {
	return b
}

// Ports returns nil: plain interfaces have no port list.
func (b *BaseInterface) Ports() []string {
	return nil
}

// SetPorts is a no-op for interfaces that cannot own ports.
func (b *BaseInterface) SetPorts([]string) {}

// Parent returns "" for interfaces that are not stacked on another one.
func (b *BaseInterface) Parent() string {
	return ""
}

// MergeSection returns false: the shared record has no variant sections.
func (b *BaseInterface) MergeSection(string, Interface) bool {
	return false
}

func (b *BaseInterface) IsAbsent() bool {
	return b.State == InterfaceStateAbsent
}

func (b *BaseInterface) IsIgnore() bool {
	return b.State == InterfaceStateIgnore
}

// IsUp treats an unspecified state as up.
func (b *BaseInterface) IsUp() bool {
	return b.State == InterfaceStateUp || b.State == ""
}

// ControllerName returns the controller reference, "" when there is none.
func (b *BaseInterface) ControllerName() string {
	if b.Controller == nil {
		return ""
	}
	return *b.Controller
}

// Specified reports whether the document explicitly set prop.
func (b *BaseInterface) Specified(prop string) bool {
	for _, p := range b.PropList {
		if p == prop {
			return true
		}
	}
	return false
}

// Specify records prop as explicitly set.
func (b *BaseInterface) Specify(props ...string) {
	for _, p := range props {
		if !b.Specified(p) {
			b.PropList = append(b.PropList, p)
		}
	}
}

// Unspecify drops prop from the explicit property list.
func (b *BaseInterface) Unspecify(prop string) {
	out := b.PropList[:0]
	for _, p := range b.PropList {
		if p != prop {
			out = append(out, p)
		}
	}
	b.PropList = out
}

// CanHaveIP reports whether the interface may carry its own addresses.
// Ports cannot, except OVS internal interfaces and VRF ports.
func (b *BaseInterface) CanHaveIP() bool {
	if b.ControllerName() == "" {
		return true
	}
	return b.Type == InterfaceTypeOvsInterface || b.ControllerType == InterfaceTypeVrf
}

// InterfaceIP is the IPv4 or IPv6 configuration of an interface.
type InterfaceIP struct {
	Enabled          *bool             `json:"enabled,omitempty"`
	DHCP             *bool             `json:"dhcp,omitempty" verify:"skip"`
	Autoconf         *bool             `json:"autoconf,omitempty" verify:"skip"`
	Addresses        []InterfaceIPAddr `json:"address,omitempty" validate:"omitempty,dive"`
	AutoRouteTableID *Uint32           `json:"auto-route-table-id,omitempty"`

	PropList []string `json:"-"`
}

// InterfaceIPAddr is a static address.
type InterfaceIPAddr struct {
	IP           string `json:"ip" validate:"required,ip"`
	PrefixLength uint8  `json:"prefix-length" validate:"lte=128"`
}

// IsEnabled treats an unspecified flag as enabled when addresses are present.
func (ip *InterfaceIP) IsEnabled() bool {
	if ip == nil {
		return false
	}
	if ip.Enabled != nil {
		return *ip.Enabled
	}
	return len(ip.Addresses) > 0 || ip.isDynamic()
}

func (ip *InterfaceIP) isDynamic() bool {
	return (ip.DHCP != nil && *ip.DHCP) || (ip.Autoconf != nil && *ip.Autoconf)
}

func (ip *InterfaceIP) specified(prop string) bool {
	for _, p := range ip.PropList {
		if p == prop {
			return true
		}
	}
	return false
}
