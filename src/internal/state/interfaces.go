package state

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Key identifies an interface. Kernel interface names are unique; userspace
// interfaces (OVS bridges) live in their own namespace.
type Key struct {
	Name      string
	Userspace bool
}

func (k Key) String() string {
	if k.Userspace {
		return k.Name + " (userspace)"
	}
	return k.Name
}

// KeyOf returns the identity of iface.
func KeyOf(iface Interface) Key {
	b := iface.Base()
	return Key{Name: b.Name, Userspace: b.Type.IsUserspace()}
}

// Interfaces is an insertion-ordered interface collection.
// The zero value is ready to use.
type Interfaces struct {
	byKey map[Key]Interface
	order []Key
}

// NewInterfaces builds a collection from ifaces. Later entries replace
// earlier ones with the same key.
func NewInterfaces(ifaces ...Interface) Interfaces {
	var out Interfaces
	for _, iface := range ifaces {
		out.Push(iface)
	}
	return out
}

// Push inserts iface or replaces the entry with the same key in place.
func (c *Interfaces) Push(iface Interface) {
	if c.byKey == nil {
		c.byKey = map[Key]Interface{}
	}
	key := KeyOf(iface)
	if _, ok := c.byKey[key]; !ok {
		c.order = append(c.order, key)
	}
	c.byKey[key] = iface
}

// Replace swaps the entry stored under old for iface, keeping its position.
func (c *Interfaces) Replace(old Key, iface Interface) {
	if _, ok := c.byKey[old]; !ok {
		c.Push(iface)
		return
	}
	key := KeyOf(iface)
	delete(c.byKey, old)
	for i, k := range c.order {
		if k == old {
			c.order[i] = key
			break
		}
	}
	c.byKey[key] = iface
}

// Remove drops the entry with key, if any.
func (c *Interfaces) Remove(key Key) {
	if _, ok := c.byKey[key]; !ok {
		return
	}
	delete(c.byKey, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i:i], c.order[i+1:]...)
			break
		}
	}
}

func (c *Interfaces) Get(key Key) Interface {
	return c.byKey[key]
}

// Kernel returns the kernel interface called name.
func (c *Interfaces) Kernel(name string) Interface {
	return c.byKey[Key{Name: name}]
}

// Userspace returns the userspace interface called name.
func (c *Interfaces) Userspace(name string) Interface {
	return c.byKey[Key{Name: name, Userspace: true}]
}

// Lookup returns the interface called name, preferring the kernel one.
func (c *Interfaces) Lookup(name string) Interface {
	if iface := c.Kernel(name); iface != nil {
		return iface
	}
	return c.Userspace(name)
}

// FindController resolves a controller reference. A kernel interface wins
// when it can own ports; otherwise an OVS bridge of that name is used.
func (c *Interfaces) FindController(name string) Interface {
	if iface := c.Kernel(name); iface != nil && iface.Base().Type.IsController() {
		return iface
	}
	if iface := c.Userspace(name); iface != nil {
		return iface
	}
	return nil
}

// PortsOf returns the names of interfaces whose controller is name.
func (c *Interfaces) PortsOf(name string) []string {
	var out []string
	for _, iface := range c.List() {
		if iface.Base().ControllerName() == name {
			out = append(out, iface.Base().Name)
		}
	}
	sort.Strings(out)
	return out
}

// List returns the interfaces in insertion order.
func (c *Interfaces) List() []Interface {
	out := make([]Interface, 0, len(c.order))
	for _, k := range c.order {
		out = append(out, c.byKey[k])
	}
	return out
}

// Keys returns the interface keys in insertion order.
func (c *Interfaces) Keys() []Key {
	return append([]Key(nil), c.order...)
}

func (c *Interfaces) Len() int {
	return len(c.order)
}

// Clone deep copies every interface.
func (c *Interfaces) Clone() Interfaces {
	var out Interfaces
	for _, iface := range c.List() {
		out.Push(iface.Clone())
	}
	return out
}

func (c Interfaces) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.List())
}

func (c *Interfaces) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return err
	}
	*c = Interfaces{}
	for i, raw := range raws {
		iface, err := DecodeInterface(raw)
		if err != nil {
			return fmt.Errorf("interfaces[%d]: %w", i, err)
		}
		if c.Get(KeyOf(iface)) != nil {
			return fmt.Errorf("interfaces[%d]: duplicate interface %s", i, KeyOf(iface))
		}
		c.Push(iface)
	}
	return nil
}

// DecodeInterface decodes one interface record, picking the variant from its
// "type" key and recording which keys were present.
func DecodeInterface(data []byte) (Interface, error) {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, err
	}

	var t InterfaceType
	if raw, ok := keys["type"]; ok {
		if err := json.Unmarshal(raw, &t); err != nil {
			return nil, fmt.Errorf("invalid type: %w", err)
		}
	}
	return decodeAs(data, keys, t)
}

// ResolveType re-decodes an untyped interface as type t. Interfaces that
// already have a type are returned unchanged.
func ResolveType(iface Interface, t InterfaceType) (Interface, error) {
	g, ok := iface.(*GenericInterface)
	if !ok || g.Type != "" {
		return iface, nil
	}
	if g.raw == nil {
		out := NewInterface(g.Name, t)
		b := out.Base()
		*b = *cloneOf(&g.BaseInterface)
		b.Type = t
		return out, nil
	}

	var keys map[string]json.RawMessage
	if err := json.Unmarshal(g.raw, &keys); err != nil {
		return nil, err
	}
	return decodeAs(g.raw, keys, t)
}

func decodeAs(data []byte, keys map[string]json.RawMessage, t InterfaceType) (Interface, error) {
	iface := NewInterface("", t)
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(iface); err != nil {
		return nil, err
	}

	b := iface.Base()
	b.Type = t
	b.PropList = make([]string, 0, len(keys))
	for k := range keys {
		b.PropList = append(b.PropList, k)
	}
	sort.Strings(b.PropList)

	if b.IPv4 != nil {
		b.IPv4.PropList = ipPropList(keys["ipv4"])
	}
	if b.IPv6 != nil {
		b.IPv6.PropList = ipPropList(keys["ipv6"])
	}
	if g, ok := iface.(*GenericInterface); ok && t == "" {
		g.raw = append([]byte(nil), data...)
	}
	return iface, nil
}

func ipPropList(raw json.RawMessage) []string {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err != nil {
		return nil
	}
	out := make([]string, 0, len(keys))
	for k := range keys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
