package state

import (
	"reflect"
)

// MergeInterface overlays the properties desired explicitly specified on top of
// current and returns the result. Neither argument is modified.
//
// Only keys recorded in desired's PropList are taken from desired; the rest is
// kept from current. IP configuration is merged the same way, key by key.
func MergeInterface(current, desired Interface) Interface {
	if current == nil {
		return desired.Clone()
	}
	out := current.Clone()
	b := out.Base()
	d := desired.Base()

	for _, prop := range d.PropList {
		switch prop {
		case "name", "type":
		case "state":
			b.State = d.State
		case "mtu":
			b.MTU = clonePtr(d.MTU)
		case "mac-address":
			b.MacAddress = clonePtr(d.MacAddress)
		case "controller":
			b.Controller = clonePtr(d.Controller)
		case "ipv4":
			b.IPv4 = mergeIP(b.IPv4, d.IPv4)
		case "ipv6":
			b.IPv6 = mergeIP(b.IPv6, d.IPv6)
		default:
			out.MergeSection(prop, desired)
		}
	}

	if d.ControllerType != "" {
		b.ControllerType = d.ControllerType
	}
	b.Routes = nil
	b.Rules = nil
	b.PropList = append([]string(nil), d.PropList...)
	return out
}

func mergeIP(current, desired *InterfaceIP) *InterfaceIP {
	if desired == nil {
		return nil
	}
	if current == nil {
		return cloneOf(desired)
	}
	out := cloneOf(current)
	for _, prop := range desired.PropList {
		switch prop {
		case "enabled":
			out.Enabled = clonePtr(desired.Enabled)
			if desired.Enabled != nil && !*desired.Enabled && !desired.specified("address") {
				out.Addresses = nil
				out.DHCP = nil
				out.Autoconf = nil
			}
		case "dhcp":
			out.DHCP = clonePtr(desired.DHCP)
		case "autoconf":
			out.Autoconf = clonePtr(desired.Autoconf)
		case "address":
			out.Addresses = cloneSlice(desired.Addresses)
		case "auto-route-table-id":
			out.AutoRouteTableID = clonePtr(desired.AutoRouteTableID)
		}
	}
	out.PropList = append([]string(nil), desired.PropList...)
	return out
}

// mergeSection overlays src onto *dst field by field. Nil pointers, nil
// slices and zero scalars in src leave the destination untouched.
func mergeSection[T any](dst **T, src *T) {
	if src == nil {
		return
	}
	if *dst == nil {
		*dst = cloneOf(src)
		return
	}
	overlay(reflect.ValueOf(*dst).Elem(), reflect.ValueOf(src).Elem())
}

func overlay(dst, src reflect.Value) {
	for i := 0; i < src.NumField(); i++ {
		df := dst.Field(i)
		if !df.CanSet() {
			continue
		}
		sf := src.Field(i)
		switch sf.Kind() {
		case reflect.Ptr:
			if sf.IsNil() {
				continue
			}
			if df.IsNil() || sf.Elem().Kind() != reflect.Struct {
				df.Set(deepCopy(sf))
				continue
			}
			overlay(df.Elem(), sf.Elem())
		case reflect.Slice, reflect.Map:
			if !sf.IsNil() {
				df.Set(deepCopy(sf))
			}
		case reflect.Struct:
			overlay(df, sf)
		default:
			if !sf.IsZero() {
				df.Set(sf)
			}
		}
	}
}

// cloneOf returns a deep copy of v.
func cloneOf[T any](v *T) *T {
	if v == nil {
		return nil
	}
	return deepCopy(reflect.ValueOf(v)).Interface().(*T)
}

func clonePtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// deepCopy copies pointers, slices, maps and exported struct fields.
// Unexported fields are copied shallowly.
func deepCopy(src reflect.Value) reflect.Value {
	switch src.Kind() {
	case reflect.Ptr:
		if src.IsNil() {
			return reflect.Zero(src.Type())
		}
		dst := reflect.New(src.Type().Elem())
		dst.Elem().Set(deepCopy(src.Elem()))
		return dst
	case reflect.Interface:
		if src.IsNil() {
			return reflect.Zero(src.Type())
		}
		dst := reflect.New(src.Type()).Elem()
		dst.Set(deepCopy(src.Elem()))
		return dst
	case reflect.Slice:
		if src.IsNil() {
			return reflect.Zero(src.Type())
		}
		dst := reflect.MakeSlice(src.Type(), src.Len(), src.Len())
		for i := 0; i < src.Len(); i++ {
			dst.Index(i).Set(deepCopy(src.Index(i)))
		}
		return dst
	case reflect.Map:
		if src.IsNil() {
			return reflect.Zero(src.Type())
		}
		dst := reflect.MakeMapWithSize(src.Type(), src.Len())
		iter := src.MapRange()
		for iter.Next() {
			dst.SetMapIndex(iter.Key(), deepCopy(iter.Value()))
		}
		return dst
	case reflect.Struct:
		dst := reflect.New(src.Type()).Elem()
		dst.Set(src)
		for i := 0; i < src.NumField(); i++ {
			if !dst.Field(i).CanSet() {
				continue
			}
			dst.Field(i).Set(deepCopy(src.Field(i)))
		}
		return dst
	default:
		return src
	}
}
