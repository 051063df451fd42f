package reconcile

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/maksimkurb/keen-netstate/src/internal/state"
)

// matchInterface checks that every field desired specifies has the same value
// in observed. Unset pointers, nil slices and zero scalars in desired are
// wildcards. A value reached through a set pointer is compared strictly, so
// controller: "" only matches an interface without a controller.
//
// Slices are compared element by element and must have the same length;
// callers sanitize both sides first so lists are sorted.
func matchInterface(desired, observed state.Interface) error {
	dv := reflect.ValueOf(desired).Elem()
	ov := reflect.ValueOf(observed).Elem()
	if dv.Type() != ov.Type() {
		if _, ok := desired.(*state.GenericInterface); ok {
			return matchValue("", reflect.ValueOf(desired.Base()).Elem(), reflect.ValueOf(observed.Base()).Elem(), false)
		}
		return fmt.Errorf("type: expected %s, got %s", desired.Base().Type, observed.Base().Type)
	}
	return matchValue("", dv, ov, false)
}

func matchValue(path string, d, o reflect.Value, strict bool) error {
	switch d.Kind() {
	case reflect.Ptr:
		if d.IsNil() {
			return nil
		}
		if o.IsNil() {
			return matchValue(path, d.Elem(), reflect.Zero(d.Type().Elem()), true)
		}
		return matchValue(path, d.Elem(), o.Elem(), true)

	case reflect.Interface:
		if d.IsNil() {
			return nil
		}
		if o.IsNil() {
			return fmt.Errorf("%s: expected %v, got nothing", fieldName(path), d.Interface())
		}
		return matchValue(path, d.Elem(), o.Elem(), strict)

	case reflect.Struct:
		t := d.Type()
		for i := 0; i < d.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() || f.Tag.Get("verify") == "skip" {
				continue
			}
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				continue
			}
			sub := path
			if !f.Anonymous {
				sub = joinPath(path, name)
			}
			if err := matchValue(sub, d.Field(i), o.Field(i), false); err != nil {
				return err
			}
		}
		return nil

	case reflect.Slice:
		if d.IsNil() {
			return nil
		}
		if d.Len() != o.Len() {
			return fmt.Errorf("%s: expected %s, got %s", fieldName(path), render(d), render(o))
		}
		for i := 0; i < d.Len(); i++ {
			if err := matchValue(fmt.Sprintf("%s[%d]", path, i), d.Index(i), o.Index(i), true); err != nil {
				return err
			}
		}
		return nil

	case reflect.Map:
		if d.IsNil() {
			return nil
		}
		iter := d.MapRange()
		for iter.Next() {
			ov := o.MapIndex(iter.Key())
			if !ov.IsValid() {
				return fmt.Errorf("%s: missing key %v", fieldName(path), iter.Key().Interface())
			}
			if err := matchValue(fmt.Sprintf("%s.%v", path, iter.Key().Interface()), iter.Value(), ov, true); err != nil {
				return err
			}
		}
		return nil

	default:
		if !strict && d.IsZero() {
			return nil
		}
		if !d.Equal(o) {
			return fmt.Errorf("%s: expected %v, got %v", fieldName(path), d.Interface(), o.Interface())
		}
		return nil
	}
}

func joinPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

func fieldName(path string) string {
	if path == "" {
		return "value"
	}
	return path
}

func render(v reflect.Value) string {
	if v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.String {
		parts := make([]string, v.Len())
		for i := range parts {
			parts[i] = v.Index(i).String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	return fmt.Sprintf("%v", v.Interface())
}

// equivalentInterface reports whether applying merged on top of current would
// change nothing.
func equivalentInterface(merged, current state.Interface) bool {
	return matchInterface(merged, current) == nil
}

// matchRouteSet reports whether want and have describe the same routes: every
// entry of want matches a distinct entry of have and nothing is left over.
func matchRouteSet(want, have []state.RouteEntry) bool {
	if len(want) != len(have) {
		return false
	}
	used := make([]bool, len(have))
	for _, w := range want {
		found := false
		for i, h := range have {
			if !used[i] && w.Matches(h) {
				used[i] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// matchRuleSet is matchRouteSet for rules.
func matchRuleSet(want, have []state.RouteRuleEntry) bool {
	if len(want) != len(have) {
		return false
	}
	used := make([]bool, len(have))
	for _, w := range want {
		found := false
		for i, h := range have {
			if !used[i] && w.Matches(h) {
				used[i] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
