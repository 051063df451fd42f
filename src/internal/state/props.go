package state

import (
	"encoding/json"
	"sort"
)

// MarkAllSpecified fills the PropList of iface (and of its IP sections) with
// every key it would render. Snapshots taken from the kernel use it before
// being replayed as a desired state.
func MarkAllSpecified(iface Interface) {
	b := iface.Base()
	b.PropList = renderedKeys(iface)
	if b.IPv4 != nil {
		b.IPv4.PropList = renderedKeys(b.IPv4)
	}
	if b.IPv6 != nil {
		b.IPv6.PropList = renderedKeys(b.IPv6)
	}
}

func renderedKeys(v interface{}) []string {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil
	}
	out := make([]string, 0, len(keys))
	for k := range keys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
