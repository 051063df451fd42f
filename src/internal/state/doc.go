// Package state defines the network state model shared by the desired document,
// the observed kernel snapshot and the reconciliation engine.
//
// An interface is a tagged variant: every variant embeds BaseInterface and adds
// its own section (link-aggregation for bonds, bridge for bridges, vlan, ...).
// The Interface type exposes what the engine needs from a variant without a
// type switch: its base record, its port list, its parent and a section merge.
//
// Documents are YAML or JSON with kebab-case keys:
//
//	interfaces:
//	  - name: br0
//	    type: linux-bridge
//	    bridge:
//	      port:
//	        - name: eth1
//	routes:
//	  config:
//	    - destination: 0.0.0.0/0
//	      next-hop-interface: br0
//	      next-hop-address: 192.0.2.1
//	route-rules:
//	  config:
//	    - ip-to: 192.0.3.0/24
//	      route-table: 500
//
// Decoding records the keys each interface specified (PropList), which drives
// partial merging on top of the current state. Numeric fields accept numbers,
// numeric strings and 0x-prefixed hex strings.
package state
