// Package netmodel turns a canonical configuration tree into the temporal
// store's vocabulary: identity upserts for every named object the tree
// declares, plus the structural edges between them. Decomposition and edge
// derivation are the write path of every ingestion.
package netmodel

import (
	"fmt"
	"net/netip"
	"sort"

	"github.com/netscope-io/netscope/pkg/store"
	"github.com/netscope-io/netscope/pkg/tree"
)

// IPFieldPath is the schema path interface identities expose their
// configured addresses under. Cross-device session linking looks BGP
// neighbor addresses up at this path.
const IPFieldPath = "interfaces/interface/subinterfaces/subinterface/ipv4/addresses/address/ip"

// DeviceModel is the store-shaped form of one device's configuration.
type DeviceModel struct {
	Device  string
	Upserts []store.StateUpsert
	Edges   []store.StructuralEdge

	// Sessions maps each BGP neighbor address to the local interface whose
	// subnet contains it, when one exists. The engine resolves the remote
	// end of each session against the store after ingestion.
	Sessions map[string]store.Key
}

type sectionSpec struct {
	path string
	kind string
	key  string
}

// Decomposed sections, in the order their identities are emitted. Anything
// not listed stays in the device identity's residue document.
var sections = []sectionSpec{
	{path: "interfaces/interface", kind: store.KindInterface, key: "name"},
	{path: "vlans/vlan", kind: store.KindVLAN, key: "vlan-id"},
	{path: "acl/acl-sets/acl-set", kind: store.KindACL, key: "name"},
	{path: "routing/bgp/neighbors/neighbor", kind: store.KindBGPPeer, key: "neighbor-address"},
	{path: "routing/policy-definitions/policy-definition", kind: store.KindRouteMap, key: "name"},
	{path: "routing/defined-sets/prefix-sets/prefix-set", kind: store.KindPrefixSet, key: "name"},
	{path: "qos/service-policies", kind: store.KindQoSPolicy, key: "name"},
}

// Build decomposes a device's canonical tree and derives its structural
// edges. The input tree is not mutated.
func Build(device string, root tree.Tree) (*DeviceModel, error) {
	m := &DeviceModel{Device: device, Sessions: make(map[string]store.Key)}
	residue := tree.Clone(root).(tree.Tree)

	localAS := ""
	if global := mapAt(root, "routing", "bgp", "global", "config"); global != nil {
		if as := tree.ScalarString(global["as"]); as != "" && as != "<nil>" {
			localAS = as
		}
	}

	for _, spec := range sections {
		parts := tree.SplitPath(spec.path)
		list := listAt(residue, parts...)
		for i, item := range list {
			elem, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("netmodel: %s element %d on %s is not an object", spec.path, i, device)
			}
			name := tree.ScalarString(elem[spec.key])
			if name == "" || name == "<nil>" {
				return nil, fmt.Errorf("netmodel: %s element %d on %s has no %q key", spec.path, i, device, spec.key)
			}
			fields := flattenFields(spec.path, elem)
			// A peering is defined by the local AS as much as by the
			// neighbor: changing the AS changes every peering's state.
			if spec.kind == store.KindBGPPeer && localAS != "" {
				fields["routing/bgp/global/config/as"] = []string{localAS}
			}
			m.Upserts = append(m.Upserts, store.StateUpsert{
				Key:     store.Key{Kind: spec.kind, Device: device, Name: name},
				Section: spec.path,
				Ordinal: i,
				Doc:     elem,
				Fields:  fields,
			})
		}
		removeAt(residue, parts)
	}

	// The BGP instance is an identity of its own even though its global
	// block stays in the residue for tree reassembly.
	if global := mapAt(root, "routing", "bgp", "global", "config"); global != nil {
		name := tree.ScalarString(global["as"])
		if name == "" || name == "<nil>" {
			name = "default"
		}
		m.Upserts = append(m.Upserts, store.StateUpsert{
			Key:    store.Key{Kind: store.KindBGP, Device: device, Name: name},
			Fields: flattenFields("routing/bgp/global/config", global),
		})
	}

	m.Upserts = append(m.Upserts, networkUpserts(device, root)...)

	m.Upserts = append([]store.StateUpsert{{
		Key:    store.DeviceKey(device),
		Doc:    residue,
		Fields: map[string][]string{"device/hostname": {device}},
	}}, m.Upserts...)

	m.Edges = deriveEdges(device, root, m)
	return m, nil
}

// PeerAddresses returns the device's BGP neighbor addresses, sorted.
func (m *DeviceModel) PeerAddresses() []string {
	out := make([]string, 0, len(m.Sessions))
	for addr := range m.Sessions {
		out = append(out, addr)
	}
	for _, u := range m.Upserts {
		if u.Key.Kind == store.KindBGPPeer {
			if _, ok := m.Sessions[u.Key.Name]; !ok {
				out = append(out, u.Key.Name)
			}
		}
	}
	sort.Strings(out)
	return out
}

// networkUpserts emits one ip-network identity per distinct subnet the
// device has an address in.
func networkUpserts(device string, root tree.Tree) []store.StateUpsert {
	seen := map[string]bool{}
	var out []store.StateUpsert
	for _, iface := range listAt(root, "interfaces", "interface") {
		elem, _ := iface.(map[string]any)
		for _, prefix := range interfacePrefixes(elem) {
			name := prefix.Masked().String()
			if seen[name] {
				continue
			}
			seen[name] = true
			out = append(out, store.StateUpsert{
				Key:    store.Key{Kind: store.KindIPNetwork, Device: device, Name: name},
				Fields: map[string][]string{"ip-network/prefix": {name}},
			})
		}
	}
	return out
}

func deriveEdges(device string, root tree.Tree, m *DeviceModel) []store.StructuralEdge {
	deviceKey := store.DeviceKey(device)
	var edges []store.StructuralEdge
	add := func(from, to store.Key, t store.EdgeType) {
		edges = append(edges, store.StructuralEdge{From: from, To: to, Type: t, OwnerDevice: device})
	}

	for _, u := range m.Upserts {
		if u.Key != deviceKey {
			add(deviceKey, u.Key, store.EdgeOwns)
		}
	}

	vlanKey := func(v any) store.Key {
		return store.Key{Kind: store.KindVLAN, Device: device, Name: tree.ScalarString(v)}
	}

	for _, item := range listAt(root, "interfaces", "interface") {
		elem, _ := item.(map[string]any)
		ifKey := store.Key{Kind: store.KindInterface, Device: device, Name: tree.ScalarString(elem["name"])}

		if sw := mapAt(elem, "ethernet", "switched-vlan", "config"); sw != nil {
			if v, ok := sw["access-vlan"]; ok {
				add(ifKey, vlanKey(v), store.EdgeMemberOfVLAN)
			}
			if v, ok := sw["native-vlan"]; ok {
				add(ifKey, vlanKey(v), store.EdgeMemberOfVLAN)
			}
			if trunks, ok := sw["trunk-vlans"].([]any); ok {
				for _, v := range trunks {
					add(ifKey, vlanKey(v), store.EdgeMemberOfVLAN)
				}
			}
		}
		if acl := mapAt(elem, "acl"); acl != nil {
			if v, ok := acl["ingress-acl-set"]; ok {
				add(ifKey, store.Key{Kind: store.KindACL, Device: device, Name: tree.ScalarString(v)}, store.EdgeAppliesACLIn)
			}
			if v, ok := acl["egress-acl-set"]; ok {
				add(ifKey, store.Key{Kind: store.KindACL, Device: device, Name: tree.ScalarString(v)}, store.EdgeAppliesACLOut)
			}
		}
		for _, prefix := range interfacePrefixes(elem) {
			add(ifKey, store.Key{Kind: store.KindIPNetwork, Device: device, Name: prefix.Masked().String()}, store.EdgeConnectedTo)
		}
	}

	bgpName := "default"
	if global := mapAt(root, "routing", "bgp", "global", "config"); global != nil {
		if as := tree.ScalarString(global["as"]); as != "" && as != "<nil>" {
			bgpName = as
		}
	}
	bgpKey := store.Key{Kind: store.KindBGP, Device: device, Name: bgpName}

	for _, item := range listAt(root, "routing", "bgp", "neighbors", "neighbor") {
		elem, _ := item.(map[string]any)
		addr := tree.ScalarString(elem["neighbor-address"])
		peerKey := store.Key{Kind: store.KindBGPPeer, Device: device, Name: addr}
		add(bgpKey, peerKey, store.EdgeHasPeer)

		if policy := mapAt(elem, "apply-policy", "config"); policy != nil {
			for _, leaf := range []string{"import-policy", "export-policy"} {
				for _, name := range scalarList(policy[leaf]) {
					add(peerKey, store.Key{Kind: store.KindRouteMap, Device: device, Name: name}, store.EdgeUsesRouteMap)
				}
			}
		}
		if local, ok := sessionInterface(device, root, addr); ok {
			add(peerKey, local, store.EdgeSessionVia)
			m.Sessions[addr] = local
		}
	}

	for _, item := range listAt(root, "routing", "policy-definitions", "policy-definition") {
		elem, _ := item.(map[string]any)
		rmKey := store.Key{Kind: store.KindRouteMap, Device: device, Name: tree.ScalarString(elem["name"])}
		for _, stmt := range listAt(elem, "statements", "statement") {
			s, _ := stmt.(map[string]any)
			if cond := mapAt(s, "conditions"); cond != nil {
				if v, ok := cond["match-prefix-set"]; ok {
					add(rmKey, store.Key{Kind: store.KindPrefixSet, Device: device, Name: tree.ScalarString(v)}, store.EdgeMatchesPrefixSet)
				}
			}
		}
	}

	for _, item := range listAt(root, "qos", "service-policies") {
		elem, _ := item.(map[string]any)
		if v, ok := elem["target-interface"]; ok {
			add(
				store.Key{Kind: store.KindQoSPolicy, Device: device, Name: tree.ScalarString(elem["name"])},
				store.Key{Kind: store.KindInterface, Device: device, Name: tree.ScalarString(v)},
				store.EdgeAttachedTo,
			)
		}
	}

	return edges
}

// sessionInterface finds the interface whose configured subnet contains the
// neighbor address.
func sessionInterface(device string, root tree.Tree, addr string) (store.Key, bool) {
	ip, err := netip.ParseAddr(addr)
	if err != nil {
		return store.Key{}, false
	}
	for _, item := range listAt(root, "interfaces", "interface") {
		elem, _ := item.(map[string]any)
		for _, prefix := range interfacePrefixes(elem) {
			if prefix.Masked().Contains(ip) {
				return store.Key{Kind: store.KindInterface, Device: device, Name: tree.ScalarString(elem["name"])}, true
			}
		}
	}
	return store.Key{}, false
}

// interfacePrefixes collects the configured ipv4 prefixes of one interface
// element. Addresses that fail to parse are skipped.
func interfacePrefixes(elem map[string]any) []netip.Prefix {
	var out []netip.Prefix
	for _, sub := range listAt(elem, "subinterfaces", "subinterface") {
		s, _ := sub.(map[string]any)
		for _, addrItem := range listAt(s, "ipv4", "addresses", "address") {
			a, _ := addrItem.(map[string]any)
			cfg := mapAt(a, "config")
			if cfg == nil {
				continue
			}
			ip, err := netip.ParseAddr(tree.ScalarString(cfg["ip"]))
			if err != nil {
				continue
			}
			plen, ok := asInt(cfg["prefix-length"])
			if !ok {
				continue
			}
			prefix, err := ip.Prefix(plen)
			if err != nil {
				continue
			}
			out = append(out, prefix)
		}
	}
	return out
}

// flattenFields walks an identity's subtree and records every scalar under
// its absolute schema path. List elements share the path of their list, so
// leaf-lists and keyed entries both accumulate values.
func flattenFields(basePath string, v any) map[string][]string {
	fields := make(map[string][]string)
	var walk func(path string, v any)
	walk = func(path string, v any) {
		switch val := v.(type) {
		case map[string]any:
			for _, k := range tree.SortedKeys(val) {
				walk(path+"/"+k, val[k])
			}
		case []any:
			for _, item := range val {
				walk(path, item)
			}
		default:
			if tree.IsScalar(v) {
				fields[path] = append(fields[path], tree.ScalarString(v))
			}
		}
	}
	walk(basePath, v)
	return fields
}

func mapAt(v any, parts ...string) map[string]any {
	cur := v
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[p]
	}
	m, _ := cur.(map[string]any)
	return m
}

func listAt(v any, parts ...string) []any {
	if len(parts) == 0 {
		return nil
	}
	parent := mapAt(v, parts[:len(parts)-1]...)
	if parent == nil {
		return nil
	}
	list, _ := parent[parts[len(parts)-1]].([]any)
	return list
}

func scalarList(v any) []string {
	list, ok := v.([]any)
	if !ok {
		if v == nil {
			return nil
		}
		return []string{tree.ScalarString(v)}
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		out = append(out, tree.ScalarString(item))
	}
	return out
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int64:
		return int(n), true
	case int:
		return n, true
	case float64:
		return int(n), true
	}
	return 0, false
}

// removeAt deletes the value at parts and prunes containers emptied by the
// deletion.
func removeAt(root map[string]any, parts []string) {
	if len(parts) == 0 {
		return
	}
	chain := make([]map[string]any, 0, len(parts))
	cur := root
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(map[string]any)
		if !ok {
			return
		}
		chain = append(chain, cur)
		cur = next
	}
	delete(cur, parts[len(parts)-1])
	for i := len(chain) - 1; i >= 0; i-- {
		if len(cur) > 0 {
			break
		}
		delete(chain[i], parts[i])
		cur = chain[i]
	}
}
