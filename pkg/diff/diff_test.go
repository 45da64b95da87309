package diff

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netscope-io/netscope/pkg/schema"
	"github.com/netscope-io/netscope/pkg/tree"
)

func testSchema(t *testing.T) *schema.Node {
	t.Helper()
	root, err := schema.NewStaticProvider().GetSchema("arista", "eos", "4.30")
	require.NoError(t, err)
	return root
}

func doc(root tree.Tree) tree.Document {
	return tree.Document{Vendor: "openconfig", Root: root}
}

func TestCompareScalarModified(t *testing.T) {
	e := &Engine{Schema: testSchema(t)}

	current := tree.Tree{
		"routing": tree.Tree{"bgp": tree.Tree{"global": tree.Tree{"config": tree.Tree{"as": int64(65001)}}}},
	}
	proposed := tree.Tree{
		"routing": tree.Tree{"bgp": tree.Tree{"global": tree.Tree{"config": tree.Tree{"as": int64(99999)}}}},
	}

	changes := e.Compare(doc(current), doc(proposed))
	require.Len(t, changes, 1)
	assert.Equal(t, "routing/bgp/global/config/as", changes[0].Path)
	assert.Equal(t, KindModified, changes[0].Kind)
	assert.Equal(t, int64(65001), changes[0].Old)
	assert.Equal(t, int64(99999), changes[0].New)
}

func TestCompareExactRepresentationEquality(t *testing.T) {
	e := &Engine{}
	// "65001" (string) and 65001 (int) are different values by design; any
	// normalization must happen before comparison.
	changes := e.Compare(
		doc(tree.Tree{"as": "65001"}),
		doc(tree.Tree{"as": int64(65001)}),
	)
	require.Len(t, changes, 1)
	assert.Equal(t, KindModified, changes[0].Kind)
}

func TestCompareKeyedListBySchemaDiscriminator(t *testing.T) {
	e := &Engine{Schema: testSchema(t)}

	current := tree.Tree{
		"interfaces": tree.Tree{"interface": []any{
			map[string]any{"name": "Ethernet1", "config": map[string]any{"name": "Ethernet1", "mtu": int64(1500)}},
			map[string]any{"name": "Ethernet2", "config": map[string]any{"name": "Ethernet2", "mtu": int64(1500)}},
		}},
	}
	proposed := tree.Tree{
		"interfaces": tree.Tree{"interface": []any{
			// Reordered on purpose: identity comes from the key, not position.
			map[string]any{"name": "Ethernet2", "config": map[string]any{"name": "Ethernet2", "mtu": int64(9000)}},
			map[string]any{"name": "Ethernet3", "config": map[string]any{"name": "Ethernet3", "mtu": int64(1500)}},
		}},
	}

	changes := e.Compare(doc(current), doc(proposed))
	byPath := map[string]Change{}
	for _, c := range changes {
		byPath[c.Path] = c
	}

	require.Len(t, changes, 3)
	assert.Equal(t, KindRemoved, byPath["interfaces/interface[Ethernet1]"].Kind)
	assert.Equal(t, KindModified, byPath["interfaces/interface[Ethernet2]/config/mtu"].Kind)
	assert.Equal(t, KindAdded, byPath["interfaces/interface[Ethernet3]"].Kind)
}

func TestCompareScalarListWholeValue(t *testing.T) {
	e := &Engine{}
	changes := e.Compare(
		doc(tree.Tree{"servers": []any{"10.0.0.1", "10.0.0.2"}}),
		doc(tree.Tree{"servers": []any{"10.0.0.1", "10.0.0.3"}}),
	)
	require.Len(t, changes, 1)
	assert.Equal(t, "servers", changes[0].Path)
	assert.Equal(t, KindModified, changes[0].Kind)
}

func TestCompareStructuralMismatch(t *testing.T) {
	e := &Engine{}
	changes := e.Compare(
		doc(tree.Tree{"snmp": tree.Tree{"community": "public"}}),
		doc(tree.Tree{"snmp": "disabled"}),
	)
	require.Len(t, changes, 1)
	assert.Equal(t, KindStructural, changes[0].Kind)
	assert.Equal(t, "snmp", changes[0].Path)
}

func TestCompareSkipsMetadataSection(t *testing.T) {
	e := &Engine{}
	changes := e.Compare(
		doc(tree.Tree{"device": tree.Tree{"hostname": "a"}}),
		doc(tree.Tree{"device": tree.Tree{"hostname": "b"}}),
	)
	assert.Empty(t, changes)
}

func TestCompareAppliesAliases(t *testing.T) {
	aliases := tree.NewAliasTable()
	aliases.Add("cisco-ios", "system/hostname", "hostname")
	e := &Engine{Aliases: aliases}

	current := tree.Document{Vendor: "cisco-ios", Root: tree.Tree{"hostname": "core-sw-02"}}
	proposed := tree.Document{Vendor: "openconfig", Root: tree.Tree{"system": tree.Tree{"hostname": "core-sw-99"}}}

	changes := e.Compare(current, proposed)
	require.Len(t, changes, 1)
	assert.Equal(t, "system/hostname", changes[0].Path)
	assert.Equal(t, KindModified, changes[0].Kind)
}

func TestRoundTrip(t *testing.T) {
	e := &Engine{Schema: testSchema(t)}

	current := tree.Tree{
		"interfaces": tree.Tree{"interface": []any{
			map[string]any{"name": "Ethernet1", "acl": map[string]any{"ingress-acl-set": "USER_INBOUND_V4"}},
			map[string]any{"name": "Ethernet2", "config": map[string]any{"name": "Ethernet2", "mtu": int64(1500)}},
		}},
		"vlans": tree.Tree{"vlan": []any{
			map[string]any{"vlan-id": int64(10), "config": map[string]any{"name": "users"}},
		}},
		"banner": "legacy",
	}
	proposed := tree.Tree{
		"interfaces": tree.Tree{"interface": []any{
			map[string]any{"name": "Ethernet1", "acl": map[string]any{"ingress-acl-set": "MGMT_ONLY"}},
			map[string]any{"name": "Ethernet3", "config": map[string]any{"name": "Ethernet3", "mtu": int64(9000)}},
		}},
		"vlans": tree.Tree{"vlan": []any{
			map[string]any{"vlan-id": int64(10), "config": map[string]any{"name": "users"}},
			map[string]any{"vlan-id": int64(20), "config": map[string]any{"name": "voice"}},
		}},
		"ntp": tree.Tree{"server": "10.0.0.1"},
	}

	changes := e.Compare(doc(current), doc(proposed))
	got, err := e.Apply(current, changes)
	require.NoError(t, err)
	assert.True(t, tree.Equal(proposed, got), "apply(current, diff) must reproduce proposed")
}

func TestRoundTripSchemaKeyedLists(t *testing.T) {
	e := &Engine{Schema: testSchema(t)}

	// Neighbors are keyed by neighbor-address and subinterfaces by index,
	// neither of which is a heuristic discriminator candidate. Removal and
	// modification must resolve elements through the declared key.
	current := tree.Tree{
		"routing": tree.Tree{"bgp": tree.Tree{"neighbors": tree.Tree{"neighbor": []any{
			map[string]any{"neighbor-address": "10.0.0.1", "config": map[string]any{"peer-as": int64(65010)}},
			map[string]any{"neighbor-address": "10.0.0.5", "config": map[string]any{"peer-as": int64(65020)}},
		}}}},
		"interfaces": tree.Tree{"interface": []any{
			map[string]any{"name": "Ethernet1", "subinterfaces": map[string]any{"subinterface": []any{
				map[string]any{"index": int64(100), "config": map[string]any{"description": "uplink"}},
			}}},
		}},
	}
	proposed := tree.Tree{
		"routing": tree.Tree{"bgp": tree.Tree{"neighbors": tree.Tree{"neighbor": []any{
			map[string]any{"neighbor-address": "10.0.0.1", "config": map[string]any{"peer-as": int64(65099)}},
		}}}},
		"interfaces": tree.Tree{"interface": []any{
			map[string]any{"name": "Ethernet1", "subinterfaces": map[string]any{"subinterface": []any{
				map[string]any{"index": int64(100), "config": map[string]any{"description": "downlink"}},
			}}},
		}},
	}

	changes := e.Compare(doc(current), doc(proposed))
	byPath := map[string]Change{}
	for _, c := range changes {
		byPath[c.Path] = c
	}
	require.Contains(t, byPath, "routing/bgp/neighbors/neighbor[10.0.0.5]")
	assert.Equal(t, KindRemoved, byPath["routing/bgp/neighbors/neighbor[10.0.0.5]"].Kind)

	got, err := e.Apply(current, changes)
	require.NoError(t, err)
	assert.True(t, tree.Equal(proposed, got), "apply(current, diff) must reproduce proposed")

	neighbors := tree.ValuesAt(got, "routing/bgp/neighbors/neighbor/neighbor-address")
	assert.Equal(t, []string{"10.0.0.1"}, neighbors)
}

func TestSymmetryOfKind(t *testing.T) {
	e := &Engine{Schema: testSchema(t)}

	a := tree.Tree{
		"vlans":  tree.Tree{"vlan": []any{map[string]any{"vlan-id": int64(10)}}},
		"banner": "old",
	}
	b := tree.Tree{
		"vlans":  tree.Tree{"vlan": []any{map[string]any{"vlan-id": int64(20)}}},
		"banner": "new",
		"ntp":    tree.Tree{"server": "10.0.0.1"},
	}

	forward := e.Compare(doc(a), doc(b))
	backward := e.Compare(doc(b), doc(a))
	inverted := Invert(forward)

	normalize := func(cs []Change) []Change {
		out := append([]Change(nil), cs...)
		sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
		return out
	}
	assert.Equal(t, normalize(backward), normalize(inverted))
}

func TestMutatingFiltersAdded(t *testing.T) {
	changes := []Change{
		{Path: "a", Kind: KindAdded},
		{Path: "b", Kind: KindModified},
		{Path: "c", Kind: KindRemoved},
	}
	got := Mutating(changes)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].Path)
	assert.Equal(t, "c", got[1].Path)
}

func TestSummarize(t *testing.T) {
	s := Summarize([]Change{
		{Path: "interfaces/interface[Ethernet1]/config/mtu", Kind: KindModified},
		{Path: "vlans/vlan[20]", Kind: KindAdded},
		{Path: "banner", Kind: KindRemoved},
	})
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 1, s.Added)
	assert.Equal(t, 1, s.Modified)
	assert.Equal(t, 1, s.Removed)
	assert.Equal(t, 1, s.BySection["interfaces"])
}
