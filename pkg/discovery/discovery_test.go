package discovery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netscope-io/netscope/pkg/diff"
	"github.com/netscope-io/netscope/pkg/schema"
	"github.com/netscope-io/netscope/pkg/store"
	"github.com/netscope-io/netscope/pkg/tree"
)

func seededStore(t *testing.T) store.Store {
	t.Helper()
	s := store.NewMemory()
	t.Cleanup(func() { _ = s.Close() })

	_, err := s.UpsertBatch(context.Background(), "sw1", []store.StateUpsert{
		{
			Key:     store.Key{Kind: store.KindInterface, Device: "sw1", Name: "Ethernet1"},
			Section: "interfaces/interface",
			Doc:     tree.Tree{"name": "Ethernet1"},
			Fields: map[string][]string{
				"interfaces/interface/acl/ingress-acl-set":                       {"USER_INBOUND_V4"},
				"interfaces/interface/ethernet/switched-vlan/config/access-vlan": {"10"},
			},
		},
		{
			Key:     store.Key{Kind: store.KindInterface, Device: "sw1", Name: "Ethernet2"},
			Section: "interfaces/interface",
			Doc:     tree.Tree{"name": "Ethernet2"},
			Fields: map[string][]string{
				"interfaces/interface/ethernet/switched-vlan/config/trunk-vlans": {"10", "20"},
			},
		},
		{
			Key:     store.Key{Kind: store.KindBGPPeer, Device: "sw1", Name: "10.0.0.1"},
			Section: "routing/bgp/neighbors/neighbor",
			Doc:     tree.Tree{"neighbor-address": "10.0.0.1"},
			Fields: map[string][]string{
				"routing/bgp/neighbors/neighbor/apply-policy/config/import-policy": {"TRANSIT_IN"},
			},
		},
	})
	require.NoError(t, err)
	return s
}

func refMap(t *testing.T) *schema.RefMap {
	t.Helper()
	root, err := schema.NewStaticProvider().GetSchema("arista", "eos", "4.30")
	require.NoError(t, err)
	return schema.BuildRefMap(root)
}

func TestDirectFindsReferencesToRemovedSubtree(t *testing.T) {
	d := New(seededStore(t), refMap(t), nil)

	// Removing the whole ACL set: the name leaf inside the removed subtree
	// is a reference target, so the interface applying it is a direct
	// dependent.
	changes := []diff.Change{{
		Path: "acl/acl-sets/acl-set[USER_INBOUND_V4]",
		Kind: diff.KindRemoved,
		Old:  map[string]any{"name": "USER_INBOUND_V4", "type": "ACL_IPV4"},
	}}

	got, err := d.Direct(context.Background(), changes)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, store.Key{Kind: store.KindInterface, Device: "sw1", Name: "Ethernet1"}, got[0].Key)
	assert.Equal(t, "interfaces/interface/acl/ingress-acl-set", got[0].SourcePath)
	assert.Equal(t, "acl/acl-sets/acl-set/name", got[0].TargetPath)
	assert.Equal(t, "USER_INBOUND_V4", got[0].Value)
}

func TestDirectFindsLeafModification(t *testing.T) {
	d := New(seededStore(t), refMap(t), nil)

	changes := []diff.Change{{
		Path: "vlans/vlan[10]/vlan-id",
		Kind: diff.KindModified,
		Old:  int64(10),
		New:  int64(11),
	}}

	got, err := d.Direct(context.Background(), changes)
	require.NoError(t, err)
	require.Len(t, got, 2, "access-vlan and trunk-vlans references both match")
	keys := []store.Key{got[0].Key, got[1].Key}
	assert.Contains(t, keys, store.Key{Kind: store.KindInterface, Device: "sw1", Name: "Ethernet1"})
	assert.Contains(t, keys, store.Key{Kind: store.KindInterface, Device: "sw1", Name: "Ethernet2"})
}

func TestDirectIgnoresAddedRecords(t *testing.T) {
	d := New(seededStore(t), refMap(t), nil)

	changes := []diff.Change{{
		Path: "vlans/vlan[30]",
		Kind: diff.KindAdded,
		New:  map[string]any{"vlan-id": int64(30)},
	}}

	got, err := d.Direct(context.Background(), changes)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDirectIgnoresUnreferencedValues(t *testing.T) {
	d := New(seededStore(t), refMap(t), nil)

	changes := []diff.Change{{
		Path: "routing/policy-definitions/policy-definition[UNUSED]",
		Kind: diff.KindRemoved,
		Old:  map[string]any{"name": "UNUSED"},
	}}

	got, err := d.Direct(context.Background(), changes)
	require.NoError(t, err)
	assert.Empty(t, got, "nothing references UNUSED")
}

func TestCaveatsSurfaceSchemaGaps(t *testing.T) {
	root := schema.Container("",
		schema.Container("a", schema.LeafRef("dangling", "/missing/leaf")),
	)
	d := New(seededStore(t), schema.BuildRefMap(root), nil)

	caveats := d.Caveats()
	require.Len(t, caveats, 1)
	assert.Contains(t, caveats[0], "a/dangling")
}
