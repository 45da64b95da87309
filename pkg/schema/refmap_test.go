package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRefMapCollectsLeafrefs(t *testing.T) {
	root, err := NewStaticProvider().GetSchema("arista", "eos", "4.30")
	require.NoError(t, err)

	m := BuildRefMap(root)
	require.Empty(t, m.Gaps, "built-in set must resolve cleanly")

	target, ok := m.TargetOf("interfaces/interface/acl/ingress-acl-set")
	require.True(t, ok)
	assert.Equal(t, "acl/acl-sets/acl-set/name", target)

	sources := m.SourcesOf("acl/acl-sets/acl-set/name")
	assert.Contains(t, sources, "interfaces/interface/acl/ingress-acl-set")
	assert.Contains(t, sources, "interfaces/interface/acl/egress-acl-set")
}

func TestBuildRefMapRelativeExpression(t *testing.T) {
	root := Container("",
		Container("sets",
			List("set", "name", Leaf("name")),
		),
		Container("users",
			List("user", "id",
				Leaf("id"),
				LeafRef("member-of", "../../sets/set/name"),
			),
		),
	)

	m := BuildRefMap(root)
	require.Empty(t, m.Gaps)
	target, ok := m.TargetOf("users/user/member-of")
	require.True(t, ok)
	assert.Equal(t, "sets/set/name", target)
}

func TestBuildRefMapRecordsGaps(t *testing.T) {
	root := Container("",
		Container("a",
			LeafRef("dangling", "/does/not/exist"),
			LeafRef("escapes", "../../../../name"),
		),
	)

	m := BuildRefMap(root)
	assert.Empty(t, m.Refs)
	require.Len(t, m.Gaps, 2)
	assert.Equal(t, "a/dangling", m.Gaps[0].Source)
}

func TestCacheBuildsOncePerFingerprint(t *testing.T) {
	provider := NewStaticProvider()
	root, err := provider.GetSchema("cisco", "ios-xe", "17.9")
	require.NoError(t, err)

	cache := NewCache()
	first := cache.Get(root)
	second := cache.Get(root)
	assert.Same(t, first, second)
	assert.Equal(t, 1, cache.Len())

	// A structurally different tree gets its own entry.
	other := Container("", Container("x", Leaf("y")))
	third := cache.Get(other)
	assert.NotSame(t, first, third)
	assert.Equal(t, 2, cache.Len())
}

func TestFingerprintStable(t *testing.T) {
	a := dependencyFocusedSet()
	b := dependencyFocusedSet()
	assert.Equal(t, Fingerprint(a), Fingerprint(b))

	b.Children[0].Children[0].Key = "id"
	assert.NotEqual(t, Fingerprint(a), Fingerprint(b))
}

func TestListKeyLookup(t *testing.T) {
	root := dependencyFocusedSet()
	assert.Equal(t, "name", root.ListKey("interfaces/interface"))
	assert.Equal(t, "sequence-id", root.ListKey("acl/acl-sets/acl-set/acl-entries/acl-entry"))
	assert.Equal(t, "", root.ListKey("interfaces/interface/config"))
}
