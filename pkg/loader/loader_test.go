package loader

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netscope-io/netscope/pkg/tree"
)

const jsonFixture = `{
  "device": {"hostname": "core-sw-02", "vendor": "arista"},
  "vlans": {"vlan": [{"vlan-id": 10, "config": {"name": "users"}}]},
  "qos": {"weight": 1.5}
}`

const yamlFixture = `
device:
  hostname: core-sw-02
  vendor: arista
vlans:
  vlan:
    - vlan-id: 10
      config:
        name: users
qos:
  weight: 1.5
`

func TestJSONAndYAMLProduceIdenticalTrees(t *testing.T) {
	jdoc, err := JSON().Load(strings.NewReader(jsonFixture), "fixture.json")
	require.NoError(t, err)
	ydoc, err := YAML().Load(strings.NewReader(yamlFixture), "fixture.yaml")
	require.NoError(t, err)

	assert.Equal(t, "arista", jdoc.Vendor)
	assert.Equal(t, "arista", ydoc.Vendor)
	assert.True(t, tree.Equal(jdoc.Root, ydoc.Root), "formats must normalize to the same tree")
}

func TestLoadNormalizesScalarTypes(t *testing.T) {
	doc, err := JSON().Load(strings.NewReader(jsonFixture), "fixture.json")
	require.NoError(t, err)

	id, ok := tree.At(doc.Root, "vlans/vlan[10]/vlan-id")
	require.True(t, ok)
	assert.Equal(t, int64(10), id, "integral numbers load as int64")

	w, ok := tree.At(doc.Root, "qos/weight")
	require.True(t, ok)
	assert.Equal(t, 1.5, w)
}

func TestLoadDefaultsVendor(t *testing.T) {
	doc, err := JSON().Load(strings.NewReader(`{"vlans": {}}`), "bare.json")
	require.NoError(t, err)
	assert.Equal(t, "openconfig", doc.Vendor)
}

func TestLoadReportsParseErrors(t *testing.T) {
	_, err := JSON().Load(strings.NewReader("{not json"), "broken.json")
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "broken.json", perr.Source)

	_, err = YAML().Load(strings.NewReader(":\n\t- bad"), "broken.yaml")
	assert.ErrorAs(t, err, &perr)
}

func TestForPathRejectsUnknownExtension(t *testing.T) {
	_, err := ForPath("config.xml")
	var perr *ParseError
	assert.ErrorAs(t, err, &perr)
}
