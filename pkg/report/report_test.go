package report

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netscope-io/netscope/pkg/diff"
	"github.com/netscope-io/netscope/pkg/store"
)

func fixtureReport() *Report {
	return &Report{
		Device:      "core-sw-02",
		GeneratedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		Summary:     diff.Summary{Total: 2, Modified: 1, Removed: 1, BySection: map[string]int{"acl": 1, "routing": 1}},
		Changes: []diff.Change{
			{Path: "acl/acl-sets/acl-set[USER_INBOUND_V4]", Kind: diff.KindRemoved, Old: map[string]any{"name": "USER_INBOUND_V4"}},
			{Path: "routing/bgp/global/config/as", Kind: diff.KindModified, Old: int64(65001), New: int64(99999)},
		},
		Findings: []Finding{
			{
				Key:        store.Key{Kind: store.KindInterface, Device: "core-sw-02", Name: "Ethernet1"},
				Hops:       0,
				Severity:   "critical",
				Rules:      []string{"direct-removal"},
				SourcePath: "interfaces/interface/acl/ingress-acl-set",
				Value:      "USER_INBOUND_V4",
				ChangePath: "acl/acl-sets/acl-set[USER_INBOUND_V4]",
			},
			{
				Key:      store.Key{Kind: store.KindVLAN, Device: "core-sw-02", Name: "10"},
				Hops:     1,
				Severity: "warning",
				Rules:    []string{"near-cascade"},
			},
		},
		Caveats: []string{"schema set resolves partially: 1 unresolved reference"},
	}
}

func TestWriteTextGolden(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, fixtureReport().WriteText(&buf))
	goldie.New(t).Assert(t, "impact_text", buf.Bytes())
}

func TestWriteJSONRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, fixtureReport().WriteJSON(&buf))

	var decoded Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "core-sw-02", decoded.Device)
	require.Len(t, decoded.Findings, 2)
	assert.Equal(t, "critical", decoded.Findings[0].Severity)
	assert.Equal(t, store.KindInterface, decoded.Findings[0].Key.Kind)
}

func TestWriteYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, fixtureReport().WriteYAML(&buf))
	assert.Contains(t, buf.String(), "device: core-sw-02")
	assert.Contains(t, buf.String(), "severity: critical")
}

func TestBySeverity(t *testing.T) {
	counts := fixtureReport().BySeverity()
	assert.Equal(t, map[string]int{"critical": 1, "warning": 1}, counts)
}

func TestWriteTextNoFindings(t *testing.T) {
	r := &Report{Device: "sw9", GeneratedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	var buf bytes.Buffer
	require.NoError(t, r.WriteText(&buf))
	assert.Contains(t, buf.String(), "no affected identities")
}
