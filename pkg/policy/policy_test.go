package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(nil)
	require.NoError(t, err)
	require.NoError(t, e.Compile(DefaultRules()))
	return e
}

func TestGradeDirectRemovalIsCritical(t *testing.T) {
	e := defaultEngine(t)
	severity, matched := e.Grade(Finding{
		Device:       "sw1",
		IdentityKind: "interface",
		Identity:     "Ethernet1",
		Hops:         0,
		ChangeKind:   "removed",
		ChangePath:   "acl/acl-sets/acl-set[USER_INBOUND_V4]",
	})
	assert.Equal(t, SeverityCritical, severity)
	assert.Contains(t, matched, "direct-removal")
}

func TestGradeCascadeDistance(t *testing.T) {
	e := defaultEngine(t)

	severity, _ := e.Grade(Finding{Hops: 1, ChangeKind: "modified"})
	assert.Equal(t, SeverityWarning, severity)

	severity, matched := e.Grade(Finding{Hops: 2, ChangeKind: "modified"})
	assert.Equal(t, SeverityInfo, severity)
	assert.Empty(t, matched)
}

func TestGradeStrongestSeverityWins(t *testing.T) {
	e, err := New(nil)
	require.NoError(t, err)
	require.NoError(t, e.Compile([]Rule{
		{ID: "broad", Condition: `device == "sw1"`, Severity: SeverityWarning},
		{ID: "narrow", Condition: `identity_kind == "bgp-peer"`, Severity: SeverityCritical},
	}))

	severity, matched := e.Grade(Finding{Device: "sw1", IdentityKind: "bgp-peer"})
	assert.Equal(t, SeverityCritical, severity)
	assert.ElementsMatch(t, []string{"broad", "narrow"}, matched)
}

func TestCompileRejectsBadRule(t *testing.T) {
	e, err := New(nil)
	require.NoError(t, err)

	assert.Error(t, e.Compile([]Rule{{ID: "syntax", Condition: `hops ==`, Severity: SeverityInfo}}))
	assert.Error(t, e.Compile([]Rule{{ID: "sev", Condition: `true`, Severity: "fatal"}}))
}

func TestLoadRulesFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
rules:
  - id: core-devices
    condition: device.startsWith("core-")
    severity: critical
`), 0o644))

	rules, err := LoadRules(path)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "core-devices", rules[0].ID)

	e, err := New(nil)
	require.NoError(t, err)
	require.NoError(t, e.Compile(rules))
	severity, _ := e.Grade(Finding{Device: "core-sw-02", Hops: 2})
	assert.Equal(t, SeverityCritical, severity)
}
