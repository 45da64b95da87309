// Package store implements the temporal graph of network configuration:
// immutable identity entities, their versioned state snapshots chained in
// chronological order, and the structural edges cascade queries traverse.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/netscope-io/netscope/pkg/sys/intern"
	"github.com/netscope-io/netscope/pkg/tree"
)

// Key identifies an identity entity: a stable namespace (kind) plus the
// owning device and the object's natural local name. Renaming an object
// yields a new identity; history is never rewritten under a different name.
type Key struct {
	Kind   string `json:"kind"`
	Device string `json:"device"`
	Name   string `json:"name"`
}

// Identity kinds.
const (
	KindDevice    = "device"
	KindInterface = "interface"
	KindVLAN      = "vlan"
	KindACL       = "acl"
	KindBGP       = "bgp"
	KindBGPPeer   = "bgp-peer"
	KindRouteMap  = "route-map"
	KindPrefixSet = "prefix-set"
	KindQoSPolicy = "qos-policy"
	KindIPNetwork = "ip-network"
)

// DeviceKey returns the identity key of a device itself.
func DeviceKey(hostname string) Key {
	return Key{Kind: KindDevice, Device: hostname, Name: hostname}
}

func (k Key) String() string {
	return k.Device + "/" + k.Kind + ":" + k.Name
}

// IsZero reports whether the key is unset.
func (k Key) IsZero() bool {
	return k.Kind == "" && k.Device == "" && k.Name == ""
}

// Identity is the immutable entity record. Identities are created on first
// observation and never deleted; absence in later configuration shows up as
// state content, not as identity removal.
type Identity struct {
	Key       Key       `json:"key"`
	CreatedAt time.Time `json:"created_at"`
}

// State is one immutable versioned snapshot of an identity's field values.
// Versions start at 1 and increase by exactly 1 per content change.
type State struct {
	Version     uint64    `json:"version"`
	Timestamp   time.Time `json:"timestamp"`
	Fingerprint uint64    `json:"fingerprint"`

	// Fields maps absolute schema paths to the scalar values the identity
	// holds at them. Leaf-lists contribute multiple values per path. This is
	// what the dependency discoverer's value index is built from.
	Fields map[string][]string `json:"fields,omitempty"`

	// Doc is the canonical subtree this identity owns, placed at Section
	// when the device tree is reassembled.
	Doc     tree.Tree `json:"doc,omitempty"`
	Section string    `json:"section,omitempty"`
	Ordinal int       `json:"ordinal,omitempty"`
}

// StateUpsert is one identity's content within a device ingestion batch.
type StateUpsert struct {
	Key     Key
	Section string
	Ordinal int
	Doc     tree.Tree
	Fields  map[string][]string
}

// FingerprintContent hashes an upsert's content. Matching the current
// state's fingerprint makes re-ingestion a no-op for that identity.
func (u StateUpsert) FingerprintContent() uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(u.Section)
	_, _ = h.WriteString("\x00")
	if u.Doc != nil {
		// json.Marshal sorts map keys, so the serialization is stable.
		raw, _ := json.Marshal(u.Doc)
		_, _ = h.Write(raw)
	}
	_, _ = h.WriteString("\x00")
	raw, _ := json.Marshal(u.Fields)
	_, _ = h.Write(raw)
	return h.Sum64()
}

// EdgeType labels a structural edge between identities.
type EdgeType string

const (
	EdgeOwns             EdgeType = "owns"
	EdgeMemberOfVLAN     EdgeType = "member-of-vlan"
	EdgeAppliesACLIn     EdgeType = "applies-acl-ingress"
	EdgeAppliesACLOut    EdgeType = "applies-acl-egress"
	EdgeHasPeer          EdgeType = "has-peer"
	EdgeUsesRouteMap     EdgeType = "uses-route-map"
	EdgeSessionVia       EdgeType = "session-via"
	EdgeAttachedTo       EdgeType = "attached-to"
	EdgeMatchesPrefixSet EdgeType = "matches-prefix-set"
	EdgeConnectedTo      EdgeType = "connected-to"
	EdgePeersWith        EdgeType = "peers-with"
)

// Traversable reports whether cascade queries follow this edge type.
// Ownership edges are bookkeeping; following them would make every sibling
// of a device a two-hop dependent of everything else.
func (t EdgeType) Traversable() bool {
	return t != EdgeOwns
}

// StructuralEdge is a semantic relationship between two identities. Edges
// are re-derived wholesale from the owning device's latest states on every
// ingest, never patched incrementally.
type StructuralEdge struct {
	From        Key      `json:"from"`
	To          Key      `json:"to"`
	Type        EdgeType `json:"type"`
	OwnerDevice string   `json:"owner_device"`
}

// Reach is one identity reached by a cascade query.
type Reach struct {
	Key  Key `json:"key"`
	Hops int `json:"hops"`
}

// BatchResult summarizes one device ingestion batch.
type BatchResult struct {
	Device    string            `json:"device"`
	Created   int               `json:"created"`   // identities seen for the first time
	Changed   int               `json:"changed"`   // identities that got a new state version
	Unchanged int               `json:"unchanged"` // fingerprint matches, no-op
	Versions  map[string]uint64 `json:"versions"`  // Key.String() -> current version
}

// NewVersionCreated reports whether the batch wrote anything.
func (r BatchResult) NewVersionCreated() bool {
	return r.Changed > 0
}

// Store is the temporal graph store. Writes are scoped to one device per
// call and atomic within it; reads across devices tolerate seeing a mix of
// pre- and post-update state for devices other than the one being ingested.
type Store interface {
	// UpsertBatch applies one device's identity/state upserts in a single
	// transaction: new identities are created, changed content gets
	// version = previous+1 with the predecessor chain relinked, unchanged
	// content is a no-op. A concurrent writer racing the same identity
	// surfaces as ErrVersionConflict with no partial writes.
	UpsertBatch(ctx context.Context, device string, upserts []StateUpsert) (BatchResult, error)

	// ReplaceDeviceEdges drops every structural edge owned by the device
	// and installs the freshly derived set, in one transaction. Runs after
	// the device's state batch has committed.
	ReplaceDeviceEdges(ctx context.Context, device string, edges []StructuralEdge) error

	Identity(ctx context.Context, key Key) (Identity, error)
	CurrentState(ctx context.Context, key Key) (State, error)

	// StateChain returns every state of an identity, oldest first, by
	// following the chronological-predecessor chain from the current state.
	StateChain(ctx context.Context, key Key) ([]State, error)

	// CurrentTree reassembles the device's canonical configuration tree
	// from the current-version states of the device and its descendants.
	CurrentTree(ctx context.Context, device string) (tree.Tree, error)

	// LookupValue returns every identity whose current state holds value at
	// the given schema path, via the store's current-value index.
	LookupValue(ctx context.Context, schemaPath, value string) ([]Key, error)

	// IdentitiesOf lists the identities owned by a device, the device
	// itself included.
	IdentitiesOf(ctx context.Context, device string) ([]Key, error)

	// EdgesFrom returns the structural edges leaving key.
	EdgesFrom(ctx context.Context, key Key) ([]StructuralEdge, error)

	// CascadeQuery walks traversable structural edges breadth-first in both
	// directions from start, up to maxHops, deduplicating nodes at their
	// minimum hop distance. The start identity itself is not returned.
	CascadeQuery(ctx context.Context, start Key, maxHops int) ([]Reach, error)

	Close() error
}

// DefaultMaxHops bounds cascade expansion when the caller passes 0.
const DefaultMaxHops = 2

func internKey(k Key) Key {
	return Key{
		Kind:   intern.String(k.Kind),
		Device: intern.String(k.Device),
		Name:   k.Name,
	}
}

func internFields(fields map[string][]string) map[string][]string {
	if fields == nil {
		return nil
	}
	out := make(map[string][]string, len(fields))
	for path, values := range fields {
		out[intern.Path(path)] = values
	}
	return out
}

func validateUpsert(device string, u StateUpsert) error {
	if u.Key.Kind == "" || u.Key.Device == "" || u.Key.Name == "" {
		return fmt.Errorf("%w: incomplete key %v", ErrMalformed, u.Key)
	}
	if u.Key.Device != device {
		return fmt.Errorf("%w: upsert for %s in batch for %s", ErrMalformed, u.Key, device)
	}
	return nil
}
