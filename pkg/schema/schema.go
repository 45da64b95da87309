// Package schema models the declarative schema definition tree a Schema
// Provider yields for a device's module set, and derives the reference map
// (what references what) that drives dependency discovery.
package schema

import (
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/netscope-io/netscope/pkg/sys/intern"
	"github.com/netscope-io/netscope/pkg/tree"
)

// Kind classifies a schema node.
type Kind uint8

const (
	KindContainer Kind = iota
	KindList
	KindLeaf
	KindLeafList
)

func (k Kind) String() string {
	switch k {
	case KindContainer:
		return "container"
	case KindList:
		return "list"
	case KindLeaf:
		return "leaf"
	case KindLeafList:
		return "leaf-list"
	}
	return "unknown"
}

// Node is one node of a schema definition tree. Leaves may carry a
// reference-target expression naming the schema path they point at,
// analogous to a foreign-key declaration.
type Node struct {
	Name      string
	Kind      Kind
	Key       string // discriminator leaf for lists
	RefTarget string // leafref path expression, leaves only
	Children  []*Node
}

// Child returns the named child, or nil.
func (n *Node) Child(name string) *Node {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// At navigates the schema tree along an absolute schema path.
func (n *Node) At(schemaPath string) *Node {
	current := n
	for _, part := range tree.SplitPath(schemaPath) {
		if current = current.Child(part); current == nil {
			return nil
		}
	}
	return current
}

// ListKey returns the discriminator leaf name of the list at schemaPath,
// or "" when the path is not a keyed list.
func (n *Node) ListKey(schemaPath string) string {
	node := n.At(schemaPath)
	if node == nil || node.Kind != KindList {
		return ""
	}
	return node.Key
}

// Provider yields a schema definition tree for a device's module set.
// Implementations must be stable for a given (vendor, os, version) tuple so
// the reference-map cache stays valid.
type Provider interface {
	GetSchema(vendor, os, version string) (*Node, error)
}

// Error reports an unloadable schema. Discovery proceeds in degraded mode
// when a schema is partially usable; a nil tree is fatal to discovery only.
type Error struct {
	Vendor  string
	OS      string
	Version string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("schema %s/%s/%s: %v", e.Vendor, e.OS, e.Version, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Fingerprint hashes the full schema tree. Two module sets with the same
// fingerprint share one cached reference map.
func Fingerprint(root *Node) uint64 {
	h := xxhash.New()
	fingerprintNode(h, root)
	return h.Sum64()
}

func fingerprintNode(h *xxhash.Digest, n *Node) {
	_, _ = h.WriteString(n.Name)
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(strconv.Itoa(int(n.Kind)))
	_, _ = h.WriteString(n.Key)
	_, _ = h.WriteString(n.RefTarget)
	_, _ = h.WriteString("\x01")
	for _, c := range n.Children {
		fingerprintNode(h, c)
	}
	_, _ = h.WriteString("\x02")
}

// Helpers for declaring schema trees in Go. The built-in provider and the
// tests both build their module sets through these.

func Container(name string, children ...*Node) *Node {
	return &Node{Name: intern.String(name), Kind: KindContainer, Children: children}
}

func List(name, key string, children ...*Node) *Node {
	return &Node{Name: intern.String(name), Kind: KindList, Key: key, Children: children}
}

func Leaf(name string) *Node {
	return &Node{Name: intern.String(name), Kind: KindLeaf}
}

func LeafRef(name, target string) *Node {
	return &Node{Name: intern.String(name), Kind: KindLeaf, RefTarget: target}
}

func LeafListRef(name, target string) *Node {
	return &Node{Name: intern.String(name), Kind: KindLeafList, RefTarget: target}
}

func LeafList(name string) *Node {
	return &Node{Name: intern.String(name), Kind: KindLeafList}
}
