// Package tree defines the canonical configuration tree that every loader
// produces and the diff engine operates on: nested maps, ordered lists and
// scalars, annotated with a vendor tag.
package tree

import (
	"fmt"
	"sort"
	"strings"
)

// Tree is one level of a canonical configuration tree. Values are either
// scalars (string, bool, int64, float64), []any, or nested Tree.
type Tree = map[string]any

// Document is a canonical tree plus the vendor tag the loader attached.
type Document struct {
	Vendor string
	Root   Tree
}

// MetadataSections are top-level keys that describe the document rather than
// the configuration itself. They are skipped by the diff engine.
var MetadataSections = map[string]bool{
	"device": true,
}

// SplitPath splits a slash-separated path into its segments.
func SplitPath(path string) []string {
	var parts []string
	for _, p := range strings.Split(path, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// JoinPath appends a segment to a slash-separated path.
func JoinPath(base, seg string) string {
	if base == "" {
		return seg
	}
	return base + "/" + seg
}

// SchemaPath strips list-key selectors from a data path so it can be compared
// against schema paths. "acl/acl-set[USER_IN]/config/name" becomes
// "acl/acl-set/config/name".
func SchemaPath(dataPath string) string {
	var b strings.Builder
	depth := 0
	for _, r := range dataPath {
		switch {
		case r == '[':
			depth++
		case r == ']':
			if depth > 0 {
				depth--
			}
		case depth == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// At navigates the tree along a slash-separated data path and returns the
// value found, or false when any segment is missing. List-key selectors
// ("item[key]") select the element whose discriminator equals the key.
func At(root Tree, path string) (any, bool) {
	var current any = root
	for _, part := range SplitPath(path) {
		name, key := splitSelector(part)
		m, ok := current.(Tree)
		if !ok {
			return nil, false
		}
		next, ok := m[name]
		if !ok {
			return nil, false
		}
		if key != "" {
			list, ok := next.([]any)
			if !ok {
				return nil, false
			}
			elem, ok := selectByKey(list, key)
			if !ok {
				return nil, false
			}
			next = elem
		}
		current = next
	}
	return current, true
}

// ValuesAt collects every scalar reachable at a schema path, descending
// through list elements. Mirrors the lookup the dependency discoverer uses
// to resolve reference-map entries against live data.
func ValuesAt(root Tree, schemaPath string) []string {
	nodes := []any{root}
	for _, part := range SplitPath(schemaPath) {
		var next []any
		for _, n := range nodes {
			switch v := n.(type) {
			case Tree:
				if child, ok := v[part]; ok {
					next = append(next, child)
				}
			case []any:
				for _, item := range v {
					if m, ok := item.(map[string]any); ok {
						if child, ok := m[part]; ok {
							next = append(next, child)
						}
					}
				}
			}
		}
		nodes = next
		if len(nodes) == 0 {
			return nil
		}
	}

	var values []string
	for _, n := range nodes {
		switch v := n.(type) {
		case []any:
			for _, item := range v {
				if IsScalar(item) {
					values = append(values, ScalarString(item))
				}
			}
		default:
			if IsScalar(v) {
				values = append(values, ScalarString(v))
			}
		}
	}
	return values
}

// IsScalar reports whether v is a leaf value rather than a container.
func IsScalar(v any) bool {
	switch v.(type) {
	case nil, Tree, []any:
		return false
	}
	return true
}

// ScalarString renders a scalar in its canonical string form. Exact
// representation equality is required by the diff engine, so no numeric
// normalization happens here beyond Go's default formatting.
func ScalarString(v any) string {
	return fmt.Sprintf("%v", v)
}

// Equal compares two subtrees structurally.
func Equal(a, b any) bool {
	switch av := a.(type) {
	case Tree:
		return equalMap(av, b)
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	default:
		if !IsScalar(a) || !IsScalar(b) {
			return a == nil && b == nil
		}
		return a == b
	}
}

func equalMap(av Tree, b any) bool {
	bv, ok := b.(Tree)
	if !ok {
		return false
	}
	if len(av) != len(bv) {
		return false
	}
	for k, v := range av {
		w, ok := bv[k]
		if !ok || !Equal(v, w) {
			return false
		}
	}
	return true
}

// Clone deep-copies a subtree.
func Clone(v any) any {
	switch tv := v.(type) {
	case Tree:
		return cloneMap(tv)
	case []any:
		out := make([]any, len(tv))
		for i, item := range tv {
			out[i] = Clone(item)
		}
		return out
	default:
		return v
	}
}

func cloneMap(m map[string]any) Tree {
	out := make(Tree, len(m))
	for k, v := range m {
		out[k] = Clone(v)
	}
	return out
}

// SortedKeys returns the map keys in lexical order. Diff output ordering
// depends on this being deterministic.
func SortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// splitSelector splits "segment[key]" into ("segment", "key").
func splitSelector(part string) (name, key string) {
	open := strings.IndexByte(part, '[')
	if open < 0 || !strings.HasSuffix(part, "]") {
		return part, ""
	}
	return part[:open], part[open+1 : len(part)-1]
}

// selectByKey finds the list element whose well-known discriminator equals key.
func selectByKey(list []any, key string) (any, bool) {
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		for _, candidate := range KeyCandidates {
			if v, ok := m[candidate]; ok && ScalarString(v) == key {
				return item, true
			}
		}
	}
	return nil, false
}

// KeyCandidates are the discriminator fields tried, in order, when a list's
// schema declares no key. Matches common network configuration models.
var KeyCandidates = []string{"name", "id", "vlan-id", "sequence-id", "interface-id"}
