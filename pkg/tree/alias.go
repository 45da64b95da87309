package tree

import "strings"

// AliasTable maps canonical schema paths to vendor-native paths. When a
// document was stored in vendor-native shape, Canonicalize rewrites it so
// both sides of a diff are read through the same canonical path.
type AliasTable struct {
	// vendor -> canonical path -> vendor-native path
	aliases map[string]map[string]string
}

func NewAliasTable() *AliasTable {
	return &AliasTable{aliases: make(map[string]map[string]string)}
}

// Add registers a canonical->native path alias for a vendor tag.
func (t *AliasTable) Add(vendor, canonical, native string) {
	if t.aliases[vendor] == nil {
		t.aliases[vendor] = make(map[string]string)
	}
	t.aliases[vendor][canonical] = native
}

// ForVendor returns the alias map for a vendor, or nil.
func (t *AliasTable) ForVendor(vendor string) map[string]string {
	if t == nil {
		return nil
	}
	return t.aliases[vendor]
}

// Canonicalize returns a copy of doc with every aliased vendor-native path
// moved to its canonical location. A declared alias whose native path does
// not exist in the document is skipped; the canonical path simply stays
// absent and the diff reports it as added/removed.
func (t *AliasTable) Canonicalize(doc Document) Document {
	aliases := t.ForVendor(doc.Vendor)
	if len(aliases) == 0 {
		return doc
	}

	root := Clone(doc.Root).(Tree)
	for canonical, native := range aliases {
		val, ok := At(root, native)
		if !ok {
			continue
		}
		removeAt(root, native)
		setAt(root, canonical, Clone(val))
	}
	return Document{Vendor: doc.Vendor, Root: root}
}

// setAt creates intermediate containers as needed and places v at path.
func setAt(root Tree, path string, v any) {
	parts := SplitPath(path)
	m := root
	for i, part := range parts {
		if i == len(parts)-1 {
			m[part] = v
			return
		}
		child, ok := m[part].(map[string]any)
		if !ok {
			child = make(Tree)
			m[part] = child
		}
		m = child
	}
}

// removeAt deletes the value at path, pruning containers left empty.
func removeAt(root Tree, path string) {
	parts := SplitPath(path)
	if len(parts) == 0 {
		return
	}
	var parents []Tree
	m := root
	for _, part := range parts[:len(parts)-1] {
		child, ok := m[part].(map[string]any)
		if !ok {
			return
		}
		parents = append(parents, m)
		m = child
	}
	delete(m, parts[len(parts)-1])

	// Prune now-empty intermediate containers.
	for i := len(parents) - 1; i >= 0; i-- {
		if len(m) == 0 {
			delete(parents[i], parts[i])
		}
		m = parents[i]
	}
}

// HasPrefix reports whether path sits at or below prefix.
func HasPrefix(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
