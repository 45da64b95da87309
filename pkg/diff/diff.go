// Package diff implements the generic structural comparison of two canonical
// configuration trees. It is protocol-agnostic: all vendor specificity lives
// in the path-alias table applied before comparison, and list identity comes
// from the schema's declared discriminators.
package diff

import (
	"fmt"
	"strconv"

	"github.com/netscope-io/netscope/pkg/schema"
	"github.com/netscope-io/netscope/pkg/tree"
)

// Kind classifies a change record.
type Kind string

const (
	KindAdded    Kind = "added"
	KindRemoved  Kind = "removed"
	KindModified Kind = "modified"
	// KindStructural marks a path that is a container on one side and a
	// scalar (or a differently-shaped container) on the other. Reported
	// per-path instead of aborting the whole diff.
	KindStructural Kind = "structural"
)

// Change is one value-level difference between current and proposed.
// Old is nil for added records, New is nil for removed ones.
type Change struct {
	Path string `json:"path"`
	Kind Kind   `json:"kind"`
	Old  any    `json:"old,omitempty"`
	New  any    `json:"new,omitempty"`
}

// Engine compares canonical trees. Schema is optional; when present, keyed
// lists are matched by their declared discriminator before the heuristic
// candidates are tried.
type Engine struct {
	Schema  *schema.Node
	Aliases *tree.AliasTable
}

// Compare diffs proposed against current and returns ordered change records.
// Both documents are canonicalized through the alias table first so they are
// read through the same paths regardless of stored shape.
func (e *Engine) Compare(current, proposed tree.Document) []Change {
	if e.Aliases != nil {
		current = e.Aliases.Canonicalize(current)
		proposed = e.Aliases.Canonicalize(proposed)
	}

	var changes []Change
	cur, pro := current.Root, proposed.Root
	for _, key := range unionKeys(cur, pro) {
		if tree.MetadataSections[key] {
			continue
		}
		changes = e.compareValue(changes, key, cur[key], pro[key], has(cur, key), has(pro, key))
	}
	return changes
}

// Mutating returns only the records that delete or alter an existing value.
// Added records cannot break existing references and never feed discovery.
func Mutating(changes []Change) []Change {
	var out []Change
	for _, c := range changes {
		if c.Kind == KindModified || c.Kind == KindRemoved || c.Kind == KindStructural {
			out = append(out, c)
		}
	}
	return out
}

func (e *Engine) compareValue(changes []Change, path string, cur, pro any, inCur, inPro bool) []Change {
	switch {
	case inCur && !inPro:
		return append(changes, Change{Path: path, Kind: KindRemoved, Old: cur})
	case !inCur && inPro:
		return append(changes, Change{Path: path, Kind: KindAdded, New: pro})
	}

	curMap, curIsMap := asMap(cur)
	proMap, proIsMap := asMap(pro)
	curList, curIsList := cur.([]any)
	proList, proIsList := pro.([]any)

	switch {
	case curIsMap && proIsMap:
		for _, key := range unionKeys(curMap, proMap) {
			changes = e.compareValue(changes, tree.JoinPath(path, key), curMap[key], proMap[key], has(curMap, key), has(proMap, key))
		}
		return changes
	case curIsList && proIsList:
		return e.compareLists(changes, path, curList, proList)
	case curIsMap != proIsMap || curIsList != proIsList:
		return append(changes, Change{Path: path, Kind: KindStructural, Old: cur, New: pro})
	default:
		if cur != pro {
			changes = append(changes, Change{Path: path, Kind: KindModified, Old: cur, New: pro})
		}
		return changes
	}
}

func (e *Engine) compareLists(changes []Change, path string, cur, pro []any) []Change {
	key := e.listKey(path, cur, pro)
	if key != "" {
		return e.compareKeyedLists(changes, path, key, cur, pro)
	}

	// No discriminator. Lists of equal length holding containers are
	// compared positionally; anything else is a whole-value replacement.
	if len(cur) == len(pro) && allMaps(cur) && allMaps(pro) {
		for i := range cur {
			elemPath := fmt.Sprintf("%s[%d]", path, i)
			changes = e.compareValue(changes, elemPath, cur[i], pro[i], true, true)
		}
		return changes
	}
	if !tree.Equal(cur, pro) {
		changes = append(changes, Change{Path: path, Kind: KindModified, Old: cur, New: pro})
	}
	return changes
}

func (e *Engine) compareKeyedLists(changes []Change, path, key string, cur, pro []any) []Change {
	curByKey, curOrder := indexByKey(cur, key)
	proByKey, proOrder := indexByKey(pro, key)

	for _, k := range curOrder {
		if _, ok := proByKey[k]; !ok {
			changes = append(changes, Change{Path: elemPath(path, k), Kind: KindRemoved, Old: curByKey[k]})
		}
	}
	for _, k := range proOrder {
		curElem, ok := curByKey[k]
		if !ok {
			changes = append(changes, Change{Path: elemPath(path, k), Kind: KindAdded, New: proByKey[k]})
			continue
		}
		changes = e.compareValue(changes, elemPath(path, k), curElem, proByKey[k], true, true)
	}
	return changes
}

// listKey picks the discriminator for a list: the schema's declared key if
// one exists at this path, otherwise the first heuristic candidate present
// in every element on both sides.
func (e *Engine) listKey(path string, cur, pro []any) string {
	if e.Schema != nil {
		if k := e.Schema.ListKey(tree.SchemaPath(path)); k != "" && keyCoversAll(cur, k) && keyCoversAll(pro, k) {
			return k
		}
	}
	for _, candidate := range tree.KeyCandidates {
		if len(cur)+len(pro) == 0 {
			return ""
		}
		if keyCoversAll(cur, candidate) && keyCoversAll(pro, candidate) {
			return candidate
		}
	}
	return ""
}

func keyCoversAll(list []any, key string) bool {
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return false
		}
		if _, ok := m[key]; !ok {
			return false
		}
	}
	return true
}

func indexByKey(list []any, key string) (map[string]any, []string) {
	byKey := make(map[string]any, len(list))
	order := make([]string, 0, len(list))
	for _, item := range list {
		k := tree.ScalarString(item.(map[string]any)[key])
		if _, dup := byKey[k]; !dup {
			order = append(order, k)
		}
		byKey[k] = item
	}
	return byKey, order
}

func elemPath(path, key string) string {
	return path + "[" + key + "]"
}

func allMaps(list []any) bool {
	for _, item := range list {
		if _, ok := item.(map[string]any); !ok {
			return false
		}
	}
	return true
}

func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func has(m map[string]any, key string) bool {
	_, ok := m[key]
	return ok
}

func unionKeys(a, b map[string]any) []string {
	merged := make(map[string]any, len(a)+len(b))
	for k := range a {
		merged[k] = nil
	}
	for k := range b {
		merged[k] = nil
	}
	return tree.SortedKeys(merged)
}

// Summary groups change counts by kind and by top-level section.
type Summary struct {
	Total      int            `json:"total"`
	Added      int            `json:"added"`
	Removed    int            `json:"removed"`
	Modified   int            `json:"modified"`
	Structural int            `json:"structural"`
	BySection  map[string]int `json:"by_section"`
}

// Summarize tallies a change list.
func Summarize(changes []Change) Summary {
	s := Summary{BySection: make(map[string]int)}
	for _, c := range changes {
		s.Total++
		switch c.Kind {
		case KindAdded:
			s.Added++
		case KindRemoved:
			s.Removed++
		case KindModified:
			s.Modified++
		case KindStructural:
			s.Structural++
		}
		parts := tree.SplitPath(c.Path)
		if len(parts) > 0 {
			s.BySection[tree.SchemaPath(parts[0])]++
		}
	}
	return s
}

// isIndexSelector reports whether a list selector is a bare element index.
func isIndexSelector(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
