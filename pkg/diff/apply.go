package diff

import (
	"fmt"
	"strings"

	"github.com/netscope-io/netscope/pkg/tree"
)

// Apply replays change records on top of a tree and returns the result.
// Applying the records produced by Compare(current, proposed) onto current
// reproduces proposed; the engine's tests hold that as an invariant.
// List selectors are resolved through the same schema discriminator Compare
// keyed the list by, so lists keyed by fields outside the heuristic
// candidates round-trip too.
func (e *Engine) Apply(root tree.Tree, changes []Change) (tree.Tree, error) {
	out := tree.Clone(root).(tree.Tree)
	for _, c := range changes {
		var err error
		switch c.Kind {
		case KindAdded, KindModified, KindStructural:
			err = e.setPath(out, c.Path, tree.Clone(c.New))
		case KindRemoved:
			err = e.removePath(out, c.Path)
		default:
			err = fmt.Errorf("unknown change kind %q", c.Kind)
		}
		if err != nil {
			return nil, fmt.Errorf("apply %s at %s: %w", c.Kind, c.Path, err)
		}
	}
	return out, nil
}

// Invert swaps the direction of a change list: diffing (A, B) then inverting
// yields the records diffing (B, A) would produce, kind-inverted at the same
// paths.
func Invert(changes []Change) []Change {
	out := make([]Change, len(changes))
	for i, c := range changes {
		inv := Change{Path: c.Path, Old: c.New, New: c.Old}
		switch c.Kind {
		case KindAdded:
			inv.Kind = KindRemoved
		case KindRemoved:
			inv.Kind = KindAdded
		default:
			inv.Kind = c.Kind
		}
		out[i] = inv
	}
	return out
}

type segment struct {
	name     string
	selector string
}

func parseSegments(path string) []segment {
	var segs []segment
	for _, part := range tree.SplitPath(path) {
		open := strings.IndexByte(part, '[')
		if open >= 0 && strings.HasSuffix(part, "]") {
			segs = append(segs, segment{name: part[:open], selector: part[open+1 : len(part)-1]})
		} else {
			segs = append(segs, segment{name: part})
		}
	}
	return segs
}

// setPath writes v at path, creating intermediate containers and appending
// list elements for selectors that match nothing yet.
func (e *Engine) setPath(root tree.Tree, path string, v any) error {
	segs := parseSegments(path)
	if len(segs) == 0 {
		return fmt.Errorf("empty path")
	}

	var container any = root
	schemaPath := ""
	for i, seg := range segs {
		last := i == len(segs)-1
		schemaPath = tree.JoinPath(schemaPath, seg.name)
		m, ok := asMap(container)
		if !ok {
			return fmt.Errorf("segment %q: parent is not a container", seg.name)
		}

		if seg.selector == "" {
			if last {
				m[seg.name] = v
				return nil
			}
			child, ok := m[seg.name]
			if !ok {
				child = make(tree.Tree)
				m[seg.name] = child
			}
			container = child
			continue
		}

		list, _ := m[seg.name].([]any)
		idx := e.findElement(list, schemaPath, seg.selector)
		if last {
			if idx < 0 {
				m[seg.name] = append(list, v)
			} else {
				list[idx] = v
			}
			return nil
		}
		if idx < 0 {
			elem := make(tree.Tree)
			list = append(list, elem)
			m[seg.name] = list
			idx = len(list) - 1
		}
		container = list[idx]
	}
	return nil
}

// removePath deletes the value at path. Removing a missing path is a no-op;
// replaying a removal twice must not fail.
func (e *Engine) removePath(root tree.Tree, path string) error {
	segs := parseSegments(path)
	if len(segs) == 0 {
		return fmt.Errorf("empty path")
	}

	var container any = root
	schemaPath := ""
	for i, seg := range segs {
		last := i == len(segs)-1
		schemaPath = tree.JoinPath(schemaPath, seg.name)
		m, ok := asMap(container)
		if !ok {
			return nil
		}

		if seg.selector == "" {
			if last {
				delete(m, seg.name)
				return nil
			}
			child, ok := m[seg.name]
			if !ok {
				return nil
			}
			container = child
			continue
		}

		list, _ := m[seg.name].([]any)
		idx := e.findElement(list, schemaPath, seg.selector)
		if idx < 0 {
			return nil
		}
		if last {
			m[seg.name] = append(list[:idx:idx], list[idx+1:]...)
			return nil
		}
		container = list[idx]
	}
	return nil
}

// findElement resolves a list selector: the schema's declared discriminator
// first, then the heuristic candidates, then a bare element index. Returns
// -1 when nothing matches.
func (e *Engine) findElement(list []any, schemaPath, selector string) int {
	if e.Schema != nil {
		if key := e.Schema.ListKey(schemaPath); key != "" {
			for i, item := range list {
				m, ok := item.(map[string]any)
				if !ok {
					continue
				}
				if v, ok := m[key]; ok && tree.ScalarString(v) == selector {
					return i
				}
			}
			// The declared key is the discriminator Compare used; a miss
			// means the element is absent, not that positional matching
			// should take over.
			return -1
		}
	}
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		for _, candidate := range tree.KeyCandidates {
			if v, ok := m[candidate]; ok {
				if tree.ScalarString(v) == selector {
					return i
				}
				break
			}
		}
	}
	if n, ok := isIndexSelector(selector); ok && n < len(list) {
		return n
	}
	return -1
}
