package schema

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/netscope-io/netscope/pkg/sys/intern"
	"github.com/netscope-io/netscope/pkg/tree"
)

// Ref is one resolved leaf-reference: the leaf at Source holds a value that
// must name an instance of the leaf at Target. Both paths are absolute.
type Ref struct {
	Source string
	Target string
}

// Gap records a reference-target expression that could not be resolved
// against the loaded schema tree. Gaps are surfaced as caveats downstream;
// a map with gaps is partial, never silently wrong.
type Gap struct {
	Source string
	Expr   string
	Reason string
}

func (g Gap) String() string {
	return fmt.Sprintf("unresolved reference at %s: %q (%s)", g.Source, g.Expr, g.Reason)
}

// RefMap is the reference map derived from one schema tree.
type RefMap struct {
	Fingerprint uint64
	Refs        []Ref
	Gaps        []Gap

	bySource map[string]string
	byTarget map[string][]string
}

// TargetOf returns the target path referenced by a source path.
func (m *RefMap) TargetOf(source string) (string, bool) {
	t, ok := m.bySource[source]
	return t, ok
}

// SourcesOf returns every source path whose reference points at target.
// This is the direction dependency discovery walks: given a changed value's
// schema path, find who references it.
func (m *RefMap) SourcesOf(target string) []string {
	return m.byTarget[target]
}

// Targets returns all distinct target paths, sorted.
func (m *RefMap) Targets() []string {
	out := make([]string, 0, len(m.byTarget))
	for t := range m.byTarget {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// BuildRefMap walks the schema tree once and collects every leaf-reference.
// The walk is pure and deterministic for a given tree.
func BuildRefMap(root *Node) *RefMap {
	m := &RefMap{
		Fingerprint: Fingerprint(root),
		bySource:    make(map[string]string),
		byTarget:    make(map[string][]string),
	}
	walkRefs(root, root, "", m)

	sort.Slice(m.Refs, func(i, j int) bool {
		if m.Refs[i].Source != m.Refs[j].Source {
			return m.Refs[i].Source < m.Refs[j].Source
		}
		return m.Refs[i].Target < m.Refs[j].Target
	})
	return m
}

func walkRefs(root, n *Node, path string, m *RefMap) {
	for _, child := range n.Children {
		childPath := tree.JoinPath(path, child.Name)
		if child.RefTarget != "" {
			target, err := resolveTarget(root, childPath, child.RefTarget)
			if err != nil {
				m.Gaps = append(m.Gaps, Gap{Source: childPath, Expr: child.RefTarget, Reason: err.Error()})
			} else {
				src := intern.Path(childPath)
				tgt := intern.Path(target)
				m.Refs = append(m.Refs, Ref{Source: src, Target: tgt})
				m.bySource[src] = tgt
				m.byTarget[tgt] = append(m.byTarget[tgt], src)
			}
		}
		walkRefs(root, child, childPath, m)
	}
}

// resolveTarget turns a reference-target expression into an absolute schema
// path. Absolute expressions ("/a/b/c") resolve against the root directly;
// "../" chains resolve against the source leaf's parent and are then
// re-expressed as absolute paths, so every map entry is comparable.
func resolveTarget(root *Node, sourcePath, expr string) (string, error) {
	var resolved string
	if strings.HasPrefix(expr, "/") {
		resolved = strings.TrimPrefix(expr, "/")
	} else {
		base := tree.SplitPath(sourcePath)
		if len(base) > 0 {
			base = base[:len(base)-1] // start at the leaf's parent
		}
		for _, part := range tree.SplitPath(expr) {
			switch part {
			case "..":
				if len(base) == 0 {
					return "", fmt.Errorf("expression escapes schema root")
				}
				base = base[:len(base)-1]
			case ".":
			default:
				base = append(base, part)
			}
		}
		resolved = strings.Join(base, "/")
	}

	if root.At(resolved) == nil {
		return "", fmt.Errorf("no schema node at %q", resolved)
	}
	return resolved, nil
}

// Cache memoizes reference maps per schema-set fingerprint. Schema trees are
// large and shared across many devices of the same vendor/OS/version, so the
// walk runs once per distinct set.
type Cache struct {
	mu    sync.RWMutex
	built map[uint64]*RefMap
}

func NewCache() *Cache {
	return &Cache{built: make(map[uint64]*RefMap)}
}

// Get returns the cached reference map for the tree, building it on first use.
func (c *Cache) Get(root *Node) *RefMap {
	fp := Fingerprint(root)

	c.mu.RLock()
	m, ok := c.built[fp]
	c.mu.RUnlock()
	if ok {
		return m
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.built[fp]; ok {
		return m
	}
	m = BuildRefMap(root)
	c.built[fp] = m
	return m
}

// Len returns the number of cached maps.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.built)
}
